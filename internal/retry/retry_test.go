package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hellausefulsoftware/issuescout/internal/errs"
)

func testExecutor() (*Executor, *[]time.Duration) {
	slept := &[]time.Duration{}
	e := NewExecutor()
	e.Sleep = func(d time.Duration) { *slept = append(*slept, d) }
	return e, slept
}

func retryableErr(msg string) error {
	return errs.New(errs.KindNetwork, msg, errs.Context{})
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	e, slept := testExecutor()

	calls := 0
	got, err := Do(context.Background(), e, errs.Context{Operation: "op"}, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %q, want %q", got, "ok")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %d times on success, want 0", len(*slept))
	}
}

func TestDoRetriesWithProgressiveDelays(t *testing.T) {
	e, slept := testExecutor()

	calls := 0
	got, err := Do(context.Background(), e, errs.Context{Operation: "op"}, func(context.Context) (int, error) {
		calls++
		if calls < 4 {
			return 0, retryableErr("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if got != 42 {
		t.Errorf("result = %d, want 42", got)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (1 initial + 3 retries)", calls)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("slept %d times, want %d", len(*slept), len(want))
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Errorf("delay[%d] = %v, want %v", i, (*slept)[i], d)
		}
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	e, _ := testExecutor()

	calls := 0
	_, err := Do(context.Background(), e, errs.Context{Operation: "op"}, func(context.Context) (int, error) {
		calls++
		return 0, retryableErr("always failing")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (maxAttempts+1)", calls)
	}

	var serr *errs.ScraperError
	if !errors.As(err, &serr) {
		t.Fatalf("error type = %T, want *errs.ScraperError", err)
	}
	if serr.Message != "always failing" {
		t.Errorf("Message = %q, want the final attempt's error", serr.Message)
	}
}

func TestDoReturnsFinalAttemptError(t *testing.T) {
	e, _ := testExecutor()

	calls := 0
	_, err := Do(context.Background(), e, errs.Context{Operation: "op"}, func(context.Context) (int, error) {
		calls++
		return 0, retryableErr(fmt.Sprintf("failure %d", calls))
	})

	var serr *errs.ScraperError
	if !errors.As(err, &serr) {
		t.Fatalf("error type = %T, want *errs.ScraperError", err)
	}
	if serr.Message != "failure 4" {
		t.Errorf("Message = %q, want %q", serr.Message, "failure 4")
	}
}

func TestDoNonRetryableFailsImmediately(t *testing.T) {
	e, slept := testExecutor()

	calls := 0
	_, err := Do(context.Background(), e, errs.Context{Operation: "op"}, func(context.Context) (int, error) {
		calls++
		return 0, errs.New(errs.KindAuthentication, "bad token", errs.Context{})
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 for a non-retryable failure", calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %d times, want 0", len(*slept))
	}
}

func TestDoForceRetryable(t *testing.T) {
	e, _ := testExecutor()
	e.ForceRetryable = []errs.Kind{errs.KindFileSystem}

	calls := 0
	got, err := Do(context.Background(), e, errs.Context{Operation: "save_report"}, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errs.New(errs.KindFileSystem, "directory race", errs.Context{})
		}
		return "/tmp/report.md", nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if got != "/tmp/report.md" {
		t.Errorf("result = %q", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoClassifiesRawErrors(t *testing.T) {
	e, _ := testExecutor()

	calls := 0
	_, err := Do(context.Background(), e, errs.Context{Operation: "op"}, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("unclassified failure")
	})

	var serr *errs.ScraperError
	if !errors.As(err, &serr) {
		t.Fatalf("error type = %T, want *errs.ScraperError", err)
	}
	if serr.Kind != errs.KindUnknown {
		t.Errorf("Kind = %v, want %v", serr.Kind, errs.KindUnknown)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (unknown is not retryable)", calls)
	}
}
