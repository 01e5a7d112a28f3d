package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/hellausefulsoftware/issuescout/internal/errs"
	"github.com/hellausefulsoftware/issuescout/internal/models"
)

// testClient builds a client against the mock server with a frozen clock,
// recorded sleeps and zero jitter, so retry timing is fully deterministic.
func testClient(t *testing.T, server *httptest.Server, now time.Time) (*Client, *[]time.Duration) {
	t.Helper()

	base, err := url.Parse(server.URL + "/")
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}

	slept := &[]time.Duration{}
	client := &Client{
		httpClient: server.Client(),
		baseURL:    base,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		sleep:      func(d time.Duration) { *slept = append(*slept, d) },
		now:        func() time.Time { return now },
		jitter:     func() time.Duration { return 0 },
	}
	return client, slept
}

func issuePage(start, count int) string {
	out := "["
	for i := 0; i < count; i++ {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"id": %d, "number": %d, "title": "issue %d", "state": "open"}`, start+i, start+i, start+i)
	}
	return out + "]"
}

func TestFetchAllPagesStopsOnShortPage(t *testing.T) {
	var pagesRequested []int
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/issues", func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pagesRequested = append(pagesRequested, page)
		switch page {
		case 1, 2:
			fmt.Fprint(w, issuePage((page-1)*100+1, 100))
		default:
			fmt.Fprint(w, issuePage(201, 50))
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := testClient(t, server, time.Now())
	records, err := client.FetchAllPages(context.Background(), "repos/o/r/issues", nil, 100, 10)
	if err != nil {
		t.Fatalf("FetchAllPages returned error: %v", err)
	}
	if len(records) != 250 {
		t.Errorf("records = %d, want 250", len(records))
	}
	if len(pagesRequested) != 3 {
		t.Errorf("requests = %d, want 3 (short third page ends pagination)", len(pagesRequested))
	}
}

func TestFetchAllPagesHonorsMaxPages(t *testing.T) {
	requests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/issues", func(w http.ResponseWriter, r *http.Request) {
		requests++
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		fmt.Fprint(w, issuePage((page-1)*100+1, 100))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := testClient(t, server, time.Now())
	records, err := client.FetchAllPages(context.Background(), "repos/o/r/issues", nil, 100, 2)
	if err != nil {
		t.Fatalf("FetchAllPages returned error: %v", err)
	}
	if len(records) != 200 {
		t.Errorf("records = %d, want 200", len(records))
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2 (maxPages cap)", requests)
	}
}

func TestSearchIssuesSkipsPullRequestsAndCaps(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/issues", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("state"); got != "open" {
			t.Errorf("state = %q, want default open", got)
		}
		if got := q.Get("sort"); got != "updated" {
			t.Errorf("sort = %q, want updated", got)
		}
		fmt.Fprint(w, `[
			{"id": 1, "number": 1, "title": "real issue", "state": "open",
			 "user": {"login": "alice"}, "labels": [{"name": "bug"}]},
			{"id": 2, "number": 2, "title": "a pull request", "state": "open",
			 "pull_request": {"url": "https://api.github.com/repos/o/r/pulls/2"}},
			{"id": 3, "number": 3, "title": "another issue", "state": "open"},
			{"id": 4, "number": 4, "title": "issue past the cap", "state": "open"}
		]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := testClient(t, server, time.Now())
	issues, err := client.SearchIssues(context.Background(), "o", "r", IssueFilter{}, 2)
	if err != nil {
		t.Fatalf("SearchIssues returned error: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("issues = %d, want 2 (PR skipped, cap applied)", len(issues))
	}
	if issues[0].Number != 1 || issues[1].Number != 3 {
		t.Errorf("issue numbers = %d, %d; want 1, 3", issues[0].Number, issues[1].Number)
	}
	if issues[0].Author != "alice" {
		t.Errorf("Author = %q, want alice", issues[0].Author)
	}
	if len(issues[0].Labels) != 1 || issues[0].Labels[0] != "bug" {
		t.Errorf("Labels = %v, want [bug]", issues[0].Labels)
	}
}

func TestSearchIssuesAppliesFilter(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/issues", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("state"); got != "all" {
			t.Errorf("state = %q, want all", got)
		}
		if got := q.Get("labels"); got != "bug,regression" {
			t.Errorf("labels = %q, want bug,regression", got)
		}
		if got := q.Get("since"); got != "2026-01-01T00:00:00Z" {
			t.Errorf("since = %q", got)
		}
		fmt.Fprint(w, "[]")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := testClient(t, server, time.Now())
	filter := IssueFilter{State: "all", Labels: []string{"bug", "regression"}, Since: since}
	if _, err := client.SearchIssues(context.Background(), "o", "r", filter, 10); err != nil {
		t.Fatalf("SearchIssues returned error: %v", err)
	}
}

func TestListIssueCommentsAuthorTypes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id": 10, "body": "a", "user": {"login": "owner"}, "author_association": "OWNER"},
			{"id": 11, "body": "b", "user": {"login": "member"}, "author_association": "MEMBER"},
			{"id": 12, "body": "c", "user": {"login": "contrib"}, "author_association": "CONTRIBUTOR"},
			{"id": 13, "body": "d", "user": {"login": "drive-by"}, "author_association": "NONE"}
		]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := testClient(t, server, time.Now())
	comments, err := client.ListIssueComments(context.Background(), "o", "r", 7)
	if err != nil {
		t.Fatalf("ListIssueComments returned error: %v", err)
	}
	if len(comments) != 4 {
		t.Fatalf("comments = %d, want 4", len(comments))
	}

	want := []models.AuthorType{
		models.AuthorMaintainer,
		models.AuthorMaintainer,
		models.AuthorContributor,
		models.AuthorUser,
	}
	for i, comment := range comments {
		if comment.AuthorType != want[i] {
			t.Errorf("comment %d AuthorType = %v, want %v", i, comment.AuthorType, want[i])
		}
	}
}

func TestRetryExponentialBackoff(t *testing.T) {
	requests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/issues", func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"message": "upstream hiccup"}`)
			return
		}
		fmt.Fprint(w, "[]")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, slept := testClient(t, server, time.Now())
	if _, err := client.SearchIssues(context.Background(), "o", "r", IssueFilter{}, 10); err != nil {
		t.Fatalf("SearchIssues returned error: %v", err)
	}

	if requests != 3 {
		t.Errorf("requests = %d, want 3", requests)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("slept %d times, want %d", len(*slept), len(want))
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Errorf("delay[%d] = %v, want %v (base*2^n, zero jitter)", i, (*slept)[i], d)
		}
	}
}

func TestRetryAttemptBound(t *testing.T) {
	requests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/issues", func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message": "still down"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := testClient(t, server, time.Now())
	_, err := client.SearchIssues(context.Background(), "o", "r", IssueFilter{}, 10)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if requests != defaultMaxRetries+1 {
		t.Errorf("requests = %d, want %d", requests, defaultMaxRetries+1)
	}

	var serr *errs.ScraperError
	if !errors.As(err, &serr) {
		t.Fatalf("error type = %T, want *errs.ScraperError", err)
	}
	if serr.Kind != errs.KindNetwork {
		t.Errorf("Kind = %v, want %v", serr.Kind, errs.KindNetwork)
	}
}

func TestRetryWaitsForRateLimitReset(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	resetAt := now.Add(30 * time.Minute)

	requests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/issues", func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("X-Ratelimit-Remaining", "0")
			w.Header().Set("X-Ratelimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
			return
		}
		fmt.Fprint(w, "[]")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, slept := testClient(t, server, now)
	if _, err := client.SearchIssues(context.Background(), "o", "r", IssueFilter{}, 10); err != nil {
		t.Fatalf("SearchIssues returned error: %v", err)
	}

	if requests != 2 {
		t.Errorf("requests = %d, want 2", requests)
	}
	if len(*slept) != 1 {
		t.Fatalf("slept %d times, want 1", len(*slept))
	}
	if (*slept)[0] != 30*time.Minute {
		t.Errorf("wait = %v, want exactly 30m (reset - now)", (*slept)[0])
	}
}

func TestRetryRateLimitResetTooFarFallsBackToBackoff(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	resetAt := now.Add(2 * time.Hour)

	requests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/issues", func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("X-Ratelimit-Remaining", "0")
			w.Header().Set("X-Ratelimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
			return
		}
		fmt.Fprint(w, "[]")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, slept := testClient(t, server, now)
	if _, err := client.SearchIssues(context.Background(), "o", "r", IssueFilter{}, 10); err != nil {
		t.Fatalf("SearchIssues returned error: %v", err)
	}

	if len(*slept) != 1 {
		t.Fatalf("slept %d times, want 1", len(*slept))
	}
	if (*slept)[0] != time.Second {
		t.Errorf("wait = %v, want 1s exponential fallback for an out-of-bounds reset", (*slept)[0])
	}
}

func TestNotFoundDoesNotRetry(t *testing.T) {
	requests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/missing/issues", func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, slept := testClient(t, server, time.Now())
	_, err := client.SearchIssues(context.Background(), "o", "missing", IssueFilter{}, 10)
	if err == nil {
		t.Fatal("expected error for missing repository")
	}
	if requests != 1 {
		t.Errorf("requests = %d, want 1 (no retry on 404)", requests)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %d times, want 0", len(*slept))
	}

	var serr *errs.ScraperError
	if !errors.As(err, &serr) {
		t.Fatalf("error type = %T, want *errs.ScraperError", err)
	}
	if serr.Kind != errs.KindRepositoryAccess {
		t.Errorf("Kind = %v, want %v", serr.Kind, errs.KindRepositoryAccess)
	}
}

func TestRateLimit(t *testing.T) {
	reset := time.Now().Add(20 * time.Minute).Truncate(time.Second)
	mux := http.NewServeMux()
	mux.HandleFunc("/rate_limit", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"resources": {"core": {"limit": 5000, "remaining": 4321, "reset": %d}}}`, reset.Unix())
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := testClient(t, server, time.Now())
	info, err := client.RateLimit(context.Background())
	if err != nil {
		t.Fatalf("RateLimit returned error: %v", err)
	}
	if info.Limit != 5000 || info.Remaining != 4321 {
		t.Errorf("limit/remaining = %d/%d, want 5000/4321", info.Limit, info.Remaining)
	}
	if !info.ResetAt.Equal(reset) {
		t.Errorf("ResetAt = %v, want %v", info.ResetAt, reset)
	}
}
