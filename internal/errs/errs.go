// Package errs defines the closed error taxonomy for the scraper and the
// classifier that maps raw failures onto it.
package errs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"sort"
	"strings"
	"syscall"
	"time"
)

// Kind enumerates every failure category the scraper can surface.
type Kind string

const (
	KindAuthentication   Kind = "authentication"
	KindNetwork          Kind = "network"
	KindRateLimit        Kind = "rate_limit"
	KindRepositoryAccess Kind = "repository_access"
	KindValidation       Kind = "validation"
	KindParsing          Kind = "parsing"
	KindFileSystem       Kind = "file_system"
	KindEmptyResults     Kind = "empty_results"
	KindAnalysisService  Kind = "analysis_service"
	KindAnalysisResponse Kind = "analysis_response"
	KindAnalysisContext  Kind = "analysis_context"
	KindUnknown          Kind = "unknown"
)

// Priority ranks remediation suggestions for user-facing output.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func priorityRank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// Suggestion is a ranked remediation hint attached to a classified error.
type Suggestion struct {
	Action      string
	Description string
	Priority    Priority
}

// Context identifies where a failure happened.
type Context struct {
	Operation  string
	Repository string
	IssueID    int64
	FilePath   string
}

// ScraperError is the single error type that crosses component boundaries.
// Cause is exclusively owned by the error and exposed via Unwrap.
type ScraperError struct {
	Kind        Kind
	Message     string
	Context     Context
	Suggestions []Suggestion
	Retryable   bool
	// ResetAt carries the provider's rate-limit reset time when the failure
	// was a rate limit with a reset header; zero otherwise.
	ResetAt time.Time
	Cause   error
}

func (e *ScraperError) Error() string {
	if e.Context.Operation != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Context.Operation, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
}

func (e *ScraperError) Unwrap() error {
	return e.Cause
}

// New builds a ScraperError directly, for failures that originate inside the
// scraper rather than from a raw error (e.g. empty filter results).
func New(kind Kind, message string, opCtx Context, suggestions ...Suggestion) *ScraperError {
	return &ScraperError{
		Kind:        kind,
		Message:     message,
		Context:     opCtx,
		Suggestions: suggestions,
		Retryable:   kind == KindNetwork || kind == KindRateLimit || kind == KindAnalysisResponse,
	}
}

// HTTPError is the transport layer's record of a non-2xx provider response.
// It carries exactly what the classifier needs: status, message, and the
// rate-limit headers when present.
type HTTPError struct {
	StatusCode    int
	Message       string
	URL           string
	RateRemaining string
	ResetAt       time.Time
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Classify maps a raw failure plus operation context onto the taxonomy. It is
// a pure function: no I/O, no clock reads, safe for concurrent use, and
// structurally idempotent for the same inputs.
func Classify(err error, opCtx Context) *ScraperError {
	if err == nil {
		return nil
	}

	// Already classified errors pass through, picking up context if missing.
	var serr *ScraperError
	if errors.As(err, &serr) {
		if serr.Context.Operation == "" {
			serr.Context = opCtx
		}
		return serr
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return classifyHTTP(httpErr, err, opCtx)
	}

	if isTransportError(err) {
		return &ScraperError{
			Kind:      KindNetwork,
			Message:   fmt.Sprintf("network error: %v", err),
			Context:   opCtx,
			Retryable: true,
			Cause:     err,
			Suggestions: []Suggestion{
				{Action: "check_connectivity", Description: "verify your network connection and proxy settings", Priority: PriorityHigh},
				{Action: "retry", Description: "transient network failures usually resolve on retry", Priority: PriorityMedium},
			},
		}
	}

	if isFileSystemError(err) {
		return &ScraperError{
			Kind:      KindFileSystem,
			Message:   fmt.Sprintf("file system error: %v", err),
			Context:   opCtx,
			Retryable: false,
			Cause:     err,
			Suggestions: []Suggestion{
				{Action: "check_path", Description: fmt.Sprintf("verify the output path exists and is writable: %s", opCtx.FilePath), Priority: PriorityHigh},
				{Action: "check_permissions", Description: "check directory permissions and available disk space", Priority: PriorityMedium},
			},
		}
	}

	if isDecodeError(err) {
		if strings.HasPrefix(opCtx.Operation, "analyze") {
			return &ScraperError{
				Kind:      KindAnalysisResponse,
				Message:   fmt.Sprintf("malformed analyzer response: %v", err),
				Context:   opCtx,
				Retryable: true,
				Cause:     err,
				Suggestions: []Suggestion{
					{Action: "retry", Description: "the analyzer returned unparseable output; a retry often produces valid JSON", Priority: PriorityHigh},
					{Action: "switch_analyzer", Description: "run with --analyzer keyword to bypass the LLM analyzer", Priority: PriorityLow},
				},
			}
		}
		return &ScraperError{
			Kind:      KindParsing,
			Message:   fmt.Sprintf("failed to decode provider response: %v", err),
			Context:   opCtx,
			Retryable: false,
			Cause:     err,
			Suggestions: []Suggestion{
				{Action: "report_bug", Description: "the provider returned an unexpected payload shape; re-run with --log-level debug and file a bug", Priority: PriorityMedium},
			},
		}
	}

	return &ScraperError{
		Kind:      KindUnknown,
		Message:   err.Error(),
		Context:   opCtx,
		Retryable: false,
		Cause:     err,
		Suggestions: []Suggestion{
			{Action: "inspect_logs", Description: "re-run with --log-level debug for more detail", Priority: PriorityLow},
		},
	}
}

func classifyHTTP(h *HTTPError, cause error, opCtx Context) *ScraperError {
	switch {
	case h.StatusCode == 401:
		return &ScraperError{
			Kind:      KindAuthentication,
			Message:   fmt.Sprintf("authentication failed: %s", h.Message),
			Context:   opCtx,
			Retryable: false,
			Cause:     cause,
			Suggestions: []Suggestion{
				{Action: "check_token", Description: "verify GITHUB_TOKEN is set and has not expired", Priority: PriorityHigh},
				{Action: "check_scope", Description: "the token needs the repo scope to read issues", Priority: PriorityMedium},
				{Action: "regenerate_token", Description: "generate a fresh token at github.com/settings/tokens", Priority: PriorityLow},
			},
		}

	case h.StatusCode == 403 && isRateLimited(h):
		s := []Suggestion{
			{Action: "wait", Description: "wait for the rate limit window to reset before retrying", Priority: PriorityHigh},
			{Action: "authenticate", Description: "authenticated requests get a 5000 req/hour budget instead of 60", Priority: PriorityMedium},
		}
		if !h.ResetAt.IsZero() {
			s[0].Description = fmt.Sprintf("rate limit window resets at %s", h.ResetAt.UTC().Format(time.RFC3339))
		}
		return &ScraperError{
			Kind:        KindRateLimit,
			Message:     fmt.Sprintf("rate limit exceeded: %s", h.Message),
			Context:     opCtx,
			Retryable:   true,
			ResetAt:     h.ResetAt,
			Cause:       cause,
			Suggestions: s,
		}

	case h.StatusCode == 403 || h.StatusCode == 404:
		return &ScraperError{
			Kind:      KindRepositoryAccess,
			Message:   fmt.Sprintf("repository not accessible: %s", h.Message),
			Context:   opCtx,
			Retryable: false,
			Cause:     cause,
			Suggestions: []Suggestion{
				{Action: "check_repository", Description: fmt.Sprintf("verify the repository exists and is spelled owner/repo: %s", opCtx.Repository), Priority: PriorityHigh},
				{Action: "check_visibility", Description: "private repositories require a token with access to them", Priority: PriorityMedium},
			},
		}

	case h.StatusCode == 422:
		return &ScraperError{
			Kind:      KindValidation,
			Message:   fmt.Sprintf("invalid request: %s", h.Message),
			Context:   opCtx,
			Retryable: false,
			Cause:     cause,
			Suggestions: []Suggestion{
				{Action: "check_query", Description: "check the search filters (state, labels, since) for invalid values", Priority: PriorityHigh},
			},
		}

	case h.StatusCode >= 500 || h.StatusCode == 408 || h.StatusCode == 429:
		return &ScraperError{
			Kind:      KindNetwork,
			Message:   fmt.Sprintf("provider error (HTTP %d): %s", h.StatusCode, h.Message),
			Context:   opCtx,
			Retryable: true,
			Cause:     cause,
			Suggestions: []Suggestion{
				{Action: "retry", Description: "the provider is having a transient problem; the client retries automatically", Priority: PriorityHigh},
				{Action: "check_status", Description: "check githubstatus.com for ongoing incidents", Priority: PriorityLow},
			},
		}
	}

	return &ScraperError{
		Kind:      KindUnknown,
		Message:   fmt.Sprintf("unexpected HTTP %d: %s", h.StatusCode, h.Message),
		Context:   opCtx,
		Retryable: false,
		Cause:     cause,
		Suggestions: []Suggestion{
			{Action: "inspect_logs", Description: "re-run with --log-level debug for the full response", Priority: PriorityLow},
		},
	}
}

func isRateLimited(h *HTTPError) bool {
	return h.RateRemaining == "0" || strings.Contains(strings.ToLower(h.Message), "rate limit")
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

func isFileSystemError(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, syscall.ENOSPC)
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// SortSuggestions orders suggestions high before medium before low, stably.
func SortSuggestions(s []Suggestion) {
	sort.SliceStable(s, func(i, j int) bool {
		return priorityRank(s[i].Priority) < priorityRank(s[j].Priority)
	})
}

// FormatForUser renders a terminal ScraperError with its message, operation
// and priority-ordered suggestions, for display at the CLI boundary.
func FormatForUser(e *ScraperError) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Error: %s\n", e.Message))
	if e.Context.Operation != "" {
		b.WriteString(fmt.Sprintf("Operation: %s\n", e.Context.Operation))
	}
	if e.Context.Repository != "" {
		b.WriteString(fmt.Sprintf("Repository: %s\n", e.Context.Repository))
	}
	if len(e.Suggestions) > 0 {
		sorted := make([]Suggestion, len(e.Suggestions))
		copy(sorted, e.Suggestions)
		SortSuggestions(sorted)
		b.WriteString("Suggestions:\n")
		for _, s := range sorted {
			b.WriteString(fmt.Sprintf("  [%s] %s\n", s.Priority, s.Description))
		}
	}
	return b.String()
}
