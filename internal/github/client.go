// Package github implements the rate-limited, paginated GitHub REST client.
// Retry policy at this layer is per physical HTTP call: exponential backoff
// with jitter for transient failures, and an exact wait-for-reset (bounded to
// one hour) when the provider reports an exhausted rate limit window.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v45/github"
	"golang.org/x/oauth2"

	"github.com/hellausefulsoftware/issuescout/internal/errs"
	"github.com/hellausefulsoftware/issuescout/internal/logging"
	"github.com/hellausefulsoftware/issuescout/internal/models"
)

const (
	defaultBaseURL    = "https://api.github.com/"
	defaultPageSize   = 100
	defaultMaxPages   = 10
	defaultMaxRetries = 5
	defaultBaseDelay  = time.Second
	requestTimeout    = 30 * time.Second

	// Rate-limit reset waits longer than this fall back to exponential
	// backoff instead of an unbounded hang.
	maxResetWait = time.Hour
)

// Client handles GitHub API interactions
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	maxRetries int
	baseDelay  time.Duration

	// Injectable for tests; real runs use the clock.
	sleep  func(time.Duration)
	now    func() time.Time
	jitter func() time.Duration
}

// NewClient creates a new GitHub client authenticated with the given token.
func NewClient(token string) *Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = requestTimeout

	base, _ := url.Parse(defaultBaseURL)

	return &Client{
		httpClient: tc,
		baseURL:    base,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		sleep:      time.Sleep,
		now:        time.Now,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(time.Second)))
		},
	}
}

// FetchPage performs a single authenticated GET for one page of a collection
// resource and returns the raw records in provider order.
func (c *Client) FetchPage(ctx context.Context, resourcePath string, query url.Values, page, pageSize int) ([]json.RawMessage, error) {
	opCtx := errs.Context{Operation: "fetch_page " + resourcePath}

	var records []json.RawMessage
	err := c.withRetry(ctx, opCtx, func(ctx context.Context) error {
		q := url.Values{}
		for k, vs := range query {
			q[k] = vs
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(pageSize))

		records = records[:0]
		return c.getJSON(ctx, resourcePath, q, &records)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// FetchAllPages fetches pages 1, 2, ... of a collection resource and
// concatenates them in request order. It stops at the first page shorter than
// pageSize, or after maxPages pages, whichever comes first. maxPages <= 0
// means unbounded: termination relies solely on the short-page signal.
func (c *Client) FetchAllPages(ctx context.Context, resourcePath string, query url.Values, pageSize, maxPages int) ([]json.RawMessage, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var all []json.RawMessage
	for page := 1; maxPages <= 0 || page <= maxPages; page++ {
		records, err := c.FetchPage(ctx, resourcePath, query, page, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
		if len(records) < pageSize {
			break
		}
	}
	return all, nil
}

// FetchSingle fetches a singleton resource and decodes it into v.
func (c *Client) FetchSingle(ctx context.Context, resourcePath string, v any) error {
	opCtx := errs.Context{Operation: "fetch_single " + resourcePath}
	return c.withRetry(ctx, opCtx, func(ctx context.Context) error {
		return c.getJSON(ctx, resourcePath, nil, v)
	})
}

// withRetry wraps one logical call with the transport retry policy:
// up to maxRetries retries, so maxRetries+1 attempts total. A rate-limit
// failure with a usable reset time sleeps exactly until the reset without
// advancing the backoff exponent; everything else retryable gets
// baseDelay * 2^n plus uniform jitter.
func (c *Client) withRetry(ctx context.Context, opCtx errs.Context, fn func(context.Context) error) error {
	backoffExp := 0
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		serr := errs.Classify(err, opCtx)
		if !serr.Retryable || attempt >= c.maxRetries {
			return serr
		}

		if serr.Kind == errs.KindRateLimit && !serr.ResetAt.IsZero() {
			wait := serr.ResetAt.Sub(c.now())
			if wait > 0 && wait < maxResetWait {
				logging.Warn("rate limit exhausted, waiting for reset",
					"operation", opCtx.Operation,
					"wait", wait.Round(time.Second),
					"reset_at", serr.ResetAt.UTC().Format(time.RFC3339))
				c.sleep(wait)
				continue
			}
			// Reset absent or out of bounds: treat like any transient failure.
		}

		delay := c.baseDelay*(1<<backoffExp) + c.jitter()
		backoffExp++
		logging.Debug("transient failure, backing off",
			"operation", opCtx.Operation,
			"attempt", attempt+1,
			"delay", delay)
		c.sleep(delay)
	}
}

// getJSON performs one GET against the API and decodes a 2xx body into v.
// Non-2xx responses become *errs.HTTPError carrying the rate-limit headers.
func (c *Client) getJSON(ctx context.Context, resourcePath string, query url.Values, v any) error {
	u := *c.baseURL
	u.Path = path.Join(u.Path, resourcePath)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "issuescout")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newHTTPError(resp, body, u.String())
	}

	return json.Unmarshal(body, v)
}

func newHTTPError(resp *http.Response, body []byte, reqURL string) *errs.HTTPError {
	message := strings.TrimSpace(string(body))
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		message = payload.Message
	}
	if len(message) > 200 {
		message = message[:200]
	}

	h := &errs.HTTPError{
		StatusCode:    resp.StatusCode,
		Message:       message,
		URL:           reqURL,
		RateRemaining: resp.Header.Get("X-Ratelimit-Remaining"),
	}
	if reset := resp.Header.Get("X-Ratelimit-Reset"); reset != "" {
		if secs, err := strconv.ParseInt(reset, 10, 64); err == nil {
			h.ResetAt = time.Unix(secs, 0)
		}
	}
	return h
}

// IssueFilter narrows the issue listing the way the provider endpoint allows.
type IssueFilter struct {
	State  string
	Labels []string
	Since  time.Time
}

// SearchIssues lists issues for a repository, newest-updated first, capped at
// maxResults. Pull requests are excluded: the issues endpoint returns both,
// distinguished by the pull_request key.
func (c *Client) SearchIssues(ctx context.Context, owner, repo string, filter IssueFilter, maxResults int) ([]*models.Issue, error) {
	opCtx := errs.Context{
		Operation:  "search_issues",
		Repository: owner + "/" + repo,
	}

	query := url.Values{}
	query.Set("sort", "updated")
	query.Set("direction", "desc")
	state := filter.State
	if state == "" {
		state = "open"
	}
	query.Set("state", state)
	if len(filter.Labels) > 0 {
		query.Set("labels", strings.Join(filter.Labels, ","))
	}
	if !filter.Since.IsZero() {
		query.Set("since", filter.Since.UTC().Format(time.RFC3339))
	}

	maxPages := (maxResults + defaultPageSize - 1) / defaultPageSize
	if maxPages < 1 {
		maxPages = 1
	}
	if maxPages > defaultMaxPages {
		maxPages = defaultMaxPages
	}

	resourcePath := fmt.Sprintf("repos/%s/%s/issues", owner, repo)
	records, err := c.FetchAllPages(ctx, resourcePath, query, defaultPageSize, maxPages)
	if err != nil {
		return nil, err
	}

	issues := make([]*models.Issue, 0, len(records))
	for _, record := range records {
		var raw gh.Issue
		if err := json.Unmarshal(record, &raw); err != nil {
			return nil, errs.Classify(err, opCtx)
		}
		if raw.PullRequestLinks != nil {
			continue
		}
		issues = append(issues, issueFromRecord(&raw))
		if len(issues) >= maxResults {
			break
		}
	}

	logging.Info("issue search complete",
		"repository", opCtx.Repository,
		"records", len(records),
		"issues", len(issues))

	return issues, nil
}

// ListIssueComments fetches the full comment list for an issue in creation
// order. Pagination here is unbounded: termination relies on the short-page
// signal alone, since comment threads have no natural cap.
func (c *Client) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]*models.Comment, error) {
	opCtx := errs.Context{
		Operation:  "list_comments",
		Repository: owner + "/" + repo,
		IssueID:    int64(number),
	}

	resourcePath := fmt.Sprintf("repos/%s/%s/issues/%d/comments", owner, repo, number)
	records, err := c.FetchAllPages(ctx, resourcePath, nil, defaultPageSize, 0)
	if err != nil {
		return nil, err
	}

	comments := make([]*models.Comment, 0, len(records))
	for _, record := range records {
		var raw gh.IssueComment
		if err := json.Unmarshal(record, &raw); err != nil {
			return nil, errs.Classify(err, opCtx)
		}
		comments = append(comments, commentFromRecord(&raw))
	}
	return comments, nil
}

// RateLimit reports the authenticated core rate budget.
func (c *Client) RateLimit(ctx context.Context) (*models.RateLimitInfo, error) {
	var payload struct {
		Resources gh.RateLimits `json:"resources"`
	}
	if err := c.FetchSingle(ctx, "rate_limit", &payload); err != nil {
		return nil, err
	}
	core := payload.Resources.GetCore()
	if core == nil {
		return &models.RateLimitInfo{}, nil
	}
	return &models.RateLimitInfo{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		ResetAt:   core.Reset.Time,
	}, nil
}

func issueFromRecord(raw *gh.Issue) *models.Issue {
	issue := &models.Issue{
		ID:        raw.GetID(),
		Number:    raw.GetNumber(),
		Title:     raw.GetTitle(),
		Body:      raw.GetBody(),
		State:     raw.GetState(),
		CreatedAt: raw.GetCreatedAt(),
		UpdatedAt: raw.GetUpdatedAt(),
		Author:    raw.GetUser().GetLogin(),
		URL:       raw.GetHTMLURL(),
		Labels:    make([]string, 0, len(raw.Labels)),
	}
	for _, label := range raw.Labels {
		if label.Name != nil {
			issue.Labels = append(issue.Labels, *label.Name)
		}
	}
	return issue
}

func commentFromRecord(raw *gh.IssueComment) *models.Comment {
	return &models.Comment{
		ID:         raw.GetID(),
		Author:     raw.GetUser().GetLogin(),
		AuthorType: authorTypeFromAssociation(raw.GetAuthorAssociation()),
		Body:       raw.GetBody(),
		CreatedAt:  raw.GetCreatedAt(),
	}
}

func authorTypeFromAssociation(association string) models.AuthorType {
	switch strings.ToUpper(association) {
	case "OWNER", "MEMBER", "COLLABORATOR":
		return models.AuthorMaintainer
	case "CONTRIBUTOR":
		return models.AuthorContributor
	default:
		return models.AuthorUser
	}
}
