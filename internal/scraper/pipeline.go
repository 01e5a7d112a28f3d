// Package scraper drives the five-phase scraping pipeline:
// search -> detail fetch -> analyze -> filter/rank -> report.
//
// Failure semantics: a failure in the search or report phase aborts the run;
// a failure isolated to one item during detail fetch or analysis is absorbed
// (empty comments, or the neutral fallback verdict) and never escalates.
package scraper

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hellausefulsoftware/issuescout/internal/analyze"
	"github.com/hellausefulsoftware/issuescout/internal/errs"
	"github.com/hellausefulsoftware/issuescout/internal/github"
	"github.com/hellausefulsoftware/issuescout/internal/logging"
	"github.com/hellausefulsoftware/issuescout/internal/models"
	"github.com/hellausefulsoftware/issuescout/internal/report"
	"github.com/hellausefulsoftware/issuescout/internal/retry"
)

// Pipeline phases, reported through progress events.
const (
	PhaseFetching   = "fetching"
	PhaseDetails    = "details"
	PhaseAnalyzing  = "analyzing"
	PhaseFiltering  = "filtering"
	PhaseGenerating = "generating"
	PhaseComplete   = "complete"
)

const (
	// Candidate cap leaves room for filtering without fetching the world.
	candidateMultiplier = 3
	candidateCeiling    = 300

	defaultMaxIssues  = 20
	defaultBatchSize  = 3
	minBatchSize      = 2
	maxBatchSize      = 5
	defaultBatchDelay = 2 * time.Second
)

// Fallback verdict substituted when an analyzer fails for a single item.
const (
	fallbackScore     = 50
	fallbackReasoning = "analysis failed, manual review required"
)

// IssueSource is the slice of the GitHub client the pipeline needs.
type IssueSource interface {
	SearchIssues(ctx context.Context, owner, repo string, filter github.IssueFilter, maxResults int) ([]*models.Issue, error)
	ListIssueComments(ctx context.Context, owner, repo string, number int) ([]*models.Comment, error)
}

// Options configures a single scraping run. Credentials and base
// configuration are immutable for the pipeline's lifetime.
type Options struct {
	Owner             string
	Repo              string
	ProductArea       string
	MaxIssues         int
	MinRelevanceScore float64
	OutputDir         string
	Filter            github.IssueFilter

	// Analyzer throughput controls. BatchSize is clamped to [2,5];
	// batches run strictly sequentially with BatchDelay between them.
	BatchSize  int
	BatchDelay time.Duration

	// OnProgress, when set, receives progress events in phase order.
	OnProgress func(models.ScrapingProgress)
}

// Result is the pipeline's terminal output.
type Result struct {
	Issues     []*models.Issue
	ReportPath string
	Metadata   *models.ReportMetadata
}

// Pipeline ties the client, analyzer and reporter together.
type Pipeline struct {
	client   IssueSource
	analyzer models.Analyzer
	reporter models.Reporter
	opts     Options

	searchRetry *retry.Executor
	saveRetry   *retry.Executor
	sleep       func(time.Duration)
	now         func() time.Time
}

// New creates a pipeline. Collaborators are owned by the caller; the pipeline
// never mutates them.
func New(client IssueSource, analyzer models.Analyzer, reporter models.Reporter, opts Options) *Pipeline {
	if opts.MaxIssues <= 0 {
		opts.MaxIssues = defaultMaxIssues
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.BatchSize < minBatchSize {
		opts.BatchSize = minBatchSize
	}
	if opts.BatchSize > maxBatchSize {
		opts.BatchSize = maxBatchSize
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = defaultBatchDelay
	}
	if opts.OnProgress == nil {
		opts.OnProgress = func(models.ScrapingProgress) {}
	}

	saveRetry := retry.NewExecutor()
	// Report saves retry transient file-system races (e.g. the output
	// directory still being created) that the classifier treats as final.
	saveRetry.ForceRetryable = []errs.Kind{errs.KindFileSystem}

	return &Pipeline{
		client:      client,
		analyzer:    analyzer,
		reporter:    reporter,
		opts:        opts,
		searchRetry: retry.NewExecutor(),
		saveRetry:   saveRetry,
		sleep:       time.Sleep,
		now:         time.Now,
	}
}

// Run executes the five phases in order and returns the persisted report.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	repository := p.opts.Owner + "/" + p.opts.Repo

	candidates, err := p.search(ctx)
	if err != nil {
		return nil, err
	}

	p.fetchDetails(ctx, candidates)
	p.analyzeAll(ctx, candidates)

	kept, err := p.filterAndRank(candidates)
	if err != nil {
		return nil, err
	}

	meta := p.buildMetadata(repository, candidates, kept)
	path, err := p.generate(ctx, kept, meta)
	if err != nil {
		return nil, err
	}

	p.opts.OnProgress(models.ScrapingProgress{
		Phase:   PhaseComplete,
		Current: len(kept),
		Total:   len(kept),
		Message: fmt.Sprintf("report saved to %s", path),
	})

	logging.Info("scraping run complete",
		"repository", repository,
		"analyzed", meta.TotalIssuesAnalyzed,
		"relevant", meta.RelevantIssuesFound,
		"average_score", meta.AverageRelevanceScore,
		"workarounds", meta.WorkaroundsFound,
		"report", path)

	return &Result{Issues: kept, ReportPath: path, Metadata: meta}, nil
}

// search lists candidate issues, capped to leave room for later filtering.
// A failure here affects the whole run and is fatal.
func (p *Pipeline) search(ctx context.Context) ([]*models.Issue, error) {
	limit := p.opts.MaxIssues * candidateMultiplier
	if limit > candidateCeiling {
		limit = candidateCeiling
	}

	opCtx := errs.Context{
		Operation:  "search_issues",
		Repository: p.opts.Owner + "/" + p.opts.Repo,
	}

	candidates, err := retry.Do(ctx, p.searchRetry, opCtx, func(ctx context.Context) ([]*models.Issue, error) {
		return p.client.SearchIssues(ctx, p.opts.Owner, p.opts.Repo, p.opts.Filter, limit)
	})
	if err != nil {
		return nil, err
	}

	p.opts.OnProgress(models.ScrapingProgress{
		Phase:   PhaseFetching,
		Current: len(candidates),
		Total:   limit,
		Message: fmt.Sprintf("found %d candidate issues", len(candidates)),
	})

	return candidates, nil
}

// fetchDetails enriches each candidate with its full comment list,
// sequentially, in search order. A single item's failure leaves that issue
// with no comments and never aborts the phase.
func (p *Pipeline) fetchDetails(ctx context.Context, candidates []*models.Issue) {
	for i, issue := range candidates {
		comments, err := p.client.ListIssueComments(ctx, p.opts.Owner, p.opts.Repo, issue.Number)
		if err != nil {
			logging.Warn("failed to fetch comments, continuing without them",
				"issue_number", issue.Number,
				"error", err)
			comments = nil
		}
		issue.Comments = comments

		p.opts.OnProgress(models.ScrapingProgress{
			Phase:   PhaseDetails,
			Current: i + 1,
			Total:   len(candidates),
			Message: fmt.Sprintf("fetched %d comments for #%d", len(comments), issue.Number),
		})
	}
}

// analyzeAll scores candidates in sequential batches. Within a batch,
// analyzer calls run concurrently (concurrency = batch size) and results are
// recombined in input order. A rejected item gets the fallback verdict.
func (p *Pipeline) analyzeAll(ctx context.Context, candidates []*models.Issue) {
	results := make([]*models.AnalysisResult, len(candidates))

	for start := 0; start < len(candidates); start += p.opts.BatchSize {
		if start > 0 {
			// Deliberate throttle: the analyzer has low aggregate
			// throughput tolerance.
			p.sleep(p.opts.BatchDelay)
		}

		end := start + p.opts.BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = p.analyzeOne(ctx, candidates[i])
			}(i)
		}
		wg.Wait()

		for i := start; i < end; i++ {
			p.applyResult(candidates[i], results[i])
			p.opts.OnProgress(models.ScrapingProgress{
				Phase:   PhaseAnalyzing,
				Current: i + 1,
				Total:   len(candidates),
				Message: fmt.Sprintf("analyzed #%d (score %.0f)", candidates[i].Number, candidates[i].RelevanceScore),
			})
		}
	}
}

// analyzeOne calls the analyzer for a single issue, converting any error or
// panic into the deterministic fallback verdict.
func (p *Pipeline) analyzeOne(ctx context.Context, issue *models.Issue) (result *models.AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("analyzer panicked, using fallback result",
				"issue_number", issue.Number,
				"panic", r)
			result = fallbackResult()
		}
	}()

	verdict, err := p.analyzer.Analyze(ctx, issue, p.opts.ProductArea)
	if err != nil {
		serr := errs.Classify(err, errs.Context{
			Operation: "analyze_issue",
			IssueID:   issue.ID,
		})
		logging.Warn("analysis failed, using fallback result",
			"issue_number", issue.Number,
			"kind", serr.Kind,
			"error", serr.Message)
		return fallbackResult()
	}
	return verdict
}

func fallbackResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		RelevanceScore:     fallbackScore,
		RelevanceReasoning: fallbackReasoning,
		HasWorkaround:      false,
		Summary:            fallbackReasoning,
	}
}

// applyResult folds an analyzer verdict into the issue, extracting
// comment-grounded workarounds and falling back to the analyzer's synthesized
// description when no comment matched.
func (p *Pipeline) applyResult(issue *models.Issue, result *models.AnalysisResult) {
	issue.RelevanceScore = float64(result.RelevanceScore)
	issue.Summary = result.Summary

	issue.Workarounds = analyze.ExtractWorkarounds(issue)
	if result.HasWorkaround && result.WorkaroundDescription != "" && len(issue.Workarounds) == 0 {
		issue.Workarounds = append(issue.Workarounds, &models.Workaround{
			Description:     result.WorkaroundDescription,
			Author:          p.analyzer.Name(),
			AuthorType:      models.AuthorUser,
			SourceCommentID: models.SyntheticWorkaroundID,
			Effectiveness:   models.EffectivenessSuggested,
		})
	}
}

// filterAndRank keeps issues at or above the threshold, sorts them descending
// by score (stable: search order breaks ties) and truncates to MaxIssues.
func (p *Pipeline) filterAndRank(candidates []*models.Issue) ([]*models.Issue, error) {
	kept := make([]*models.Issue, 0, len(candidates))
	for _, issue := range candidates {
		if issue.RelevanceScore >= p.opts.MinRelevanceScore {
			kept = append(kept, issue)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].RelevanceScore > kept[j].RelevanceScore
	})

	if len(kept) > p.opts.MaxIssues {
		kept = kept[:p.opts.MaxIssues]
	}

	p.opts.OnProgress(models.ScrapingProgress{
		Phase:   PhaseFiltering,
		Current: len(kept),
		Total:   len(candidates),
		Message: fmt.Sprintf("%d of %d issues at or above threshold %.1f", len(kept), len(candidates), p.opts.MinRelevanceScore),
	})

	if len(kept) == 0 {
		return nil, errs.New(errs.KindEmptyResults,
			fmt.Sprintf("no issues scored at or above %.1f", p.opts.MinRelevanceScore),
			errs.Context{
				Operation:  "filter_issues",
				Repository: p.opts.Owner + "/" + p.opts.Repo,
			},
			errs.Suggestion{
				Action:      "lower_threshold",
				Description: "lower --min-score to include weaker matches",
				Priority:    errs.PriorityHigh,
			},
			errs.Suggestion{
				Action:      "broaden_keywords",
				Description: "use a broader product-area query",
				Priority:    errs.PriorityMedium,
			},
			errs.Suggestion{
				Action:      "widen_search",
				Description: "include closed issues with --state all",
				Priority:    errs.PriorityLow,
			},
		)
	}

	return kept, nil
}

func (p *Pipeline) buildMetadata(repository string, analyzed, kept []*models.Issue) *models.ReportMetadata {
	meta := &models.ReportMetadata{
		RunID:               report.NewRunID(),
		Repository:          repository,
		ProductArea:         p.opts.ProductArea,
		GeneratedAt:         p.now(),
		TotalIssuesAnalyzed: len(analyzed),
		RelevantIssuesFound: len(kept),
	}

	if len(kept) > 0 {
		var sum float64
		for _, issue := range kept {
			sum += issue.RelevanceScore
			meta.WorkaroundsFound += len(issue.Workarounds)
		}
		meta.AverageRelevanceScore = math.Round(sum/float64(len(kept))*100) / 100
	}

	return meta
}

// generate delegates rendering and persistence to the reporter. The save is
// wrapped in the orchestration retry executor; a final failure here affects
// the whole run and is fatal.
func (p *Pipeline) generate(ctx context.Context, kept []*models.Issue, meta *models.ReportMetadata) (string, error) {
	p.opts.OnProgress(models.ScrapingProgress{
		Phase:   PhaseGenerating,
		Current: 0,
		Total:   1,
		Message: "rendering report",
	})

	content := p.reporter.GenerateReport(kept, meta)

	opCtx := errs.Context{
		Operation:  "save_report",
		Repository: meta.Repository,
	}
	return retry.Do(ctx, p.saveRetry, opCtx, func(context.Context) (string, error) {
		return p.reporter.SaveReport(content, meta, p.opts.OutputDir)
	})
}
