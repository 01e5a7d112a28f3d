package models

import (
	"context"
	"time"
)

// AuthorType classifies who wrote a comment, derived from the provider's
// author association field.
type AuthorType string

const (
	AuthorMaintainer  AuthorType = "maintainer"
	AuthorContributor AuthorType = "contributor"
	AuthorUser        AuthorType = "user"
)

// Effectiveness describes how well a workaround is reported to work.
type Effectiveness string

const (
	EffectivenessConfirmed Effectiveness = "confirmed"
	EffectivenessSuggested Effectiveness = "suggested"
	EffectivenessPartial   Effectiveness = "partial"
)

// Issue represents a GitHub issue enriched by the scraping pipeline
type Issue struct {
	ID          int64
	Number      int
	Title       string
	Body        string
	Labels      []string
	State       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Author      string
	URL         string
	Comments    []*Comment
	// Set during the analysis phase
	RelevanceScore float64
	Summary        string
	Workarounds    []*Workaround
}

// Comment represents a comment on a GitHub issue
type Comment struct {
	ID           int64
	Author       string
	AuthorType   AuthorType
	Body         string
	CreatedAt    time.Time
	IsWorkaround bool
}

// SyntheticWorkaroundID marks a workaround synthesized by an analyzer rather
// than extracted from a specific comment.
const SyntheticWorkaroundID int64 = -1

// Workaround is a remedy extracted from a comment or synthesized by an
// analyzer. SourceCommentID is SyntheticWorkaroundID when synthesized;
// otherwise it references a comment in the owning issue's comment list.
type Workaround struct {
	Description     string
	Author          string
	AuthorType      AuthorType
	SourceCommentID int64
	Effectiveness   Effectiveness
}

// RateLimitInfo is the provider's rate budget as reported by response headers
// or the rate_limit endpoint.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// ScrapingProgress is an ephemeral progress event emitted once per unit of
// work within a pipeline phase.
type ScrapingProgress struct {
	Phase   string
	Current int
	Total   int
	Message string
}

// AnalysisResult is an analyzer's verdict for a single issue.
type AnalysisResult struct {
	RelevanceScore           int
	RelevanceReasoning       string
	HasWorkaround            bool
	WorkaroundComplexity     string
	WorkaroundType           string
	WorkaroundDescription    string
	ImplementationDifficulty string
	Summary                  string
}

// ReportMetadata describes a completed scraping run.
type ReportMetadata struct {
	RunID                 string
	Repository            string
	ProductArea           string
	GeneratedAt           time.Time
	TotalIssuesAnalyzed   int
	RelevantIssuesFound   int
	AverageRelevanceScore float64
	WorkaroundsFound      int
}

// Analyzer scores an issue's relevance to a product area and detects
// workarounds. Implementations must treat a failed call as recoverable: the
// pipeline substitutes a neutral fallback result for any item whose analysis
// returns an error.
type Analyzer interface {
	Analyze(ctx context.Context, issue *Issue, productArea string) (*AnalysisResult, error)
	Name() string
}

// Reporter renders and persists the final report artifact.
type Reporter interface {
	GenerateReport(issues []*Issue, meta *ReportMetadata) string
	SaveReport(content string, meta *ReportMetadata, outputDir string) (string, error)
}
