package analyze

import (
	"context"
	"fmt"
	"strings"

	"github.com/hellausefulsoftware/issuescout/internal/models"
)

// Phrases that signal a comment describes a remedy, grouped by how strongly
// the author vouches for it.
var (
	confirmedPhrases = []string{
		"this worked", "works for me", "worked for me", "fixed it for me",
		"solved it", "can confirm",
	}
	partialPhrases = []string{
		"partially works", "partial fix", "sort of works", "mostly works",
		"works sometimes",
	}
	suggestedPhrases = []string{
		"workaround", "work-around", "work around this", "temporary fix",
		"as a stopgap", "you can try", "try downgrading", "downgrade to",
		"try setting", "until this is fixed",
	}
)

// KeywordAnalyzer scores relevance by term matching. It is the no-credential
// fallback behind the same contract as the LLM analyzers; the heuristics are
// deliberately plain.
type KeywordAnalyzer struct{}

// NewKeywordAnalyzer creates a keyword-based analyzer.
func NewKeywordAnalyzer() *KeywordAnalyzer {
	return &KeywordAnalyzer{}
}

// Name identifies the analyzer in logs and report metadata.
func (a *KeywordAnalyzer) Name() string { return "keyword" }

// Analyze scores the issue against the product-area terms. It never fails:
// the zero-match case is a legitimate score of zero.
func (a *KeywordAnalyzer) Analyze(_ context.Context, issue *models.Issue, productArea string) (*models.AnalysisResult, error) {
	terms := splitTerms(productArea)

	title := strings.ToLower(issue.Title)
	body := strings.ToLower(issue.Body)
	labels := strings.ToLower(strings.Join(issue.Labels, " "))

	var comments strings.Builder
	for _, c := range issue.Comments {
		comments.WriteString(strings.ToLower(c.Body))
		comments.WriteString("\n")
	}
	commentText := comments.String()

	score := 0
	var matched []string
	for _, term := range terms {
		hit := false
		if strings.Contains(title, term) {
			score += 30
			hit = true
		}
		if strings.Contains(labels, term) {
			score += 20
			hit = true
		}
		if strings.Contains(body, term) {
			score += 15
			hit = true
		}
		if strings.Contains(commentText, term) {
			score += 10
			hit = true
		}
		if hit {
			matched = append(matched, term)
		}
	}
	if score > 100 {
		score = 100
	}

	hasWorkaround := false
	for _, c := range issue.Comments {
		if _, ok := matchEffectiveness(c.Body); ok {
			hasWorkaround = true
			break
		}
	}

	reasoning := "no product-area terms matched"
	if len(matched) > 0 {
		reasoning = fmt.Sprintf("matched terms: %s", strings.Join(matched, ", "))
	}

	return &models.AnalysisResult{
		RelevanceScore:           score,
		RelevanceReasoning:       reasoning,
		HasWorkaround:            hasWorkaround,
		ImplementationDifficulty: "medium",
		Summary:                  summarize(issue),
	}, nil
}

// ExtractWorkarounds scans an issue's comments for workaround language,
// marks the matching comments, and returns one workaround per matching
// comment. Every returned workaround references a comment present in the
// issue's comment list.
func ExtractWorkarounds(issue *models.Issue) []*models.Workaround {
	var found []*models.Workaround
	for _, comment := range issue.Comments {
		effectiveness, ok := matchEffectiveness(comment.Body)
		if !ok {
			continue
		}
		comment.IsWorkaround = true
		found = append(found, &models.Workaround{
			Description:     clip(comment.Body, 300),
			Author:          comment.Author,
			AuthorType:      comment.AuthorType,
			SourceCommentID: comment.ID,
			Effectiveness:   effectiveness,
		})
	}
	return found
}

func matchEffectiveness(body string) (models.Effectiveness, bool) {
	lower := strings.ToLower(body)
	for _, p := range partialPhrases {
		if strings.Contains(lower, p) {
			return models.EffectivenessPartial, true
		}
	}
	for _, p := range confirmedPhrases {
		if strings.Contains(lower, p) {
			return models.EffectivenessConfirmed, true
		}
	}
	for _, p := range suggestedPhrases {
		if strings.Contains(lower, p) {
			return models.EffectivenessSuggested, true
		}
	}
	return "", false
}

func splitTerms(productArea string) []string {
	fields := strings.Fields(strings.ToLower(productArea))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `.,;:"'`)
		if len(f) > 2 {
			terms = append(terms, f)
		}
	}
	return terms
}

func summarize(issue *models.Issue) string {
	body := strings.TrimSpace(issue.Body)
	if body == "" {
		return issue.Title
	}
	if idx := strings.IndexAny(body, "\n"); idx > 0 {
		body = body[:idx]
	}
	return clip(body, 200)
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
