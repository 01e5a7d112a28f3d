// Package analyze holds the analyzer-independent pieces of issue analysis:
// the transcript/prompt builders shared by the LLM analyzers, the JSON
// verdict parser, comment-level workaround extraction, and the keyword
// fallback analyzer that needs no credentials.
package analyze

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hellausefulsoftware/issuescout/internal/models"
)

// Transcript creates a formatted transcript of the issue and its comments
// for inclusion in analyzer prompts.
func Transcript(issue *models.Issue) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("ISSUE #%d: %s\n\n", issue.Number, issue.Title))
	b.WriteString(fmt.Sprintf("Created by: %s\n", issue.Author))
	b.WriteString(fmt.Sprintf("State: %s\n", issue.State))
	b.WriteString(fmt.Sprintf("Created: %s\n", issue.CreatedAt.Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("Updated: %s\n", issue.UpdatedAt.Format("2006-01-02")))

	if len(issue.Labels) > 0 {
		b.WriteString(fmt.Sprintf("Labels: %s\n", strings.Join(issue.Labels, ", ")))
	}

	b.WriteString("\nISSUE DESCRIPTION:\n")
	b.WriteString(issue.Body)
	b.WriteString("\n\n")

	if len(issue.Comments) > 0 {
		b.WriteString("COMMENTS:\n\n")
		for i, comment := range issue.Comments {
			b.WriteString(fmt.Sprintf("--- Comment #%d by %s (%s, %s) ---\n",
				i+1,
				comment.Author,
				comment.AuthorType,
				comment.CreatedAt.Format("2006-01-02")))
			b.WriteString(comment.Body)
			b.WriteString("\n\n")
		}
	}

	return b.String()
}

// BuildPrompt renders the analysis prompt for LLM-backed analyzers.
func BuildPrompt(issue *models.Issue, productArea string) string {
	prompt := `You are a support engineer triaging GitHub issues for the product area "${area}".
Analyze the issue transcript and respond with ONLY a JSON object, no prose, matching:
{
  "relevance_score": <integer 0-100, how relevant the issue is to the product area>,
  "relevance_reasoning": "<one or two sentences>",
  "has_workaround": <true if the issue or its comments describe a usable workaround>,
  "workaround_complexity": "<low|medium|high or empty>",
  "workaround_type": "<config|code|process or empty>",
  "workaround_description": "<short description of the workaround, or empty>",
  "implementation_difficulty": "<low|medium|high>",
  "summary": "<1-3 sentence technical summary of the issue>"
}

ISSUE TRANSCRIPT:
${transcript}`

	prompt = strings.Replace(prompt, "${area}", productArea, 1)
	prompt = strings.Replace(prompt, "${transcript}", Transcript(issue), 1)
	return prompt
}

// verdict is the wire shape LLM analyzers are prompted to return.
type verdict struct {
	RelevanceScore           int    `json:"relevance_score"`
	RelevanceReasoning       string `json:"relevance_reasoning"`
	HasWorkaround            bool   `json:"has_workaround"`
	WorkaroundComplexity     string `json:"workaround_complexity"`
	WorkaroundType           string `json:"workaround_type"`
	WorkaroundDescription    string `json:"workaround_description"`
	ImplementationDifficulty string `json:"implementation_difficulty"`
	Summary                  string `json:"summary"`
}

// ParseResult decodes an analyzer's raw text response into an AnalysisResult.
// Models often wrap JSON in markdown fences or preamble, so parsing starts at
// the first brace. Decode failures are left to the classifier (they map to
// the analysis-response kind).
func ParseResult(raw string) (*models.AnalysisResult, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		trimmed = trimmed[start : end+1]
	}

	var v verdict
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, err
	}

	if v.RelevanceScore < 0 {
		v.RelevanceScore = 0
	}
	if v.RelevanceScore > 100 {
		v.RelevanceScore = 100
	}

	return &models.AnalysisResult{
		RelevanceScore:           v.RelevanceScore,
		RelevanceReasoning:       v.RelevanceReasoning,
		HasWorkaround:            v.HasWorkaround,
		WorkaroundComplexity:     v.WorkaroundComplexity,
		WorkaroundType:           v.WorkaroundType,
		WorkaroundDescription:    v.WorkaroundDescription,
		ImplementationDifficulty: v.ImplementationDifficulty,
		Summary:                  v.Summary,
	}, nil
}
