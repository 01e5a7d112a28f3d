// Package anthropic implements the LLM-backed issue analyzer on top of the
// Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	anthropicAPI "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hellausefulsoftware/issuescout/internal/analyze"
	"github.com/hellausefulsoftware/issuescout/internal/logging"
	"github.com/hellausefulsoftware/issuescout/internal/models"
)

// Constants for API
const (
	AnalysisModel = "claude-3-7-sonnet-20250219"

	maxResponseTokens = 1000
	requestTimeout    = 120 * time.Second
)

// IssueAnalyzer scores issues against a product area using the Anthropic API.
type IssueAnalyzer struct {
	client *anthropicAPI.Client
	model  string
}

// NewAnalyzer creates a new issue analyzer
func NewAnalyzer(token string) *IssueAnalyzer {
	var tokenStatus string
	if token == "" {
		tokenStatus = "empty"
	} else {
		tokenStatus = fmt.Sprintf("provided (length: %d)", len(token))
	}
	logging.Info("Creating Anthropic analyzer", "token_status", tokenStatus)

	if !strings.HasPrefix(token, "sk-ant-") {
		logging.Warn("Anthropic token appears to be in incorrect format")
	}

	client := anthropicAPI.NewClient(
		option.WithAPIKey(token),
	)

	return &IssueAnalyzer{
		client: client,
		model:  AnalysisModel,
	}
}

// Name identifies the analyzer in logs and report metadata.
func (a *IssueAnalyzer) Name() string { return "anthropic" }

// Analyze sends the issue transcript to the API and parses the JSON verdict.
// Callers own failure handling: the pipeline substitutes its fallback result
// when an error is returned.
func (a *IssueAnalyzer) Analyze(ctx context.Context, issue *models.Issue, productArea string) (*models.AnalysisResult, error) {
	prompt := analyze.BuildPrompt(issue, productArea)

	logging.Debug("Sending analysis request to Anthropic API",
		"model", a.model,
		"issue_number", issue.Number,
		"prompt_length", len(prompt))

	apiCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	message, err := a.client.Messages.New(apiCtx, anthropicAPI.MessageNewParams{
		Model:     anthropicAPI.F(a.model),
		MaxTokens: anthropicAPI.F(int64(maxResponseTokens)),
		Messages: anthropicAPI.F([]anthropicAPI.MessageParam{
			anthropicAPI.NewUserMessage(
				anthropicAPI.NewTextBlock(prompt),
			),
		}),
	})
	if err != nil {
		logging.Error("Anthropic API error",
			"error", err.Error(),
			"issue_number", issue.Number)
		return nil, fmt.Errorf("failed to analyze issue #%d: %w", issue.Number, err)
	}

	if len(message.Content) == 0 {
		return nil, fmt.Errorf("empty response from API for issue #%d", issue.Number)
	}

	var responseText string
	for _, content := range message.Content {
		if content.Type == "text" {
			responseText += content.Text
		}
	}

	result, err := analyze.ParseResult(responseText)
	if err != nil {
		logging.Warn("Failed to parse analyzer response",
			"issue_number", issue.Number,
			"response_length", len(responseText))
		return nil, err
	}

	logging.Debug("Received analysis verdict",
		"issue_number", issue.Number,
		"relevance_score", result.RelevanceScore,
		"has_workaround", result.HasWorkaround)

	return result, nil
}
