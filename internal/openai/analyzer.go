// Package openai implements the issue analyzer against the OpenAI chat
// completion API, behind the same contract as the Anthropic analyzer.
package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hellausefulsoftware/issuescout/internal/analyze"
	"github.com/hellausefulsoftware/issuescout/internal/logging"
	"github.com/hellausefulsoftware/issuescout/internal/models"
)

const (
	defaultModel      = openai.GPT4o
	maxResponseTokens = 1000
	requestTimeout    = 120 * time.Second

	// Lower temperature for factual triage rather than generation.
	temperature = 0.2
)

const systemPrompt = "You are a support engineer triaging GitHub issues. " +
	"Respond with only the requested JSON object, no markdown, no prose."

// IssueAnalyzer scores issues using the OpenAI API.
type IssueAnalyzer struct {
	client *openai.Client
	model  string
}

// NewAnalyzer creates an analyzer with the given API key. An empty model
// selects the default.
func NewAnalyzer(apiKey, model string) *IssueAnalyzer {
	if model == "" {
		model = defaultModel
	}
	return &IssueAnalyzer{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Name identifies the analyzer in logs and report metadata.
func (a *IssueAnalyzer) Name() string { return "openai" }

// Analyze sends the issue transcript and parses the JSON verdict.
func (a *IssueAnalyzer) Analyze(ctx context.Context, issue *models.Issue, productArea string) (*models.AnalysisResult, error) {
	prompt := analyze.BuildPrompt(issue, productArea)

	apiCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := a.client.CreateChatCompletion(apiCtx, openai.ChatCompletionRequest{
		Model:       a.model,
		MaxTokens:   maxResponseTokens,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		logging.Error("OpenAI API error",
			"error", err.Error(),
			"issue_number", issue.Number)
		return nil, fmt.Errorf("failed to analyze issue #%d: %w", issue.Number, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from API for issue #%d", issue.Number)
	}

	result, err := analyze.ParseResult(resp.Choices[0].Message.Content)
	if err != nil {
		logging.Warn("Failed to parse analyzer response",
			"issue_number", issue.Number,
			"model", a.model)
		return nil, err
	}

	logging.Debug("Received analysis verdict",
		"issue_number", issue.Number,
		"relevance_score", result.RelevanceScore,
		"has_workaround", result.HasWorkaround)

	return result, nil
}
