// Package report renders the final markdown artifact and persists it
// atomically.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hellausefulsoftware/issuescout/internal/errs"
	"github.com/hellausefulsoftware/issuescout/internal/logging"
	"github.com/hellausefulsoftware/issuescout/internal/models"
)

// MarkdownReporter implements models.Reporter with a markdown rendering.
type MarkdownReporter struct {
	now func() time.Time
}

// NewMarkdownReporter creates a markdown reporter.
func NewMarkdownReporter() *MarkdownReporter {
	return &MarkdownReporter{now: time.Now}
}

// NewRunID returns a fresh identifier for a scraping run.
func NewRunID() string {
	return uuid.New().String()
}

var effectivenessBadges = map[models.Effectiveness]string{
	models.EffectivenessConfirmed: "✅ confirmed",
	models.EffectivenessSuggested: "💡 suggested",
	models.EffectivenessPartial:   "⚠️ partial",
}

// GenerateReport renders the filtered, sorted issue list as markdown.
func (r *MarkdownReporter) GenerateReport(issues []*models.Issue, meta *models.ReportMetadata) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# Issue Report: %s\n\n", meta.Repository))
	b.WriteString(fmt.Sprintf("**Product area:** %s\n\n", meta.ProductArea))
	b.WriteString(fmt.Sprintf("**Generated:** %s\n\n", meta.GeneratedAt.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("**Run ID:** `%s`\n\n", meta.RunID))

	b.WriteString("## Summary\n\n")
	b.WriteString(fmt.Sprintf("- Issues analyzed: %d\n", meta.TotalIssuesAnalyzed))
	b.WriteString(fmt.Sprintf("- Relevant issues: %d\n", meta.RelevantIssuesFound))
	b.WriteString(fmt.Sprintf("- Average relevance score: %.2f\n", meta.AverageRelevanceScore))
	b.WriteString(fmt.Sprintf("- Workarounds found: %d\n\n", meta.WorkaroundsFound))

	if len(issues) > 0 {
		b.WriteString("| # | Issue | Score | State | Workarounds |\n")
		b.WriteString("|---|-------|-------|-------|-------------|\n")
		for i, issue := range issues {
			b.WriteString(fmt.Sprintf("| %d | [#%d %s](%s) | %.0f | %s | %d |\n",
				i+1, issue.Number, escapeCell(issue.Title), issue.URL,
				issue.RelevanceScore, issue.State, len(issue.Workarounds)))
		}
		b.WriteString("\n")
	}

	for _, issue := range issues {
		b.WriteString(fmt.Sprintf("## #%d %s\n\n", issue.Number, issue.Title))
		b.WriteString(fmt.Sprintf("- **Score:** %.0f\n", issue.RelevanceScore))
		b.WriteString(fmt.Sprintf("- **State:** %s\n", issue.State))
		b.WriteString(fmt.Sprintf("- **Author:** %s\n", issue.Author))
		if len(issue.Labels) > 0 {
			b.WriteString(fmt.Sprintf("- **Labels:** %s\n", strings.Join(issue.Labels, ", ")))
		}
		b.WriteString(fmt.Sprintf("- **URL:** %s\n\n", issue.URL))

		if issue.Summary != "" {
			b.WriteString(fmt.Sprintf("%s\n\n", issue.Summary))
		}

		if len(issue.Workarounds) > 0 {
			b.WriteString("### Workarounds\n\n")
			for _, w := range issue.Workarounds {
				badge := effectivenessBadges[w.Effectiveness]
				if badge == "" {
					badge = string(w.Effectiveness)
				}
				source := "synthesized by analyzer"
				if w.SourceCommentID != models.SyntheticWorkaroundID {
					source = fmt.Sprintf("from comment by %s (%s)", w.Author, w.AuthorType)
				}
				b.WriteString(fmt.Sprintf("- %s — %s\n\n  > %s\n\n", badge, source, indentQuote(w.Description)))
			}
		}
	}

	return b.String()
}

// SaveReport writes the report atomically: temp file in the target directory,
// length verification, then rename. Failures surface as FILE_SYSTEM errors.
func (r *MarkdownReporter) SaveReport(content string, meta *models.ReportMetadata, outputDir string) (string, error) {
	opCtx := errs.Context{
		Operation:  "save_report",
		Repository: meta.Repository,
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fileError("failed to create output directory", outputDir, err, opCtx)
	}

	name := fmt.Sprintf("issue-report-%s-%s.md",
		sanitizeName(meta.Repository),
		r.now().UTC().Format("20060102-150405"))
	finalPath := filepath.Join(outputDir, name)
	opCtx.FilePath = finalPath

	tmp, err := os.CreateTemp(outputDir, ".report-*.md.tmp")
	if err != nil {
		return "", fileError("failed to create temp file", outputDir, err, opCtx)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fileError("failed to write report", tmpPath, err, opCtx)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fileError("failed to flush report", tmpPath, err, opCtx)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return "", fileError("failed to verify report", tmpPath, err, opCtx)
	}
	if info.Size() != int64(len(content)) {
		os.Remove(tmpPath)
		return "", fileError(
			fmt.Sprintf("short write: %d of %d bytes", info.Size(), len(content)),
			tmpPath, nil, opCtx)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fileError("failed to move report into place", finalPath, err, opCtx)
	}

	logging.Info("report saved", "path", finalPath, "bytes", len(content))
	return finalPath, nil
}

func fileError(message, path string, cause error, opCtx errs.Context) *errs.ScraperError {
	if cause != nil {
		message = fmt.Sprintf("%s: %v", message, cause)
	}
	opCtx.FilePath = path
	serr := errs.New(errs.KindFileSystem, message, opCtx,
		errs.Suggestion{
			Action:      "check_path",
			Description: fmt.Sprintf("verify the output path is writable: %s", path),
			Priority:    errs.PriorityHigh,
		},
		errs.Suggestion{
			Action:      "check_disk",
			Description: "check directory permissions and available disk space",
			Priority:    errs.PriorityMedium,
		},
	)
	serr.Cause = cause
	return serr
}

func sanitizeName(repository string) string {
	s := strings.ToLower(repository)
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, " ", "-")
	return s
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func indentQuote(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n  > ")
}
