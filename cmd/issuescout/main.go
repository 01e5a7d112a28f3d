package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hellausefulsoftware/issuescout/internal/analyze"
	"github.com/hellausefulsoftware/issuescout/internal/anthropic"
	"github.com/hellausefulsoftware/issuescout/internal/config"
	"github.com/hellausefulsoftware/issuescout/internal/errs"
	"github.com/hellausefulsoftware/issuescout/internal/github"
	"github.com/hellausefulsoftware/issuescout/internal/logging"
	"github.com/hellausefulsoftware/issuescout/internal/models"
	"github.com/hellausefulsoftware/issuescout/internal/openai"
	"github.com/hellausefulsoftware/issuescout/internal/report"
	"github.com/hellausefulsoftware/issuescout/internal/scraper"
	"github.com/hellausefulsoftware/issuescout/internal/tui"
)

func main() {
	logging.Initialize(nil)

	var tuiMode bool
	var logLevel string
	var logJSON bool

	rootCmd := &cobra.Command{
		Use:   "issuescout",
		Short: "Scrapes GitHub issues for a product area and reports workarounds",
		Long:  `Scrapes issues from a GitHub repository, scores them against a product-area query with a pluggable analyzer, extracts workaround text from comments, and writes a markdown report.`,
	}

	rootCmd.PersistentFlags().BoolVar(&tuiMode, "tui", false, "Show live progress in a terminal UI")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Set logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		var level logging.LogLevel
		switch logLevel {
		case "debug":
			level = logging.LogLevelDebug
		case "warn":
			level = logging.LogLevelWarn
		case "error":
			level = logging.LogLevelError
		default:
			level = logging.LogLevelInfo
		}

		logging.Initialize(&logging.Config{
			Level:      level,
			Output:     os.Stderr,
			JSONFormat: logJSON,
			Pretty:     !logJSON && !tuiMode,
		})
	}

	scrapeCmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape a repository's issues and generate a report",
		Run: func(cmd *cobra.Command, args []string) {
			runScrape(cmd, tuiMode)
		},
	}
	scrapeCmd.Flags().String("repo", "", "Repository to scrape (owner/repo format)")
	scrapeCmd.Flags().String("product-area", "", "Product area query to score issues against")
	scrapeCmd.Flags().Int("max-issues", 0, "Maximum issues to include in the report")
	scrapeCmd.Flags().Float64("min-score", -1, "Minimum relevance score (0-100, inclusive)")
	scrapeCmd.Flags().String("output", "", "Output directory for the report")
	scrapeCmd.Flags().String("state", "", "Issue state filter (open, closed, all)")
	scrapeCmd.Flags().StringSlice("labels", nil, "Only include issues with these labels")
	scrapeCmd.Flags().Int("since-days", 0, "Only include issues updated in the last N days (0 = no window)")
	scrapeCmd.Flags().String("analyzer", "", "Analyzer to use (anthropic, openai, keyword)")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Write the configuration file",
		Run: func(cmd *cobra.Command, args []string) {
			runConfig(cmd)
		},
	}
	configCmd.Flags().String("github-token", "", "GitHub API token")
	configCmd.Flags().String("anthropic-token", "", "Anthropic API token")
	configCmd.Flags().String("openai-token", "", "OpenAI API token")
	configCmd.Flags().String("analyzer", "", "Default analyzer (anthropic, openai, keyword)")

	rootCmd.AddCommand(scrapeCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		logging.Error("Failed to execute command", "error", err)
		os.Exit(1)
	}
}

func runScrape(cmd *cobra.Command, tuiMode bool) {
	cfg, err := config.LoadConfig()
	if err != nil {
		fail(fmt.Errorf("failed to load configuration: %w", err))
	}
	applyScrapeFlags(cmd, cfg)

	if cfg.Scrape.Repository == "" {
		fail(fmt.Errorf("missing repository: pass --repo owner/repo"))
	}
	if cfg.Scrape.ProductArea == "" {
		fail(fmt.Errorf("missing product area: pass --product-area"))
	}
	if err := cfg.Validate(); err != nil {
		fail(err)
	}

	owner, repo, err := config.ParseRepository(cfg.Scrape.Repository)
	if err != nil {
		fail(err)
	}

	client := github.NewClient(cfg.GitHub.Token)
	analyzer := buildAnalyzer(cfg)
	reporter := report.NewMarkdownReporter()

	ctx := context.Background()

	// Preflight: log the remaining rate budget so exhausted windows are
	// visible before the run starts burning retries.
	if rate, err := client.RateLimit(ctx); err == nil {
		logging.Info("rate budget",
			"remaining", rate.Remaining,
			"limit", rate.Limit,
			"reset_at", rate.ResetAt.Format(time.RFC3339))
	} else {
		logging.Warn("failed to check rate limit", "error", err)
	}

	sinceDays, _ := cmd.Flags().GetInt("since-days")
	var since time.Time
	if sinceDays > 0 {
		since = time.Now().AddDate(0, 0, -sinceDays)
	}

	opts := scraper.Options{
		Owner:             owner,
		Repo:              repo,
		ProductArea:       cfg.Scrape.ProductArea,
		MaxIssues:         cfg.Scrape.MaxIssues,
		MinRelevanceScore: cfg.Scrape.MinRelevanceScore,
		OutputDir:         cfg.Scrape.OutputDir,
		Filter: github.IssueFilter{
			State:  cfg.Scrape.State,
			Labels: cfg.Scrape.Labels,
			Since:  since,
		},
	}

	var result *scraper.Result
	var runErr error

	if tuiMode {
		title := fmt.Sprintf("issuescout: %s (%s)", cfg.Scrape.Repository, cfg.Scrape.ProductArea)
		runErr = tui.RunWithProgress(title, func(onProgress func(models.ScrapingProgress)) error {
			opts.OnProgress = onProgress
			pipeline := scraper.New(client, analyzer, reporter, opts)
			var err error
			result, err = pipeline.Run(ctx)
			return err
		})
	} else {
		opts.OnProgress = func(pr models.ScrapingProgress) {
			logging.Info("progress",
				"phase", pr.Phase,
				"current", pr.Current,
				"total", pr.Total,
				"message", pr.Message)
		}
		pipeline := scraper.New(client, analyzer, reporter, opts)
		result, runErr = pipeline.Run(ctx)
	}

	if runErr != nil {
		fail(runErr)
	}

	response := map[string]interface{}{
		"status":        "success",
		"report":        result.ReportPath,
		"repository":    result.Metadata.Repository,
		"product_area":  result.Metadata.ProductArea,
		"analyzed":      result.Metadata.TotalIssuesAnalyzed,
		"relevant":      result.Metadata.RelevantIssuesFound,
		"average_score": result.Metadata.AverageRelevanceScore,
		"workarounds":   result.Metadata.WorkaroundsFound,
		"analyzer":      analyzer.Name(),
		"run_id":        result.Metadata.RunID,
	}
	jsonResponse, err := json.Marshal(response)
	if err != nil {
		fail(fmt.Errorf("error formatting JSON response: %w", err))
	}
	fmt.Println(string(jsonResponse))
}

func applyScrapeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if v, _ := flags.GetString("repo"); v != "" {
		cfg.Scrape.Repository = v
	}
	if v, _ := flags.GetString("product-area"); v != "" {
		cfg.Scrape.ProductArea = v
	}
	if v, _ := flags.GetInt("max-issues"); v > 0 {
		cfg.Scrape.MaxIssues = v
	}
	if v, _ := flags.GetFloat64("min-score"); v >= 0 {
		cfg.Scrape.MinRelevanceScore = v
	}
	if v, _ := flags.GetString("output"); v != "" {
		cfg.Scrape.OutputDir = v
	}
	if v, _ := flags.GetString("state"); v != "" {
		cfg.Scrape.State = v
	}
	if v, _ := flags.GetStringSlice("labels"); len(v) > 0 {
		cfg.Scrape.Labels = v
	}
	if v, _ := flags.GetString("analyzer"); v != "" {
		cfg.Analyzer.Provider = v
	}
}

// buildAnalyzer picks the analyzer implementation: an explicit provider wins;
// otherwise the first provider with credentials, falling back to the keyword
// heuristic.
func buildAnalyzer(cfg *config.Config) models.Analyzer {
	provider := cfg.Analyzer.Provider
	if provider == "" {
		switch {
		case cfg.Anthropic.Token != "":
			provider = "anthropic"
		case cfg.OpenAI.Token != "":
			provider = "openai"
		default:
			provider = "keyword"
		}
	}

	logging.Info("using analyzer", "provider", provider)

	switch provider {
	case "anthropic":
		return anthropic.NewAnalyzer(cfg.Anthropic.Token)
	case "openai":
		return openai.NewAnalyzer(cfg.OpenAI.Token, cfg.OpenAI.Model)
	default:
		return analyze.NewKeywordAnalyzer()
	}
}

func runConfig(cmd *cobra.Command) {
	flags := cmd.Flags()

	configurator := config.NewConfigurator()
	if v, _ := flags.GetString("github-token"); v != "" {
		configurator.SetGitHubToken(v)
	}
	if v, _ := flags.GetString("anthropic-token"); v != "" {
		configurator.SetAnthropicToken(v)
	}
	if v, _ := flags.GetString("openai-token"); v != "" {
		configurator.SetOpenAIToken(v)
	}
	if v, _ := flags.GetString("analyzer"); v != "" {
		configurator.SetAnalyzerProvider(v)
	}

	if err := configurator.Save(); err != nil {
		fail(fmt.Errorf("failed to save configuration: %w", err))
	}

	fmt.Printf("{\"status\": \"success\", \"message\": \"Configuration saved to %s\"}\n", config.GetConfigPath())
}

// fail prints a terminal error with its remediation suggestions and exits.
func fail(err error) {
	var serr *errs.ScraperError
	if errors.As(err, &serr) {
		fmt.Fprint(os.Stderr, errs.FormatForUser(serr))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(1)
}
