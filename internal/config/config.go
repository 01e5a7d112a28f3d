package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// GitHubConfig holds the provider credentials.
type GitHubConfig struct {
	Token string
	User  string
}

// AnthropicConfig holds the Anthropic analyzer credentials.
type AnthropicConfig struct {
	Token string
}

// OpenAIConfig holds the OpenAI analyzer credentials.
type OpenAIConfig struct {
	Token string
	Model string
}

// AnalyzerConfig selects the analyzer implementation.
type AnalyzerConfig struct {
	// Provider is one of "anthropic", "openai", "keyword". Empty picks the
	// first provider with credentials, falling back to keyword.
	Provider string
}

// ScrapeConfig holds the per-run defaults, overridable by CLI flags.
type ScrapeConfig struct {
	Repository        string
	ProductArea       string
	MaxIssues         int
	MinRelevanceScore float64
	OutputDir         string
	State             string
	Labels            []string
}

// LoggingConfig holds logging options.
type LoggingConfig struct {
	Level      string
	JSONFormat bool
}

// Config holds the application configuration
type Config struct {
	GitHub    GitHubConfig
	Anthropic AnthropicConfig
	OpenAI    OpenAIConfig
	Analyzer  AnalyzerConfig
	Scrape    ScrapeConfig
	Logging   LoggingConfig
}

// LoadConfig loads the configuration from standard locations: a .env file if
// present, then the JSON config file, then environment variable overrides.
// A missing config file is not an error; env-only setups are supported.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.Scrape.MaxIssues = 20
	cfg.Scrape.MinRelevanceScore = 40
	cfg.Scrape.OutputDir = "./reports"
	cfg.Scrape.State = "open"
	cfg.Logging.Level = "info"

	configFile := os.Getenv("ISSUESCOUT_CONFIG")
	if configFile == "" {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			configFile = filepath.Join(homeDir, ".issuescout", "config.json")
			if _, err := os.Stat(configFile); os.IsNotExist(err) {
				configFile = filepath.Join(homeDir, ".config", "issuescout", "config.json")
			}
		}
	}

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config file: %w", err)
			}
			cfg.GitHub.Token = decodeCredential(cfg.GitHub.Token)
			cfg.Anthropic.Token = decodeCredential(cfg.Anthropic.Token)
			cfg.OpenAI.Token = decodeCredential(cfg.OpenAI.Token)
		}
	}

	// Environment variables override the config file
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	}
	if user := os.Getenv("ISSUESCOUT_GITHUB_USER"); user != "" {
		cfg.GitHub.User = user
	}
	if token := os.Getenv("ANTHROPIC_API_KEY"); token != "" {
		cfg.Anthropic.Token = token
	}
	if token := os.Getenv("OPENAI_API_KEY"); token != "" {
		cfg.OpenAI.Token = token
	}
	if provider := os.Getenv("ISSUESCOUT_ANALYZER"); provider != "" {
		cfg.Analyzer.Provider = provider
	}

	return cfg, nil
}

// Validate checks that the configuration can drive a scraping run.
func (c *Config) Validate() error {
	if c.GitHub.Token == "" {
		return fmt.Errorf("github token is required (set GITHUB_TOKEN or run 'issuescout config')")
	}
	if c.Scrape.Repository != "" {
		if _, _, err := ParseRepository(c.Scrape.Repository); err != nil {
			return err
		}
	}
	switch c.Analyzer.Provider {
	case "", "anthropic", "openai", "keyword":
	default:
		return fmt.Errorf("unknown analyzer provider %q (want anthropic, openai or keyword)", c.Analyzer.Provider)
	}
	if c.Analyzer.Provider == "anthropic" && c.Anthropic.Token == "" {
		return fmt.Errorf("anthropic analyzer selected but no token configured")
	}
	if c.Analyzer.Provider == "openai" && c.OpenAI.Token == "" {
		return fmt.Errorf("openai analyzer selected but no token configured")
	}
	return nil
}

// ParseRepository splits an "owner/repo" string.
func ParseRepository(repository string) (owner, repo string, err error) {
	parts := strings.Split(repository, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q, expected owner/repo", repository)
	}
	return parts[0], parts[1], nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
	}
	return filepath.Join(homeDir, ".issuescout", "config.json")
}

// Exists checks if configuration file exists
func Exists() bool {
	_, err := os.Stat(GetConfigPath())
	return err == nil
}

// encodeCredential encodes sensitive credentials using base64
func encodeCredential(value string) string {
	return base64.StdEncoding.EncodeToString([]byte(value))
}

// decodeCredential decodes a base64 encoded credential, tolerating values
// stored in the clear.
func decodeCredential(value string) string {
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return value
	}
	return string(decoded)
}

// Configurator helps build and save configuration
type Configurator struct {
	config Config
}

// NewConfigurator creates a new configurator
func NewConfigurator() *Configurator {
	return &Configurator{}
}

// SetGitHubToken sets the GitHub token
func (c *Configurator) SetGitHubToken(token string) {
	c.config.GitHub.Token = token
}

// SetGitHubUser sets the GitHub user
func (c *Configurator) SetGitHubUser(user string) {
	c.config.GitHub.User = user
}

// SetAnthropicToken sets the Anthropic token
func (c *Configurator) SetAnthropicToken(token string) {
	c.config.Anthropic.Token = token
}

// SetOpenAIToken sets the OpenAI token
func (c *Configurator) SetOpenAIToken(token string) {
	c.config.OpenAI.Token = token
}

// SetAnalyzerProvider sets the analyzer selection
func (c *Configurator) SetAnalyzerProvider(provider string) {
	c.config.Analyzer.Provider = provider
}

// SetScrapeDefaults sets the default scraping parameters
func (c *Configurator) SetScrapeDefaults(repository, productArea string, maxIssues int, minScore float64, outputDir string) {
	c.config.Scrape.Repository = repository
	c.config.Scrape.ProductArea = productArea
	c.config.Scrape.MaxIssues = maxIssues
	c.config.Scrape.MinRelevanceScore = minScore
	c.config.Scrape.OutputDir = outputDir
}

// Save saves the configuration to the user's home directory with credentials
// base64 encoded.
func (c *Configurator) Save() error {
	configPath := GetConfigPath()
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configToSave := c.config
	if configToSave.GitHub.Token != "" {
		configToSave.GitHub.Token = encodeCredential(configToSave.GitHub.Token)
	}
	if configToSave.Anthropic.Token != "" {
		configToSave.Anthropic.Token = encodeCredential(configToSave.Anthropic.Token)
	}
	if configToSave.OpenAI.Token != "" {
		configToSave.OpenAI.Token = encodeCredential(configToSave.OpenAI.Token)
	}

	configJSON, err := json.MarshalIndent(configToSave, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}

	if err := os.WriteFile(configPath, configJSON, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
