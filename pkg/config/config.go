package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	envConfigPath         = "BUGTRIAGE_CONFIG"
	envSlackBotToken      = "SLACK_BOT_TOKEN"
	envSlackAppToken      = "SLACK_APP_TOKEN"
	envSlackTriageChannel = "SLACK_TRIAGE_CHANNEL"
	envTelegramBotToken   = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom  = "TELEGRAM_ALLOW_FROM"
	envGitHubToken        = "GITHUB_TOKEN"
	envDatabasePath       = "BUGTRIAGE_DB_PATH"
)

const (
	DefaultIdleTimeoutMinutes   = 30
	DefaultSweepIntervalSeconds = 60
	DefaultDatabasePath         = "bug_reports.db"
	DefaultInvestigationTimeout = 90
	DefaultAnalysisDays         = 7
	DefaultGatewayHost          = "0.0.0.0"
	DefaultGatewayPort          = 18790
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Channels      ChannelsConfig      `json:"channels"`
	Conversation  ConversationConfig  `json:"conversation"`
	Storage       StorageConfig       `json:"storage"`
	Investigation InvestigationConfig `json:"investigation"`
	Providers     ProvidersConfig     `json:"providers"`
	GitHub        GitHubConfig        `json:"github"`
	Gateway       GatewayConfig       `json:"gateway"`
	Logging       LoggingConfig       `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
	// File enables a rotating log file in addition to stderr.
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}

// ConversationConfig tunes the bug-report conversation lifecycle.
type ConversationConfig struct {
	IdleTimeoutMinutes   int `json:"idle_timeout_minutes"`
	SweepIntervalSeconds int `json:"sweep_interval_seconds"`
}

// StorageConfig locates the report database.
type StorageConfig struct {
	Path string `json:"path"`
}

// InvestigationConfig selects the LLM backend used for report investigations.
type InvestigationConfig struct {
	Enabled        bool    `json:"enabled"`
	Auto           bool    `json:"auto"`
	Provider       string  `json:"provider"`
	Model          string  `json:"model"`
	MaxTokens      int     `json:"max_tokens"`
	Temperature    float64 `json:"temperature"`
	TimeoutSeconds int     `json:"timeout_seconds"`
	AnalysisDays   int     `json:"analysis_days"`
}

// ProvidersConfig stores per-provider connection settings.
type ProvidersConfig struct {
	OpenCode OpenCodeProviderConfig `json:"opencode"`
	OpenAI   OpenAIProviderConfig   `json:"openai"`
}

// OpenCodeProviderConfig configures the OpenCode provider client.
type OpenCodeProviderConfig struct {
	BaseURL               string `json:"base_url"`
	Username              string `json:"username"`
	PasswordEnv           string `json:"password_env"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// OpenAIProviderConfig configures the OpenAI provider client.
type OpenAIProviderConfig struct {
	APIKeyEnv             string `json:"api_key_env"`
	BaseURL               string `json:"base_url"`
	Organization          string `json:"organization"`
	Project               string `json:"project"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// GitHubConfig configures repository lookups for change analysis.
type GitHubConfig struct {
	Token   string `json:"token"`
	BaseURL string `json:"base_url"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Slack    SlackConfig    `json:"slack"`
	Telegram TelegramConfig `json:"telegram"`
}

// SlackConfig configures the Slack Socket Mode integration.
type SlackConfig struct {
	Enabled       bool   `json:"enabled"`
	BotToken      string `json:"bot_token"`
	AppToken      string `json:"app_token"`
	TriageChannel string `json:"triage_channel"`
	Debug         bool   `json:"debug"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled      bool     `json:"enabled"`
	Token        string   `json:"token"`
	AllowFrom    []string `json:"allow_from"`
	TriageChatID string   `json:"triage_chat_id"`
}

// GatewayConfig configures HTTP status server bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envSlackBotToken)); token != "" {
		cfg.Channels.Slack.BotToken = token
	}
	if token := strings.TrimSpace(os.Getenv(envSlackAppToken)); token != "" {
		cfg.Channels.Slack.AppToken = token
	}
	if channelID := strings.TrimSpace(os.Getenv(envSlackTriageChannel)); channelID != "" {
		cfg.Channels.Slack.TriageChannel = channelID
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}

	if token := strings.TrimSpace(os.Getenv(envGitHubToken)); token != "" {
		cfg.GitHub.Token = token
	}
	if path := strings.TrimSpace(os.Getenv(envDatabasePath)); path != "" {
		cfg.Storage.Path = path
	}
}

// applyDefaults fills zero values that have a sensible runtime default.
func applyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Conversation.IdleTimeoutMinutes <= 0 {
		cfg.Conversation.IdleTimeoutMinutes = DefaultIdleTimeoutMinutes
	}
	if cfg.Conversation.SweepIntervalSeconds <= 0 {
		cfg.Conversation.SweepIntervalSeconds = DefaultSweepIntervalSeconds
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = DefaultDatabasePath
	}
	if cfg.Investigation.TimeoutSeconds <= 0 {
		cfg.Investigation.TimeoutSeconds = DefaultInvestigationTimeout
	}
	if cfg.Investigation.AnalysisDays <= 0 {
		cfg.Investigation.AnalysisDays = DefaultAnalysisDays
	}
	if strings.TrimSpace(cfg.Gateway.Host) == "" {
		cfg.Gateway.Host = DefaultGatewayHost
	}
	if cfg.Gateway.Port <= 0 {
		cfg.Gateway.Port = DefaultGatewayPort
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is BUGTRIAGE_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
