package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for lmsync.
type Config struct {
	General GeneralConfig `json:"general" yaml:"general"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	Sync    SyncConfig    `json:"sync" yaml:"sync"`
	Archive ArchiveConfig `json:"archive" yaml:"archive"`
	Notify  NotifyConfig  `json:"notify" yaml:"notify"`
	Login   LoginConfig   `json:"login" yaml:"login"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"` // debug | info | warn | error
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
}

// ServerConfig points the engine at the LMS backend.
type ServerConfig struct {
	APIBase   string `json:"apiBase" yaml:"apiBase"`     // e.g. https://lms.example.edu/api
	SocketURL string `json:"socketUrl" yaml:"socketUrl"` // e.g. wss://lms.example.edu/ws
	Token     string `json:"token,omitempty" yaml:"token,omitempty"`
	UserID    int64  `json:"userId" yaml:"userId"`
	Role      string `json:"role,omitempty" yaml:"role,omitempty"`
}

type SyncConfig struct {
	// PollIntervalSeconds is the thread-list consistency backstop.
	// Push events normally arrive first; polling catches what they miss.
	PollIntervalSeconds int `json:"pollIntervalSeconds" yaml:"pollIntervalSeconds"`
	RequestTimeoutSec   int `json:"requestTimeoutSeconds" yaml:"requestTimeoutSeconds"`
}

type ArchiveConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"dbPath" yaml:"dbPath"`
}

type NotifyConfig struct {
	Telegram TelegramNotify `json:"telegram" yaml:"telegram"`
	Discord  DiscordNotify  `json:"discord" yaml:"discord"`
	Slack    SlackNotify    `json:"slack" yaml:"slack"`
}

type TelegramNotify struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Token   string `json:"token,omitempty" yaml:"token,omitempty"`
	ChatID  int64  `json:"chatId,omitempty" yaml:"chatId,omitempty"`
}

type DiscordNotify struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Token     string `json:"token,omitempty" yaml:"token,omitempty"`
	ChannelID string `json:"channelId,omitempty" yaml:"channelId,omitempty"`
}

type SlackNotify struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	BotToken string `json:"botToken,omitempty" yaml:"botToken,omitempty"`
	Channel  string `json:"channel,omitempty" yaml:"channel,omitempty"`
}

// LoginConfig drives the browser-assisted login flow. Selectors are
// per-institution; the defaults match a stock install.
type LoginConfig struct {
	URL              string `json:"url,omitempty" yaml:"url,omitempty"`
	Username         string `json:"username,omitempty" yaml:"username,omitempty"`
	Password         string `json:"password,omitempty" yaml:"password,omitempty"`
	UsernameSelector string `json:"usernameSelector" yaml:"usernameSelector"`
	PasswordSelector string `json:"passwordSelector" yaml:"passwordSelector"`
	SubmitSelector   string `json:"submitSelector" yaml:"submitSelector"`
	TokenCookie      string `json:"tokenCookie" yaml:"tokenCookie"`
	ProfileDir       string `json:"profileDir,omitempty" yaml:"profileDir,omitempty"`
	Headless         bool   `json:"headless" yaml:"headless"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

// DefaultConfigDir returns the default config directory (~/.lmsync).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lmsync"
	}
	return filepath.Join(home, ".lmsync")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a config file (.json, .yaml or .yml by extension),
// expands environment variables, applies defaults for unset fields and
// validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Archive.DBPath = ExpandPath(cfg.Archive.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Login.ProfileDir = ExpandPath(cfg.Login.ProfileDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Server.APIBase == "" {
		errs = append(errs, "server.apiBase is required")
	}
	if cfg.Server.SocketURL == "" {
		errs = append(errs, "server.socketUrl is required")
	}
	if cfg.Server.UserID < 0 {
		errs = append(errs, "server.userId must not be negative")
	}

	if cfg.Sync.PollIntervalSeconds < 1 {
		errs = append(errs, "sync.pollIntervalSeconds must be >= 1")
	}
	if cfg.Sync.RequestTimeoutSec < 1 {
		errs = append(errs, "sync.requestTimeoutSeconds must be >= 1")
	}

	if cfg.Archive.Enabled && cfg.Archive.DBPath == "" {
		errs = append(errs, "archive.dbPath is required when archive is enabled")
	}

	if cfg.Notify.Telegram.Enabled && cfg.Notify.Telegram.Token == "" {
		errs = append(errs, "notify.telegram.token is required when enabled")
	}
	if cfg.Notify.Discord.Enabled && cfg.Notify.Discord.Token == "" {
		errs = append(errs, "notify.discord.token is required when enabled")
	}
	if cfg.Notify.Slack.Enabled && cfg.Notify.Slack.BotToken == "" {
		errs = append(errs, "notify.slack.botToken is required when enabled")
	}

	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		errs = append(errs, "metrics.port must be between 0 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
