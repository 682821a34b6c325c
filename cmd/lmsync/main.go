package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lmsync/internal/browser"
	"lmsync/internal/config"
	"lmsync/internal/restapi"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "lmsync",
		Short:   "lmsync: messaging sync client for LMS platforms",
		Long:    "lmsync keeps conversations, message history and unread state in sync with a learning-management-system messaging API, over websocket push with REST fallback.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.lmsync/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(loginCmd())
	root.AddCommand(watchCmd())
	root.AddCommand(threadsCmd())
	root.AddCommand(contactsCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(statusCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := os.MkdirAll(config.DefaultConfigDir(), 0o755); err != nil {
				return err
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in through the browser and store the session token",
		Long:  "Drives the institution's login page with Chrome. With login.username set the form is filled automatically; otherwise a visible window opens for manual login. The captured token is saved to the config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Login.URL == "" {
				return fmt.Errorf("login.url is not configured")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Manual login needs a visible window regardless of config.
			headless := cfg.Login.Headless && cfg.Login.Username != ""

			l := browser.New(browser.Config{
				ProfileDir: config.ExpandPath(cfg.Login.ProfileDir),
				Headless:   headless,
				Logger:     logger,
			})
			token, err := l.CaptureToken(ctx, cfg.Login.URL, browser.FormSelectors{
				Username: cfg.Login.UsernameSelector,
				Password: cfg.Login.PasswordSelector,
				Submit:   cfg.Login.SubmitSelector,
			}, cfg.Login.Username, cfg.Login.Password, cfg.Login.TokenCookie)
			if err != nil {
				return fmt.Errorf("browser login: %w", err)
			}

			cfg.Server.Token = token
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			logger.Info("token saved", "config", cfgPath)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check config and server reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				return err
			}
			logger.Info("config", "path", cfgPath, "loaded", true)
			logger.Info("server", "api", cfg.Server.APIBase, "socket", cfg.Server.SocketURL, "user", cfg.Server.UserID)

			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout(cfg))
			defer cancel()
			api := newAPI(cfg)
			threads, err := api.Conversations(ctx)
			if err != nil {
				logger.Warn("server unreachable", "err", err)
				return err
			}
			unread := 0
			for _, t := range threads {
				unread += t.UnreadCount
			}
			logger.Info("server reachable", "threads", len(threads), "unread", unread)
			return nil
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s (run 'lmsync init' first): %w", path, err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newAPI(cfg *config.Config) *restapi.Client {
	return restapi.New(restapi.Config{
		BaseURL: cfg.Server.APIBase,
		Token:   cfg.Server.Token,
		Timeout: requestTimeout(cfg),
		Logger:  logger,
	})
}

func requestTimeout(cfg *config.Config) time.Duration {
	if cfg.Sync.RequestTimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(cfg.Sync.RequestTimeoutSec) * time.Second
}

// configureLogger rebuilds the package logger from config: level and
// optional log file.
func configureLogger(cfg *config.Config) (closeFn func()) {
	var level slog.Level
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closeFn = func() {}
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(config.ExpandPath(cfg.General.LogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, using stderr", "path", cfg.General.LogFile, "err", err)
		} else {
			w = f
			closeFn = func() { f.Close() }
		}
	}

	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return closeFn
}
