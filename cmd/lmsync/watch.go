package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lmsync/internal/archive"
	"lmsync/internal/badge"
	"lmsync/internal/channel"
	"lmsync/internal/config"
	"lmsync/internal/domain"
	"lmsync/internal/engine"
	"lmsync/internal/metrics"
	"lmsync/internal/notify"

	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the sync engine and log message traffic",
		Long:  "Connects the push channel, keeps threads and unread state in sync, archives messages and forwards notifications until interrupted.",
		RunE:  runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(resolveConfigPath())
	if err != nil {
		return err
	}
	closeLog := configureLogger(cfg)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := newAPI(cfg)
	socket := channel.New(channel.Config{
		URL:    cfg.Server.SocketURL,
		Token:  cfg.Server.Token,
		Logger: logger,
	})

	var store domain.MessageArchive
	if cfg.Archive.Enabled {
		a, err := archive.New(config.ExpandPath(cfg.Archive.DBPath), logger)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer a.Close()
		store = a
	}

	eng := engine.New(engine.Options{
		ViewerID:     cfg.Server.UserID,
		ViewerRole:   cfg.Server.Role,
		Channel:      socket,
		API:          api,
		Archive:      store,
		PollInterval: time.Duration(cfg.Sync.PollIntervalSeconds) * time.Second,
		Logger:       logger,
	})

	fanout := buildFanout(cfg)
	eng.OnNewMessage = func(msg domain.Message) {
		name := ""
		if c, ok := eng.Contacts.Lookup(msg.FromUserID); ok {
			name = c.DisplayName
		}
		logger.Info("message received", "from", msg.FromUserID, "name", name, "id", msg.ID)
		if fanout.Enabled() {
			fanout.MessageReceived(msg, name)
		}
	}

	b := badge.New(eng, logger)
	b.OnChange = func(count int) {
		logger.Info("unread changed", "count", count)
		metrics.Collector.Gauge("lmsync_unread_total", "Aggregate unread message count", "").Set(int64(count))
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.Port)
	}

	go func() {
		if err := socket.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("push channel stopped", "err", err)
		}
	}()

	b.Attach(ctx, eng.Unread)
	defer b.Detach(eng.Unread)

	logger.Info("watching", "user", cfg.Server.UserID, "api", cfg.Server.APIBase)
	eng.Start(ctx)
	return nil
}

// buildFanout assembles the configured notification sinks. A sink that
// fails to initialize is skipped with a log line, not fatal.
func buildFanout(cfg *config.Config) *notify.Fanout {
	var sinks []notify.Sink

	if tg := cfg.Notify.Telegram; tg.Enabled {
		s, err := notify.NewTelegram(tg.Token, tg.ChatID)
		if err != nil {
			logger.Warn("telegram sink disabled", "err", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	if dc := cfg.Notify.Discord; dc.Enabled {
		s, err := notify.NewDiscord(dc.Token, dc.ChannelID)
		if err != nil {
			logger.Warn("discord sink disabled", "err", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	if sl := cfg.Notify.Slack; sl.Enabled {
		sinks = append(sinks, notify.NewSlack(sl.BotToken, sl.Channel))
	}

	return notify.NewFanout(logger, sinks...)
}

func serveMetrics(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", metrics.Collector.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "err", err)
	}
}
