package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"lmsync/internal/archive"
	"lmsync/internal/config"
	"lmsync/internal/domain"
	"lmsync/internal/engine"

	"github.com/spf13/cobra"
)

func threadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "List conversations with unread counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(resolveConfigPath())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout(cfg))
			defer cancel()

			threads, err := newAPI(cfg).Conversations(ctx)
			if err != nil {
				return fmt.Errorf("fetch conversations: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PARTNER\tNAME\tUNREAD\tLAST MESSAGE")
			for _, t := range threads {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\n",
					t.PartnerID, t.PartnerName, t.UnreadCount, previewLine(t.LastMessage.Content))
			}
			return w.Flush()
		},
	}
}

func contactsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contacts",
		Short: "List people you can message, grouped by role",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(resolveConfigPath())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout(cfg))
			defer cancel()

			book := engine.NewContactBook(newAPI(cfg), cfg.Server.Role, logger)
			if got := book.Load(ctx); got == nil {
				return fmt.Errorf("contact list unavailable")
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, g := range book.Grouped() {
				fmt.Fprintf(w, "[%s]\n", g.Role)
				for _, c := range g.Contacts {
					fmt.Fprintf(w, "  %d\t%s\n", c.UserID, c.DisplayName)
				}
			}
			return w.Flush()
		},
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send [user-id] [text]",
		Short: "Send a direct message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			toUserID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			cfg, err := loadConfig(resolveConfigPath())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout(cfg))
			defer cancel()

			msg, err := newAPI(cfg).Send(ctx, toUserID, args[1])
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			logger.Info("sent", "id", msg.ID, "to", toUserID)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var local bool
	var limit int

	cmd := &cobra.Command{
		Use:   "history [user-id]",
		Short: "Show the conversation with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partnerID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			cfg, err := loadConfig(resolveConfigPath())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout(cfg))
			defer cancel()

			var msgs []domain.Message
			if local {
				msgs, err = localHistory(ctx, cfg, partnerID, limit)
				if err != nil {
					return err
				}
			} else {
				msgs = engine.NewStream(newAPI(cfg), cfg.Server.UserID, logger).Open(ctx, partnerID)
			}

			for _, m := range msgs {
				who := "them"
				if m.FromUserID == cfg.Server.UserID {
					who = "me"
				}
				fmt.Printf("%s  %-4s  %s\n", m.CreatedAt.Local().Format(time.DateTime), who, m.Content)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "read from the local archive instead of the server")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum messages to show (--local only)")
	return cmd
}

func localHistory(ctx context.Context, cfg *config.Config, partnerID int64, limit int) ([]domain.Message, error) {
	if !cfg.Archive.Enabled {
		return nil, fmt.Errorf("archive is disabled in config")
	}
	a, err := archive.New(config.ExpandPath(cfg.Archive.DBPath), logger)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer a.Close()
	return a.History(ctx, cfg.Server.UserID, partnerID, limit)
}

func previewLine(s string) string {
	const max = 60
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
