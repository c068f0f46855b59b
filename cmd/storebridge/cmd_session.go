package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/illmade-knight/go-storebridge/pkg/cache"
	"github.com/illmade-knight/go-storebridge/pkg/config"
	"github.com/illmade-knight/go-storebridge/pkg/session"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionShowCmd, sessionClearCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or clear the stored storage session",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSessions(cmd, func(ctx context.Context, sessions *session.Cache) error {
			sess, err := sessions.Stored(ctx)
			if errors.Is(err, cache.ErrCacheMiss) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No stored session.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("read session: %w", err)
			}

			authAt := "-"
			if !sess.AuthenticatedAt.IsZero() {
				authAt = sess.AuthenticatedAt.Format(time.RFC3339)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ENDPOINT\tUSER\tSCHEME\tAUTHENTICATED\tSINCE\tWORKING PATH")
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
				sess.Endpoint,
				orDash(sess.Username),
				orDash(sess.AuthScheme),
				sess.Authenticated(),
				authAt,
				sess.WorkingPath,
			)
			return w.Flush()
		})
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the stored session so the next run authenticates again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSessions(cmd, func(ctx context.Context, sessions *session.Cache) error {
			if err := sessions.Clear(ctx); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Session cleared.")
			return nil
		})
	},
}

func withSessions(cmd *cobra.Command, fn func(ctx context.Context, sessions *session.Cache) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(config.LogConfig{Level: "warn", Format: cfg.Log.Format}, os.Stderr)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	factory, closeStorage, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	store, closeStore, err := buildSessionStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer closeStore()

	sessions, err := session.NewCache(session.Config{Key: cfg.Session.Key, Endpoint: storageEndpoint(cfg)}, store, factory, logger)
	if err != nil {
		return err
	}
	return fn(ctx, sessions)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
