package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/unclebandit/mailleopard-backend/internal/app"
	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/db"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/model"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg config.Config

	root := &cobra.Command{
		Use:           "campaignctl",
		Short:         "Operate the campaign dispatch engine against the configured database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, ServiceName: "campaignctl"})
			return nil
		},
	}

	withApp := func(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
		a, err := app.New(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a)
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the embedded schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withPostgres(cmd, cfg, db.Migrate)
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Load demo customers, subscribers, lists and campaigns",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withPostgres(cmd, cfg, db.Seed)
			},
		},
		dispatchCmd(withApp),
		applyEventCmd(withApp),
	)
	return root
}

func withPostgres(cmd *cobra.Command, cfg config.Config, fn func(context.Context, *sql.DB) error) error {
	conn, err := db.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := fn(cmd.Context(), conn); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

type appRunner func(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error

func dispatchCmd(withApp appRunner) *cobra.Command {
	var (
		dryRun    bool
		actorID   int
		actorName string
	)
	cmd := &cobra.Command{
		Use:   "dispatch <campaign-id>",
		Short: "Send a campaign now and print the summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("campaign id %q: %w", args[0], err)
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				summary, err := a.Campaigns.Dispatch(ctx, id, dryRun, model.Actor{ID: actorID, Name: actorName})
				if err != nil {
					return err
				}
				return printJSON(cmd, summary)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve the audience and report counts without sending")
	cmd.Flags().IntVar(&actorID, "actor-id", 0, "user id recorded in the activity log")
	cmd.Flags().StringVar(&actorName, "actor-name", "campaignctl", "name recorded in the activity log")
	return cmd
}

func applyEventCmd(withApp appRunner) *cobra.Command {
	var (
		reason string
		at     string
	)
	cmd := &cobra.Command{
		Use:   "apply-event <campaign-id> <recipient-id> <event>",
		Short: "Apply one delivery event (open, click, bounce, complaint, unsubscribe, delivered)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			campaignID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("campaign id %q: %w", args[0], err)
			}
			recipientID, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("recipient id %q: %w", args[1], err)
			}
			var occurredAt *time.Time
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				occurredAt = &t
			}
			eventCtx := map[string]any{}
			if reason != "" {
				eventCtx["reason"] = reason
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Recorder.Apply(ctx, campaignID, recipientID, args[2], eventCtx, occurredAt); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "applied")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason stored on bounce, complaint or unsubscribe")
	cmd.Flags().StringVar(&at, "at", "", "occurred_at in RFC 3339, defaults to now")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
