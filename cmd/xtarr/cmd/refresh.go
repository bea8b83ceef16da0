package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	refreshTarget string
	refreshJSON   bool
)

// errNotifyWorthy makes the process exit non-zero after a refresh that
// produced errors an operator should see.
var errNotifyWorthy = errors.New("refresh finished with errors")

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh targets once and exit",
	Long: `Pull every input of the selected targets, render their playlists and
publish them, then exit. Without --target every target is refreshed.

The exit status is non-zero when a target could not be published or when
an upstream failure worth notifying about occurred.`,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().StringVar(&refreshTarget, "target", "", "refresh only the named target")
	refreshCmd.Flags().BoolVar(&refreshJSON, "json", false, "print the refresh summary as JSON")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.refresh.Refresh(ctx, refreshTarget)
	if err != nil {
		return fmt.Errorf("refreshing: %w", err)
	}

	if refreshJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encoding summary: %w", err)
		}
	} else {
		for _, t := range result.Targets {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d groups, %d items, %d details (%d cached), %d errors in %s\n",
				t.Target, t.Groups, t.Items, t.Details, t.Cached, len(t.Errors), t.Duration.Round(time.Millisecond))
			if len(t.Retained) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: kept previous %v\n", t.Target, t.Retained)
			}
		}
	}

	if result.HasNotify() {
		logger.Error("refresh reported errors", slog.Int("errors", len(result.Errors())))
		return errNotifyWorthy
	}
	return nil
}
