package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

const closeTimeout = 30 * time.Second

// newDiscoverCmd runs one crawl session in the foreground.
func newDiscoverCmd() *cobra.Command {
	var opts crawler.SessionOptions
	var sessionType string
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run one crawl session and print its summary",
		Long: `Runs a crawl session without the dashboard. Interrupting it pauses the
session; the partial results are still recorded.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.Type = crawler.SessionType(sessionType)
			return runDiscoverCommand(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&sessionType, "type", string(crawler.SessionFull), "session type: full, discovery or enrichment")
	cmd.Flags().BoolVar(&opts.SkipMedia, "skip-media", false, "skip photo and document collection")
	cmd.Flags().BoolVar(&opts.SkipEnrichment, "skip-enrichment", false, "skip IMO database lookups")
	cmd.Flags().BoolVar(&opts.SkipMarketplace, "skip-marketplace", false, "skip marketplace sync")
	return cmd
}

func runDiscoverCommand(cmd *cobra.Command, opts crawler.SessionOptions) error {
	switch opts.Type {
	case crawler.SessionFull, crawler.SessionDiscovery, crawler.SessionEnrichment:
	default:
		return fmt.Errorf("unknown session type %q", opts.Type)
	}
	cfg, err := resolveConfig(cmd.Context())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if cerr := app.Close(closeCtx); cerr != nil {
			cmd.PrintErrf("close: %v\n", cerr)
		}
	}()

	sess, err := app.RunSession(ctx, opts)
	if err != nil {
		return fmt.Errorf("run session: %w", err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(sess); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if sess.Status == vessel.SessionFailed {
		return errors.New("session failed")
	}
	return nil
}
