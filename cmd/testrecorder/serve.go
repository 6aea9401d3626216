package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/caevv/testrecorder/internal/config"
	"github.com/caevv/testrecorder/internal/scheduler"
	"github.com/caevv/testrecorder/internal/server"
	"github.com/caevv/testrecorder/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored invocations over HTTP",
	Long: `Start the HTTP API and dashboard over the configured store.

When retention.schedule is configured, old invocations are pruned on that
schedule while the server runs.

Example:
  testrecorder serve --config ./testrecorder.yaml --addr :8080`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "HTTP server address (default: server.addr)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logCloser, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Server.Addr
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := setupSignalHandler()

	pruner, err := newPruner(ctx, cfg, st)
	if err != nil {
		return err
	}

	// a nil *Pruner must not end up inside the interface
	var retention server.Retention
	if pruner != nil {
		retention = pruner
	}
	srv := server.New(addr, server.NewStoreAdapter(st), retention, logger)

	g, gCtx := errgroup.WithContext(ctx)

	if pruner != nil {
		g.Go(func() error {
			pruner.Start()
			<-gCtx.Done()
			pruner.Stop()
			return nil
		})
	}

	g.Go(func() error {
		if err := srv.Start(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	logger.Info("testrecorder serve mode started",
		"store_driver", cfg.Store.Driver,
		"retention", cfg.Retention.Schedule,
		"dashboard_url", fmt.Sprintf("http://%s/", addr))

	if err := g.Wait(); err != nil {
		logger.Error("error during execution", "error", err)
		return err
	}

	logger.Info("testrecorder stopped")
	return nil
}

// newPruner builds the retention pruner, or returns nil when no retention
// schedule is configured.
func newPruner(ctx context.Context, cfg *config.Config, st store.Store) (*scheduler.Pruner, error) {
	if cfg.Retention.Schedule == "" {
		return nil, nil
	}
	maxAge, err := cfg.Retention.MaxAgeDuration()
	if err != nil {
		return nil, err
	}
	pruner, err := scheduler.NewPruner(ctx, st, cfg.Retention.Schedule, maxAge, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create retention pruner: %w", err)
	}
	return pruner, nil
}
