package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caevv/testrecorder/internal/config"
	"github.com/caevv/testrecorder/internal/logging"
	"github.com/caevv/testrecorder/internal/store"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags at build time)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	// Global logger
	logger *slog.Logger
)

func main() {
	logger = logging.New("info")
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "testrecorder",
	Short: "Record hierarchical test results from lifecycle events",
	Long: `testrecorder turns a stream of test lifecycle events (invocation, module,
run and test started/ended) into a tree of result records.

Finished records are persisted to a local store, written as JSON result files,
streamed as JSON lines and handed to external agents. Stored invocations can
be browsed from the command line, a terminal UI or an HTTP dashboard.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringP("config", "c", "testrecorder.yaml", "Path to configuration file")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := "info"
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			level = "debug"
		}
		logger = logging.New(level)
		slog.SetDefault(logger)
		logger.Debug("debug logging enabled")
	}

	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(tuiCmd)
}

// loadConfig reads the --config file. A missing file is fine unless the
// flag was set explicitly; defaults are used instead.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		logger.Debug("no configuration file, using defaults", "path", path)
		return config.NewDefaultConfig(), nil
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// setupLogger replaces the global logger with the one configured in cfg.
// --debug wins over the configured level.
func setupLogger(cmd *cobra.Command, cfg *config.Config) (io.Closer, error) {
	level := cfg.Logging.Level
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = "debug"
	}

	l, closer, err := logging.NewFromConfig(cfg.Logging.Format, level, cfg.Logging.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = l
	slog.SetDefault(l)
	return closer, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	st, err := store.NewStore(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	logger.Debug("store initialized", "driver", cfg.Store.Driver, "path", cfg.Store.Path)
	return st, nil
}

func closeStore(st store.Store) {
	if err := st.Close(); err != nil {
		logger.Error("failed to close store", "error", err)
	}
}

// setupSignalHandler creates a context that cancels on SIGINT or SIGTERM
func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()

		// Force exit if second signal received
		sig = <-sigChan
		logger.Warn("received second signal, forcing exit", "signal", sig.String())
		os.Exit(1)
	}()

	return ctx
}
