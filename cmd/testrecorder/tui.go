package main

import (
	"fmt"

	"github.com/caevv/testrecorder/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse stored invocations in a terminal UI",
	Long: `Open an interactive terminal browser over the configured store.

Navigation:
  ↑/↓ or k/j  - Navigate invocations, scroll the record tree
  enter       - Show the record tree of an invocation
  f           - Toggle failing branches only
  esc         - Go back to the list
  g/G         - Jump to top/bottom
  r           - Refresh data
  q           - Quit

Example:
  testrecorder tui --config ./testrecorder.yaml`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// keep logs off the terminal unless a file is configured
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stderr" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "discard"
	}
	logCloser, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

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
	if pruner != nil {
		pruner.Start()
		defer pruner.Stop()
	}

	p := tea.NewProgram(
		tui.New(st, pruner, logger),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	if m, ok := finalModel.(tui.Model); ok && m.Quitting() {
		logger.Info("tui closed")
	}
	return nil
}
