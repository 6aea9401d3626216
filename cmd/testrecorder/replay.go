package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/caevv/testrecorder/internal/consumer"
	"github.com/caevv/testrecorder/internal/logging"
	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/recorder"
	"github.com/caevv/testrecorder/internal/trace"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <trace-file>...",
	Short: "Record the lifecycle events of trace files",
	Long: `Feed the lifecycle events listed in YAML or JSON trace files through the
recorder. Each finished invocation goes to every configured output: the store,
result files, the event stream and hooked agents.

Protocol violations in a trace are reported but do not stop the replay, so
the invocation is still finalized when the trace ends it. With --finish, an
invocation the trace leaves open is ended after the last event.

Example:
  testrecorder replay ./traces/cts-run.yaml --config ./testrecorder.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().String("id", "", "Fixed invocation id (default: random UUID)")
	replayCmd.Flags().Bool("finish", true, "End an invocation left open by the trace")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logCloser, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	fixedID, _ := cmd.Flags().GetString("id")
	finish, _ := cmd.Flags().GetBool("finish")

	// Load every trace up front so a typo does not leave half the work done
	traces := make([]*trace.Trace, len(args))
	for i, path := range args {
		tr, err := trace.Load(path)
		if err != nil {
			return err
		}
		traces[i] = tr
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	consumers, err := consumer.FromConfig(cfg, st, logger)
	if err != nil {
		return fmt.Errorf("failed to set up outputs: %w", err)
	}

	opts := []recorder.Option{recorder.WithLogger(logger)}
	if fixedID != "" {
		opts = append(opts, recorder.WithIDGenerator(func() string { return fixedID }))
	}
	rec := recorder.New(consumers, opts...)

	ctx := setupSignalHandler()

	var errs []error
	for i, tr := range traces {
		traceLogger := logging.WithFields(logger, map[string]any{"trace": args[i]})
		traceLogger.Info("replaying trace", "events", len(tr.Events))

		if err := trace.Replay(logging.WithContext(ctx, traceLogger), rec, tr.Events); err != nil {
			errs = append(errs, fmt.Errorf("replay %s: %w", args[i], err))
		}

		if finish && rec.State() != "" {
			snap := rec.Snapshot()
			elapsed := time.Now().UnixMilli() - snap.StartTime.Millis()
			logger.Warn("trace left the invocation open, ending it", "record_id", snap.ID, "state", rec.State())
			if err := rec.InvocationEnded(ctx, elapsed); err != nil {
				errs = append(errs, fmt.Errorf("finish %s: %w", args[i], err))
			}
		}

		if final := rec.Final(); final != nil {
			printInvocationSummary(cmd.OutOrStdout(), final)
		}
	}

	// drain agents and close the event stream before reporting
	if err := consumers.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close outputs: %w", err))
	}

	return errors.Join(errs...)
}

func printInvocationSummary(w io.Writer, inv *record.Record) {
	s := record.Summarize(inv)
	status := okColor.Sprint(iconPass)
	if !s.Success() {
		status = failColor.Sprint(iconFail)
	}
	fmt.Fprintf(w, "%s invocation %s: %d tests, %s passed, %s failed, %d ignored (%s)\n",
		status,
		inv.ID,
		s.Tests,
		okColor.Sprint(s.Passed),
		failColor.Sprint(s.Failed),
		s.Ignored,
		inv.Duration(),
	)
}
