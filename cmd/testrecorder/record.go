package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/caevv/testrecorder/internal/config"
	"github.com/caevv/testrecorder/internal/query"
	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/store"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	okColor    = color.New(color.FgGreen, color.Bold)
	failColor  = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow)
	mutedColor = color.New(color.Faint)
)

const (
	iconPass    = "✓"
	iconFail    = "✗"
	iconIgnored = "⊘"
	iconNode    = "▸"
	iconOpen    = "⟳"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Inspect and manage stored invocations",
	Long: `Inspect and manage the invocation records kept in the configured store.

Subcommands:
  list    - List stored invocations
  show    - Print the record tree of an invocation
  tests   - List the test cases of an invocation
  query   - Run a jq expression against an invocation
  delete  - Remove an invocation
  prune   - Remove finished invocations older than an age

Examples:
  testrecorder record list --status failed
  testrecorder record show 3f2a... --failures
  testrecorder record query 3f2a... '[.. | .test_record_id? // empty]'`,
}

var listRecordsCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored invocations",
	Args:  cobra.NoArgs,
	RunE:  runListRecords,
}

var showRecordCmd = &cobra.Command{
	Use:   "show <invocation-id>",
	Short: "Print the record tree of an invocation",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRecord,
}

var testsRecordCmd = &cobra.Command{
	Use:   "tests <invocation-id>",
	Short: "List the test cases of an invocation",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecordTests,
}

var queryRecordCmd = &cobra.Command{
	Use:   "query <invocation-id> <jq-expression>",
	Short: "Run a jq expression against an invocation",
	Long: `Run a jq expression against the JSON form of an invocation record and print
every result.

Example:
  testrecorder record query 3f2a... '[.. | objects | select(.status? == "FAIL") | .test_record_id]'`,
	Args: cobra.ExactArgs(2),
	RunE: runQueryRecord,
}

var deleteRecordCmd = &cobra.Command{
	Use:   "delete <invocation-id>",
	Short: "Remove an invocation from the store",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteRecord,
}

var pruneRecordsCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove finished invocations older than an age",
	Long: `Remove finished invocations that started before now minus --older-than.
Defaults to the configured retention.max_age.

Example:
  testrecorder record prune --older-than 7d`,
	Args: cobra.NoArgs,
	RunE: runPruneRecords,
}

func init() {
	recordCmd.AddCommand(listRecordsCmd)
	recordCmd.AddCommand(showRecordCmd)
	recordCmd.AddCommand(testsRecordCmd)
	recordCmd.AddCommand(queryRecordCmd)
	recordCmd.AddCommand(deleteRecordCmd)
	recordCmd.AddCommand(pruneRecordsCmd)

	listRecordsCmd.Flags().IntP("limit", "n", 20, "Maximum number of invocations")
	listRecordsCmd.Flags().String("status", "", "Only list running, passed or failed invocations")

	showRecordCmd.Flags().Bool("json", false, "Print the record as JSON")
	showRecordCmd.Flags().Bool("failures", false, "Only show branches containing failures")

	testsRecordCmd.Flags().String("status", "", "Comma-separated statuses to keep, e.g. FAIL,IGNORED")

	queryRecordCmd.Flags().Bool("raw", false, "Print string results without JSON quoting")

	pruneRecordsCmd.Flags().String("older-than", "", "Age such as 30d or 72h (default: retention.max_age)")
}

// withStore loads the configuration, opens the store and runs fn.
func withStore(cmd *cobra.Command, fn func(cfg *config.Config, st store.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)
	return fn(cfg, st)
}

func runListRecords(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	status, _ := cmd.Flags().GetString("status")

	return withStore(cmd, func(_ *config.Config, st store.Store) error {
		invs, err := st.ListInvocations(limit)
		if err != nil {
			return fmt.Errorf("failed to list invocations: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(invs) == 0 {
			fmt.Fprintln(out, "No invocations recorded")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tTESTS\tPASSED\tFAILED\tIGNORED")
		shown := 0
		for _, inv := range invs {
			state := invocationStatus(inv)
			if status != "" && state != status {
				continue
			}
			s := record.Summarize(inv)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
				inv.ID,
				state,
				inv.StartTime.Time().Local().Format("2006-01-02 15:04:05"),
				formatDuration(inv),
				s.Tests, s.Passed, s.Failed, s.Ignored,
			)
			shown++
		}
		w.Flush()

		fmt.Fprintf(out, "\nTotal invocations: %d\n", shown)
		return nil
	})
}

func runShowRecord(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	failures, _ := cmd.Flags().GetBool("failures")

	return withStore(cmd, func(_ *config.Config, st store.Store) error {
		inv, err := st.GetInvocation(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			data, err := record.MarshalIndent(inv)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, string(data))
			return err
		}

		printTree(out, inv, failures)
		printInvocationSummary(out, inv)
		return nil
	})
}

func runRecordTests(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetString("status")
	statuses, err := parseStatuses(raw)
	if err != nil {
		return err
	}

	return withStore(cmd, func(_ *config.Config, st store.Store) error {
		inv, err := st.GetInvocation(args[0])
		if err != nil {
			return err
		}

		cases := query.FilterStatus(query.TestCases(inv), statuses...)
		out := cmd.OutOrStdout()
		if len(cases) == 0 {
			fmt.Fprintln(out, "No matching test cases")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TEST\tSTATUS\tMODULE\tRUN\tDURATION\tERROR")
		for _, tc := range cases {
			module := tc.Module
			if module == "" {
				module = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				tc.ID, tc.Status, module, tc.Run, tc.Duration, truncate(firstLine(tc.ErrorMessage), 60))
		}
		return w.Flush()
	})
}

func runQueryRecord(cmd *cobra.Command, args []string) error {
	rawOut, _ := cmd.Flags().GetBool("raw")

	q, err := query.Compile(args[1])
	if err != nil {
		return err
	}

	return withStore(cmd, func(_ *config.Config, st store.Store) error {
		inv, err := st.GetInvocation(args[0])
		if err != nil {
			return err
		}

		results, err := q.Run(cmd.Context(), inv)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, v := range results {
			if s, ok := v.(string); ok && rawOut {
				fmt.Fprintln(out, s)
				continue
			}
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			fmt.Fprintln(out, string(data))
		}
		return nil
	})
}

func runDeleteRecord(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(_ *config.Config, st store.Store) error {
		if err := st.DeleteInvocation(args[0]); err != nil {
			return fmt.Errorf("failed to delete invocation: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Invocation '%s' deleted\n", okColor.Sprint(iconPass), args[0])
		return nil
	})
}

func runPruneRecords(cmd *cobra.Command, args []string) error {
	olderThan, _ := cmd.Flags().GetString("older-than")

	return withStore(cmd, func(cfg *config.Config, st store.Store) error {
		if olderThan == "" {
			olderThan = cfg.Retention.MaxAge
		}
		if olderThan == "" {
			return fmt.Errorf("--older-than is required when retention.max_age is not configured")
		}
		age, err := config.ParseAge(olderThan)
		if err != nil {
			return err
		}

		cutoff := time.Now().Add(-age)
		n, err := st.DeleteBefore(cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune invocations: %w", err)
		}

		logger.Info("pruned invocations", "deleted", n, "cutoff", cutoff)
		fmt.Fprintf(cmd.OutOrStdout(), "%s Removed %d invocation(s) started before %s\n",
			okColor.Sprint(iconPass), n, cutoff.Local().Format("2006-01-02 15:04:05"))
		return nil
	})
}

// printTree renders the record tree with one line per record.
func printTree(w io.Writer, root *record.Record, failuresOnly bool) {
	_ = record.Walk(root, func(rec *record.Record, depth int) error {
		if failuresOnly && !hasFailure(rec) {
			return record.SkipChildren
		}

		indent := strings.Repeat("  ", depth)
		line := fmt.Sprintf("%s%s %s", indent, recordIcon(rec), rec.ID)
		if rec.IsTestCase() {
			line += " " + statusColor(rec.Status).Sprint(rec.Status)
		}
		line += " " + mutedColor.Sprint(formatDuration(rec))
		if rec.NumExpectedChildren > 0 {
			line += mutedColor.Sprintf(" [%d/%d]", len(rec.Children), rec.NumExpectedChildren)
		}
		if len(rec.Artifacts) > 0 {
			line += mutedColor.Sprintf(" (%d artifacts)", len(rec.Artifacts))
		}
		fmt.Fprintln(w, line)

		if rec.DebugInfo != nil && rec.DebugInfo.ErrorMessage != "" {
			fmt.Fprintf(w, "%s    %s\n", indent, failColor.Sprint(truncate(firstLine(rec.DebugInfo.ErrorMessage), 100)))
		}
		return nil
	})
}

func hasFailure(rec *record.Record) bool {
	s := record.Summarize(rec)
	return s.Failed > 0 || s.AssumptionFailures > 0 || s.Errors > 0
}

func recordIcon(rec *record.Record) string {
	switch {
	case rec.IsOpen():
		return warnColor.Sprint(iconOpen)
	case !rec.IsTestCase():
		if rec.DebugInfo != nil {
			return failColor.Sprint(iconFail)
		}
		return mutedColor.Sprint(iconNode)
	case rec.Status == record.StatusPass:
		return okColor.Sprint(iconPass)
	case rec.Status == record.StatusIgnored:
		return warnColor.Sprint(iconIgnored)
	default:
		return failColor.Sprint(iconFail)
	}
}

func statusColor(s record.Status) *color.Color {
	switch s {
	case record.StatusPass:
		return okColor
	case record.StatusIgnored:
		return warnColor
	case record.StatusFail, record.StatusAssumptionFailure:
		return failColor
	default:
		return mutedColor
	}
}

// invocationStatus is running, passed or failed.
func invocationStatus(inv *record.Record) string {
	switch {
	case inv.IsOpen():
		return "running"
	case record.Summarize(inv).Success():
		return "passed"
	default:
		return "failed"
	}
}

func parseStatuses(raw string) ([]record.Status, error) {
	if raw == "" {
		return nil, nil
	}
	var statuses []record.Status
	for _, name := range strings.Split(raw, ",") {
		s, err := record.ParseStatus(strings.ToUpper(strings.TrimSpace(name)))
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

func formatDuration(rec *record.Record) string {
	if rec.IsOpen() {
		return "running"
	}
	return rec.Duration().String()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
