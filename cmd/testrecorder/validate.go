package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caevv/testrecorder/internal/config"
	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/scheduler"
	"github.com/caevv/testrecorder/internal/trace"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration, record and trace files",
	Long: `Validate the testrecorder configuration file and, optionally, record files
and trace files.

Configuration checks:
  - Valid YAML syntax
  - Valid store driver and logging settings
  - Valid hook names and allowed agents
  - Valid retention schedule and max age

Record files (--record) are checked against the record JSON schema and for
tree consistency: well-formed timestamps, closed children and matching
parent ids. Trace files (--trace) are parsed and every event checked
for its required fields.

Examples:
  testrecorder validate --config ./testrecorder.yaml
  testrecorder validate --record ./results/3f2a....json --trace ./traces/run.yaml
  testrecorder validate --schema`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringArray("record", nil, "Record JSON file to validate (repeatable)")
	validateCmd.Flags().StringArray("trace", nil, "Trace file to validate (repeatable)")
	validateCmd.Flags().Bool("schema", false, "Print the record JSON schema and exit")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if schema, _ := cmd.Flags().GetBool("schema"); schema {
		_, err := fmt.Fprintln(out, record.JSONSchema())
		return err
	}

	configPath, _ := cmd.Flags().GetString("config")
	records, _ := cmd.Flags().GetStringArray("record")
	traces, _ := cmd.Flags().GetStringArray("trace")

	logger.Info("validating configuration", "path", configPath)
	cfg, err := loadConfig(cmd)
	if err != nil {
		logger.Error("configuration validation failed", "error", err)
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(out, "%s Configuration is valid: %s\n", okColor.Sprint(iconPass), configPath)
	fmt.Fprintf(out, "  Store: %s (%s)\n", cfg.Store.Driver, cfg.Store.Path)
	if cfg.Outputs.Dir != "" {
		fmt.Fprintf(out, "  Result files: %s\n", cfg.Outputs.Dir)
	}
	for _, name := range config.HookNames {
		if agents := *cfg.Agents.Hooks.ByName(name); len(agents) > 0 {
			fmt.Fprintf(out, "  Hook %s: %d agent(s)\n", name, len(agents))
		}
	}
	if cfg.Retention.Schedule != "" {
		next, err := scheduler.NextRun(cfg.Retention.Schedule, time.Now())
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintf(out, "  Retention: %s, next prune %s\n", cfg.Retention.MaxAge, next.Local().Format("2006-01-02 15:04:05"))
	}

	var errs []error
	for _, path := range records {
		if err := validateRecordFile(path); err != nil {
			fmt.Fprintf(out, "%s Record %s: %v\n", failColor.Sprint(iconFail), path, err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		fmt.Fprintf(out, "%s Record is valid: %s\n", okColor.Sprint(iconPass), path)
	}
	for _, path := range traces {
		tr, err := trace.Load(path)
		if err != nil {
			fmt.Fprintf(out, "%s Trace %s: %v\n", failColor.Sprint(iconFail), path, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(out, "%s Trace is valid: %s (%d events)\n", okColor.Sprint(iconPass), path, len(tr.Events))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %w", errors.Join(errs...))
	}
	return nil
}

func validateRecordFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := record.ValidateJSON(data); err != nil {
		return err
	}
	rec, err := record.Unmarshal(data)
	if err != nil {
		return err
	}
	return record.Check(rec)
}
