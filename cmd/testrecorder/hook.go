package main

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/caevv/testrecorder/internal/config"
	"github.com/spf13/cobra"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage the agents run on record events",
	Long: `Manage the external agents attached to record events in the configuration
file.

Hooks: ` + strings.Join(config.HookNames, ", ") + `

Subcommands:
  add     - Attach an agent to a hook
  list    - List attached agents
  remove  - Detach an agent from a hook

Examples:
  testrecorder hook add on_test_failure notify --with channel=#ci
  testrecorder hook list
  testrecorder hook remove on_test_failure notify`,
}

var addHookCmd = &cobra.Command{
	Use:   "add <hook> <agent>",
	Short: "Attach an agent to a hook",
	Long: `Attach an agent to a hook. The configuration file is created with defaults
if it does not exist yet. Values given with --with are passed to the agent as
CONFIG_JSON.`,
	Args: cobra.ExactArgs(2),
	RunE: runAddHook,
}

var listHooksCmd = &cobra.Command{
	Use:   "list",
	Short: "List the agents attached to each hook",
	Args:  cobra.NoArgs,
	RunE:  runListHooks,
}

var removeHookCmd = &cobra.Command{
	Use:   "remove <hook> <agent>",
	Short: "Detach an agent from a hook",
	Args:  cobra.ExactArgs(2),
	RunE:  runRemoveHook,
}

func init() {
	hookCmd.AddCommand(addHookCmd)
	hookCmd.AddCommand(listHooksCmd)
	hookCmd.AddCommand(removeHookCmd)

	addHookCmd.Flags().StringArray("with", nil, "Agent configuration KEY=VALUE (repeatable)")
}

func runAddHook(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	withArgs, _ := cmd.Flags().GetStringArray("with")

	with := make(map[string]any, len(withArgs))
	for _, kv := range withArgs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --with value %q (expected KEY=VALUE)", kv)
		}
		with[key] = value
	}

	agent := config.Agent{Agent: args[1]}
	if len(with) > 0 {
		agent.With = with
	}
	if err := config.AddHook(configPath, args[0], agent); err != nil {
		return fmt.Errorf("failed to add hook: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Agent '%s' attached to %s in %s\n", okColor.Sprint(iconPass), args[1], args[0], configPath)
	return nil
}

func runListHooks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.Agents.Hooks.Empty() {
		fmt.Fprintln(out, "No hooks configured")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "HOOK\tAGENT\tCONFIG")
	for _, name := range config.HookNames {
		for _, a := range *cfg.Agents.Hooks.ByName(name) {
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, a.Agent, formatWith(a.With))
		}
	}
	return w.Flush()
}

func runRemoveHook(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	if err := config.RemoveHook(configPath, args[0], args[1]); err != nil {
		return fmt.Errorf("failed to remove hook: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Agent '%s' detached from %s in %s\n", okColor.Sprint(iconPass), args[1], args[0], configPath)
	return nil
}

func formatWith(with map[string]any) string {
	if len(with) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(with))
	for k, v := range with {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	slices.Sort(parts)
	return strings.Join(parts, " ")
}
