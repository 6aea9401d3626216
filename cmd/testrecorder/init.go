package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caevv/testrecorder/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a configuration file with default settings to --config.

An existing file is left untouched unless --force is given.

Example:
  testrecorder init --config ./testrecorder.yaml --driver sqlite`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration file")
	initCmd.Flags().String("driver", "", "Store driver: bbolt, json or sqlite (default bbolt)")
	initCmd.Flags().String("store-path", "", "Store file path")
	initCmd.Flags().String("results", "", "Directory for result files (empty keeps the default)")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	force, _ := cmd.Flags().GetBool("force")
	driver, _ := cmd.Flags().GetString("driver")
	storePath, _ := cmd.Flags().GetString("store-path")
	results, _ := cmd.Flags().GetString("results")

	if _, err := os.Stat(configPath); !errors.Is(err, fs.ErrNotExist) && !force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", configPath)
	}

	cfg := config.NewDefaultConfig()
	if driver != "" {
		cfg.Store.Driver = driver
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	if results != "" {
		cfg.Outputs.Dir = results
	}

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Configuration written to %s\n", okColor.Sprint(iconPass), configPath)
	fmt.Fprintf(out, "  Store: %s (%s)\n", cfg.Store.Driver, cfg.Store.Path)
	fmt.Fprintf(out, "  Result files: %s\n", cfg.Outputs.Dir)
	return nil
}
