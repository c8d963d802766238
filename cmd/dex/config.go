package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kschrader/dex/internal/config"
	"github.com/kschrader/dex/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage dex configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ProjectPath(projectDir)
		if global, _ := cmd.Flags().GetBool("global"); global {
			var err error
			if path, err = config.GlobalPath(); err != nil {
				return err
			}
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			outputJSON(cfg)
			return nil
		}
		fmt.Printf("%s %s\n", ui.RenderMuted("storage.engine:"), cfg.Storage.Engine)
		fmt.Printf("%s %s\n", ui.RenderMuted("storage.file.mode:"), cfg.Storage.File.Mode)
		fmt.Printf("%s %t\n", ui.RenderMuted("sync.github.enabled:"), cfg.Sync.GitHub.Enabled)
		if cfg.Sync.GitHub.Repo != "" {
			fmt.Printf("%s %s\n", ui.RenderMuted("sync.github.repo:"), cfg.Sync.GitHub.Repo)
		}
		fmt.Printf("%s %s\n", ui.RenderMuted("sync.github.token_env:"), cfg.Sync.GitHub.TokenEnv)
		fmt.Printf("%s %s\n", ui.RenderMuted("sync.github.label_prefix:"), cfg.Sync.GitHub.LabelPrefix)
		fmt.Printf("%s %t\n", ui.RenderMuted("sync.github.auto.on_change:"), cfg.Sync.GitHub.Auto.OnChange)
		if cfg.Sync.GitHub.Auto.MaxAge != "" {
			fmt.Printf("%s %s\n", ui.RenderMuted("sync.github.auto.max_age:"), cfg.Sync.GitHub.Auto.MaxAge)
		}
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("global", false, "write the global config instead of the project one")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
