package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [id...]",
	Short: "Push task lineages to their GitHub mirror issues",
	Long: "Without arguments, pushes every root task. With ids, pushes the\n" +
		"lineages containing those tasks. Requires sync.github.enabled = true.",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := svc.Sync(cmd.Context(), args)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]int{"synced": n})
			return nil
		}
		fmt.Printf("Synced %d lineage(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
