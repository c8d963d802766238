package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kschrader/dex/internal/ui"
)

var importCmd = &cobra.Command{
	Use:   "import <issue-ref>",
	Short: "Import a GitHub issue as a task lineage",
	Long: "Accepts #N, owner/repo#N, or a full issue URL. Embedded dex metadata\n" +
		"in the issue body reconstructs subtasks; --update refreshes an\n" +
		"already-imported lineage from the remote.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		update, _ := cmd.Flags().GetBool("update")
		root, err := svc.Import(cmd.Context(), args[0], update)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(root)
			return nil
		}
		store, err := engine.Read(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Print(ui.TaskTree(store, root))
		return nil
	},
}

func init() {
	importCmd.Flags().BoolP("update", "u", false, "refresh an already-imported lineage")
	rootCmd.AddCommand(importCmd)
}
