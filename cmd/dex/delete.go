package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task and its whole subtree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := svc.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(t)
			return nil
		}
		fmt.Printf("Deleted %s and its subtasks\n", t.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
