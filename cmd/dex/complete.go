package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kschrader/dex/internal/ui"
)

var completeCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, _ := cmd.Flags().GetString("result")
		withCommit, _ := cmd.Flags().GetBool("commit")
		t, err := svc.Complete(cmd.Context(), args[0], result, withCommit)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(t)
			return nil
		}
		fmt.Printf("%s %s %s\n", ui.RenderDone(ui.IconDone), ui.RenderAccent(t.ID), t.Name)
		return nil
	},
}

func init() {
	completeCmd.Flags().StringP("result", "r", "", "what was accomplished")
	completeCmd.Flags().Bool("commit", false, "record the current HEAD commit on the task")
	rootCmd.AddCommand(completeCmd)
}
