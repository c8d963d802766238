package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kschrader/dex/internal/ui"
)

var startCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Mark a task in progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		t, err := svc.Start(cmd.Context(), args[0], force)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(t)
			return nil
		}
		fmt.Printf("%s %s %s\n", ui.RenderProgress(ui.IconProgress), ui.RenderAccent(t.ID), t.Name)
		return nil
	},
}

func init() {
	startCmd.Flags().BoolP("force", "f", false, "restart an already started task")
	rootCmd.AddCommand(startCmd)
}
