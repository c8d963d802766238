package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kschrader/dex/internal/ui"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a task (active or archived)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, rec, err := svc.GetWithArchive(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		switch {
		case t != nil:
			if jsonOutput {
				outputJSON(t)
				return nil
			}
			store, err := engine.Read(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Print(ui.TaskDetail(store, t))
		default:
			if jsonOutput {
				outputJSON(rec)
				return nil
			}
			fmt.Print(ui.ArchivedDetail(rec))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
