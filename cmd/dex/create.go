package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kschrader/dex/internal/task"
	"github.com/kschrader/dex/internal/ui"
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := task.CreateInput{Name: args[0]}
		in.Description, _ = cmd.Flags().GetString("description")
		in.ParentID, _ = cmd.Flags().GetString("parent")
		in.BlockedBy, _ = cmd.Flags().GetStringSlice("blocked-by")
		in.ID, _ = cmd.Flags().GetString("id")
		if cmd.Flags().Changed("priority") {
			p, _ := cmd.Flags().GetInt("priority")
			in.Priority = &p
		}

		t, err := svc.Create(cmd.Context(), in)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(t)
			return nil
		}
		store, err := engine.Read(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(ui.TaskLine(store, t))
		return nil
	},
}

func init() {
	createCmd.Flags().StringP("description", "d", "", "task description")
	createCmd.Flags().IntP("priority", "p", 1, "priority 0-100 (lower sorts first)")
	createCmd.Flags().String("parent", "", "parent task id")
	createCmd.Flags().StringSlice("blocked-by", nil, "ids that must complete first")
	createCmd.Flags().String("id", "", "explicit task id (normally generated)")
	_ = createCmd.Flags().MarkHidden("id")
	rootCmd.AddCommand(createCmd)
}
