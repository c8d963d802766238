package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kschrader/dex/internal/dexerr"
	"github.com/kschrader/dex/internal/task"
	"github.com/kschrader/dex/internal/ui"
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update task fields, parent, or blocking edges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		touched := false
		cmd.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
			touched = touched || f.Changed
		})
		if !touched {
			return dexerr.New(dexerr.ValidationFailed, "no fields to update").
				WithHint("Pass at least one flag, e.g. --name or --completed")
		}

		if del, _ := cmd.Flags().GetBool("delete"); del {
			t, err := svc.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(t)
			} else {
				fmt.Printf("Deleted %s and its subtasks\n", t.ID)
			}
			return nil
		}

		var in task.UpdateInput
		if cmd.Flags().Changed("name") {
			v, _ := cmd.Flags().GetString("name")
			in.Name = &v
		}
		if cmd.Flags().Changed("description") {
			v, _ := cmd.Flags().GetString("description")
			in.Description = &v
		}
		if cmd.Flags().Changed("priority") {
			v, _ := cmd.Flags().GetInt("priority")
			in.Priority = &v
		}
		if cmd.Flags().Changed("result") {
			v, _ := cmd.Flags().GetString("result")
			in.Result = &v
		}
		if cmd.Flags().Changed("parent") {
			in.SetParent = true
			if v, _ := cmd.Flags().GetString("parent"); v != "" && v != "none" {
				in.ParentID = &v
			}
		}
		if cmd.Flags().Changed("completed") {
			v, _ := cmd.Flags().GetBool("completed")
			in.Completed = &v
		}
		in.AddBlockedBy, _ = cmd.Flags().GetStringSlice("add-blocked-by")
		in.RemoveBlockedBy, _ = cmd.Flags().GetStringSlice("remove-blocked-by")

		t, err := svc.Update(cmd.Context(), id, in)
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
	updateCmd.Flags().String("name", "", "new name")
	updateCmd.Flags().StringP("description", "d", "", "new description")
	updateCmd.Flags().IntP("priority", "p", 0, "new priority 0-100")
	updateCmd.Flags().String("result", "", "result text")
	updateCmd.Flags().String("parent", "", "new parent id ('none' makes it a root)")
	updateCmd.Flags().Bool("completed", false, "set or clear completion")
	updateCmd.Flags().StringSlice("add-blocked-by", nil, "add blocking edges")
	updateCmd.Flags().StringSlice("remove-blocked-by", nil, "remove blocking edges")
	updateCmd.Flags().Bool("delete", false, "delete the task instead of updating")
	rootCmd.AddCommand(updateCmd)
}
