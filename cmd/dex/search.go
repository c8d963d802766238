package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kschrader/dex/internal/ui"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search tasks by name and description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		includeArchive, _ := cmd.Flags().GetBool("archive")
		active, archived, err := svc.Search(cmd.Context(), args[0], includeArchive)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"tasks": active, "archived": archived})
			return nil
		}
		if len(active) == 0 && len(archived) == 0 {
			fmt.Println(ui.RenderMuted("No matches."))
			return nil
		}
		if len(active) > 0 {
			store, err := engine.Read(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range active {
				fmt.Println(ui.TaskLine(store, t))
			}
		}
		for _, rec := range archived {
			fmt.Printf("%s %s %s %s\n", ui.RenderDone(ui.IconDone), ui.RenderAccent(rec.ID), rec.Name, ui.RenderMuted("(archived)"))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Bool("archive", false, "include archived tasks")
	rootCmd.AddCommand(searchCmd)
}
