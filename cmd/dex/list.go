package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kschrader/dex/internal/types"
	"github.com/kschrader/dex/internal/ui"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter types.TaskFilter
		filter.All, _ = cmd.Flags().GetBool("all")
		filter.Query, _ = cmd.Flags().GetString("query")
		filter.Blocked, _ = cmd.Flags().GetBool("blocked")
		filter.Ready, _ = cmd.Flags().GetBool("ready")
		filter.InProgress, _ = cmd.Flags().GetBool("in-progress")
		if cmd.Flags().Changed("completed") {
			c, _ := cmd.Flags().GetBool("completed")
			filter.Completed = &c
		}

		tasks, err := svc.List(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(tasks)
			return nil
		}
		if len(tasks) == 0 {
			fmt.Println(ui.RenderMuted("No tasks."))
			return nil
		}

		store, err := engine.Read(cmd.Context())
		if err != nil {
			return err
		}
		if tree, _ := cmd.Flags().GetBool("tree"); tree {
			printForest(store, tasks)
			return nil
		}
		for _, t := range tasks {
			fmt.Println(ui.TaskLine(store, t))
		}
		return nil
	},
}

// printForest renders each matched lineage once, as a tree from its root.
func printForest(store types.TaskStore, tasks []*types.Task) {
	seen := map[string]bool{}
	for _, t := range tasks {
		root := t
		for root.ParentID != nil {
			parent, ok := store[*root.ParentID]
			if !ok {
				break
			}
			root = parent
		}
		if seen[root.ID] {
			continue
		}
		seen[root.ID] = true
		fmt.Print(ui.TaskTree(store, root))
	}
}

func init() {
	listCmd.Flags().BoolP("all", "a", false, "include completed tasks")
	listCmd.Flags().Bool("completed", false, "only completed (or only pending with --completed=false)")
	listCmd.Flags().StringP("query", "q", "", "substring match on name and description")
	listCmd.Flags().Bool("blocked", false, "only tasks with incomplete blockers")
	listCmd.Flags().Bool("ready", false, "only unblocked pending tasks with no pending children")
	listCmd.Flags().Bool("in-progress", false, "only started, uncompleted tasks")
	listCmd.Flags().BoolP("tree", "t", false, "render matching lineages as trees")
	rootCmd.AddCommand(listCmd)
}
