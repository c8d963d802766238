package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kschrader/dex/internal/compact"
	"github.com/kschrader/dex/internal/dexerr"
	"github.com/kschrader/dex/internal/timeparsing"
	"github.com/kschrader/dex/internal/ui"
)

var archiveCmd = &cobra.Command{
	Use:   "archive [id...]",
	Short: "Move closed task lineages to the archive log",
	Long: "With ids, archives those lineages (each must be fully completed,\n" +
		"top to bottom). Without ids, collects eligible roots by age:\n" +
		"completed more than 90 days ago, always keeping the 50 most recent.",
	RunE: func(cmd *cobra.Command, args []string) error {
		compactor := compact.New(fileEngine, archiveLog)
		ids := args

		if len(ids) == 0 {
			opts, err := collectOptions(cmd)
			if err != nil {
				return err
			}
			store, err := engine.Read(cmd.Context())
			if err != nil {
				return err
			}
			ids = compactor.CollectRoots(store, opts)
		}

		if len(ids) == 0 {
			fmt.Println(ui.RenderMuted("Nothing to archive."))
			return nil
		}
		if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
			fmt.Printf("Would archive %d lineage(s): %s\n", len(ids), strings.Join(ids, ", "))
			return nil
		}

		result, err := compactor.Archive(cmd.Context(), ids)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(result)
			return nil
		}
		fmt.Printf("Archived %d task(s) across %d lineage(s)\n", result.Archived, len(result.Roots))
		return nil
	},
}

func collectOptions(cmd *cobra.Command) (compact.Options, error) {
	var opts compact.Options
	opts.CompletedOnly, _ = cmd.Flags().GetBool("completed")
	opts.Except, _ = cmd.Flags().GetStringSlice("except")
	opts.KeepRecent, _ = cmd.Flags().GetInt("keep-recent")

	if v, _ := cmd.Flags().GetString("older-than"); v != "" {
		age, err := timeparsing.ParseAge(v)
		if err != nil {
			return opts, dexerr.Wrap(dexerr.ValidationFailed, err, "--older-than")
		}
		opts.OlderThan = age
	}
	if v, _ := cmd.Flags().GetString("before"); v != "" {
		at, err := timeparsing.ParseRelative(v, time.Now())
		if err != nil {
			return opts, dexerr.Wrap(dexerr.ValidationFailed, err, "--before")
		}
		opts.Before = &at
	}
	return opts, nil
}

var archiveListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List archived tasks",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) > 0 {
			query = args[0]
		}
		records, err := archiveLog.List(query)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(records)
			return nil
		}
		if len(records) == 0 {
			fmt.Println(ui.RenderMuted("Archive is empty."))
			return nil
		}
		for _, rec := range records {
			fmt.Printf("%s %s %s %s\n", ui.RenderDone(ui.IconDone), ui.RenderAccent(rec.ID), rec.Name,
				ui.RenderMuted("archived "+rec.ArchivedAt.String()))
		}
		return nil
	},
}

func init() {
	archiveCmd.Flags().String("older-than", "", "age cutoff on completion, e.g. 30d, 12w, 6m")
	archiveCmd.Flags().String("before", "", "archive lineages completed before this time (e.g. 'last month')")
	archiveCmd.Flags().Bool("completed", false, "archive every closed lineage regardless of age")
	archiveCmd.Flags().StringSlice("except", nil, "root ids to skip")
	archiveCmd.Flags().Int("keep-recent", 0, "completed roots to retain regardless of age (default 50)")
	archiveCmd.Flags().Bool("dry-run", false, "show what would be archived")
	archiveCmd.AddCommand(archiveListCmd)
	rootCmd.AddCommand(archiveCmd)
}
