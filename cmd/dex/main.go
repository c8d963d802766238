// dex is a local-first hierarchical task tracker with optional GitHub
// issue mirroring. Tasks live in a JSONL store inside the repository (or a
// central home), nested up to three levels, with blocking dependencies.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kschrader/dex/internal/archive"
	"github.com/kschrader/dex/internal/config"
	"github.com/kschrader/dex/internal/dexerr"
	"github.com/kschrader/dex/internal/git"
	"github.com/kschrader/dex/internal/github"
	"github.com/kschrader/dex/internal/storage"
	"github.com/kschrader/dex/internal/task"
	"github.com/kschrader/dex/internal/telemetry"
	"github.com/kschrader/dex/internal/ui"
)

// Shared command state, wired once in PersistentPreRunE.
var (
	jsonOutput   bool
	verboseFlag  bool
	noColor      bool
	storeDirFlag string

	cfg        *config.Config
	projectDir string
	fileEngine *storage.FileEngine
	engine     storage.Engine
	archiveLog *archive.Log
	svc        *task.Service
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "dex",
	Short:         "Local-first hierarchical task tracker",
	Long:          "dex tracks tasks in a JSONL store next to your code: three levels of nesting,\nblocking dependencies, an archive log, and optional GitHub issue mirroring.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

// needsStore reports whether the command touches the task store. Version,
// help, and config management run without creating a .dex directory.
func needsStore(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help":
		return false
	}
	for p := cmd.Parent(); p != nil; p = p.Parent() {
		if p.Name() == "config" {
			return false
		}
	}
	return cmd.Name() != "config"
}

func setup(cmd *cobra.Command) error {
	ui.ConfigureColor(noColor)

	level := slog.LevelWarn
	if verboseFlag {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := telemetry.Init(cmd.Context(), "dex", Version); err != nil {
		logger.Warn("telemetry init failed", "error", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return dexerr.Wrap(dexerr.StorageIO, err, "resolving working directory")
	}
	projectDir = cwd
	if root, ok := git.DiscoverRoot(cwd); ok {
		projectDir = root
	}

	cfg, err = config.Load(projectDir)
	if err != nil {
		return err
	}

	if !needsStore(cmd) {
		return nil
	}

	storeDir := storeDirFlag
	if storeDir == "" {
		if storeDir, err = storage.ResolveDir(cfg.Storage.File.Mode, cwd); err != nil {
			return err
		}
	}
	fileEngine, err = storage.NewFileEngine(storeDir)
	if err != nil {
		return err
	}
	engine = telemetry.WrapEngine(fileEngine)
	archiveLog = archive.NewLog(fileEngine.Dir())

	svc = task.NewService(engine, archiveLog, logger).WithGitDir(projectDir)
	if cfg.Sync.GitHub.Enabled {
		svc.WithSyncer(github.NewSyncer(cfg.Sync.GitHub, fileEngine, projectDir, logger))
	}
	return nil
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable styled output")
	rootCmd.PersistentFlags().StringVar(&storeDirFlag, "store", "", "override the store directory")

	err := rootCmd.Execute()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	telemetry.Shutdown(shutdownCtx)
	cancel()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := dexerr.HintOf(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(dexerr.ExitCode(err))
	}
}
