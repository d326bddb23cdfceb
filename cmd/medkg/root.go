package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/medkg/backend/internal/app"
	"github.com/medkg/backend/internal/config"
	"github.com/medkg/backend/pkg/logger"
	"github.com/medkg/backend/pkg/logger/console"

	"github.com/spf13/cobra"
)

// buildFunc returns the dependencies a command runs against.
type buildFunc func(ctx context.Context) (*app.Deps, error)

func buildDeps(ctx context.Context) (*app.Deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg)
}

func newRootCmd(build buildFunc) *cobra.Command {
	var (
		debug   bool
		jsonLog bool
	)

	root := &cobra.Command{
		Use:           "medkg",
		Short:         "Resolve medical entity mentions against the knowledge graph",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
				Debug:  debug,
				JSON:   jsonLog,
				Output: cmd.ErrOrStderr(),
			}))
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&jsonLog, "log-json", false, "log JSON lines to stderr")

	root.AddCommand(
		newResolveCmd(build),
		newBatchCmd(build),
		newExtractCmd(build),
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
