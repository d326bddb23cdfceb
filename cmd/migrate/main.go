package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/medkg/backend/internal/util"
	"github.com/medkg/backend/pkg/logger"
	"github.com/medkg/backend/pkg/logger/console"
	pgs "github.com/medkg/backend/pkg/store/pgx"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	util.LoadEnv()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
	})
	logger.Init(consoleLogger)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// databaseURL prefers MIGRATE_DATABASE_URL so lookups can keep using the
// read-only role in DATABASE_URL.
func databaseURL() (string, error) {
	url := util.GetEnvString("MIGRATE_DATABASE_URL", util.GetEnv("DATABASE_URL"))
	if url == "" {
		return "", fmt.Errorf("MIGRATE_DATABASE_URL or DATABASE_URL must be set")
	}
	return url, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the Postgres graph schema",
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := databaseURL()
			if err != nil {
				return err
			}
			return pgs.MigrateUp(url)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid steps %q: %w", args[0], err)
				}
				steps = n
			}
			url, err := databaseURL()
			if err != nil {
				return err
			}
			return pgs.MigrateDown(url, steps)
		},
	})

	return root
}
