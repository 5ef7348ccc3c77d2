package main

import (
	"github.com/spf13/cobra"

	"github.com/procurelab/bidwise/config"
	srv "github.com/procurelab/bidwise/internal/server"
)

func migrateCMD() *cobra.Command {
	var migDir string
	var direction string
	var steps int
	var cfgPath string

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Without --config the DSN comes from DATABASE_URL or the
			// POSTGRES_* environment variables.
			dsn := ""
			if cfgPath != "" {
				dsn = config.LoadConfig(cfgPath).Storage.Postgres.DSN()
			}
			return srv.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source directory")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	migrate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default: connection from environment)")

	return migrate
}
