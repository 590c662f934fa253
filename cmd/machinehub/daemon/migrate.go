package daemon

import (
	"errors"
	"log/slog"

	"github.com/machine-hub/server/internal/entity"
	"github.com/spf13/cobra"
)

func (a *App) installMigrate() {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Args:  cobra.NoArgs,
	}

	run := func(name string, fn func(string) error) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: "Run " + name + " migrations against --database-url",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				dsn := a.cfg.Database.DSN
				if dsn == "" {
					a.cmd.SilenceUsage = false
					return errors.New("migrate requires --database-url or database.dsn")
				}
				slog.Info("Running migrate command", "direction", name)
				return fn(dsn)
			},
		}
	}

	migrateCmd.AddCommand(run("up", entity.MigrateUp), run("down", entity.MigrateDown))
	a.cmd.AddCommand(migrateCmd)
}
