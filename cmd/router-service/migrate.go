package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"leadrouter/pkg/bootstrap"
	"leadrouter/pkg/logging"
	"leadrouter/pkg/migrations"
)

func resolveDSN() (string, error) {
	cfg, err := loadConfig(logging.NewEarlyLog())
	if err != nil {
		return "", err
	}
	if cfg.Database.Postgres.Host == "" {
		return "", fmt.Errorf("database.postgres.host is not set")
	}
	return bootstrap.PostgresDSN(cfg.Database.Postgres), nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Broker assignment schema management",
	}

	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateVersionCmd())

	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := resolveDSN()
			if err != nil {
				return err
			}
			if err := migrations.Up(dsn); err != nil {
				return err
			}

			v, dirty, err := migrations.Version(dsn)
			if err != nil {
				return err
			}
			logging.NewEarlyLog().Info("Migration complete: version=%d dirty=%t", v, dirty)
			return nil
		},
	}
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (default: 1 step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := resolveDSN()
			if err != nil {
				return err
			}
			if steps <= 0 {
				steps = 1
			}
			if err := migrations.Down(dsn, steps); err != nil {
				return err
			}
			logging.NewEarlyLog().Info("Rolled back %d migration(s)", steps)
			return nil
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of migrations to roll back")
	return cmd
}

func migrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := resolveDSN()
			if err != nil {
				return err
			}
			v, dirty, err := migrations.Version(dsn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version: %d, dirty: %t\n", v, dirty)
			return nil
		},
	}
}
