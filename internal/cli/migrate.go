package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arutha/lexhost/internal/infrastructure/database"
	"github.com/arutha/lexhost/migrations"
)

func (a *app) newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or change the state database schema",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending state database migrations",
			Args:  cobra.NoArgs,
			RunE:  a.runMigrateUp,
		},
		&cobra.Command{
			Use:   "status",
			Short: "List state database migrations and whether each is applied",
			Args:  cobra.NoArgs,
			RunE:  a.runMigrateStatus,
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert the most recent state database migration",
			Long: "Reverts the latest applied migration. Reverting the preferences\n" +
				"migration discards the stored version marker, so the next launch\n" +
				"provisions every database again.",
			Args: cobra.NoArgs,
			RunE: a.runMigrateDown,
		},
	)
	return cmd
}

// withStateDB opens the configured state database for one migrate command.
func (a *app) withStateDB(cmd *cobra.Command, fn func(*database.DB) error) error {
	cfg, _, err := a.loadConfig()
	if err != nil {
		return err
	}
	db, err := openStateDB(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Each change commits on its own
	return fn(db)
}

func (a *app) runMigrateUp(cmd *cobra.Command, _ []string) error {
	return a.withStateDB(cmd, func(db *database.DB) error {
		applied, err := db.Migrate(cmd.Context(), migrations.FS())
		for _, m := range applied {
			fmt.Fprintf(cmd.OutOrStdout(), "applied %s %s\n", m.Version, m.Name)
		}
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is up to date\n", db.Path())
		}
		return nil
	})
}

func (a *app) runMigrateStatus(cmd *cobra.Command, _ []string) error {
	return a.withStateDB(cmd, func(db *database.DB) error {
		states, err := db.MigrationStatus(cmd.Context(), migrations.FS())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
		for _, s := range states {
			status := "pending"
			switch {
			case s.Applied && s.Up == "":
				status = "applied (unknown to this build)"
			case s.Applied:
				status = "applied " + s.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Version, s.Name, status)
		}
		return w.Flush()
	})
}

func (a *app) runMigrateDown(cmd *cobra.Command, _ []string) error {
	return a.withStateDB(cmd, func(db *database.DB) error {
		m, err := db.MigrateDown(cmd.Context(), migrations.FS())
		if errors.Is(err, database.ErrNoAppliedMigrations) {
			fmt.Fprintln(cmd.OutOrStdout(), "no applied migrations")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reverted %s %s\n", m.Version, m.Name)
		return nil
	})
}
