package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mediastore/internal/config"
	"mediastore/internal/store"
)

func newMigrateCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	var dryRun bool
	var inspect bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run or inspect database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			readOnly := inspect || dryRun
			st, err := openStore(cfg, readOnly)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer st.Close()

			plan, err := st.MigrationPlan(cmd.Context())
			if err != nil {
				return fmt.Errorf("inspect migrations: %w", err)
			}
			if opts.jsonOutput {
				return writeJSON(plan)
			}
			if !readOnly {
				return writePlain("Migrations applied successfully (version %d).\n", plan.CurrentVersion)
			}
			return writeMigrationPlan(plan)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	cmd.Flags().BoolVar(&inspect, "inspect", false, "show migration status")

	return cmd
}

func writeMigrationPlan(plan *store.MigrationStatus) error {
	if err := writePlain("Current version: %d\nAvailable version: %d\n", plan.CurrentVersion, plan.AvailableVersion); err != nil {
		return err
	}
	if len(plan.Pending) == 0 {
		return writePlain("No pending migrations.\n")
	}
	if err := writePlain("Pending migrations: %d\n", len(plan.Pending)); err != nil {
		return err
	}
	for _, m := range plan.Pending {
		if err := writePlain("  %d: %s\n", m.Version, m.Description); err != nil {
			return err
		}
	}
	return nil
}
