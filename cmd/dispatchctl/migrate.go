package main

import (
	"fmt"
	"io"
	"os"

	"emergency-dispatch-be/internal/model"
	"emergency-dispatch-be/pkg/database"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the dispatch tables",
		Long:  "Runs AutoMigrate for responders, sessions and assignments. Safe to run multiple times.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				dsn = os.Getenv("DB_CONNECTION_STRING")
			}
			return runMigrate(cmd.OutOrStdout(), dsn)
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "postgres connection string (defaults to DB_CONNECTION_STRING)")
	return cmd
}

func runMigrate(out io.Writer, dsn string) error {
	if dsn == "" {
		return fmt.Errorf("migrate: no connection string")
	}
	db, err := database.NewGormDBFromDSN(dsn, false)
	if err != nil {
		return fmt.Errorf("migrate: connect: %w", err)
	}
	models := model.All()
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(models))
	return nil
}
