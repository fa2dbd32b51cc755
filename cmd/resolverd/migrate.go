package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticedb/resolver/internal/driver"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or verify the physical schema and exit",
	Long: `Loads schema.toml from --config-dir, lowers it to the physical model,
and issues CREATE TABLE / foreign-key DDL against the configured driver.
Safe to run repeatedly: table creation is idempotent (CREATE TABLE IF NOT
EXISTS) and verification is read-only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		l, err := prepare(configDir)
		if err != nil {
			return err
		}
		if err := l.settings.Validate(); err != nil {
			return err
		}

		d, err := driver.Open(ctx, l.settings.DriverName, l.settings.DSN, driver.Options{
			MaxOpenConns: l.settings.MaxOpenConns,
		})
		if err != nil {
			return fmt.Errorf("opening driver %s: %w", l.settings.DriverName, err)
		}
		defer func() { _ = d.Destroy(context.Background()) }()

		if err := migrateSchema(ctx, d, l.model); err != nil {
			return err
		}

		fmt.Printf("migrated %d physical tables\n", len(l.model))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
