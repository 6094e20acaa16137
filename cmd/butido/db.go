package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/butido/butido/internal/dbstore"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema idempotently",
	Args:  cobra.NoArgs,
	RunE:  runDBMigrate,
}

func init() {
	dbCmd.AddCommand(dbMigrateCmd)
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := dbstore.Open(cfg.Database.DSN())
	if err != nil {
		return xerrors.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		return xerrors.Errorf("migrating database: %w", err)
	}
	fmt.Println("schema applied")
	return nil
}
