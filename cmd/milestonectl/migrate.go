package main

import (
	"fmt"

	"github.com/spf13/cobra"

	dbcontracts "milestone-service/contracts/db"
	"milestone-service/pkg/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema (idempotent)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		deps, err := openDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := requirePostgres(deps); err != nil {
			return err
		}
		if err := db.Migrate(cmd.Context(), deps.Pool, dbcontracts.Schema, deps.Logger); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
