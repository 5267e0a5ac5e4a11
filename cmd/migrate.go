package cmd

import (
	"github.com/spf13/cobra"
)

// newMigrateCmd applies the embedded PostgreSQL schema.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			if err := migrateSchema(cmd.Context(), cfg); err != nil {
				return err
			}
			cmd.Println("schema applied")
			return nil
		},
	}
}
