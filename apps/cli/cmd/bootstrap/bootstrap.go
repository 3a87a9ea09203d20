// Package bootstrap initializes the platform schema: tenant registry, vendor
// configs and the upload ledger.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/channelpulse/channelpulse-saas/platform/go/persistence"
)

// Command groups bootstrap helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap platform resources",
	}

	cmd.AddCommand(platformCommand())
	return cmd
}

func platformCommand() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "platform",
		Short: "Create the platform schema and apply registry/ledger DDL",
		Long:  "Creates the platform schema if missing and applies the tenants, vendor_configs and upload ledger DDL. Idempotent.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			if err := persistence.BootstrapPlatformSchema(ctx, pool); err != nil {
				return fmt.Errorf("bootstrap platform schema: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Platform schema ready.")
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string")
	_ = c.MarkFlagRequired("database-url")

	return c
}
