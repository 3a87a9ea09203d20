// Package vendorconfigcmd manages vendor detection/mapping configs: loading
// validated rule payloads as new versions and inspecting what a tenant sees.
package vendorconfigcmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	vendorconfigsrepo "github.com/channelpulse/channelpulse-saas/domains/vendor-configs/be/repo"
	"github.com/channelpulse/channelpulse-saas/domains/vendor-configs/be/service"
	"github.com/channelpulse/channelpulse-saas/platform/go/persistence"
)

// Command groups vendor config helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendor-config",
		Short: "Vendor config utilities (upsert/list)",
	}

	cmd.AddCommand(upsertCommand())
	cmd.AddCommand(listCommand())
	return cmd
}

func newService(ctx context.Context, databaseURL string) (*service.Service, func(), error) {
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("init pool: %w", err)
	}

	store, err := persistence.NewVendorConfigStore(pool)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, nil, fmt.Errorf("init vendor config store: %w", err)
	}

	return service.New(vendorconfigsrepo.New(store)), func() { persistence.ClosePool(pool) }, nil
}

func upsertCommand() *cobra.Command {
	var (
		databaseURL string
		vendorKey   string
		scope       string
		tenantID    string
		rulesFile   string
		activate    bool
	)

	c := &cobra.Command{
		Use:   "upsert",
		Short: "Validate a rules payload and register it as the next config version",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			raw, err := os.ReadFile(rulesFile)
			if err != nil {
				return fmt.Errorf("read rules file: %w", err)
			}

			var tid *uuid.UUID
			if tenantID != "" {
				parsed, err := uuid.Parse(tenantID)
				if err != nil {
					return fmt.Errorf("invalid tenant id: %w", err)
				}
				tid = &parsed
			}

			svc, closeFn, err := newService(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer closeFn()

			cfg, err := svc.Upsert(ctx, service.UpsertInput{
				VendorKey: vendorKey,
				Scope:     scope,
				TenantID:  tid,
				Rules:     raw,
				Activate:  activate,
			})
			if err != nil {
				return fmt.Errorf("upsert vendor config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Config %s v%d registered for %s (%s scope, active=%t, hash %s).\n",
				cfg.ID, cfg.Version, cfg.VendorKey, cfg.Scope, cfg.IsActive, cfg.RulesHash[:12])
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string for the platform registry")
	c.Flags().StringVar(&vendorKey, "vendor-key", "", "Vendor key slug")
	c.Flags().StringVar(&scope, "scope", persistence.ScopeSystem, "Config scope: system or tenant")
	c.Flags().StringVar(&tenantID, "tenant-id", "", "Tenant UUID (required for tenant scope)")
	c.Flags().StringVar(&rulesFile, "rules-file", "", "Path to the JSON rules payload")
	c.Flags().BoolVar(&activate, "activate", true, "Activate this version, deactivating prior ones")

	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("vendor-key")
	_ = c.MarkFlagRequired("rules-file")

	return c
}

func listCommand() *cobra.Command {
	var (
		databaseURL string
		tenantID    string
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List the configs visible to a tenant (own configs plus unshadowed system defaults)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}

			svc, closeFn, err := newService(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer closeFn()

			configs, err := svc.ListVisible(ctx, id)
			if err != nil {
				return fmt.Errorf("list vendor configs: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VENDOR\tSCOPE\tVERSION\tHASH\tUPDATED")
			for _, cfg := range configs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					cfg.VendorKey, cfg.Scope, cfg.Version, cfg.RulesHash[:12], cfg.UpdatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string for the platform registry")
	c.Flags().StringVar(&tenantID, "tenant-id", "", "Tenant UUID")
	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("tenant-id")

	return c
}
