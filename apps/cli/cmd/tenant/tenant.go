// Package tenantcmd provides tenant registry administration: provisioning,
// listing, activation and credential rotation.
package tenantcmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/channelpulse/channelpulse-saas/domains/tenants/be/repo"
	"github.com/channelpulse/channelpulse-saas/domains/tenants/be/service"
	"github.com/channelpulse/channelpulse-saas/platform/go/persistence"
	"github.com/channelpulse/channelpulse-saas/platform/go/vault"
)

// Command groups tenant-related helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant utilities (create/list/activate/rotate)",
	}

	cmd.AddCommand(createCommand())
	cmd.AddCommand(listCommand())
	cmd.AddCommand(setActiveCommand("activate", true))
	cmd.AddCommand(setActiveCommand("deactivate", false))
	cmd.AddCommand(rotateCommand())
	return cmd
}

func newService(ctx context.Context, databaseURL, vaultKey string) (*service.Service, func(), error) {
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("init pool: %w", err)
	}

	store, err := persistence.NewTenantRegistryStore(pool)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, nil, fmt.Errorf("init tenant registry store: %w", err)
	}

	v, err := vault.NewFromHex(vaultKey)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, nil, fmt.Errorf("init credential vault: %w", err)
	}

	// The CLI holds no handle cache, so there is nothing to evict.
	svc := service.New(repo.NewPostgresRepository(store), v, repo.PoolProvisioner{}, nil)
	return svc, func() { persistence.ClosePool(pool) }, nil
}

func createCommand() *cobra.Command {
	var (
		databaseURL string
		vaultKey    string
		subdomain   string
		displayName string
		tenantDSN   string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Provision a tenant: schema in its data store, sealed credentials, registry row",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			svc, closeFn, err := newService(ctx, databaseURL, vaultKey)
			if err != nil {
				return err
			}
			defer closeFn()

			var name *string
			if displayName != "" {
				name = &displayName
			}

			t, err := svc.Create(ctx, service.CreateInput{
				Subdomain:   subdomain,
				DisplayName: name,
				DSN:         tenantDSN,
			})
			if err != nil {
				return fmt.Errorf("create tenant: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s created (id %s, schema %s).\n", t.Subdomain, t.ID, t.SchemaName)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string for the platform registry")
	c.Flags().StringVar(&vaultKey, "vault-key", "", "Hex-encoded 32-byte credential vault key")
	c.Flags().StringVar(&subdomain, "subdomain", "", "Tenant subdomain label")
	c.Flags().StringVar(&displayName, "display-name", "", "Tenant display name (optional)")
	c.Flags().StringVar(&tenantDSN, "tenant-dsn", "", "Connection string for the tenant's own data store")

	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("vault-key")
	_ = c.MarkFlagRequired("subdomain")
	_ = c.MarkFlagRequired("tenant-dsn")

	return c
}

func listCommand() *cobra.Command {
	var (
		databaseURL string
		vaultKey    string
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			svc, closeFn, err := newService(ctx, databaseURL, vaultKey)
			if err != nil {
				return err
			}
			defer closeFn()

			tenants, err := svc.List(ctx)
			if err != nil {
				return fmt.Errorf("list tenants: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSUBDOMAIN\tSCHEMA\tACTIVE\tCREATED")
			for _, t := range tenants {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
					t.ID, t.Subdomain, t.SchemaName, t.IsActive, t.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string for the platform registry")
	c.Flags().StringVar(&vaultKey, "vault-key", "", "Hex-encoded 32-byte credential vault key")
	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("vault-key")

	return c
}

func setActiveCommand(use string, active bool) *cobra.Command {
	var (
		databaseURL string
		vaultKey    string
		tenantID    string
	)

	short := "Deactivate a tenant (routing refused, data retained)"
	if active {
		short = "Reactivate a tenant"
	}

	c := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}

			svc, closeFn, err := newService(ctx, databaseURL, vaultKey)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := svc.SetActive(ctx, id, active); err != nil {
				return fmt.Errorf("%s tenant: %w", use, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s %sd.\n", id, use)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string for the platform registry")
	c.Flags().StringVar(&vaultKey, "vault-key", "", "Hex-encoded 32-byte credential vault key")
	c.Flags().StringVar(&tenantID, "tenant-id", "", "Tenant UUID")
	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("vault-key")
	_ = c.MarkFlagRequired("tenant-id")

	return c
}

func rotateCommand() *cobra.Command {
	var (
		databaseURL string
		vaultKey    string
		tenantID    string
		tenantDSN   string
	)

	c := &cobra.Command{
		Use:   "rotate-credentials",
		Short: "Seal and store a new data-store DSN for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}

			svc, closeFn, err := newService(ctx, databaseURL, vaultKey)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := svc.RotateCredentials(ctx, id, tenantDSN); err != nil {
				return fmt.Errorf("rotate credentials: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Credentials rotated for tenant %s.\n", id)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string for the platform registry")
	c.Flags().StringVar(&vaultKey, "vault-key", "", "Hex-encoded 32-byte credential vault key")
	c.Flags().StringVar(&tenantID, "tenant-id", "", "Tenant UUID")
	c.Flags().StringVar(&tenantDSN, "tenant-dsn", "", "New connection string for the tenant's data store")
	_ = c.MarkFlagRequired("database-url")
	_ = c.MarkFlagRequired("vault-key")
	_ = c.MarkFlagRequired("tenant-id")
	_ = c.MarkFlagRequired("tenant-dsn")

	return c
}
