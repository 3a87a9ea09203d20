package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	ingestionhandler "github.com/channelpulse/channelpulse-saas/domains/ingestion/be/handler"
	ingestionrepo "github.com/channelpulse/channelpulse-saas/domains/ingestion/be/repo"
	ingestionservice "github.com/channelpulse/channelpulse-saas/domains/ingestion/be/service"
	tenantshandler "github.com/channelpulse/channelpulse-saas/domains/tenants/be/handler"
	tenantsrepo "github.com/channelpulse/channelpulse-saas/domains/tenants/be/repo"
	tenantsservice "github.com/channelpulse/channelpulse-saas/domains/tenants/be/service"
	vendorconfigshandler "github.com/channelpulse/channelpulse-saas/domains/vendor-configs/be/handler"
	vendorconfigsrepo "github.com/channelpulse/channelpulse-saas/domains/vendor-configs/be/repo"
	vendorconfigsservice "github.com/channelpulse/channelpulse-saas/domains/vendor-configs/be/service"
	platformlogging "github.com/channelpulse/channelpulse-saas/platform/go/logging"
	platformmiddleware "github.com/channelpulse/channelpulse-saas/platform/go/middleware"
	"github.com/channelpulse/channelpulse-saas/platform/go/persistence"
	"github.com/channelpulse/channelpulse-saas/platform/go/storage"
	"github.com/channelpulse/channelpulse-saas/platform/go/tenant"
	tenantmiddleware "github.com/channelpulse/channelpulse-saas/platform/go/tenant/middleware"
	"github.com/channelpulse/channelpulse-saas/platform/go/vault"
)

type config struct {
	Port              string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL       string        `env:"DATABASE_URL,required"`
	EnvKey            string        `env:"ENV_KEY" envDefault:"dev"`
	VaultKey          string        `env:"VAULT_KEY,required"` // hex-encoded 32-byte key
	DefaultTenantSlug string        `env:"DEFAULT_TENANT_SLUG" envDefault:"demo"`
	UploadStagingDir  string        `env:"UPLOAD_STAGING_DIR" envDefault:"./.data/uploads"`
	InsertTimeout     time.Duration `env:"INSERT_TIMEOUT" envDefault:"30s"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	logger = logger.With(zap.String("env", cfg.EnvKey))

	credentialVault, err := vault.NewFromHex(cfg.VaultKey)
	if err != nil {
		logger.Fatal("init credential vault", zap.Error(err))
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	registryStore, err := persistence.NewTenantRegistryStore(pool)
	if err != nil {
		logger.Fatal("init tenant registry store", zap.Error(err))
	}
	configStore, err := persistence.NewVendorConfigStore(pool)
	if err != nil {
		logger.Fatal("init vendor config store", zap.Error(err))
	}
	ledgerStore, err := persistence.NewLedgerStore(pool)
	if err != nil {
		logger.Fatal("init upload ledger store", zap.Error(err))
	}
	connector, err := persistence.NewConnector(credentialVault)
	if err != nil {
		logger.Fatal("init tenant connector", zap.Error(err))
	}
	defer connector.Close()

	archive, err := storage.NewLocalArchive(cfg.UploadStagingDir)
	if err != nil {
		logger.Fatal("init upload archive", zap.Error(err))
	}

	tenantRepo := tenantsrepo.NewPostgresRepository(registryStore)
	tenantService := tenantsservice.New(tenantRepo, credentialVault, tenantsrepo.PoolProvisioner{}, connector)
	tenantHTTPHandler := tenantshandler.New(tenantService, logger)

	resolver, err := tenant.NewResolver(tenantRepo, cfg.DefaultTenantSlug)
	if err != nil {
		logger.Fatal("init tenant resolver", zap.Error(err))
	}

	configService := vendorconfigsservice.New(vendorconfigsrepo.New(configStore))
	configHTTPHandler := vendorconfigshandler.New(configService, logger)

	ingestionService := ingestionservice.New(
		ledgerStore,
		configStore,
		ingestionrepo.NewSalesWriter(connector, persistence.NewSalesStore()),
		archive,
		cfg.InsertTimeout,
		logger,
	)
	ingestionHTTPHandler := ingestionhandler.New(ingestionService, logger)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	rootRouter.Route("/api/v1", func(api chi.Router) {
		// Admin routes are platform-level and sit outside tenant routing.
		api.Route("/admin", func(admin chi.Router) {
			admin.Route("/tenants", tenantHTTPHandler.Routes)
			admin.Route("/vendor-configs", configHTTPHandler.AdminRoutes)
		})

		api.Group(func(r chi.Router) {
			r.Use(tenantmiddleware.WithTenant(resolver, tenantmiddleware.Config{CacheTTL: time.Minute}))
			r.Use(platformmiddleware.RequestTrace)

			r.Route("/vendor-configs", configHTTPHandler.Routes)
			ingestionHTTPHandler.Routes(r)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
