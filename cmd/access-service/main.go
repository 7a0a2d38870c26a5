package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ehealthwave/platform/pkg/access"
	"github.com/ehealthwave/platform/pkg/auth"
	"github.com/ehealthwave/platform/pkg/common/config"
	"github.com/ehealthwave/platform/pkg/common/database"
	"github.com/ehealthwave/platform/pkg/common/kafka"
	"github.com/ehealthwave/platform/pkg/common/logger"
	"github.com/ehealthwave/platform/pkg/ledger"
	"github.com/ehealthwave/platform/pkg/middleware"
	"github.com/ehealthwave/platform/pkg/notify"
	"github.com/ehealthwave/platform/pkg/observability/metrics"
	"github.com/ehealthwave/platform/pkg/records"
	"github.com/gorilla/mux"
)

func main() {
	logger.Init()
	cfg := config.Load()

	var ledgerStore ledger.Store
	var grantStore access.Store
	if cfg.PostgresHost != "" {
		db, err := database.GetPostgres()
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to connect to postgres")
		}

		ledgerRepo := ledger.NewRepository(db)
		if err := ledgerRepo.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("failed to migrate audit ledger tables")
		}
		grantRepo := access.NewRepository(db)
		if err := grantRepo.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("failed to migrate access grant tables")
		}
		ledgerStore = ledgerRepo
		grantStore = grantRepo
	} else {
		logger.Log.Warn("POSTGRES_HOST not set, using in-memory stores")
		ledgerStore = ledger.NewMemoryStore()
		grantStore = access.NewMemoryStore()
	}

	auditLedger, err := ledger.New(ledgerStore)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to open audit ledger")
	}

	var limiter access.AttemptLimiter = access.NoopLimiter{}
	if cfg.RedisHost != "" {
		limiter = access.NewRedisLimiter(database.GetRedis(), cfg.MaxPinAttempts, cfg.PinAttemptWindow)
	}

	var sender notify.Sender = notify.NoopSender{}
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.NotificationTopic)
		defer producer.Close()
		sender = notify.NewKafkaSender(producer)
	}

	catalog := notify.DefaultCatalog()
	if cfg.NotificationTemplates != "" {
		loaded, err := notify.LoadCatalog(cfg.NotificationTemplates)
		if err != nil {
			logger.Log.WithError(err).Warn("failed to load notification templates, using defaults")
		} else {
			catalog = loaded
		}
	}

	svc := access.NewService(grantStore, auditLedger, records.NewDemoStore(), sender, limiter).
		WithTemplates(catalog).
		WithDefaultContacts(cfg.EmergencyContacts)

	jwtManager, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid JWT configuration")
	}

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging, middleware.CORS)
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	access.NewHTTPHandler(svc, cfg.PinValidity, cfg.TokenValidity).Register(api)
	ledger.NewHTTPHandler(auditLedger).Register(api)

	if cfg.OIDCIssuer != "" {
		oidc, err := auth.NewOIDCAuthenticator(cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret, "")
		if err != nil {
			logger.Log.WithError(err).Fatal("invalid OIDC configuration")
		}
		auth.NewHTTPHandler(oidc, jwtManager).Register(api)
	}

	// Provider-side routes carry a bearer token; the redeemer identity
	// comes from the validated claims.
	provider := router.PathPrefix("/api/v1/provider").Subrouter()
	provider.Use(middleware.Authenticate(jwtManager))
	access.NewHTTPHandler(svc, cfg.PinValidity, cfg.TokenValidity).Register(provider)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Access Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Access Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Access Service stopped")
}
