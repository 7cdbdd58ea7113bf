package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/caremesh/consentd/internal/access"
	"github.com/caremesh/consentd/internal/audit"
	"github.com/caremesh/consentd/internal/consent"
	"github.com/caremesh/consentd/internal/content"
	"github.com/caremesh/consentd/internal/hashing"
	"github.com/caremesh/consentd/internal/httpapi"
	"github.com/caremesh/consentd/internal/ledger"
	"github.com/caremesh/consentd/internal/sharing"
	"github.com/caremesh/consentd/pkg/config"
	"github.com/caremesh/consentd/pkg/database"
	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/monitoring"
)

const serviceVersion = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.WithField("version", serviceVersion).Info("Starting consent service")

	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.CreateSchema(context.Background()); err != nil {
		log.WithError(err).Fatal("Failed to create database schema")
	}
	log.Info("Database connection established")

	metrics := monitoring.NewMetricsCollector("consent-service")
	gateway := ledger.NewChaincodeGateway(&cfg.Ledger, log, metrics)

	systemSigner := ledger.SigningIdentity{ID: "consentd-system", MSPID: cfg.Ledger.MSPID}
	trail := audit.NewTrail(audit.NewRepository(db.DB, log), gateway, systemSigner, log, metrics)

	consentService := consent.NewService(consent.NewRepository(db.DB, log), gateway, trail, cfg.Ledger.MSPID, log)
	grantStore := sharing.NewStore(sharing.NewRepository(db.DB, log), trail, log)
	engine := access.NewEngine(access.NewOverrideRepository(db.DB, log), consentService, grantStore, trail, metrics, log)
	registry := content.NewRegistry(content.NewRepository(db.DB, log), hashing.New(), gateway, trail, cfg.Ledger.MSPID, log)

	health := monitoring.NewHealthManager("consent-service", serviceVersion)
	health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db.DB))
	health.RegisterChecker("ledger", monitoring.NewCustomHealthChecker(gateway.HealthCheck))

	router := mux.NewRouter()
	router.Handle(cfg.Monitoring.MetricsPath, metrics.Handler()).Methods("GET")
	router.HandleFunc(cfg.Monitoring.HealthPath, health.HTTPHandler()).Methods("GET")

	validator := httpapi.NewTokenValidator(cfg.JWT.SecretKey)
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(metrics.HTTPMiddleware)
	api.Use(httpapi.AuthMiddleware(validator, log))

	consent.NewHandlers(consentService, log).RegisterRoutes(api)
	sharing.NewHandlers(grantStore, log).RegisterRoutes(api)
	access.NewHandlers(engine, log).RegisterRoutes(api)
	content.NewHandlers(registry, log).RegisterRoutes(api)
	audit.NewHandlers(trail, log).RegisterRoutes(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down consent service")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}

	log.Info("Consent service stopped")
}
