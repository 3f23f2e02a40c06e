// Package main provides the bailo-server binary: the approval workflow API
// and the embedded registry token endpoint in one HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/onecrazygenius/bailo/pkg/approval"
	"github.com/onecrazygenius/bailo/pkg/config"
	"github.com/onecrazygenius/bailo/pkg/entity"
	"github.com/onecrazygenius/bailo/pkg/identity"
	"github.com/onecrazygenius/bailo/pkg/notify"
	"github.com/onecrazygenius/bailo/pkg/registryauth"
)

var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "bailo-server",
		Short:   "Bailo model-governance approval and registry-auth server",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
		SilenceUsage: true,
	}
	rootCmd.Flags().StringVar(&configPath, "config", "bailo.yaml", "Path to the server configuration file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}

	store := approval.NewStore(db)
	if err := store.AutoMigrate(); err != nil {
		return err
	}
	auditStore := approval.NewAuditStore(db)
	if err := auditStore.AutoMigrate(); err != nil {
		return err
	}

	dir, err := entity.LoadStaticDirectory(cfg.Directory.Path, logger)
	if err != nil {
		return err
	}
	resolver := entity.NewResolver(dir)

	var notifier notify.Notifier
	if cfg.SMTP.Host != "" {
		notifier = notify.NewSMTPNotifier(cfg.SMTP)
	} else {
		logger.Warn("no SMTP host configured, notifications are logged only")
		notifier = &notify.LogNotifier{Logger: logger}
	}

	svc := approval.NewService(store, auditStore, resolver, notifier, cfg.App.BaseURL(), logger)

	keys, err := registryauth.LoadSigningKeys(cfg.Registry.KeyPath, cfg.Registry.CertPath)
	if err != nil {
		return err
	}
	logger.Info("registry signing key loaded", "kid", keys.KeyID())
	logger.Info("admin token", "token", keys.AdminToken())

	issuer := registryauth.NewIssuer(keys, cfg.Registry.Service, cfg.Registry.Issuer)
	tokenHandler := registryauth.NewHandler(issuer, registryauth.NewBasicAuthenticator(dir), cfg.Registry.Service, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Remote-User"},
	}))
	r.Use(identity.Middleware())

	r.Mount("/api/v1", approval.NewRouter(svc, auditStore))
	r.Get("/auth", tokenHandler.ServeHTTP)
	r.Get("/v2/token", tokenHandler.ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := dir.Watch(ctx); err != nil {
			logger.Error("directory watch stopped", "error", err)
		}
	}()

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Listen)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// openDatabase opens the configured database driver.
func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	switch cfg.Driver {
	case "", "sqlite":
		return gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	case "mysql":
		return gorm.Open(mysql.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
