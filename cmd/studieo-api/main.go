package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/studieo-app/studieo-api/internal/api"
	"github.com/studieo-app/studieo-api/internal/application"
	"github.com/studieo-app/studieo-api/internal/config"
	"github.com/studieo-app/studieo-api/internal/identity"
	"github.com/studieo-app/studieo-api/internal/janitor"
	"github.com/studieo-app/studieo-api/internal/mailtmpl"
	"github.com/studieo-app/studieo-api/internal/notify"
	"github.com/studieo-app/studieo-api/internal/objectstore"
	"github.com/studieo-app/studieo-api/internal/storage"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load .env if present; real environments set variables directly
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded environment from .env")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting studieo-api",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Run database migrations
	slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
	if err := storage.MigrateFromDSN(initCtx, cfg.Database.DSN, cfg.Database.MigrationsDir); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize database repository
	repo, err := storage.NewPostgresRepository(initCtx, storage.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: int32(cfg.Database.MaxOpenConns),
		MaxIdleConns: int32(cfg.Database.MaxIdleConns),
	})
	if err != nil {
		slog.Error("failed to create database repository", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected successfully")

	// Initialize object storage and identity provider
	store := objectstore.NewSupabaseStore(objectstore.SupabaseConfig{
		URL:        cfg.Supabase.URL,
		ServiceKey: cfg.Supabase.ServiceKey,
		Bucket:     cfg.Supabase.Bucket,
	})

	provider := identity.NewSupabaseProvider(identity.SupabaseAuthConfig{
		URL:     cfg.Supabase.URL,
		AnonKey: cfg.Supabase.AnonKey,
	}, repo)

	// Initialize notification dispatcher
	dispatcher, err := notify.NewRedisDispatcher(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		slog.Error("failed to create notification dispatcher", "error", err)
		os.Exit(1)
	}
	slog.Info("redis connected successfully")

	// Load mail templates
	templateLoader := mailtmpl.NewLoader()
	if err := templateLoader.LoadFromDir(cfg.Mail.TemplatesDir); err != nil {
		slog.Warn("failed to load mail templates from dir", "dir", cfg.Mail.TemplatesDir, "error", err)
	}

	// Initialize lifecycle manager
	guard := application.NewGuard(repo, application.Limits{
		MaxActiveProjects:     cfg.Limits.MaxActiveProjects,
		MaxActiveApplications: cfg.Limits.MaxActiveApplications,
	})
	manager := application.NewManager(repo, store, dispatcher, guard)

	// Initialize background workers
	worker := notify.NewWorker(dispatcher, templateLoader, cfg.Mail.WebhookURL, cfg.Mail.Timeout)
	cleaner := janitor.NewJanitor(repo, store, cfg.Janitor.Interval)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start background workers
	worker.Start(ctx)
	cleaner.Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, manager, repo, dispatcher, provider)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Close connections
	if err := dispatcher.Close(); err != nil {
		slog.Error("dispatcher close error", "error", err)
	}
	repo.Close()

	slog.Info("studieo-api stopped")
}
