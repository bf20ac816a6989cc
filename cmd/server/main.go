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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/lakeward/datasetstore/pkg/datasetstore/api"
	"github.com/lakeward/datasetstore/pkg/datasetstore/config"
)

type Config struct {
	Port            string `env:"PORT" env-default:"8080"`
	Environment     string `env:"ENVIRONMENT" env-default:"development"`
	BaseDir         string `env:"BASE_DIR" env-default:"./data"`
	CatalogType     string `env:"CATALOG_TYPE" env-default:"sqlite"`
	DatabaseURL     string `env:"DATABASE_URL" env-default:""`
	EncryptionKey   string `env:"ENCRYPTION_KEY" env-default:""`
	ArchiveInterval string `env:"ARCHIVE_INTERVAL" env-default:""`
}

func main() {
	var envCfg Config
	if err := cleanenv.ReadEnv(&envCfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.Default()

	// A configured archive interval moves archival out of the store path
	// and onto a background ticker.
	var archiveEvery time.Duration
	if envCfg.ArchiveInterval != "" {
		d, err := time.ParseDuration(envCfg.ArchiveInterval)
		if err != nil {
			slog.Error("Invalid ARCHIVE_INTERVAL", "value", envCfg.ArchiveInterval, "err", err)
			os.Exit(1)
		}
		archiveEvery = d
	}

	cfg, err := config.Load(func(c *config.ServerConfig) error {
		c.Port = envCfg.Port
		c.Environment = envCfg.Environment
		c.BaseDir = envCfg.BaseDir
		c.CatalogType = envCfg.CatalogType
		c.DatabaseURL = envCfg.DatabaseURL
		c.EncryptionKey = envCfg.EncryptionKey
		c.InlineArchival = archiveEvery <= 0
		return nil
	})
	if err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	svc, err := cfg.BuildService(logger)
	if err != nil {
		slog.Error("Failed to build service", "err", err)
		os.Exit(1)
	}

	handler := api.NewDatasetHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Mount("/api/v1/datasets", handler.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
	}

	stop := make(chan struct{})
	if archiveEvery > 0 {
		go func() {
			ticker := time.NewTicker(archiveEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := svc.ArchiveAged(context.Background()); err != nil {
						logger.Warn("archival scan failed", "err", err)
					}
				case <-stop:
					return
				}
			}
		}()
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	close(stop)
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
		os.Exit(1)
	}
	logger.Info("Server exiting")
}
