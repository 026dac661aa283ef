// Package main is the entrypoint for the collabd server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Mihendy/pp-2025/internal/blob"
	"github.com/Mihendy/pp-2025/internal/cache"
	"github.com/Mihendy/pp-2025/internal/config"
	"github.com/Mihendy/pp-2025/internal/server"
	"github.com/Mihendy/pp-2025/internal/store"

	// Register cache, store and blob drivers.
	_ "github.com/Mihendy/pp-2025/internal/cache/memory"
	_ "github.com/Mihendy/pp-2025/internal/store/memory"
	_ "github.com/Mihendy/pp-2025/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: prod or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	externalOrigin := flag.String("external-origin", "", "External origin (overrides config)")
	dataDir := flag.String("data-dir", "", "Data directory (overrides config)")
	jwtSecret := flag.String("jwt-secret", "", "Token signing secret (overrides config)")
	emailDomain := flag.String("email-domain", "", "Allowed registration email domain (overrides config)")
	storeDriver := flag.String("store-driver", "", "Store driver: sqlite or memory (overrides config)")
	blobDriver := flag.String("blob-driver", "", "Blob driver: fs or s3 (overrides config)")
	tlsMode := flag.String("tls-mode", "", "TLS mode: off, static, selfsigned, or acme (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:     listenAddr,
			ExternalOrigin: externalOrigin,
			DataDir:        dataDir,
			JWTSecret:      jwtSecret,
			EmailDomain:    emailDomain,
			StoreDriver:    storeDriver,
			BlobDriver:     blobDriver,
			TLSMode:        tlsMode,
			LoggingLevel:   loggingLevel,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Log effective config with secrets redacted
	logger.Info("effective configuration", "config", cfg.Redacted())

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		logger.Error("failed to create data directory", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.DataDir,
	})
	if err != nil {
		logger.Error("failed to create store", "error", err, "available", store.AvailableDrivers())
		os.Exit(1)
	}
	if err := driver.Init(ctx); err != nil {
		logger.Error("failed to initialize store", "error", err, "driver", driver.Name())
		os.Exit(1)
	}
	defer driver.Close()

	blobOpts := cfg.Blob.Drivers[cfg.Blob.Driver]
	if cfg.Blob.Driver == "fs" && blobOpts["root"] == nil {
		if blobOpts == nil {
			blobOpts = map[string]any{}
		}
		blobOpts["root"] = filepath.Join(cfg.DataDir, "blobs")
	}
	blobs, err := blob.New(cfg.Blob.Driver, blobOpts)
	if err != nil {
		logger.Error("failed to create blob store", "error", err, "driver", cfg.Blob.Driver)
		os.Exit(1)
	}
	defer blobs.Close()

	cacheInstance, err := cache.New("memory", nil)
	if err != nil {
		logger.Error("failed to create cache", "error", err)
		os.Exit(1)
	}
	defer cacheInstance.Close()

	srv, err := server.New(cfg, logger, &server.Deps{
		Store: driver,
		Blobs: blobs,
		Cache: cacheInstance,
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	logger.Info("server started, press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
