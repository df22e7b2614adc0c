// CloudVault storage proxy server.
//
// The proxy is the only party holding object store credentials. It brokers
// storage actions for browser clients, enforces tenant boundaries, and
// side-writes the metadata registry and audit log in PostgreSQL.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/cloudvault/cloudvault/internal/config"
	"github.com/cloudvault/cloudvault/internal/identity"
	"github.com/cloudvault/cloudvault/internal/logging"
	"github.com/cloudvault/cloudvault/internal/metadata/postgres"
	"github.com/cloudvault/cloudvault/internal/metrics"
	"github.com/cloudvault/cloudvault/internal/objectstore"
	"github.com/cloudvault/cloudvault/internal/proxy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.InitDefault()
		logging.Fatal("configuration error", zap.Error(err))
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		os.Exit(1)
	}
	defer logging.Sync()
	logging.Info("cloudvault server starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logging.Info("connecting to postgres")
	meta, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		logging.Fatal("database connection failed", zap.Error(err))
	}
	defer meta.Close()

	if dir := findMigrationsDir(); dir != "" {
		logging.Info("running migrations", zap.String("dir", dir))
		if err := meta.Migrate(dir); err != nil {
			logging.Fatal("migration failed", zap.Error(err))
		}
	}

	logging.Info("connecting to object store", zap.String("endpoint", cfg.S3Endpoint))
	store, err := objectstore.New(ctx, objectstore.Config{
		Endpoint:        cfg.S3Endpoint,
		Bucket:          cfg.S3Bucket,
		AccessKey:       cfg.S3AccessKey,
		SecretKey:       cfg.S3SecretKey,
		Region:          cfg.S3Region,
		UseSSL:          cfg.S3UseSSL,
		RootPrefix:      cfg.RootPrefix,
		DeleteMissingOK: cfg.DeleteMissingOK,
	})
	if err != nil {
		logging.Fatal("object store init failed", zap.Error(err))
	}

	auth := identity.New(meta, cfg.JWTSecret)
	if err := auth.EnsureDefaultAdmin(ctx); err != nil {
		logging.Error("failed to ensure default admin", zap.Error(err))
	}

	srv := proxy.NewServer(store, meta, auth, cfg.MaxUploadSize)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}

	go func() {
		logging.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down")
		cancel()
		metricsServer.Close()
		httpServer.Close()
	}()

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
}

func findMigrationsDir() string {
	candidates := []string{
		"migrations",
		"../migrations",
	}
	exe, _ := os.Executable()
	if exe != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "migrations"))
	}
	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}
