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

	"github.com/prometheus/client_golang/prometheus"

	"zigbee-descriptors/internal/binder"
	"zigbee-descriptors/internal/devicedb"
	"zigbee-descriptors/internal/store"
	"zigbee-descriptors/internal/web"
	"zigbee-descriptors/internal/zcl"
	"zigbee-descriptors/internal/zcl/clusters"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "check" {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		if err := runCheck(os.Args[2:], os.Stdout, logger); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	if err := run(cfgPath); err != nil {
		slog.Error("zigbee-descriptors", "err", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("zigbee-descriptors starting", "version", version, "config", cfgPath)

	registry := zcl.NewRegistry(logger)
	clusters.RegisterStandard(registry)

	deviceDB, err := loadDefinitions(cfg, registry, logger)
	if err != nil {
		return fmt.Errorf("load device definitions: %w", err)
	}
	logger.Info("definitions loaded", "clusters", len(registry.All()), "devices", deviceDB.Len())

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	metrics := binder.NewMetrics()
	b := binder.New(deviceDB, db, binder.NewEventBus(logger), metrics, logger)

	webServer := web.NewServer(b, deviceDB, registry, logger,
		web.WithMetrics(newMetricsRegistry(metrics)),
		web.WithVersion(version),
		web.WithAPIKey(cfg.Web.APIKey),
		web.WithAllowedOrigins(cfg.Web.AllowedOrigins),
	)
	defer webServer.Stop()

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// No-op when built with the no_mqtt tag.
	mqtt := initMQTT(b, cfg, logger)
	defer mqtt.Stop()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	logger.Info("goodbye")
	return nil
}

func newMetricsRegistry(metrics *binder.Metrics) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.Collectors()...)
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "zigbee_descriptors_build_info",
		Help:        "Build information",
		ConstLabels: prometheus.Labels{"version": version},
	}, func() float64 { return 1 }))
	return reg
}

// loadDefinitions builds the device database from the embedded definitions
// and the configured directory. Definitions in the directory replace
// built-in ones with the same model.
func loadDefinitions(cfg *Config, registry *zcl.Registry, logger *slog.Logger) (*devicedb.DB, error) {
	db := devicedb.New(registry, logger)
	if cfg.builtinDefinitions() {
		if err := db.LoadBuiltin(); err != nil {
			return nil, fmt.Errorf("builtin: %w", err)
		}
	}
	if cfg.DefinitionsDir != "" {
		if err := db.LoadDir(cfg.DefinitionsDir); err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.DefinitionsDir, err)
		}
	}
	return db, nil
}
