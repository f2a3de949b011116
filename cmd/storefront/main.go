// Command storefront serves the jewelry storefront API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/maisonlune/storefront/internal/assistant"
	"github.com/maisonlune/storefront/internal/cart"
	"github.com/maisonlune/storefront/internal/catalog"
	"github.com/maisonlune/storefront/internal/demo"
	"github.com/maisonlune/storefront/internal/infra/config"
	"github.com/maisonlune/storefront/internal/infra/persistence"
	httpserver "github.com/maisonlune/storefront/internal/infra/server/http"
	"github.com/maisonlune/storefront/internal/infra/telemetry"
	"github.com/maisonlune/storefront/internal/observability"
)

const (
	defaultConfigPath        = "config/app.yaml"
	storefrontLoggerPrefix   = "storefront "
	shutdownTimeout          = 30 * time.Second
	apiServerShutdownTimeout = 5 * time.Second
	lifecycleShutdownTimeout = 10 * time.Second
	sessionsShutdownTimeout  = 5 * time.Second
	storageShutdownTimeout   = 5 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
	apiReadHeaderTimeout     = 5 * time.Second
)

func main() {
	cfgPathFlag, debug := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := newStorefrontLogger()
	observability.SetLogger(observability.NewStdLogger(logger, debug))

	configPath := resolveConfigPath(cfgPathFlag)
	appCfg, loadedFromFile, err := config.LoadOrDefault(ctx, configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if !loadedFromFile {
		logger.Printf("configuration file not found, using defaults")
	}
	logger.Printf("configuration initialised: env=%s, storage=%s, storefront=%t, assistant=%t",
		appCfg.Environment, appCfg.Storage.Driver, appCfg.Storefront.Enabled(), appCfg.Assistant.Enabled())

	telemetryProvider, err := initTelemetry(ctx, logger, appCfg.Environment, appCfg.Telemetry)
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}
	metrics := telemetry.Metrics()

	storage, err := persistence.Open(ctx, appCfg.Storage, logger)
	if err != nil {
		logger.Fatalf("open storage: %v", err)
	}
	logger.Printf("snapshot storage ready: driver=%s", storage.Driver())

	deps, creator, err := buildDependencies(appCfg, metrics)
	if err != nil {
		logger.Fatalf("initialise dependencies: %v", err)
	}
	deps.StorageDriver = string(storage.Driver())
	deps.Sessions = httpserver.NewSessions(appCfg.Cart, storage, creator, metrics)

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() {
		deps.Sessions.Run(ctx)
	})
	apiServer := buildAPIServer(appCfg.APIServer, appCfg.Environment, deps)
	startAPIServer(&lifecycle, logger, apiServer)
	logger.Printf("storefront API listening on %s", apiServer.Addr)

	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownStart := time.Now()
	performGracefulShutdown(shutdownCtx, logger, gracefulShutdownConfig{
		server:     apiServer,
		mainCancel: cancel,
		lifecycle:  &lifecycle,
		sessions:   deps.Sessions,
		storage:    storage,
		telemetry:  telemetryProvider,
	})
	logger.Printf("shutdown completed in %v", time.Since(shutdownStart))
}

func parseFlags() (string, bool) {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to application configuration file (default: %s)", defaultConfigPath))
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()
	return *cfgPath, *debug
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newStorefrontLogger() *log.Logger {
	return log.New(os.Stdout, storefrontLoggerPrefix, log.LstdFlags|log.Lmicroseconds)
}

func initTelemetry(ctx context.Context, logger *log.Logger, env config.Environment, cfg config.TelemetryConfig) (*telemetry.Provider, error) {
	telemetryCfg := telemetry.DefaultConfig()
	if cfg.OTLPEndpoint != "" {
		telemetryCfg.OTLPEndpoint = cfg.OTLPEndpoint
	}
	if cfg.ServiceName != "" {
		telemetryCfg.ServiceName = cfg.ServiceName
	}
	telemetryCfg.Environment = string(env)
	telemetryCfg.OTLPInsecure = cfg.OTLPInsecure
	telemetryCfg.EnableMetrics = cfg.EnableMetrics

	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}
	if provider.Enabled() {
		logger.Printf("telemetry initialized: endpoint=%s, service=%s", telemetryCfg.OTLPEndpoint, telemetryCfg.ServiceName)
	} else {
		logger.Printf("telemetry disabled")
	}
	return provider, nil
}

// buildDependencies constructs the optional remote catalog and assistant.
// The returned creator is nil, not a typed nil, when no remote store is set.
func buildDependencies(appCfg config.AppConfig, metrics *telemetry.StoreMetrics) (httpserver.Dependencies, cart.CheckoutCreator, error) {
	var deps httpserver.Dependencies
	var creator cart.CheckoutCreator

	demoCatalog, err := demo.Load()
	if err != nil {
		return deps, nil, fmt.Errorf("load demo catalog: %w", err)
	}
	deps.Demo = demoCatalog

	if appCfg.Storefront.Enabled() {
		client, err := catalog.NewFromConfig(appCfg.Storefront, metrics)
		if err != nil {
			return deps, nil, fmt.Errorf("catalog client: %w", err)
		}
		deps.Catalog = client
		creator = client
	}
	if appCfg.Assistant.Enabled() {
		proxy, err := assistant.New(appCfg.Assistant)
		if err != nil {
			return deps, nil, fmt.Errorf("assistant proxy: %w", err)
		}
		deps.Assistant = proxy
	}
	return deps, creator, nil
}

func buildAPIServer(cfg config.APIServerConfig, env config.Environment, deps httpserver.Dependencies) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpserver.NewHandler(env, deps),
		ReadHeaderTimeout: apiReadHeaderTimeout,
	}
}

func startAPIServer(lifecycle *conc.WaitGroup, logger *log.Logger, server *http.Server) {
	lifecycle.Go(func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("api server: %v", err)
		}
	})
}

type gracefulShutdownConfig struct {
	server     *http.Server
	mainCancel context.CancelFunc
	lifecycle  *conc.WaitGroup
	sessions   *httpserver.Sessions
	storage    *persistence.Store
	telemetry  *telemetry.Provider
}

func performGracefulShutdown(ctx context.Context, logger *log.Logger, cfg gracefulShutdownConfig) {
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Printf("shutdown: %s...", name)
		if err := fn(stepCtx); err != nil {
			logger.Printf("shutdown: %s failed: %v", name, err)
		} else {
			logger.Printf("shutdown: %s completed", name)
		}
	}

	if cfg.server != nil {
		shutdownStep("stopping api server", apiServerShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.server.Shutdown(stepCtx)
		})
	}

	logger.Print("shutdown: cancelling main context")
	if cfg.mainCancel != nil {
		cfg.mainCancel()
	}

	if cfg.lifecycle != nil {
		shutdownStep("waiting for lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				cfg.lifecycle.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return fmt.Errorf("timeout waiting for goroutines: %w", stepCtx.Err())
			}
		})
	}

	if cfg.sessions != nil {
		shutdownStep("flushing cart sessions", sessionsShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.sessions.CloseAll(stepCtx)
		})
	}

	if cfg.storage != nil {
		shutdownStep("closing snapshot storage", storageShutdownTimeout, func(context.Context) error {
			return cfg.storage.Close()
		})
	}

	if cfg.telemetry != nil {
		shutdownStep("shutting down telemetry", telemetryShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.telemetry.Shutdown(stepCtx)
		})
	}
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Clean(defaultConfigPath)
}
