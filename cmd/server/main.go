// Package main provides the main entry point for the helpcy backend server.
// It wires the conversation core to the Telegram webhook and the mini-app API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"helpcy/internal/config"
	"helpcy/internal/di"
	"helpcy/internal/handlers"
	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"
	"helpcy/internal/version"
)

const shutdownTimeout = 30 * time.Second

// Application encapsulates the main application logic and can be tested
type Application struct {
	container di.ServiceContainerInterface
	server    *http.Server
}

// NewApplication creates a new application instance
func NewApplication(container di.ServiceContainerInterface) (*Application, error) {
	conversation, err := container.GetConversationService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get conversation service")
	}

	catalog, err := container.GetCatalog()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get catalog")
	}

	media, err := container.GetMediaStore()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get media store")
	}

	deps := handlers.RouterDeps{
		Conversation: conversation,
		Catalog:      catalog,
		Media:        media,
		Metrics:      container.GetMetrics(),
	}
	// Bot stays a nil interface when Telegram is disabled
	if bot := container.GetBot(); bot != nil {
		deps.Bot = bot
	}
	if w, err := container.GetWorker(); err == nil {
		deps.Worker = w
	}

	cfg := container.GetConfig()
	router := handlers.NewRouter(cfg, deps, container.GetLogger())

	return &Application{
		container: container,
		server: &http.Server{
			Addr:              ":" + cfg.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run starts the application and returns an error if it fails to start
func (a *Application) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErr:
		return contextutils.WrapError(err, "server failed")
	}
}

// RegisterWebhook points Telegram at this server when a webhook URL is configured
func (a *Application) RegisterWebhook(ctx context.Context) error {
	cfg := a.container.GetConfig()
	bot := a.container.GetBot()
	if bot == nil || cfg.Telegram.WebhookURL == "" {
		return nil
	}

	url := cfg.Telegram.WebhookURL
	if !strings.HasSuffix(url, cfg.Telegram.WebhookPath) {
		url = strings.TrimSuffix(url, "/") + cfg.Telegram.WebhookPath
	}
	return bot.RegisterWebhook(ctx, url, cfg.Telegram.WebhookSecret)
}

// Shutdown drains in-flight requests, then releases the services
func (a *Application) Shutdown(ctx context.Context) error {
	if err := a.server.Shutdown(ctx); err != nil {
		return contextutils.WrapError(err, "failed to shutdown http server")
	}
	return a.container.Shutdown(ctx)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg.OpenTelemetry.ServiceVersion = version.Version

	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, cfg.OpenTelemetry.ServiceName, cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := observability.ShutdownProviders(shutdownCtx, tp, mp); err != nil {
			logger.Warn(ctx, "Error shutting down telemetry providers", map[string]interface{}{"error": err.Error()})
		}
		_ = logger.Sync()
	}()

	logger.Info(ctx, "Starting helpcy service", map[string]interface{}{
		"port":     cfg.Server.Port,
		"logLevel": cfg.Server.LogLevel,
		"version":  version.Version,
		"store":    cfg.Store.Driver,
		"telegram": cfg.Telegram.Enabled,
	})

	container := di.NewServiceContainer(cfg, logger)
	if err := container.Initialize(ctx); err != nil {
		logger.Error(ctx, "Failed to initialize services", err)
		os.Exit(1)
	}

	app, err := NewApplication(container)
	if err != nil {
		logger.Error(ctx, "Failed to create application", err)
		os.Exit(1)
	}

	if err := app.RegisterWebhook(ctx); err != nil {
		// the mini-app API keeps working without it
		logger.Error(ctx, "Failed to register telegram webhook", err, map[string]interface{}{
			"webhook_url": cfg.Telegram.WebhookURL,
		})
	}

	appErr := make(chan error, 1)
	go func() {
		if err := app.Run(ctx); err != nil {
			appErr <- err
		}
	}()

	select {
	case <-shutdownCh:
		logger.Info(ctx, "Received shutdown signal, shutting down gracefully")
	case err := <-appErr:
		logger.Error(ctx, "Application failed", err)
		os.Exit(1)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "Error during application shutdown", err)
		os.Exit(1)
	}

	logger.Info(shutdownCtx, "Shutdown completed successfully")
}
