// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"sync"

	"helpcy/internal/config"
	"helpcy/internal/database"
	"helpcy/internal/observability"
	"helpcy/internal/services"
	serviceinterfaces "helpcy/internal/services/interfaces"
	"helpcy/internal/telegram"
	contextutils "helpcy/internal/utils"
	"helpcy/internal/worker"
)

// ServiceContainerInterface defines the interface for service containers
type ServiceContainerInterface interface {
	GetService(name string) (interface{}, error)
	GetConversationService() (services.ConversationServiceInterface, error)
	GetCatalog() (services.CatalogServiceInterface, error)
	GetClassifier() (services.ClassifierInterface, error)
	GetDraftStore() (services.DraftStore, error)
	GetReportRepository() (services.ReportRepository, error)
	GetMediaStore() (services.MediaStore, error)
	GetWorker() (*worker.Worker, error)
	GetBot() *telegram.Bot
	GetMetrics() *observability.ConversationMetrics
	GetDatabase() *sql.DB
	GetConfig() *config.Config
	GetLogger() *observability.Logger
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg           *config.Config
	logger        *observability.Logger
	metrics       *observability.ConversationMetrics
	dbManager     *database.Manager
	db            *sql.DB
	bot           *telegram.Bot
	services      map[string]interface{}
	mu            sync.RWMutex
	shutdownFuncs []func(context.Context) error
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger) *ServiceContainer {
	return &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		metrics:  observability.NewConversationMetrics(),
		services: make(map[string]interface{}),
	}
}

// Initialize sets up all services and their dependencies
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if err := sc.cfg.Validate(); err != nil {
		return err
	}

	// The database is only opened for the sql store
	var dialect database.Dialect
	if sc.cfg.Store.Driver == "sql" {
		sc.dbManager = database.NewManager(sc.logger)
		db, d, err := sc.dbManager.InitDB(ctx, sc.cfg.Database)
		if err != nil {
			return contextutils.WrapErrorf(err, "failed to initialize database")
		}
		sc.db, dialect = db, d
		sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
			return db.Close()
		})
	}

	if err := sc.initializeServices(ctx, dialect); err != nil {
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to initialize services")
	}

	if err := sc.startupServices(ctx); err != nil {
		// Cleanup on failure
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to startup services")
	}

	return nil
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetConversationService returns the conversation service
func (sc *ServiceContainer) GetConversationService() (services.ConversationServiceInterface, error) {
	return GetServiceAs[services.ConversationServiceInterface](sc, "conversation")
}

// GetCatalog returns the category catalog
func (sc *ServiceContainer) GetCatalog() (services.CatalogServiceInterface, error) {
	return GetServiceAs[services.CatalogServiceInterface](sc, "catalog")
}

// GetClassifier returns the media classifier
func (sc *ServiceContainer) GetClassifier() (services.ClassifierInterface, error) {
	return GetServiceAs[services.ClassifierInterface](sc, "classifier")
}

// GetDraftStore returns the draft store
func (sc *ServiceContainer) GetDraftStore() (services.DraftStore, error) {
	return GetServiceAs[services.DraftStore](sc, "draft_store")
}

// GetReportRepository returns the submitted report repository
func (sc *ServiceContainer) GetReportRepository() (services.ReportRepository, error) {
	return GetServiceAs[services.ReportRepository](sc, "reports")
}

// GetMediaStore returns the media store
func (sc *ServiceContainer) GetMediaStore() (services.MediaStore, error) {
	return GetServiceAs[services.MediaStore](sc, "media")
}

// GetWorker returns the idle-draft cleanup worker; it is absent when
// store.draft_ttl is zero
func (sc *ServiceContainer) GetWorker() (*worker.Worker, error) {
	return GetServiceAs[*worker.Worker](sc, "worker")
}

// GetBot returns the Telegram bot, or nil when the channel is disabled
func (sc *ServiceContainer) GetBot() *telegram.Bot {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.bot
}

// GetMetrics returns the Prometheus conversation metrics
func (sc *ServiceContainer) GetMetrics() *observability.ConversationMetrics {
	return sc.metrics
}

// GetDatabase returns the database instance; nil with the memory store
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.cleanup(ctx)
}

// startupServices starts all services that implement the Lifecycle interface
func (sc *ServiceContainer) startupServices(ctx context.Context) error {
	for name, service := range sc.services {
		if lifecycleService, ok := service.(serviceinterfaces.Lifecycle); ok {
			sc.logger.Info(ctx, "Starting service", map[string]interface{}{"service": name})
			if err := lifecycleService.Startup(ctx); err != nil {
				return contextutils.WrapErrorf(err, "failed to startup service %s", name)
			}
			sc.logger.Info(ctx, "Service started successfully", map[string]interface{}{"service": name})
		}
	}
	return nil
}

// cleanup handles shutdown of all services
func (sc *ServiceContainer) cleanup(ctx context.Context) error {
	var errors []error

	for name := range sc.services {
		if lifecycleService, ok := sc.services[name].(serviceinterfaces.Lifecycle); ok {
			sc.logger.Info(ctx, "Shutting down service", map[string]interface{}{"service": name})
			if err := lifecycleService.Shutdown(ctx); err != nil {
				sc.logger.Error(ctx, "Failed to shutdown service", err, map[string]interface{}{"service": name})
				errors = append(errors, contextutils.WrapErrorf(err, "service %s shutdown failed", name))
			} else {
				sc.logger.Info(ctx, "Service shutdown successfully", map[string]interface{}{"service": name})
			}
		}
	}

	// Shutdown in reverse order of initialization
	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			errors = append(errors, err)
		}
	}
	sc.shutdownFuncs = nil

	if len(errors) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errors)
	}
	return nil
}

// initializeServices sets up all service dependencies
func (sc *ServiceContainer) initializeServices(ctx context.Context, dialect database.Dialect) error {
	catalog, err := services.NewCatalogFromConfig(sc.cfg.Catalog)
	if err != nil {
		return err
	}
	sc.services["catalog"] = catalog

	// Draft store and report repository share a backend
	var store services.DraftStore
	var reports services.ReportRepository
	if sc.db != nil {
		store = services.NewSQLDraftStore(sc.db, dialect, catalog, sc.cfg.Store, sc.metrics, sc.logger)
		reports = services.NewSQLReportRepository(sc.db, dialect, sc.logger)
	} else {
		store = services.NewMemoryDraftStore(catalog, sc.logger)
		reports = services.NewMemoryReportRepository()
	}
	sc.services["draft_store"] = store
	sc.services["reports"] = reports

	media, err := services.NewMediaStoreFromConfig(sc.cfg.Media, sc.logger)
	if err != nil {
		return err
	}
	sc.services["media"] = media

	provider, err := services.NewAIProviderFromConfig(ctx, sc.cfg.AI, sc.logger)
	if err != nil {
		return err
	}
	classifier, err := services.NewClassificationService(sc.cfg.AI, provider, catalog, media, sc.metrics, sc.logger)
	if err != nil {
		return err
	}
	sc.services["classifier"] = classifier

	if sc.cfg.Store.DraftTTL > 0 {
		purger, ok := store.(services.IdleDraftPurger)
		if !ok {
			return contextutils.ErrorWithContextf("draft store %T cannot discard idle drafts", store)
		}
		cleanup := services.NewCleanupServiceWithLogger(purger, sc.cfg.Store.DraftTTL, sc.logger)
		sc.services["cleanup"] = cleanup
		sc.services["worker"] = worker.NewWorker(cleanup, "draft-cleanup", sc.cfg.Store.CleanupInterval, sc.logger)
	}

	conversation := services.NewConversationService(sc.cfg, store, reports, classifier, catalog, sc.metrics, sc.logger)
	sc.services["conversation"] = conversation

	if sc.cfg.Telegram.Enabled {
		client, err := telegram.NewClient(sc.cfg.Telegram, sc.logger)
		if err != nil {
			return contextutils.WrapError(err, "failed to create telegram client")
		}
		sc.bot = telegram.NewBot(client, conversation, media, telegram.NewRenderer(sc.cfg.Telegram.WebAppURL), sc.logger)
		sc.services["telegram"] = sc.bot
	}

	sc.logger.Info(ctx, "Services initialized", map[string]interface{}{
		"store":       sc.cfg.Store.Driver,
		"media":       sc.cfg.Media.Driver,
		"ai_provider": classifier.ProviderName(),
		"categories":  len(catalog.AllCategories()),
		"telegram":    sc.cfg.Telegram.Enabled,
		"draft_ttl":   sc.cfg.Store.DraftTTL.String(),
	})
	return nil
}
