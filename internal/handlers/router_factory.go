package handlers

import (
	"net/http"

	"helpcy/internal/config"
	"helpcy/internal/middleware"
	"helpcy/internal/observability"
	"helpcy/internal/services"
	"helpcy/internal/version"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
)

// RouterDeps are the collaborators the HTTP front door needs. Bot is nil
// when the Telegram channel is disabled, Worker when draft expiry is off.
type RouterDeps struct {
	Conversation services.ConversationServiceInterface
	Catalog      services.CatalogServiceInterface
	Media        services.MediaStore
	Bot          BotHandler
	Worker       WorkerController
	Metrics      *observability.ConversationMetrics
}

// BotHandler is the Telegram side of the service: it consumes webhook
// updates and mirrors web actions into the chat.
type BotHandler interface {
	UpdateHandler
	Notifier
}

// NewRouter creates the gin engine with middleware and routes
func NewRouter(cfg *config.Config, deps RouterDeps, logger *observability.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.RedirectTrailingSlash = false
	router.Use(middleware.ErrorRecoveryMiddleware(logger,
		middleware.ErrorRecoveryConfigFor(cfg.Server.CircuitBreakerThreshold, cfg.Server.CircuitBreakerTimeout)))
	router.Use(observability.RequestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "helpcy"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	router.Use(observability.GinMiddlewareWithErrorHandling(cfg.OpenTelemetry.ServiceName)...)

	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "X-Requested-With", "Authorization"}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.IsDevelopment = cfg.Server.Debug
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	// The mini-app pages are rendered inside Telegram's web view
	secureConfig.FrameDeny = false
	router.Use(secure.New(secureConfig))

	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":   "helpcy",
			"version":   version.Version,
			"commit":    version.Commit,
			"buildTime": version.BuildTime,
		})
	})

	var notifier Notifier
	if deps.Bot != nil {
		notifier = deps.Bot
	}
	webApp := NewWebAppHandler(deps.Conversation, deps.Media, deps.Catalog, notifier, logger)
	catalog := NewCatalogHandler(deps.Catalog, logger)

	api := router.Group("/api")
	{
		api.GET("/categories", catalog.GetCategories)
		api.GET("/categories/subcategories", catalog.GetSubcategories)

		api.POST("/location", webApp.SetLocation)
		api.POST("/upload-photo", webApp.UploadPhoto)
		api.POST("/update-description", webApp.UpdateDescription)
		api.POST("/events", webApp.PostEvent)
		api.GET("/drafts/:user_id", webApp.GetDraft)
	}

	if deps.Bot != nil {
		path := cfg.Telegram.WebhookPath
		if path == "" {
			path = config.DefaultWebhookPath
		}
		router.POST(path, NewTelegramHandler(deps.Bot, cfg.Telegram.WebhookSecret, logger).Webhook)
	}

	if deps.Worker != nil && cfg.Server.AdminToken != "" {
		workerAdmin := NewWorkerAdminHandlerWithLogger(deps.Worker, logger)
		admin := router.Group("/admin/worker", RequireAdminToken(cfg.Server.AdminToken, logger))
		{
			admin.GET("", workerAdmin.GetWorkerDetails)
			admin.POST("/pause", workerAdmin.PauseWorker)
			admin.POST("/resume", workerAdmin.ResumeWorker)
			admin.POST("/trigger", workerAdmin.TriggerWorkerRun)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		StandardizeHTTPError(c, http.StatusNotFound, "Not found", c.Request.URL.Path)
	})

	return router
}
