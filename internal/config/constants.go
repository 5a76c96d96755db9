package config

import "time"

// Timeout constants
const (
	DefaultHTTPTimeout     = 60 * time.Second
	ServerShutdownTimeout  = 30 * time.Second
	ClassificationTimeout  = 30 * time.Second
	TelegramRequestTimeout = 15 * time.Second
	TestTimeout            = 100 * time.Millisecond

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute
)

// AI defaults
const (
	DefaultOpenAIModel        = "gpt-4o"
	DefaultGeminiModel        = "gemini-2.0-flash"
	DefaultTranscriptionModel = "whisper-1"
	DefaultAIMaxTokens        = 500
	DefaultAITemperature      = 0.7
	DefaultAIMaxConcurrent    = 8
)

// Draft store defaults
const (
	DefaultStoreMaxRetries = 5
	DefaultDedupeSize      = 4096
	DefaultDedupeTTL       = 10 * time.Minute
	// DefaultDraftTTL is how long an untouched draft survives before the
	// cleanup worker discards it
	DefaultDraftTTL        = 24 * time.Hour
	DefaultCleanupInterval = 10 * time.Minute

	// WorkerMaxHistory caps the run records a worker keeps for status output
	WorkerMaxHistory = 50
)

// Transport defaults
const (
	DefaultTelegramAPIURL = "https://api.telegram.org"
	DefaultWebhookPath    = "/telegram/webhook"
	DefaultMediaURLExpiry = 15 * time.Minute
	// MaxMediaBytes caps photos and voice notes accepted from either channel
	MaxMediaBytes = 20 << 20
)

// Security configuration constants
const (
	// DefaultCSP allows the mini-app pages to load inline styles and Telegram's web-app script
	DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline' https://telegram.org; img-src 'self' data: blob: https:; media-src 'self' blob: data:;"
)
