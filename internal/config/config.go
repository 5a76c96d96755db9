// Package config handles application configuration loading from YAML and environment variables.
package config

import (
	"errors"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	contextutils "helpcy/internal/utils"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable pointing at the YAML config file.
const ConfigFileEnv = "HELPCY_CONFIG_FILE"

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	Telegram      TelegramConfig      `json:"telegram" yaml:"telegram"`
	AI            AIConfig            `json:"ai" yaml:"ai"`
	Store         StoreConfig         `json:"store" yaml:"store"`
	Database      DatabaseConfig      `json:"database" yaml:"database"`
	Media         MediaConfig         `json:"media" yaml:"media"`
	Catalog       CatalogConfig       `json:"catalog" yaml:"catalog"`
	OpenTelemetry OpenTelemetryConfig `json:"open_telemetry" yaml:"open_telemetry"`

	// Internal fields
	IsTest bool `json:"is_test" yaml:"is_test"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port        string   `json:"port" yaml:"port"`
	Debug       bool     `json:"debug" yaml:"debug"`
	LogLevel    string   `json:"log_level" yaml:"log_level"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins"`
	// PublicURL is the externally reachable base URL, used to build the webhook URL
	PublicURL string `json:"public_url" yaml:"public_url"`
	// AdminToken enables the /admin routes; empty leaves them unmounted
	AdminToken string `json:"admin_token" yaml:"admin_token"`
	// CircuitBreakerThreshold consecutive 5xx responses shed traffic for
	// CircuitBreakerTimeout; zero disables the breaker
	CircuitBreakerThreshold int           `json:"circuit_breaker_threshold" yaml:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `json:"circuit_breaker_timeout" yaml:"circuit_breaker_timeout"`
}

// TelegramConfig represents the chat channel configuration
type TelegramConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	BotToken      string `json:"bot_token" yaml:"bot_token"`
	APIURL        string `json:"api_url" yaml:"api_url"`
	WebhookPath   string `json:"webhook_path" yaml:"webhook_path"`
	WebhookURL    string `json:"webhook_url" yaml:"webhook_url"`
	WebhookSecret string `json:"webhook_secret" yaml:"webhook_secret"`
	// WebAppURL is the base URL of the mini-app pages (map, camera, description editor)
	WebAppURL string `json:"webapp_url" yaml:"webapp_url"`
}

// AIConfig represents classification provider configuration
type AIConfig struct {
	// Provider is "openai", "gemini" or "none"
	Provider           string        `json:"provider" yaml:"provider"`
	APIKey             string        `json:"api_key" yaml:"api_key"`
	BaseURL            string        `json:"base_url" yaml:"base_url"`
	Model              string        `json:"model" yaml:"model"`
	TranscriptionModel string        `json:"transcription_model" yaml:"transcription_model"`
	MaxTokens          int           `json:"max_tokens" yaml:"max_tokens"`
	Temperature        float64       `json:"temperature" yaml:"temperature"`
	Timeout            time.Duration `json:"timeout" yaml:"timeout"`
	MaxConcurrent      int           `json:"max_concurrent" yaml:"max_concurrent"`
}

// StoreConfig represents draft store configuration
type StoreConfig struct {
	// Driver is "memory" or "sql"
	Driver     string        `json:"driver" yaml:"driver"`
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
	DedupeSize int           `json:"dedupe_size" yaml:"dedupe_size"`
	DedupeTTL  time.Duration `json:"dedupe_ttl" yaml:"dedupe_ttl"`

	// DraftTTL discards drafts idle for longer; zero disables the cleanup worker
	DraftTTL        time.Duration `json:"draft_ttl" yaml:"draft_ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite"
	Driver          string        `json:"driver" yaml:"driver"`
	URL             string        `json:"url" yaml:"url"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// MediaConfig represents media object storage configuration
type MediaConfig struct {
	// Driver is "memory" or "s3"
	Driver    string        `json:"driver" yaml:"driver"`
	Endpoint  string        `json:"endpoint" yaml:"endpoint"`
	AccessKey string        `json:"access_key" yaml:"access_key"`
	SecretKey string        `json:"secret_key" yaml:"secret_key"`
	Bucket    string        `json:"bucket" yaml:"bucket"`
	Region    string        `json:"region" yaml:"region"`
	UseSSL    bool          `json:"use_ssl" yaml:"use_ssl"`
	URLExpiry time.Duration `json:"url_expiry" yaml:"url_expiry"`
}

// CatalogConfig points at an optional taxonomy override file
type CatalogConfig struct {
	File string `json:"file" yaml:"file"`
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`               // Default: "localhost:4317"
	Protocol       string            `json:"protocol" yaml:"protocol"`               // "grpc" or "http", default: "grpc"
	Insecure       bool              `json:"insecure" yaml:"insecure"`               // Default: true (for localhost)
	Headers        map[string]string `json:"headers" yaml:"headers"`                 // For authenticated endpoints
	ServiceName    string            `json:"service_name" yaml:"service_name"`       // Default: "helpcy"
	ServiceVersion string            `json:"service_version" yaml:"service_version"` // From version package
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`
	EnableMetrics  bool              `json:"enable_metrics" yaml:"enable_metrics"`
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate"` // Default: 1.0 (100%)
}

// Default returns a configuration that runs a single node with in-memory state.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     "8080",
			LogLevel: "info",
		},
		Telegram: TelegramConfig{
			APIURL:      DefaultTelegramAPIURL,
			WebhookPath: DefaultWebhookPath,
		},
		AI: AIConfig{
			Provider:           "openai",
			Model:              DefaultOpenAIModel,
			TranscriptionModel: DefaultTranscriptionModel,
			MaxTokens:          DefaultAIMaxTokens,
			Temperature:        DefaultAITemperature,
			Timeout:            ClassificationTimeout,
			MaxConcurrent:      DefaultAIMaxConcurrent,
		},
		Store: StoreConfig{
			Driver:     "memory",
			MaxRetries: DefaultStoreMaxRetries,
			DedupeSize: DefaultDedupeSize,
			DedupeTTL:  DefaultDedupeTTL,

			DraftTTL:        DefaultDraftTTL,
			CleanupInterval: DefaultCleanupInterval,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: DatabaseConnMaxLifetime,
		},
		Media: MediaConfig{
			Driver:    "memory",
			Bucket:    "helpcy-media",
			Region:    "us-east-1",
			URLExpiry: DefaultMediaURLExpiry,
		},
		OpenTelemetry: OpenTelemetryConfig{
			Endpoint:     "localhost:4317",
			Protocol:     "grpc",
			Insecure:     true,
			ServiceName:  "helpcy",
			SamplingRate: 1.0,
		},
	}
}

// NewConfig loads .env, then the YAML file, then overrides with environment variables
func NewConfig() (result0 *Config, err error) {
	_ = godotenv.Load()

	config, err := loadConfigWithOverrides()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config: %w", err)
	}

	config.overrideFromEnv()
	config.applyLegacyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the combinations that would otherwise fail at first use
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sql":
	default:
		return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityFatal,
			"invalid store driver", c.Store.Driver)
	}
	if c.Store.Driver == "sql" {
		switch c.Database.Driver {
		case "postgres", "sqlite":
		default:
			return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityFatal,
				"invalid database driver", c.Database.Driver)
		}
		if c.Database.URL == "" {
			return contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityFatal,
				"database url is required for the sql store", "")
		}
	}
	if c.Store.DraftTTL < 0 {
		return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityFatal,
			"store draft_ttl must not be negative", c.Store.DraftTTL.String())
	}
	if c.Server.CircuitBreakerThreshold < 0 {
		return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityFatal,
			"server circuit_breaker_threshold must not be negative", strconv.Itoa(c.Server.CircuitBreakerThreshold))
	}
	switch c.AI.Provider {
	case "openai", "gemini", "none", "":
	default:
		return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityFatal,
			"invalid ai provider", c.AI.Provider)
	}
	switch c.Media.Driver {
	case "memory", "s3":
	default:
		return contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityFatal,
			"invalid media driver", c.Media.Driver)
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityFatal,
			"telegram bot token is required when telegram is enabled", "")
	}
	return nil
}

// overrideFromEnv overrides config values with environment variables using reflection
func (c *Config) overrideFromEnv() {
	overrideStructFromEnvWithPrefix(c, "")
}

// applyLegacyEnv maps the variable names used by earlier deployments of the bot.
func (c *Config) applyLegacyEnv() {
	if v := os.Getenv("BOT_TOKEN"); v != "" && c.Telegram.BotToken == "" {
		c.Telegram.BotToken = v
		c.Telegram.Enabled = true
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.AI.APIKey == "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		c.AI.Model = v
	}
	if v := os.Getenv("OPENAI_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AI.MaxTokens = n
		}
	}
	if v := os.Getenv("OPENAI_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.AI.Temperature = f
		}
	}
	if v := os.Getenv("WEBAPP_URL"); v != "" && c.Telegram.WebAppURL == "" {
		c.Telegram.WebAppURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Server.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("WEBHOOK_PATH"); v != "" {
		c.Telegram.WebhookPath = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" && c.Telegram.WebhookURL == "" {
		c.Telegram.WebhookURL = v
	}
	if v := os.Getenv("WEBHOOK_HOST"); v != "" && c.Telegram.WebhookURL == "" {
		if u, err := url.JoinPath(v, c.Telegram.WebhookPath); err == nil {
			c.Telegram.WebhookURL = u
		}
	}
}

var durationType = reflect.TypeOf(time.Duration(0))

// overrideStructFromEnvWithPrefix recursively overrides struct fields with environment variables
func overrideStructFromEnvWithPrefix(v interface{}, prefix string) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if !field.CanSet() {
			continue
		}

		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}

		envKey := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
		if prefix != "" {
			envKey = prefix + "_" + envKey
		}

		// Durations are int64 underneath but are written as "30s" in the environment
		if field.Type() == durationType {
			if envVal := os.Getenv(envKey); envVal != "" {
				if d, err := time.ParseDuration(envVal); err == nil {
					field.SetInt(int64(d))
				}
			}
			continue
		}

		switch field.Kind() {
		case reflect.String:
			if envVal := os.Getenv(envKey); envVal != "" {
				field.SetString(envVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if intVal, err := strconv.ParseInt(envVal, 10, 64); err == nil {
					field.SetInt(intVal)
				}
			}
		case reflect.Float32, reflect.Float64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if floatVal, err := strconv.ParseFloat(envVal, 64); err == nil {
					field.SetFloat(floatVal)
				}
			}
		case reflect.Bool:
			if envVal := os.Getenv(envKey); envVal != "" {
				if boolVal, err := strconv.ParseBool(envVal); err == nil {
					field.SetBool(boolVal)
				}
			}
		case reflect.Slice:
			if envVal := os.Getenv(envKey); envVal != "" {
				if field.Type().Elem().Kind() == reflect.String {
					slice := strings.Split(envVal, ",")
					field.Set(reflect.ValueOf(slice))
				}
			}
		case reflect.Struct:
			if field.CanAddr() {
				overrideStructFromEnvWithPrefix(field.Addr().Interface(), envKey)
			}
		case reflect.Ptr:
			if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
				overrideStructFromEnvWithPrefix(field.Interface(), envKey)
			}
		}
	}
}

// loadConfigWithOverrides loads the config file named by HELPCY_CONFIG_FILE, or config.yaml.
// A missing default file is not an error: the bot can be configured purely from the environment.
func loadConfigWithOverrides() (result0 *Config, err error) {
	if envPath := os.Getenv(ConfigFileEnv); envPath != "" {
		config, err := loadConfigFromFile(envPath)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config from %s: %w", envPath, err)
		}
		return config, nil
	}

	config, err := loadConfigFromFile("config.yaml")
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return config, err
}

// loadConfigFromFile loads configuration from a specific file on top of the defaults
func loadConfigFromFile(path string) (result0 *Config, err error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, err
	}

	return config, nil
}
