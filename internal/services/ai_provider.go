package services

import (
	"context"
	"net/http"
	"strings"
	"time"

	"helpcy/internal/config"
	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// ProviderRequest is one completion request sent to an AI provider
type ProviderRequest struct {
	SystemPrompt     string
	UserPrompt       string
	Image            []byte
	ImageContentType string
}

// AIProvider is an external model able to answer classification prompts and
// transcribe voice notes. Implementations return the raw model text.
type AIProvider interface {
	Name() string
	Complete(ctx context.Context, req *ProviderRequest) (string, error)
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)
}

// NewAIProviderFromConfig returns the configured provider, or nil when AI is
// disabled. A nil provider makes every classification fall back.
func NewAIProviderFromConfig(ctx context.Context, cfg config.AIConfig, logger *observability.Logger) (AIProvider, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" || provider == "none" {
		logger.Info(ctx, "AI provider disabled, classification will use the fallback result")
		return nil, nil
	}
	if cfg.APIKey == "" {
		logger.Warn(ctx, "AI provider configured without an API key, classification will use the fallback result", map[string]interface{}{
			"provider": provider,
		})
		return nil, nil
	}

	switch provider {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "gemini":
		p, err := NewGeminiProvider(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityError, "unsupported AI provider", provider)
}

// newProviderHTTPClient returns an instrumented client for provider calls
func newProviderHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = config.ClassificationTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
		),
	}
}

func audioFilename(contentType string) string {
	if ext, ok := mediaExtensions[baseContentType(contentType)]; ok {
		return "voice" + ext
	}
	return "voice.ogg"
}
