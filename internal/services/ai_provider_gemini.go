package services

import (
	"context"

	"helpcy/internal/config"
	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"
)

const geminiTranscribePrompt = "Transcribe this voice note verbatim. Reply with the transcript only."

// GeminiProvider classifies and transcribes with a Gemini model; audio is sent inline
type GeminiProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewGeminiProvider creates a Gemini API client from cfg
func NewGeminiProvider(ctx context.Context, cfg config.AIConfig) (*GeminiProvider, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: newProviderHTTPClient(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeAIProviderUnavailable, contextutils.SeverityError, "failed to create gemini client", "", err)
	}

	model := cfg.Model
	if model == "" || model == config.DefaultOpenAIModel {
		model = config.DefaultGeminiModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultAIMaxTokens
	}
	return &GeminiProvider{client: client, model: model, maxTokens: maxTokens, temperature: cfg.Temperature}, nil
}

// Name returns the provider name used in logs and metrics
func (p *GeminiProvider) Name() string { return "gemini" }

// Complete asks for a JSON answer to the prompt and optional inline image
func (p *GeminiProvider) Complete(ctx context.Context, req *ProviderRequest) (result string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "gemini.Complete",
		observability.AttributeProvider(p.Name()),
		attribute.String("ai.model", p.model),
		attribute.Bool("ai.has_image", len(req.Image) > 0),
	)
	defer observability.FinishSpan(span, &err)

	parts := []*genai.Part{{Text: req.UserPrompt}}
	if len(req.Image) > 0 {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: req.ImageContentType, Data: req.Image}})
	}

	temperature := float32(p.temperature)
	resp, err := p.client.Models.GenerateContent(ctx, p.model,
		[]*genai.Content{{Role: "user", Parts: parts}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}},
			ResponseMIMEType:  "application/json",
			Temperature:       &temperature,
			MaxOutputTokens:   int32(p.maxTokens),
		},
	)
	if err != nil {
		return "", contextutils.NewAppErrorWithCause(contextutils.ErrorCodeAIProviderUnavailable, contextutils.SeverityWarn, "gemini generate content failed", p.model, err)
	}
	text := resp.Text()
	if text == "" {
		return "", contextutils.NewAppError(contextutils.ErrorCodeAIResponseInvalid, contextutils.SeverityWarn, "empty response from gemini", p.model)
	}
	return text, nil
}

// Transcribe sends the audio inline and asks for a verbatim transcript
func (p *GeminiProvider) Transcribe(ctx context.Context, audio []byte, contentType string) (result string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "gemini.Transcribe",
		observability.AttributeProvider(p.Name()),
		attribute.Int("audio.size", len(audio)),
	)
	defer observability.FinishSpan(span, &err)

	resp, err := p.client.Models.GenerateContent(ctx, p.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{
			{Text: geminiTranscribePrompt},
			{InlineData: &genai.Blob{MIMEType: baseContentType(contentType), Data: audio}},
		}}},
		nil,
	)
	if err != nil {
		return "", contextutils.NewAppErrorWithCause(contextutils.ErrorCodeAIProviderUnavailable, contextutils.SeverityWarn, "gemini transcription failed", p.model, err)
	}
	return resp.Text(), nil
}
