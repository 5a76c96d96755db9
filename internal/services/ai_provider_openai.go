package services

import (
	"bytes"
	"context"
	"encoding/base64"

	"helpcy/internal/config"
	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.opentelemetry.io/otel/attribute"
)

// OpenAIProvider classifies with an OpenAI-compatible chat model and
// transcribes with Whisper
type OpenAIProvider struct {
	client             openai.Client
	model              string
	transcriptionModel string
	maxTokens          int
	temperature        float64
}

// NewOpenAIProvider creates a provider from cfg. Retries are disabled: a
// failed call falls back instead.
func NewOpenAIProvider(cfg config.AIConfig) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(newProviderHTTPClient(cfg.Timeout)),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultOpenAIModel
	}
	transcriptionModel := cfg.TranscriptionModel
	if transcriptionModel == "" {
		transcriptionModel = config.DefaultTranscriptionModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultAIMaxTokens
	}

	return &OpenAIProvider{
		client:             openai.NewClient(opts...),
		model:              model,
		transcriptionModel: transcriptionModel,
		maxTokens:          maxTokens,
		temperature:        cfg.Temperature,
	}
}

// Name returns the provider name used in logs and metrics
func (p *OpenAIProvider) Name() string { return "openai" }

// Complete sends a system prompt plus a user message with an optional image
func (p *OpenAIProvider) Complete(ctx context.Context, req *ProviderRequest) (result string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "openai.Complete",
		observability.AttributeProvider(p.Name()),
		attribute.String("ai.model", p.model),
		attribute.Bool("ai.has_image", len(req.Image) > 0),
	)
	defer observability.FinishSpan(span, &err)

	parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(req.UserPrompt)}
	if len(req.Image) > 0 {
		dataURL := "data:" + req.ImageContentType + ";base64," + base64.StdEncoding.EncodeToString(req.Image)
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    dataURL,
			Detail: "high",
		}))
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(parts),
		},
		MaxTokens:   openai.Int(int64(p.maxTokens)),
		Temperature: openai.Float(p.temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", contextutils.NewAppErrorWithCause(contextutils.ErrorCodeAIProviderUnavailable, contextutils.SeverityWarn, "openai chat completion failed", p.model, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", contextutils.NewAppError(contextutils.ErrorCodeAIResponseInvalid, contextutils.SeverityWarn, "empty response from openai", p.model)
	}
	span.SetAttributes(attribute.Int64("ai.usage.total_tokens", resp.Usage.TotalTokens))
	return resp.Choices[0].Message.Content, nil
}

// Transcribe converts a voice note to text with the transcription model
func (p *OpenAIProvider) Transcribe(ctx context.Context, audio []byte, contentType string) (result string, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "openai.Transcribe",
		observability.AttributeProvider(p.Name()),
		attribute.String("ai.model", p.transcriptionModel),
		attribute.Int("audio.size", len(audio)),
	)
	defer observability.FinishSpan(span, &err)

	resp, err := p.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), audioFilename(contentType), baseContentType(contentType)),
		Model: openai.AudioModel(p.transcriptionModel),
	})
	if err != nil {
		return "", contextutils.NewAppErrorWithCause(contextutils.ErrorCodeAIProviderUnavailable, contextutils.SeverityWarn, "openai transcription failed", p.transcriptionModel, err)
	}
	return resp.Text, nil
}
