package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"helpcy/internal/config"
	"helpcy/internal/models"
	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// FallbackDescription is used when the provider could not be used at all
	FallbackDescription = "Infrastructure issue detected. AI analysis failed, please review manually."
	// CorrectedDescription replaces an empty description on a corrected result
	CorrectedDescription = "Infrastructure issue detected"
)

// Classification outcomes, as recorded in metrics
const (
	outcomeOK        = "ok"
	outcomeCorrected = "corrected"
	outcomeFallback  = "fallback"
)

// ClassificationInput selects what to classify. For audio a transcript, when
// present, is used instead of the stored voice note.
type ClassificationInput struct {
	UserID     int64
	Mode       models.MediaKind
	MediaRef   string
	Transcript string
}

// ClassificationResult is always catalog-valid
type ClassificationResult struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Description string `json:"description"`
	Fallback    bool   `json:"fallback"`
	Corrected   bool   `json:"corrected"`
	Provider    string `json:"provider"`
}

// ClassifierInterface is a total function from media to a valid classification
type ClassifierInterface interface {
	Classify(ctx context.Context, in *ClassificationInput) *ClassificationResult
}

type providerAnswer struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Description string `json:"description"`
}

// ClassificationService wraps an AIProvider and normalizes its answers
type ClassificationService struct {
	provider  AIProvider
	catalog   CatalogServiceInterface
	media     MediaStore
	templates *AITemplateManager
	schema    *gojsonschema.Schema
	metrics   *observability.ConversationMetrics
	logger    *observability.Logger

	// Concurrency control
	globalSemaphore chan struct{}
}

// NewClassificationService creates a classifier. provider may be nil, in which
// case every call returns the fallback result.
func NewClassificationService(cfg config.AIConfig, provider AIProvider, catalog CatalogServiceInterface, media MediaStore, metrics *observability.ConversationMetrics, logger *observability.Logger) (*ClassificationService, error) {
	templates, err := NewAITemplateManager()
	if err != nil {
		return nil, err
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(classificationSchemaJSON))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to compile classification schema")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = config.DefaultAIMaxConcurrent
	}

	return &ClassificationService{
		provider:        provider,
		catalog:         catalog,
		media:           media,
		templates:       templates,
		schema:          schema,
		metrics:         metrics,
		logger:          logger,
		globalSemaphore: make(chan struct{}, maxConcurrent),
	}, nil
}

// ProviderName returns the provider name or "none"
func (s *ClassificationService) ProviderName() string {
	if s.provider == nil {
		return "none"
	}
	return s.provider.Name()
}

// Classify never fails: any problem yields the fallback result.
func (s *ClassificationService) Classify(ctx context.Context, in *ClassificationInput) *ClassificationResult {
	start := time.Now()
	provider := s.ProviderName()
	ctx, span := observability.TraceAIFunction(ctx, "Classify",
		observability.AttributeUserID(in.UserID),
		observability.AttributeProvider(provider),
		attribute.String("classification.mode", string(in.Mode)),
	)
	defer span.End()

	result, err := s.classify(ctx, in)
	outcome := outcomeOK
	switch {
	case err != nil:
		outcome = outcomeFallback
		result = s.fallback()
		s.logger.Warn(ctx, "Classification failed, using fallback", map[string]interface{}{
			"user_id":  in.UserID,
			"mode":     string(in.Mode),
			"provider": provider,
			"error": contextutils.NewAppErrorWithCause(contextutils.ErrorCodeClassificationFailure, contextutils.SeverityWarn,
				"classification failed", string(in.Mode), err).Error(),
		})
	case result.Corrected:
		outcome = outcomeCorrected
	}
	result.Provider = provider

	span.SetAttributes(
		attribute.String("classification.outcome", outcome),
		attribute.String("classification.category", result.Category),
		attribute.String("classification.subcategory", result.Subcategory),
	)
	s.metrics.ObserveClassification(provider, string(in.Mode), outcome, time.Since(start))
	return result
}

func (s *ClassificationService) classify(ctx context.Context, in *ClassificationInput) (*ClassificationResult, error) {
	if s.provider == nil {
		return nil, contextutils.ErrAIProviderUnavailable
	}
	if err := s.acquireGlobalSlot(ctx); err != nil {
		return nil, err
	}
	defer s.releaseGlobalSlot()

	system, err := s.templates.RenderTemplate(ClassifySystemTemplate, AITemplateData{
		Subject:    subjectFor(in.Mode),
		Categories: catalogEntries(s.catalog),
		Fallback:   s.catalog.FallbackCategory(),
	})
	if err != nil {
		return nil, err
	}

	req := &ProviderRequest{SystemPrompt: system}
	switch in.Mode {
	case models.MediaPhoto:
		obj, err := s.media.Get(ctx, in.MediaRef)
		if err != nil {
			return nil, err
		}
		req.Image = obj.Data
		req.ImageContentType = obj.ContentType
		if req.UserPrompt, err = s.templates.RenderTemplate(ClassifyPhotoTemplate, AITemplateData{}); err != nil {
			return nil, err
		}
	case models.MediaAudio:
		transcript, err := s.transcript(ctx, in)
		if err != nil {
			return nil, err
		}
		if req.UserPrompt, err = s.templates.RenderTemplate(ClassifyTranscriptTemplate, AITemplateData{Transcript: transcript}); err != nil {
			return nil, err
		}
	default:
		return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn, "unknown classification mode", string(in.Mode))
	}

	raw, err := s.provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	answer, err := s.parseAnswer(raw)
	if err != nil {
		return nil, err
	}
	return s.normalize(answer), nil
}

func (s *ClassificationService) transcript(ctx context.Context, in *ClassificationInput) (string, error) {
	text := strings.TrimSpace(in.Transcript)
	if text == "" {
		obj, err := s.media.Get(ctx, in.MediaRef)
		if err != nil {
			return "", err
		}
		if text, err = s.provider.Transcribe(ctx, obj.Data, obj.ContentType); err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
	}
	if text == "" {
		return "", contextutils.NewAppError(contextutils.ErrorCodeAIResponseInvalid, contextutils.SeverityWarn, "empty transcript", "")
	}
	return text, nil
}

// parseAnswer strips code fences and validates the answer against the schema
func (s *ClassificationService) parseAnswer(raw string) (*providerAnswer, error) {
	cleaned := cleanJSONResponse(raw)
	if cleaned == "" {
		return nil, contextutils.WrapError(contextutils.ErrAIResponseInvalid, "AI provider returned empty response after cleaning")
	}

	res, err := s.schema.Validate(gojsonschema.NewStringLoader(cleaned))
	if err != nil {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeAIResponseInvalid, contextutils.SeverityWarn, "AI response is not valid JSON", "", err)
	}
	if !res.Valid() {
		details := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			details = append(details, e.String())
		}
		return nil, contextutils.NewAppError(contextutils.ErrorCodeAIResponseInvalid, contextutils.SeverityWarn, "AI response violates schema", strings.Join(details, "; "))
	}

	var answer providerAnswer
	if err := json.Unmarshal([]byte(cleaned), &answer); err != nil {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeAIResponseInvalid, contextutils.SeverityWarn, "failed to decode AI response", "", err)
	}
	return &answer, nil
}

// normalize replaces an out-of-catalog pair with the fallback pair, keeping the description
func (s *ClassificationService) normalize(a *providerAnswer) *ClassificationResult {
	result := &ClassificationResult{
		Category:    strings.TrimSpace(a.Category),
		Subcategory: strings.TrimSpace(a.Subcategory),
		Description: strings.TrimSpace(a.Description),
	}
	if !s.catalog.IsValidPair(result.Category, result.Subcategory) {
		result.Category, result.Subcategory = s.catalog.FallbackPair()
		result.Corrected = true
	}
	if result.Description == "" {
		result.Description = CorrectedDescription
	}
	return result
}

func (s *ClassificationService) fallback() *ClassificationResult {
	category, subcategory := s.catalog.FallbackPair()
	return &ClassificationResult{
		Category:    category,
		Subcategory: subcategory,
		Description: FallbackDescription,
		Fallback:    true,
	}
}

// acquireGlobalSlot waits for a provider slot or the caller's deadline
func (s *ClassificationService) acquireGlobalSlot(ctx context.Context) error {
	select {
	case s.globalSemaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return contextutils.WrapErrorf(contextutils.ErrTimeout, "request cancelled while waiting for AI slot: %w", ctx.Err())
	}
}

func (s *ClassificationService) releaseGlobalSlot() {
	<-s.globalSemaphore
}

// cleanJSONResponse extracts JSON from markdown code blocks or returns the original response
func cleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimPrefix(response, "```JSON")
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(strings.TrimSpace(response), "```")
	}
	return strings.TrimSpace(response)
}

func subjectFor(mode models.MediaKind) string {
	if mode == models.MediaAudio {
		return "voice note transcript"
	}
	return "photo"
}

func catalogEntries(catalog CatalogServiceInterface) []CatalogEntry {
	cats := catalog.AllCategories()
	out := make([]CatalogEntry, 0, len(cats))
	for _, c := range cats {
		out = append(out, CatalogEntry{Name: c, Subcategories: catalog.SubcategoriesOf(c)})
	}
	return out
}
