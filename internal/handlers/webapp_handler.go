package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"helpcy/internal/config"
	"helpcy/internal/models"
	"helpcy/internal/observability"
	"helpcy/internal/services"
	contextutils "helpcy/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// Notifier pushes an action to the user's chat
type Notifier interface {
	Notify(ctx context.Context, userID int64, action *models.ConversationAction) error
}

// LocationRequest is the body of POST /api/location
type LocationRequest struct {
	UserID    int64    `json:"user_id" binding:"required,gt=0"`
	Latitude  *float64 `json:"latitude" binding:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" binding:"required,gte=-180,lte=180"`
}

// UploadPhotoRequest is the body of POST /api/upload-photo
type UploadPhotoRequest struct {
	UserID int64 `json:"user_id" binding:"required,gt=0"`
	// Photo is a data URL or bare base64
	Photo     string   `json:"photo" binding:"required"`
	Latitude  *float64 `json:"latitude" binding:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" binding:"omitempty,gte=-180,lte=180"`
}

// UpdateDescriptionRequest is the body of POST /api/update-description
type UpdateDescriptionRequest struct {
	UserID      int64  `json:"user_id" binding:"required,gt=0"`
	Description string `json:"description" binding:"required"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory" binding:"required_with=Category"`
}

// EventRequest is the body of POST /api/events
type EventRequest struct {
	UserID    int64           `json:"user_id" binding:"required,gt=0"`
	EventType string          `json:"event_type" binding:"required"`
	EventID   string          `json:"event_id"`
	Payload   json.RawMessage `json:"payload"`
}

type eventPayload struct {
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Kind       string   `json:"kind"`
	Ref        string   `json:"ref"`
	Transcript string   `json:"transcript"`
	Name       string   `json:"name"`
	Index      *int     `json:"index"`
	Text       string   `json:"text"`
}

// WebAppHandler serves the mini-app endpoints. Every endpoint answers with
// the resulting action and mirrors it to the chat when a notifier is set.
type WebAppHandler struct {
	conversation services.ConversationServiceInterface
	media        services.MediaStore
	catalog      services.CatalogServiceInterface
	notifier     Notifier
	logger       *observability.Logger
}

// NewWebAppHandler creates a WebAppHandler; notifier may be nil
func NewWebAppHandler(conversation services.ConversationServiceInterface, media services.MediaStore, catalog services.CatalogServiceInterface, notifier Notifier, logger *observability.Logger) *WebAppHandler {
	return &WebAppHandler{
		conversation: conversation,
		media:        media,
		catalog:      catalog,
		notifier:     notifier,
		logger:       logger,
	}
}

// SetLocation handles POST /api/location
func (h *WebAppHandler) SetLocation(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "set_location")
	defer observability.FinishSpan(span, nil)

	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidRequest(ctx, c, "location", err)
		return
	}
	span.SetAttributes(observability.AttributeUserID(req.UserID))

	event := models.NewLocationEvent(req.UserID, *req.Latitude, *req.Longitude).From(models.SourceWeb)
	h.dispatch(ctx, c, event)
}

// UploadPhoto handles POST /api/upload-photo. Coordinates sent with the photo
// set the location first when the draft has none yet.
func (h *WebAppHandler) UploadPhoto(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "upload_photo")
	defer observability.FinishSpan(span, nil)

	var req UploadPhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidRequest(ctx, c, "photo upload", err)
		return
	}
	span.SetAttributes(observability.AttributeUserID(req.UserID))

	data, contentType, err := services.DecodeDataURL(req.Photo)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if len(data) > config.MaxMediaBytes {
		HandleValidationError(c, "photo", len(data), "photo is too large")
		return
	}

	if req.Latitude != nil && req.Longitude != nil {
		draft, _, err := h.conversation.Current(ctx, req.UserID)
		if err != nil {
			h.logger.Error(ctx, "Failed to load draft", err, map[string]interface{}{"user_id": req.UserID})
			HandleAppError(c, err)
			return
		}
		if draft == nil || draft.Stage == models.StageAwaitingLocation || draft.Stage == models.StageSubmitted {
			loc := models.NewLocationEvent(req.UserID, *req.Latitude, *req.Longitude).From(models.SourceWeb)
			action, ok := h.apply(ctx, c, loc)
			if !ok {
				return
			}
			if action.Type == models.ActionRejected {
				h.respond(ctx, c, req.UserID, action)
				return
			}
		}
	}

	ref, err := h.media.Put(ctx, req.UserID, models.MediaPhoto, data, services.NormalizeContentType(data, contentType))
	if err != nil {
		h.logger.Error(ctx, "Failed to store uploaded photo", err, map[string]interface{}{"user_id": req.UserID})
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(attribute.Int("media.size", len(data)))

	h.dispatch(ctx, c, models.NewMediaEvent(req.UserID, models.MediaPhoto, ref).From(models.SourceWeb))
}

// UpdateDescription handles POST /api/update-description. The description is
// applied first; a category pair that differs from the draft is then applied
// as a category change. Each step commits on its own: the pair and the stage
// are checked up front, so only a concurrent change from the chat or a store
// failure can leave the description saved without the new pair. The response
// then carries that rejection or error.
func (h *WebAppHandler) UpdateDescription(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "update_description")
	defer observability.FinishSpan(span, nil)

	var req UpdateDescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidRequest(ctx, c, "description update", err)
		return
	}
	span.SetAttributes(observability.AttributeUserID(req.UserID))

	draft, _, err := h.conversation.Current(ctx, req.UserID)
	if err != nil {
		h.logger.Error(ctx, "Failed to load draft", err, map[string]interface{}{"user_id": req.UserID})
		HandleAppError(c, err)
		return
	}

	changePair := req.Category != "" && draft != nil &&
		(req.Category != draft.Category || req.Subcategory != draft.Subcategory)
	if changePair && !h.catalog.IsValidPair(req.Category, req.Subcategory) {
		h.respond(ctx, c, req.UserID, models.Rejected(services.ReasonUnknownSubcategory, services.StagePrompt(draft, h.catalog)))
		return
	}
	if changePair && !pairEditable(draft.Stage) {
		h.respond(ctx, c, req.UserID, models.Rejected(services.ReasonNotAvailable, services.StagePrompt(draft, h.catalog)))
		return
	}

	events := []*models.ReportEvent{models.NewDescriptionEvent(req.UserID, req.Description)}
	if changePair {
		events = append(events,
			models.NewSignalEvent(req.UserID, models.EventChangeCategoryRequested),
			models.NewCategoryEvent(req.UserID, req.Category),
			models.NewSubcategoryEvent(req.UserID, req.Subcategory),
		)
	}

	var action *models.ConversationAction
	for _, event := range events {
		var ok bool
		action, ok = h.apply(ctx, c, event.From(models.SourceWeb))
		if !ok {
			return
		}
		if action.Type == models.ActionRejected {
			break
		}
	}
	h.respond(ctx, c, req.UserID, action)
}

// pairEditable reports whether a description edit followed by a category
// change is accepted from stage
func pairEditable(stage models.Stage) bool {
	switch stage {
	case models.StageReviewing, models.StageEditingDescription, models.StageChoosingCategory, models.StageChoosingSubcategory:
		return true
	}
	return false
}

// PostEvent handles POST /api/events, the generic inbound event contract
func (h *WebAppHandler) PostEvent(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "post_event")
	defer observability.FinishSpan(span, nil)

	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidRequest(ctx, c, "event", err)
		return
	}
	span.SetAttributes(observability.AttributeUserID(req.UserID), observability.AttributeEventType(req.EventType))

	event, err := buildEvent(&req)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	h.dispatch(ctx, c, event)
}

// GetDraft handles GET /api/drafts/:user_id
func (h *WebAppHandler) GetDraft(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_draft")
	defer observability.FinishSpan(span, nil)

	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		HandleValidationError(c, "user_id", c.Param("user_id"), "must be a positive integer")
		return
	}
	span.SetAttributes(observability.AttributeUserID(userID))

	draft, action, err := h.conversation.Current(ctx, userID)
	if err != nil {
		h.logger.Error(ctx, "Failed to load draft", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, DraftResponse{Draft: convertDraft(draft), Action: NewActionResponse(action)})
}

// dispatch applies one event and writes the response
func (h *WebAppHandler) dispatch(ctx context.Context, c *gin.Context, event *models.ReportEvent) {
	action, ok := h.apply(ctx, c, event)
	if !ok {
		return
	}
	h.respond(ctx, c, event.UserID, action)
}

// apply dispatches event; on failure it writes the error response and
// returns false
func (h *WebAppHandler) apply(ctx context.Context, c *gin.Context, event *models.ReportEvent) (*models.ConversationAction, bool) {
	ctx = contextutils.WithUserID(contextutils.WithEventSource(ctx, string(models.SourceWeb)), event.UserID)
	action, err := h.conversation.Dispatch(ctx, event)
	if err != nil {
		h.logger.Error(ctx, "Failed to dispatch web event", err, map[string]interface{}{
			"user_id":    event.UserID,
			"event_type": string(event.Type),
		})
		HandleAppError(c, err)
		return nil, false
	}
	return action, true
}

func (h *WebAppHandler) respond(ctx context.Context, c *gin.Context, userID int64, action *models.ConversationAction) {
	if h.notifier != nil && action != nil {
		if err := h.notifier.Notify(ctx, userID, action); err != nil {
			h.logger.Warn(ctx, "Failed to mirror action to chat", map[string]interface{}{
				"user_id": userID,
				"action":  string(action.Type),
				"error":   err.Error(),
			})
		}
	}
	c.JSON(http.StatusOK, NewActionResponse(action))
}

func (h *WebAppHandler) invalidRequest(ctx context.Context, c *gin.Context, what string, err error) {
	details := contextutils.DescribeValidationError(err)
	h.logger.Warn(ctx, "Invalid "+what+" request", map[string]interface{}{"error": details})
	HandleAppError(c, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn,
		"Invalid "+what+" request", details, err))
}

// buildEvent maps the generic event contract onto a ReportEvent
func buildEvent(req *EventRequest) (*models.ReportEvent, error) {
	var p eventPayload
	if len(req.Payload) > 0 && string(req.Payload) != "null" {
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeInvalidFormat, contextutils.SeverityWarn, "invalid event payload", err.Error(), err)
		}
	}

	event := &models.ReportEvent{
		UserID:  req.UserID,
		Type:    models.EventType(strings.ToLower(strings.TrimSpace(req.EventType))),
		Source:  models.SourceWeb,
		EventID: req.EventID,
		Text:    p.Text,
	}
	switch event.Type {
	case models.EventLocationReceived:
		if p.Latitude != nil && p.Longitude != nil {
			event.Location = &models.Location{Latitude: *p.Latitude, Longitude: *p.Longitude}
		}
	case models.EventMediaReceived:
		event.Media = &models.MediaPayload{Kind: models.MediaKind(p.Kind), Ref: p.Ref, Transcript: p.Transcript}
	case models.EventCategoryChosen, models.EventSubcategoryChosen:
		event.Selection = &models.Selection{Name: p.Name, Index: p.Index}
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}
