package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"helpcy/internal/config"
	"helpcy/internal/models"
	"helpcy/internal/observability"
	"helpcy/internal/services"

	"github.com/gin-gonic/gin"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webUser int64 = 4242

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01}

type fixedClassifier struct{}

func (fixedClassifier) Classify(ctx context.Context, in *services.ClassificationInput) *services.ClassificationResult {
	return &services.ClassificationResult{Category: "Damage", Subcategory: "Road", Description: "Cracked asphalt", Provider: "fixed"}
}

// recordingBot stands in for the Telegram bot
type recordingBot struct {
	mu       sync.Mutex
	notified []*models.ConversationAction
	updates  []int64
	last     *tgmodels.Update
	err      error
}

func (b *recordingBot) Notify(ctx context.Context, userID int64, action *models.ConversationAction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notified = append(b.notified, action)
	return b.err
}

func (b *recordingBot) HandleUpdate(ctx context.Context, update *tgmodels.Update) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, update.ID)
	b.last = update
	return b.err
}

type handlerFixture struct {
	router  *gin.Engine
	svc     *services.ConversationService
	media   *services.MemoryMediaStore
	reports *services.MemoryReportRepository
	bot     *recordingBot
}

func newHandlerFixture(t *testing.T, withBot bool) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.AI.Timeout = time.Second
	cfg.Telegram.WebhookSecret = "hook-secret"
	logger := observability.NewNopLogger()
	catalog := services.NewDefaultCatalog()
	media := services.NewMemoryMediaStore()
	reports := services.NewMemoryReportRepository()
	metrics := observability.NewConversationMetrics()
	svc := services.NewConversationService(cfg, services.NewMemoryDraftStore(catalog, logger), reports,
		fixedClassifier{}, catalog, metrics, logger)

	f := &handlerFixture{svc: svc, media: media, reports: reports}
	deps := RouterDeps{Conversation: svc, Catalog: catalog, Media: media, Metrics: metrics}
	if withBot {
		f.bot = &recordingBot{}
		deps.Bot = f.bot
	}
	f.router = NewRouter(cfg, deps, logger)
	gin.SetMode(gin.TestMode)
	return f
}

func (f *handlerFixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	}
	return w, response
}

func dataOf(t *testing.T, response map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := response["data"].(map[string]interface{})
	require.True(t, ok, "response has no data: %v", response)
	return data
}

func photoDataURL() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegHeader)
}

func TestWebApp_FullFlow(t *testing.T) {
	f := newHandlerFixture(t, false)

	w, resp := f.do(t, http.MethodPost, "/api/location", gin.H{"user_id": webUser, "latitude": 35.17, "longitude": 33.36})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "prompt_for_media", resp["action_type"])

	w, resp = f.do(t, http.MethodPost, "/api/upload-photo", gin.H{"user_id": webUser, "photo": photoDataURL()})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "show_review_screen", resp["action_type"])
	draft := dataOf(t, resp)["draft"].(map[string]interface{})
	assert.Equal(t, "Damage", draft["category"])
	assert.Equal(t, "Cracked asphalt", draft["description"])

	obj, err := f.media.Get(context.Background(), draft["media_ref"].(string))
	require.NoError(t, err)
	assert.Equal(t, jpegHeader, obj.Data)

	w, resp = f.do(t, http.MethodPost, "/api/update-description", gin.H{
		"user_id": webUser, "description": "Broken street light", "category": "Vandalism", "subcategory": "Lighting",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "show_review_screen", resp["action_type"])
	draft = dataOf(t, resp)["draft"].(map[string]interface{})
	assert.Equal(t, "Vandalism", draft["category"])
	assert.Equal(t, "Lighting", draft["subcategory"])
	assert.Equal(t, "Broken street light", draft["description"])
	assert.Equal(t, "user", draft["description_source"])

	w, resp = f.do(t, http.MethodPost, "/api/events", gin.H{"user_id": webUser, "event_type": "submit_requested", "event_id": "web-1"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "confirmed", resp["action_type"])
	reportID := dataOf(t, resp)["report_id"].(string)

	report, err := f.reports.Get(context.Background(), reportID)
	require.NoError(t, err)
	assert.Equal(t, "Lighting", report.Subcategory)

	w, resp = f.do(t, http.MethodGet, "/api/drafts/4242", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, resp["draft"])
	assert.Equal(t, "prompt_for_location", resp["action"].(map[string]interface{})["action_type"])
}

func TestWebApp_UploadWithCoordinatesSetsLocation(t *testing.T) {
	f := newHandlerFixture(t, false)

	w, resp := f.do(t, http.MethodPost, "/api/upload-photo", gin.H{
		"user_id": webUser, "photo": base64.StdEncoding.EncodeToString(jpegHeader), "latitude": 34.7, "longitude": 33.0,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "show_review_screen", resp["action_type"])

	draft, _, err := f.svc.Current(context.Background(), webUser)
	require.NoError(t, err)
	require.NotNil(t, draft.Location)
	assert.InDelta(t, 34.7, draft.Location.Latitude, 1e-9)
}

func TestWebApp_UploadWithoutLocationIsRejected(t *testing.T) {
	f := newHandlerFixture(t, false)

	w, resp := f.do(t, http.MethodPost, "/api/upload-photo", gin.H{"user_id": webUser, "photo": photoDataURL()})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rejected", resp["action_type"])
	retry := dataOf(t, resp)["retry"].(map[string]interface{})
	assert.Equal(t, "prompt_for_location", retry["action_type"])
}

func TestWebApp_InvalidPairIsRejectedWithoutChange(t *testing.T) {
	f := newHandlerFixture(t, false)
	f.do(t, http.MethodPost, "/api/location", gin.H{"user_id": webUser, "latitude": 35.17, "longitude": 33.36})
	f.do(t, http.MethodPost, "/api/upload-photo", gin.H{"user_id": webUser, "photo": photoDataURL()})
	before, _, err := f.svc.Current(context.Background(), webUser)
	require.NoError(t, err)

	w, resp := f.do(t, http.MethodPost, "/api/update-description", gin.H{
		"user_id": webUser, "description": "whatever", "category": "Flood", "subcategory": "Lighting",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rejected", resp["action_type"])

	after, _, err := f.svc.Current(context.Background(), webUser)
	require.NoError(t, err)
	assert.Equal(t, before.Revision, after.Revision)
	assert.Equal(t, "Cracked asphalt", after.Description)
}

func TestWebApp_PairChangeBeforeReviewWritesNothing(t *testing.T) {
	f := newHandlerFixture(t, false)
	f.do(t, http.MethodPost, "/api/location", gin.H{"user_id": webUser, "latitude": 35.17, "longitude": 33.36})
	before, _, err := f.svc.Current(context.Background(), webUser)
	require.NoError(t, err)
	require.Equal(t, models.StageAwaitingMedia, before.Stage)

	w, resp := f.do(t, http.MethodPost, "/api/update-description", gin.H{
		"user_id": webUser, "description": "Flooded underpass", "category": "Damage", "subcategory": "Road",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rejected", resp["action_type"])

	after, _, err := f.svc.Current(context.Background(), webUser)
	require.NoError(t, err)
	assert.Equal(t, before.Revision, after.Revision)
	assert.Empty(t, after.Description)
	assert.Empty(t, after.Category)
}

func TestWebApp_BadRequests(t *testing.T) {
	f := newHandlerFixture(t, false)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"location missing user", http.MethodPost, "/api/location", gin.H{"latitude": 1.0, "longitude": 1.0}, http.StatusBadRequest},
		{"location missing latitude", http.MethodPost, "/api/location", gin.H{"user_id": webUser, "longitude": 1.0}, http.StatusBadRequest},
		{"latitude out of range", http.MethodPost, "/api/location", gin.H{"user_id": webUser, "latitude": 91.0, "longitude": 1.0}, http.StatusBadRequest},
		{"photo missing", http.MethodPost, "/api/upload-photo", gin.H{"user_id": webUser}, http.StatusBadRequest},
		{"photo not base64", http.MethodPost, "/api/upload-photo", gin.H{"user_id": webUser, "photo": "%%%"}, http.StatusBadRequest},
		{"subcategory without category pair", http.MethodPost, "/api/update-description", gin.H{"user_id": webUser, "description": "x", "category": "Damage"}, http.StatusBadRequest},
		{"unknown event type", http.MethodPost, "/api/events", gin.H{"user_id": webUser, "event_type": "teleport"}, http.StatusBadRequest},
		{"event without payload", http.MethodPost, "/api/events", gin.H{"user_id": webUser, "event_type": "location_received"}, http.StatusBadRequest},
		{"bad user id", http.MethodGet, "/api/drafts/abc", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, resp["code"])
		})
	}
}

func TestWebApp_GenericEvents(t *testing.T) {
	f := newHandlerFixture(t, false)

	_, resp := f.do(t, http.MethodPost, "/api/events", gin.H{
		"user_id": webUser, "event_type": "location_received", "event_id": "e1",
		"payload": gin.H{"latitude": 35.0, "longitude": 33.0},
	})
	assert.Equal(t, "prompt_for_media", resp["action_type"])

	_, resp = f.do(t, http.MethodPost, "/api/events", gin.H{
		"user_id": webUser, "event_type": "media_received", "event_id": "e2",
		"payload": gin.H{"kind": "audio", "transcript": "there is a fallen tree on the road"},
	})
	assert.Equal(t, "show_review_screen", resp["action_type"])

	_, resp = f.do(t, http.MethodPost, "/api/events", gin.H{"user_id": webUser, "event_type": "change_category_requested"})
	assert.Equal(t, "show_category_list", resp["action_type"])

	_, resp = f.do(t, http.MethodPost, "/api/events", gin.H{
		"user_id": webUser, "event_type": "category_chosen", "payload": gin.H{"index": 3},
	})
	require.Equal(t, "show_subcategory_list", resp["action_type"])
	assert.Equal(t, "Vegetation, tree (fall / pruning)", dataOf(t, resp)["category"])

	// a redelivered event id is not applied again; the current step is re-shown
	_, resp = f.do(t, http.MethodPost, "/api/events", gin.H{
		"user_id": webUser, "event_type": "location_received", "event_id": "e1",
		"payload": gin.H{"latitude": 35.0, "longitude": 33.0},
	})
	assert.Equal(t, "show_subcategory_list", resp["action_type"])
}

func TestWebApp_MirrorsActionsToChat(t *testing.T) {
	f := newHandlerFixture(t, true)

	w, _ := f.do(t, http.MethodPost, "/api/location", gin.H{"user_id": webUser, "latitude": 35.17, "longitude": 33.36})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.bot.notified, 1)
	assert.Equal(t, models.ActionPromptForMedia, f.bot.notified[0].Type)

	f.bot.err = assert.AnError
	w, resp := f.do(t, http.MethodPost, "/api/upload-photo", gin.H{"user_id": webUser, "photo": photoDataURL()})
	assert.Equal(t, http.StatusOK, w.Code, "a failed mirror does not fail the request")
	assert.Equal(t, "show_review_screen", resp["action_type"])
}
