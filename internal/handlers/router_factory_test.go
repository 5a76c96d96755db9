package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"helpcy/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_OperationalEndpoints(t *testing.T) {
	f := newHandlerFixture(t, false)

	w, resp := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", resp["status"])

	w, resp = f.do(t, http.MethodGet, "/version", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "helpcy", resp["service"])
	assert.Contains(t, resp, "commit")

	w, resp = f.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "RECORD_NOT_FOUND", resp["code"])
}

func TestRouter_MetricsExposeConversationCounters(t *testing.T) {
	f := newHandlerFixture(t, false)
	f.do(t, http.MethodPost, "/api/location", gin.H{"user_id": webUser, "latitude": 35.17, "longitude": 33.36})

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "location_received")
}

func TestCatalogHandler(t *testing.T) {
	f := newHandlerFixture(t, false)

	w, resp := f.do(t, http.MethodGet, "/api/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	categories := resp["categories"].([]interface{})
	require.NotEmpty(t, categories)
	first := categories[0].(map[string]interface{})
	assert.Equal(t, "Damage", first["name"])
	assert.NotEmpty(t, first["subcategories"])

	w, resp = f.do(t, http.MethodGet, "/api/categories/subcategories?category=Vandalism", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, resp["subcategories"], "Lighting")

	w, _ = f.do(t, http.MethodGet, "/api/categories/subcategories", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = f.do(t, http.MethodGet, "/api/categories/subcategories?category=Meteor", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "RECORD_NOT_FOUND", resp["code"])
}

func postUpdate(f *handlerFixture, secret, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodPost, config.DefaultWebhookPath, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(secretHeader, secret)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestTelegramHandler_Webhook(t *testing.T) {
	f := newHandlerFixture(t, true)

	w := postUpdate(f, "hook-secret", `{"update_id": 77, "message": {"message_id": 1, "chat": {"id": 9}, "text": "/help"}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok": true}`, w.Body.String())
	assert.Equal(t, []int64{77}, f.bot.updates)
	require.NotNil(t, f.bot.last.Message)
	assert.Equal(t, "/help", f.bot.last.Message.Text)
	assert.Equal(t, int64(9), f.bot.last.Message.Chat.ID)

	w = postUpdate(f, "wrong", `{"update_id": 78}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postUpdate(f, "", `{"update_id": 79}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postUpdate(f, "hook-secret", `{"update_id": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, []int64{77}, f.bot.updates, "rejected deliveries never reach the bot")
}

func TestTelegramHandler_CallbackOnOldMessage(t *testing.T) {
	f := newHandlerFixture(t, true)

	body := `{"update_id": 81, "callback_query": {"id": "cb-3", "from": {"id": 5}, "data": "submit_report",
		"message": {"message_id": 4, "date": 0, "chat": {"id": 5, "type": "private"}}}}`
	w := postUpdate(f, "hook-secret", body)
	require.Equal(t, http.StatusOK, w.Code)

	cb := f.bot.last.CallbackQuery
	require.NotNil(t, cb)
	assert.Equal(t, "submit_report", cb.Data)
	require.NotNil(t, cb.Message.InaccessibleMessage, "a zero date marks the message inaccessible")
	assert.Equal(t, int64(5), cb.Message.InaccessibleMessage.Chat.ID)
}

func TestTelegramHandler_FailuresAreAcknowledged(t *testing.T) {
	f := newHandlerFixture(t, true)
	f.bot.err = assert.AnError

	w := postUpdate(f, "hook-secret", `{"update_id": 80}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_WebhookAbsentWithoutBot(t *testing.T) {
	f := newHandlerFixture(t, false)

	w := postUpdate(f, "hook-secret", `{"update_id": 81}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), config.DefaultWebhookPath))
}
