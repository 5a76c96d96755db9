package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"helpcy/internal/config"
	"helpcy/internal/observability"
	"helpcy/internal/services"
	"helpcy/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCleaner struct{ purged int }

func (c countingCleaner) CleanupIdleDrafts(context.Context) (int, error) { return c.purged, nil }

func newAdminRouter(t *testing.T, token string) (*gin.Engine, *worker.Worker) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Server.AdminToken = token
	logger := observability.NewNopLogger()
	w := worker.NewWorker(countingCleaner{purged: 2}, "draft-cleanup", time.Hour, logger)

	catalog := services.NewDefaultCatalog()
	router := NewRouter(cfg, RouterDeps{Catalog: catalog, Worker: w}, logger)
	gin.SetMode(gin.TestMode)
	return router, w
}

func adminRequest(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWorkerAdminHandler_RequiresToken(t *testing.T) {
	router, _ := newAdminRouter(t, "ops-token")

	assert.Equal(t, http.StatusUnauthorized, adminRequest(router, http.MethodGet, "/admin/worker", "").Code)
	assert.Equal(t, http.StatusUnauthorized, adminRequest(router, http.MethodGet, "/admin/worker", "guess").Code)
	assert.Equal(t, http.StatusOK, adminRequest(router, http.MethodGet, "/admin/worker", "ops-token").Code)
}

func TestWorkerAdminHandler_Operations(t *testing.T) {
	router, w := newAdminRouter(t, "ops-token")

	resp := adminRequest(router, http.MethodGet, "/admin/worker", "ops-token")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"instance":"draft-cleanup"`)
	assert.Contains(t, resp.Body.String(), `"history":[]`)

	resp = adminRequest(router, http.MethodPost, "/admin/worker/pause", "ops-token")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, w.GetStatus().IsPaused)

	resp = adminRequest(router, http.MethodPost, "/admin/worker/resume", "ops-token")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.False(t, w.GetStatus().IsPaused)

	resp = adminRequest(router, http.MethodPost, "/admin/worker/trigger", "ops-token")
	assert.Equal(t, http.StatusAccepted, resp.Code)
}

func TestWorkerAdminHandler_UnmountedWithoutToken(t *testing.T) {
	router, _ := newAdminRouter(t, "")
	assert.Equal(t, http.StatusNotFound, adminRequest(router, http.MethodGet, "/admin/worker", "").Code)
}
