package health

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"roombook/pkg/logger"

	"github.com/go-redis/redismock/v9"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(h *HealthHandler, path string) (*httptest.ResponseRecorder, HealthResponse) {
	router := httprouter.New()
	h.RegisterRoutes(router)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp HealthResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestHealth(t *testing.T) {
	rec, resp := serve(NewHealthHandler(nil, nil, logger.New(logger.Config{Output: io.Discard})), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp.Status)
}

func TestReady_Redis(t *testing.T) {
	log := logger.New(logger.Config{Output: io.Discard})

	t.Run("reachable", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectPing().SetVal("PONG")

		rec, resp := serve(NewHealthHandler(nil, client, log), "/ready")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ready", resp.Status)
		assert.Equal(t, "ok", resp.Components["cache"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unreachable", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectPing().SetErr(errors.New("connection refused"))

		rec, resp := serve(NewHealthHandler(nil, client, log), "/ready")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "unavailable", resp.Status)
		assert.Equal(t, "error", resp.Components["cache"])
	})
}
