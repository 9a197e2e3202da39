package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qde/internal/config"
	"qde/internal/engine"
	"qde/internal/logger"
	"qde/internal/market"
	"qde/internal/store"
	"qde/internal/testutils"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Run.WindowSize = 40
	cfg.Regime.Lookback = 30
	cfg.API.Enabled = false
	cfg.Store.Checkpoint.Enabled = false

	source := market.NewReplaySource(testutils.TrendingBars("AAPL", 60, 100, 0.004))
	eng, err := engine.New(cfg, source, store.NewMemoryStore(), nil, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, eng.Run(context.Background()))

	return NewServer(":0", eng, logger.NewNopLogger())
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.http.Handler.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t)

	rec, body := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["run_id"])
}

func TestStatusEndpoint(t *testing.T) {
	s := testServer(t)

	rec, body := get(t, s, "/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 60, body["steps_done"])
	assert.Positive(t, body["equity"].(float64))
}

func TestDecisionsEndpointHonorsLimit(t *testing.T) {
	s := testServer(t)

	_, body := get(t, s, "/decisions?limit=5")
	decisions := body["decisions"].([]interface{})
	assert.Len(t, decisions, 5)

	// A bad limit falls back to the default.
	rec, _ := get(t, s, "/decisions?limit=banana")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuditEndpoint(t *testing.T) {
	s := testServer(t)

	rec, body := get(t, s, "/audit?limit=10")
	assert.Equal(t, http.StatusOK, rec.Code)
	records := body["records"].([]interface{})
	assert.NotEmpty(t, records)
	assert.LessOrEqual(t, len(records), 10)
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.http.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "qde_portfolio_equity")
}