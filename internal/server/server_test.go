// internal/server/server_test.go
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-calorie-log/internal/ledger"
	"mcp-calorie-log/internal/metrics"
	"mcp-calorie-log/internal/models"
	"mcp-calorie-log/internal/parser"
	"mcp-calorie-log/internal/storage"
	"mcp-calorie-log/internal/tracker"
)

type brokenStore struct{}

func (brokenStore) LoadLedger(context.Context, string) (*ledger.State, error) { return nil, nil }
func (brokenStore) SaveLedger(context.Context, string, ledger.State) error {
	return errors.New("disk I/O error")
}
func (brokenStore) ClearLedger(context.Context, string) error { return nil }
func (brokenStore) LoadSettings(_ context.Context, identity string) (models.Settings, error) {
	return models.DefaultSettings(identity), nil
}
func (brokenStore) SaveSettings(context.Context, models.Settings) error {
	return errors.New("disk I/O error")
}

type ledgerAndSettings interface {
	ledger.Store
	tracker.SettingsStore
}

func newTestServer(t *testing.T, store ledgerAndSettings) http.Handler {
	t.Helper()
	if store == nil {
		sqlite, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "server.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = sqlite.Close() })
		store = sqlite
	}

	m := metrics.New()
	tr := tracker.New(tracker.Deps{
		Parser:   parser.New(nil, parser.WithMetrics(m)),
		Ledgers:  ledger.NewRegistry(store, ledger.WithMetrics(m)),
		Settings: store,
		Logger:   zerolog.Nop(),
	})
	return NewCalorieLogServer(Config{Host: "127.0.0.1", Port: 0}, tr, m, zerolog.Nop()).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestLogMealEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	rec, body := do(t, h, http.MethodPost, "/api/log-meal",
		`{"userId":"alice","mealDescription":"A chicken sandwich and a side salad"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 950.0, body["daily_total"])

	meal := body["meal"].(map[string]interface{})
	assert.Equal(t, "A chicken sandwich and a side salad", meal["meal_name"])
	macros := meal["macronutrients"].(map[string]interface{})
	assert.Equal(t, 48.0, macros["protein"])

	rec, body = do(t, h, http.MethodGet, "/api/daily-total/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 950.0, body["total_calories"])
	meals := body["meals"].([]interface{})
	require.Len(t, meals, 1)
	summary := meals[0].(map[string]interface{})
	assert.Contains(t, summary, "logged_at")
	assert.NotContains(t, summary, "macronutrients")

	rec, body = do(t, h, http.MethodGet, "/api/meals/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	full := body["meals"].([]interface{})[0].(map[string]interface{})
	assert.Contains(t, full, "macronutrients")
}

func TestLogMealValidation(t *testing.T) {
	h := newTestServer(t, nil)

	rec, body := do(t, h, http.MethodPost, "/api/log-meal", `{"userId":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "userId and mealDescription are required", body["error"])

	rec, _ = do(t, h, http.MethodPost, "/api/log-meal", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/log-meal", `{"userId":"alice","mealDescription":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPersistenceFailureIsServerError(t *testing.T) {
	h := newTestServer(t, brokenStore{})

	rec, body := do(t, h, http.MethodPost, "/api/log-meal", `{"userId":"alice","mealDescription":"pizza"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", body["error"])

	rec, body = do(t, h, http.MethodGet, "/api/daily-total/alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, body["total_calories"])
}

func TestStructuredMealEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	rec, body := do(t, h, http.MethodPost, "/api/users/bob/meals",
		`{"name":"Lunch","ingredients":[{"name":"rice","amount":"1 cup","calories":100},{"name":"chicken","amount":"150g","calories":250}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	meal := body["meal"].(map[string]interface{})
	assert.Equal(t, 350.0, meal["estimated_calories"])
	assert.Equal(t, "Lunch", meal["meal_name"])
	assert.Equal(t, "manual", meal["source"])

	rec, _ = do(t, h, http.MethodPost, "/api/users/bob/meals",
		`{"meal_name":"Dinner","ingredients":[{"name":"soup","amount":"1 bowl","calories":"lots"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, h, http.MethodGet, "/api/users/bob/meals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 350.0, body["total_calories"])
}

func TestSettingsEndpoints(t *testing.T) {
	h := newTestServer(t, nil)

	rec, body := do(t, h, http.MethodGet, "/api/users/carol/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2000.0, body["target_calories"])

	rec, body = do(t, h, http.MethodPut, "/api/users/carol/settings", `{"target_calories":2600,"maintenance_calories":2200}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid input: target calories should not exceed maintenance calories", body["error"])

	rec, body = do(t, h, http.MethodPut, "/api/users/carol/settings", `{"target_calories":1900,"maintenance_calories":2200}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	_, _ = do(t, h, http.MethodPost, "/api/log-meal", `{"userId":"carol","mealDescription":"coffee"}`)

	rec, body = do(t, h, http.MethodGet, "/api/users/carol/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 305.0, body["total_calories"])
	assert.Equal(t, 1595.0, body["remaining_calories"])
}

func TestToolCalls(t *testing.T) {
	h := newTestServer(t, nil)

	toolText := func(body map[string]interface{}) map[string]interface{} {
		content := body["content"].([]interface{})
		require.Len(t, content, 1)
		first := content[0].(map[string]interface{})
		assert.Equal(t, "text", first["type"])
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(first["text"].(string)), &out))
		return out
	}

	rec, body := do(t, h, http.MethodPost, "/mcp",
		`{"name":"log_meal","arguments":{"user_id":"dave","description":"burger"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 800.0, toolText(body)["daily_total"])

	rec, body = do(t, h, http.MethodPost, "/mcp",
		`{"name":"log_structured_meal","arguments":{"user_id":"dave","meal_name":"Snack","ingredients":[{"name":"apple","amount":"1","calories":95}]}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 895.0, toolText(body)["daily_total"])

	rec, body = do(t, h, http.MethodPost, "/mcp", `{"name":"get_daily_total","arguments":{"user_id":"dave"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 895.0, toolText(body)["total_calories"])

	rec, body = do(t, h, http.MethodPost, "/mcp", `{"name":"estimate_meal","arguments":{"description":"rice"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500.0, toolText(body)["estimated_calories"])

	rec, body = do(t, h, http.MethodPost, "/mcp", `{"name":"get_meals","arguments":{"user_id":"dave"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, toolText(body)["meals"], 2)

	rec, body = do(t, h, http.MethodPost, "/mcp",
		`{"name":"update_settings","arguments":{"user_id":"dave","target_calories":1500,"maintenance_calories":2000}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1500.0, toolText(body)["target_calories"])

	rec, body = do(t, h, http.MethodPost, "/mcp", `{"name":"get_progress","arguments":{"user_id":"dave"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 605.0, toolText(body)["remaining_calories"])

	rec, _ = do(t, h, http.MethodPost, "/mcp", `{"name":"log_meal","arguments":{"user_id":"dave"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/mcp", `{"name":"drop_tables","arguments":{}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreflightHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, nil)

	rec, _ := do(t, h, http.MethodOptions, "/api/log-meal", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, POST, PUT, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

	rec, body := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Calorie log is running", body["message"])

	_, _ = do(t, h, http.MethodPost, "/api/log-meal", `{"userId":"erin","mealDescription":"salad"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	h.ServeHTTP(mrec, req)
	require.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), `calorielog_parser_fallbacks_total{reason="no_completer"} 1`)
	assert.Contains(t, mrec.Body.String(), `calorielog_meals_stored_total{source="fallback"} 1`)
}
