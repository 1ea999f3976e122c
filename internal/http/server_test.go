package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluereef/baymonitor/internal/config"
	"github.com/bluereef/baymonitor/internal/store"
)

func f(v float64) *float64 { return &v }

func testConfig() config.Config {
	return config.Config{
		Port:         8080,
		DefaultLimit: 100,
		MaxLimit:     1000,
		StoreTimeout: 5 * time.Second,
	}
}

func newTestServer(t *testing.T, seed []store.Observation) (*Server, *store.Memstore) {
	t.Helper()
	mem := store.NewMemstore()
	if len(seed) > 0 {
		_, err := mem.UpsertMany(context.Background(), seed)
		require.NoError(t, err)
	}
	return New(testConfig(), mem), mem
}

func seedRows(n int) []store.Observation {
	base := time.Date(2022, 10, 7, 9, 0, 0, 0, time.UTC)
	rows := make([]store.Observation, n)
	for i := range rows {
		rows[i] = store.Observation{
			Ts:          base.Add(time.Duration(i) * time.Minute),
			Temperature: f(20 + float64(i)),
			ODO:         f(float64(i + 1)),
			Source:      "oct7",
		}
	}
	return rows
}

func doGet(t *testing.T, srv *Server, path string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Engine().ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w.Code, body
}

func TestHealthAlwaysOK(t *testing.T) {
	srv, mem := newTestServer(t, nil)

	code, body := doGet(t, srv, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "up", body["store"])

	mem.SetUnavailable(true)
	code, body = doGet(t, srv, "/health")
	assert.Equal(t, http.StatusOK, code) // degraded, never 5xx
	assert.Equal(t, "down", body["store"])
}

func TestObservationsReturnsCountAndItems(t *testing.T) {
	srv, _ := newTestServer(t, seedRows(5))

	code, body := doGet(t, srv, "/api/observations")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(5), body["count"])
	assert.Len(t, body["items"], 5)
}

func TestObservationsLimitZeroKeepsTrueCount(t *testing.T) {
	srv, _ := newTestServer(t, seedRows(5))

	code, body := doGet(t, srv, "/api/observations?limit=0&skip=0")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(5), body["count"])
	assert.Empty(t, body["items"])
}

func TestObservationsSkipPastEnd(t *testing.T) {
	srv, _ := newTestServer(t, seedRows(5))

	code, body := doGet(t, srv, "/api/observations?skip=50")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(5), body["count"])
	assert.Empty(t, body["items"])
}

func TestObservationsRangeFilter(t *testing.T) {
	srv, _ := newTestServer(t, seedRows(5)) // odo 1..5

	code, body := doGet(t, srv, "/api/observations?min_odo=3")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), body["count"]) // inclusive lower bound
}

func TestObservationsUnknownParameterIs400(t *testing.T) {
	srv, _ := newTestServer(t, seedRows(5))

	code, body := doGet(t, srv, "/api/observations?foo=1")
	require.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "foo")
}

func TestObservationsStoreDownIs503(t *testing.T) {
	srv, mem := newTestServer(t, seedRows(2))
	mem.SetUnavailable(true)

	code, _ := doGet(t, srv, "/api/observations")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestOutliersRequiredParameters(t *testing.T) {
	srv, _ := newTestServer(t, seedRows(5))

	for _, path := range []string{
		"/api/outliers",
		"/api/outliers?field=odo",
		"/api/outliers?field=odo&method=z-score",
		"/api/outliers?field=odo&method=bogus&k=3",
		"/api/outliers?field=odo&method=iqr&k=0",
		"/api/outliers?field=odo&method=iqr&k=abc",
		"/api/outliers?field=odo&method=iqr&k=1.5&include=everything",
	} {
		code, _ := doGet(t, srv, path)
		assert.Equal(t, http.StatusBadRequest, code, path)
	}
}

func TestOutliersEndToEnd(t *testing.T) {
	rows := seedRows(10)
	rows[9].ODO = f(1000)
	srv, _ := newTestServer(t, rows)

	code, body := doGet(t, srv, "/api/outliers?field=odo&method=iqr&k=1.5")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	items := body["items"].([]any)
	require.Len(t, items, 1)
	record := items[0].(map[string]any)
	assert.Equal(t, float64(1000), record["odo"])
}

func TestOutliersUnknownFieldIsEmpty(t *testing.T) {
	srv, _ := newTestServer(t, seedRows(5))

	code, body := doGet(t, srv, "/api/outliers?field=turbidity&method=iqr&k=1.5")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])
	assert.Empty(t, body["items"])
}

func TestOutliersHonorsSelectionFilters(t *testing.T) {
	rows := seedRows(10)
	rows[9].ODO = f(1000)
	srv, _ := newTestServer(t, rows)

	// Statistics run over the currently selected subset: filtering the
	// extreme reading out leaves nothing to flag.
	code, body := doGet(t, srv, "/api/outliers?field=odo&method=iqr&k=1.5&max_odo=9")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])
}

func TestOutliersIncludeMinimal(t *testing.T) {
	rows := seedRows(10)
	rows[9].ODO = f(1000)
	srv, _ := newTestServer(t, rows)

	code, body := doGet(t, srv, "/api/outliers?field=odo&method=iqr&k=1.5&include=minimal")
	require.Equal(t, http.StatusOK, code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, float64(9), item["row_index"])
	assert.Equal(t, float64(1000), item["value"])
	assert.Contains(t, item, "ts")
}

func TestStatsEmptyResultIsEmptyItems(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	srv.Engine().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items": []}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "NaN")
}

func TestStatsDescribesFilteredRows(t *testing.T) {
	srv, _ := newTestServer(t, seedRows(4)) // odo 1..4

	code, body := doGet(t, srv, "/api/stats?min_odo=1")
	require.Equal(t, http.StatusOK, code)

	items := body["items"].([]any)
	require.NotEmpty(t, items)
	var odo map[string]any
	for _, it := range items {
		cs := it.(map[string]any)
		if cs["parameter"] == "odo" {
			odo = cs
		}
	}
	require.NotNil(t, odo)
	assert.Equal(t, float64(4), odo["count"])
	assert.Equal(t, 2.5, odo["mean"])
	assert.Equal(t, 2.5, odo["50%"])
}

func TestStatsGroupedBySource(t *testing.T) {
	rows := seedRows(4)
	rows[2].Source = "dec16"
	rows[3].Source = "dec16"
	srv, _ := newTestServer(t, rows)

	code, body := doGet(t, srv, "/api/stats?group_by=source")
	require.Equal(t, http.StatusOK, code)
	groups := body["groups"].([]any)
	require.Len(t, groups, 2)
	first := groups[0].(map[string]any)
	assert.Equal(t, "dec16", first["group"])
}

func TestStatsRejectsUnknownGroupBy(t *testing.T) {
	srv, _ := newTestServer(t, seedRows(2))
	code, _ := doGet(t, srv, "/api/stats?group_by=vessel")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestUploadIsIdempotent(t *testing.T) {
	srv, mem := newTestServer(t, nil)
	payload, err := json.Marshal(seedRows(3))
	require.NoError(t, err)

	post := func() (int, map[string]any) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		srv.Engine().ServeHTTP(w, req)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return w.Code, body
	}

	code, body := post()
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), body["upserted"])
	assert.Equal(t, float64(0), body["modified"])

	code, body = post()
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["upserted"])
	assert.Equal(t, float64(3), body["modified"])

	count, err := mem.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestUploadRejectsNonJSON(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	srv.Engine().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBearerAuthProtectsAPIButNotHealth(t *testing.T) {
	cfg := testConfig()
	cfg.BearerToken = "secret"
	srv := New(cfg, store.NewMemstore())

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/observations", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/observations", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", "secret"))
	srv.Engine().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
