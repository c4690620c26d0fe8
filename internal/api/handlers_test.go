package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulsegrid/infradash/internal/cache"
	"github.com/pulsegrid/infradash/internal/logging"
	"github.com/pulsegrid/infradash/internal/registry"
	"github.com/pulsegrid/infradash/internal/scenario"
)

func doGet(t *testing.T, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleGetScenarios(t *testing.T) {
	rec := doGet(t, HandleGetScenarios(scenario.DefaultCatalog()))
	require.Equal(t, http.StatusOK, rec.Code)

	var list []scenario.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.NotEmpty(t, list)

	found := false
	for _, s := range list {
		if s.ID == "trading-crisis" {
			found = true
			require.Greater(t, s.Steps, 0)
		}
	}
	require.True(t, found, "default catalog should include trading-crisis")
}

func TestHandleGetConnections(t *testing.T) {
	reg := registry.NewRegistry(logging.NewLogStore(10))
	rec := doGet(t, HandleGetConnections(reg))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConnectionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Zero(t, resp.Count)
}

func TestHandleGetLogs(t *testing.T) {
	logStore := logging.NewLogStore(10)
	logStore.Add("info", "hello")

	rec := doGet(t, HandleGetLogs(logStore))
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []logging.LogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "hello", entries[0].Message)
}

func TestHandleGetLatest(t *testing.T) {
	latest := cache.NewMemoryCache()
	require.NoError(t, latest.Put(context.Background(), cache.Entry{
		Component: "api-gateway",
		Metrics:   map[string]float64{"cpu_utilization": 44.4},
	}))

	rec := doGet(t, HandleGetLatest(latest))
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []cache.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "api-gateway", entries[0].Component)
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

func TestHandleHealthzOK(t *testing.T) {
	rec := doGet(t, HandleHealthz(map[string]Pinger{
		"metric-store": stubPinger{},
		"latest-cache": stubPinger{},
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, "ok", resp.Stores["metric-store"])
}

func TestHandleHealthzDegraded(t *testing.T) {
	rec := doGet(t, HandleHealthz(map[string]Pinger{
		"metric-store": stubPinger{err: errors.New("connection refused")},
		"latest-cache": stubPinger{},
	}))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "degraded", resp.Status)
	require.Contains(t, resp.Stores["metric-store"], "refused")
	require.Equal(t, "ok", resp.Stores["latest-cache"])
}
