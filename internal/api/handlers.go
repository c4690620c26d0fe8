package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pulsegrid/infradash/internal/cache"
	"github.com/pulsegrid/infradash/internal/logging"
	"github.com/pulsegrid/infradash/internal/registry"
	"github.com/pulsegrid/infradash/internal/scenario"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ConnectionsResponse reports the currently connected dashboard clients
type ConnectionsResponse struct {
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
}

// HandleGetConnections returns the connected client count and ids
func HandleGetConnections(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, ConnectionsResponse{Count: reg.Count(), IDs: reg.IDs()})
	}
}

// HandleGetLogs returns all stored log entries
func HandleGetLogs(logStore *logging.LogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logStore.GetAll())
	}
}

// HandleGetPlayback returns the current scenario playback status
func HandleGetPlayback(engine *scenario.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, engine.Status())
	}
}

// HandleGetScenarios returns summaries of all loaded scenario definitions
func HandleGetScenarios(catalog *scenario.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, catalog.List())
	}
}

// HandleGetLatest returns the latest cached values for all components
func HandleGetLatest(latest cache.LatestValues) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		names, err := latest.Components(ctx)
		if err != nil {
			http.Error(w, "Failed to read cache", http.StatusInternalServerError)
			return
		}

		entries := make([]cache.Entry, 0, len(names))
		for _, name := range names {
			entry, exists, err := latest.Get(ctx, name)
			if err != nil {
				http.Error(w, "Failed to read cache", http.StatusInternalServerError)
				return
			}
			if exists {
				entries = append(entries, entry)
			}
		}
		writeJSON(w, entries)
	}
}

// Pinger is a store that can report its own health
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse is the /healthz payload
type HealthResponse struct {
	Status string            `json:"status"`
	Stores map[string]string `json:"stores"`
}

// HandleHealthz pings every store and reports per-store status.
// Responds 503 when any store is down.
func HandleHealthz(stores map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := HealthResponse{Status: "ok", Stores: make(map[string]string, len(stores))}
		for name, p := range stores {
			if err := p.Ping(ctx); err != nil {
				resp.Status = "degraded"
				resp.Stores[name] = err.Error()
			} else {
				resp.Stores[name] = "ok"
			}
		}

		if resp.Status != "ok" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(resp)
			return
		}
		writeJSON(w, resp)
	}
}
