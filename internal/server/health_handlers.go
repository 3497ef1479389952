package server

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 3 * time.Second

// HealthStatus represents operational status for the /health endpoint.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Database  string                 `json:"database"`
	Storage   string                 `json:"storage"`
	Albums    int                    `json:"albumCount"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// handleHealthCheck returns liveness plus database and storage checks.
func (ms *MusicServer) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: ms.now(),
		Database:  "ok",
		Storage:   "ok",
		Details:   make(map[string]interface{}),
	}

	if err := ms.db.Ping(ctx); err != nil {
		health.Status = "unhealthy"
		health.Database = "error"
		health.Details["database_error"] = err.Error()
	} else if albums, err := ms.db.ListAlbums(); err != nil {
		health.Details["album_count_error"] = err.Error()
	} else {
		health.Albums = len(albums)
	}

	if err := ms.store.Ping(ctx); err != nil {
		health.Status = "unhealthy"
		health.Storage = "error"
		health.Details["storage_error"] = err.Error()
	}

	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	ms.respondJSON(w, status, health)
}
