package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger is satisfied by the Postgres pool and remote.PgStore.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStatus is satisfied by kvstore.Fallback.
type KVStatus interface {
	Degraded() bool
}

type HealthHandler struct {
	remote  Pinger
	kv      KVStatus
	env     string
	version string
}

func NewHealthHandler(remote Pinger, kv KVStatus, env, version string) *HealthHandler {
	return &HealthHandler{
		remote:  remote,
		kv:      kv,
		env:     env,
		version: version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	resp := LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	}
	writeJSON(w, http.StatusOK, resp)
}

// Readiness never reports the agent down: it keeps serving from local state
// while the remote store is offline or the durable KV store has degraded.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	deps := make(map[string]string)
	status := "ok"

	if h.remote != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		err := h.remote.Ping(ctx)
		cancel()
		if err != nil {
			deps["postgres"] = "offline"
			status = "degraded"
		} else {
			deps["postgres"] = "ok"
		}
	}

	if h.kv != nil {
		if h.kv.Degraded() {
			deps["local_store"] = "memory_only"
			status = "degraded"
		} else {
			deps["local_store"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	})
}
