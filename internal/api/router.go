package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hackgods/agendavet-scheduling/internal/appointment"
	"github.com/hackgods/agendavet-scheduling/internal/localstate"
	"github.com/hackgods/agendavet-scheduling/internal/schedule"
	"github.com/hackgods/agendavet-scheduling/internal/syncengine"
)

type Suggester interface {
	Suggest(ctx context.Context, req appointment.SuggestRequest) (schedule.Result, error)
}

// SyncEngine is the part of syncengine.Engine the API exposes.
type SyncEngine interface {
	Snapshot(ctx context.Context, userID string) (syncengine.Snapshot, error)
	CreatePet(ctx context.Context, userID string, in syncengine.PetInput) (syncengine.PetResult, error)
	CreateAppointmentRequest(ctx context.Context, userID string, in syncengine.AppointmentInput) (syncengine.AppointmentResult, error)
	UpdateAppointmentStatus(ctx context.Context, userID, appointmentID string, to appointment.Status) (syncengine.AppointmentResult, error)
	Sync(ctx context.Context, userID string) (syncengine.SyncResult, error)
	QueueOperations(ctx context.Context, userID string) ([]localstate.Operation, error)
	RetryFailed(ctx context.Context, userID string) (int, error)
}

type RouterConfig struct {
	Suggestions Suggester
	Engine      SyncEngine
	Remote      Pinger
	KV          KVStatus
	Logger      zerolog.Logger
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Remote, cfg.KV, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/suggestions", suggestHandler(cfg.Suggestions))
	r.Get("/statuses/{status}/next", nextStatusesHandler())

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/snapshot", snapshotHandler(cfg.Engine))
		r.Post("/pets", createPetHandler(cfg.Engine))
		r.Post("/appointments", createAppointmentHandler(cfg.Engine))
		r.Post("/appointments/{id}/status", updateStatusHandler(cfg.Engine))
		r.Post("/sync", syncHandler(cfg.Engine))
		r.Get("/queue", queueHandler(cfg.Engine))
		r.Post("/queue/retry", retryHandler(cfg.Engine))
	})

	return r
}
