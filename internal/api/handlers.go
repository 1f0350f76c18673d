package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/agendavet-scheduling/internal/appointment"
	"github.com/hackgods/agendavet-scheduling/internal/remote"
	"github.com/hackgods/agendavet-scheduling/internal/schedule"
	"github.com/hackgods/agendavet-scheduling/internal/syncengine"
)

func suggestHandler(svc Suggester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appointment.SuggestRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := svc.Suggest(r.Context(), req)
		if err != nil {
			handleSuggestError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func nextStatusesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := appointment.Status(chi.URLParam(r, "status"))
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown_status", "unknown status "+string(status))
			return
		}

		resp := NextStatusesResponse{
			Status:   status,
			Label:    status.Label(),
			Terminal: status.IsTerminal(),
			Next:     []StatusAction{},
		}
		for _, next := range appointment.NextPossibleActions(status) {
			resp.Next = append(resp.Next, StatusAction{
				Status: next,
				Label:  next.Label(),
				Action: appointment.ActionLabel(next),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func snapshotHandler(engine SyncEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := engine.Snapshot(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			handleWriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func createPetHandler(engine SyncEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in syncengine.PetInput
		if !decodeJSON(w, r, &in) {
			return
		}

		res, err := engine.CreatePet(r.Context(), chi.URLParam(r, "userID"), in)
		if err != nil {
			handleWriteError(w, err)
			return
		}
		writeJSON(w, writeStatus(res.Queued, http.StatusCreated), PetResponse{
			Pet:               res.Pet,
			PendingSync:       res.Queued,
			PendingOperations: res.PendingOperations,
		})
	}
}

func createAppointmentHandler(engine SyncEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in syncengine.AppointmentInput
		if !decodeJSON(w, r, &in) {
			return
		}

		res, err := engine.CreateAppointmentRequest(r.Context(), chi.URLParam(r, "userID"), in)
		if err != nil {
			handleWriteError(w, err)
			return
		}
		writeJSON(w, writeStatus(res.Queued, http.StatusCreated), appointmentResponse(res))
	}
}

func updateStatusHandler(engine SyncEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		to := appointment.Status(req.Status)
		if !to.Valid() {
			writeError(w, http.StatusBadRequest, "unknown_status", "unknown status "+req.Status)
			return
		}

		res, err := engine.UpdateAppointmentStatus(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id"), to)
		if err != nil {
			handleWriteError(w, err)
			return
		}
		writeJSON(w, writeStatus(res.Queued, http.StatusOK), appointmentResponse(res))
	}
}

func syncHandler(engine SyncEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := engine.Sync(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			handleWriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func queueHandler(engine SyncEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ops, err := engine.QueueOperations(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			handleWriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, QueueResponse{Operations: ops})
	}
}

func retryHandler(engine SyncEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := engine.RetryFailed(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			handleWriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, RetryResponse{Retried: n})
	}
}

func appointmentResponse(res syncengine.AppointmentResult) AppointmentResponse {
	return AppointmentResponse{
		Appointment:       res.Appointment,
		PendingSync:       res.Queued,
		PendingOperations: res.PendingOperations,
	}
}

// writeStatus is 202 for writes that were queued instead of applied.
func writeStatus(queued bool, applied int) int {
	if queued {
		return http.StatusAccepted
	}
	return applied
}

func handleSuggestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrInvalidRequest),
		errors.Is(err, schedule.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointment.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	default:
		handleRemoteError(w, err)
	}
}

func handleWriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, syncengine.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, syncengine.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	default:
		handleRemoteError(w, err)
	}
}

func handleRemoteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, remote.ErrPermission):
		writeError(w, http.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, remote.ErrValidation), errors.Is(err, remote.ErrDuplicate):
		writeError(w, http.StatusBadRequest, "rejected_by_remote", err.Error())
	case errors.Is(err, remote.ErrConnectivity):
		writeError(w, http.StatusServiceUnavailable, "remote_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
