package api

import (
	"github.com/hackgods/agendavet-scheduling/internal/appointment"
	"github.com/hackgods/agendavet-scheduling/internal/localstate"
)

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type StatusAction struct {
	Status appointment.Status `json:"status"`
	Label  string             `json:"label"`
	Action string             `json:"action"`
}

type NextStatusesResponse struct {
	Status   appointment.Status `json:"status"`
	Label    string             `json:"label"`
	Terminal bool               `json:"terminal"`
	Next     []StatusAction     `json:"next"`
}

// PetResponse and AppointmentResponse report PendingSync when the write was
// queued for a later drain instead of reaching the remote store.
type PetResponse struct {
	Pet               localstate.Pet `json:"pet"`
	PendingSync       bool           `json:"pending_sync"`
	PendingOperations int            `json:"pending_operations"`
}

type AppointmentResponse struct {
	Appointment       localstate.Appointment `json:"appointment"`
	PendingSync       bool                   `json:"pending_sync"`
	PendingOperations int                    `json:"pending_operations"`
}

type QueueResponse struct {
	Operations []localstate.Operation `json:"operations"`
}

type RetryResponse struct {
	Retried int `json:"retried"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
