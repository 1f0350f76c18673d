package appointment

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a persisted appointment request.
type Status string

const (
	StatusPending         Status = "pending"
	StatusConfirmed       Status = "confirmed"
	StatusReminderSent    Status = "reminder_sent"
	StatusCheckedIn       Status = "checked_in"
	StatusInProgress      Status = "in_progress"
	StatusCompleted       Status = "completed"
	StatusReturnScheduled Status = "return_scheduled"
	StatusCancelled       Status = "cancelled"
	StatusNoShow          Status = "no_show"
)

// ErrInvalidStatusTransition is a validation error: it is never queued or retried.
var ErrInvalidStatusTransition = errors.New("invalid status transition")

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusReminderSent,
	StatusCheckedIn,
	StatusInProgress,
	StatusCompleted,
	StatusReturnScheduled,
	StatusCancelled,
	StatusNoShow,
}

// ActiveStatuses are the statuses of requests that still hold agenda time.
var ActiveStatuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusReminderSent,
	StatusCheckedIn,
	StatusInProgress,
}

var allowedTransitions = map[Status][]Status{
	StatusPending:         {StatusConfirmed, StatusCancelled},
	StatusConfirmed:       {StatusReminderSent, StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusReminderSent:    {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn:       {StatusInProgress, StatusCancelled},
	StatusInProgress:      {StatusCompleted, StatusCancelled},
	StatusCompleted:       {StatusReturnScheduled},
	StatusReturnScheduled: {},
	StatusCancelled:       {},
	StatusNoShow:          {},
}

var statusLabels = map[Status]string{
	StatusPending:         "Pendente",
	StatusConfirmed:       "Confirmado",
	StatusReminderSent:    "Lembrete Enviado",
	StatusCheckedIn:       "Check-in Realizado",
	StatusInProgress:      "Em Atendimento",
	StatusCompleted:       "Concluído",
	StatusReturnScheduled: "Retorno Agendado",
	StatusCancelled:       "Cancelado",
	StatusNoShow:          "Não Compareceu",
}

var actionLabels = map[Status]string{
	StatusConfirmed:       "Confirmar Agendamento",
	StatusReminderSent:    "Enviar Lembrete",
	StatusCheckedIn:       "Registrar Check-in",
	StatusInProgress:      "Iniciar Atendimento",
	StatusCompleted:       "Concluir Atendimento",
	StatusReturnScheduled: "Agendar Retorno",
	StatusCancelled:       "Cancelar",
	StatusNoShow:          "Marcar como Não Compareceu",
}

// ParseStatus validates a raw status value.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidStatusTransition, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// IsTerminal reports whether s has no legal successor.
func (s Status) IsTerminal() bool {
	return s.Valid() && len(allowedTransitions[s]) == 0
}

// Label is the display name shown to clinic staff.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// IsValidTransition reports whether to is an allowed successor of from.
func IsValidTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextPossibleActions returns the allowed successors of from. The slice is a
// copy and may be modified by the caller; it is empty for terminal or unknown
// statuses.
func NextPossibleActions(from Status) []Status {
	next := allowedTransitions[from]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// ActionLabel is the button label for moving an appointment into status.
func ActionLabel(status Status) string {
	if l, ok := actionLabels[status]; ok {
		return l
	}
	return string(status)
}

// ValidateTransition is IsValidTransition as an error for callers that persist.
func ValidateTransition(from, to Status) error {
	if !IsValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
	}
	return nil
}
