package appointment

import (
	"errors"
	"testing"
)

func TestIsValidTransitionExhaustive(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:         true,
		{StatusPending, StatusCancelled}:         true,
		{StatusConfirmed, StatusReminderSent}:    true,
		{StatusConfirmed, StatusCheckedIn}:       true,
		{StatusConfirmed, StatusCancelled}:       true,
		{StatusConfirmed, StatusNoShow}:          true,
		{StatusReminderSent, StatusCheckedIn}:    true,
		{StatusReminderSent, StatusCancelled}:    true,
		{StatusReminderSent, StatusNoShow}:       true,
		{StatusCheckedIn, StatusInProgress}:      true,
		{StatusCheckedIn, StatusCancelled}:       true,
		{StatusInProgress, StatusCompleted}:      true,
		{StatusInProgress, StatusCancelled}:      true,
		{StatusCompleted, StatusReturnScheduled}: true,
	}

	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			want := allowed[[2]Status{from, to}]
			if got := IsValidTransition(from, to); got != want {
				t.Errorf("IsValidTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
			if err := ValidateTransition(from, to); (err == nil) != want {
				t.Errorf("ValidateTransition(%s, %s) = %v", from, to, err)
			} else if err != nil && !errors.Is(err, ErrInvalidStatusTransition) {
				t.Errorf("ValidateTransition error %v does not wrap ErrInvalidStatusTransition", err)
			}
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := map[Status]bool{
		StatusReturnScheduled: true,
		StatusCancelled:       true,
		StatusNoShow:          true,
	}
	for _, s := range AllStatuses {
		if s.IsTerminal() != terminal[s] {
			t.Errorf("%s.IsTerminal() = %v", s, s.IsTerminal())
		}
		if terminal[s] && len(NextPossibleActions(s)) != 0 {
			t.Errorf("NextPossibleActions(%s) should be empty", s)
		}
	}
}

func TestNextPossibleActionsReturnsCopy(t *testing.T) {
	next := NextPossibleActions(StatusPending)
	next[0] = StatusNoShow

	if !IsValidTransition(StatusPending, StatusConfirmed) {
		t.Fatal("mutating the returned slice changed the transition table")
	}
	if got := NextPossibleActions(StatusPending); got[0] != StatusConfirmed {
		t.Errorf("NextPossibleActions(pending)[0] = %s", got[0])
	}
}

func TestUnknownStatus(t *testing.T) {
	if _, err := ParseStatus("expired"); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Errorf("ParseStatus(expired) = %v", err)
	}
	if IsValidTransition("expired", StatusConfirmed) {
		t.Error("unknown source status must not transition")
	}
	if got := NextPossibleActions("expired"); len(got) != 0 {
		t.Errorf("NextPossibleActions(expired) = %v", got)
	}
}

func TestLabels(t *testing.T) {
	tests := []struct {
		status Status
		label  string
		action string
	}{
		{StatusConfirmed, "Confirmado", "Confirmar Agendamento"},
		{StatusCheckedIn, "Check-in Realizado", "Registrar Check-in"},
		{StatusNoShow, "Não Compareceu", "Marcar como Não Compareceu"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Label(); got != tt.label {
				t.Errorf("Label() = %q, want %q", got, tt.label)
			}
			if got := ActionLabel(tt.status); got != tt.action {
				t.Errorf("ActionLabel() = %q, want %q", got, tt.action)
			}
		})
	}
}
