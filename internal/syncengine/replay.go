package syncengine

import (
	"context"
	"fmt"

	"github.com/hackgods/agendavet-scheduling/internal/appointment"
	"github.com/hackgods/agendavet-scheduling/internal/localstate"
	"github.com/hackgods/agendavet-scheduling/internal/remote"
)

// replay applies one queued operation against the remote store.
func (e *Engine) replay(ctx context.Context, op localstate.Operation) error {
	switch op.Type {
	case localstate.OpCreatePet:
		var pet localstate.Pet
		if err := op.DecodePayload(&pet); err != nil {
			return &remote.Error{Kind: remote.ErrValidation, Op: "replay", Table: remote.TablePets, Err: err}
		}
		pet.UserID = op.UserID
		_, err := e.insert(ctx, remote.TablePets, pet)
		return err

	case localstate.OpCreateAppointmentRequest:
		var appt localstate.Appointment
		if err := op.DecodePayload(&appt); err != nil {
			return &remote.Error{Kind: remote.ErrValidation, Op: "replay", Table: remote.TableAppointmentRequests, Err: err}
		}
		appt.UserID = op.UserID
		_, err := e.insert(ctx, remote.TableAppointmentRequests, appt)
		return err

	case localstate.OpUpdateAppointmentStatus:
		var change StatusChange
		if err := op.DecodePayload(&change); err != nil {
			return &remote.Error{Kind: remote.ErrValidation, Op: "replay", Table: remote.TableAppointmentRequests, Err: err}
		}
		_, err := e.applyStatusChange(ctx, change)
		return err

	default:
		return &remote.Error{Kind: remote.ErrValidation, Op: "replay", Err: fmt.Errorf("unknown operation type %q", op.Type)}
	}
}

// applyStatusChange re-reads the remote row and validates the transition
// against its current status, since a queued change may be stale by the time
// it runs. A row already in the target status counts as applied.
func (e *Engine) applyStatusChange(ctx context.Context, change StatusChange) (remote.Row, error) {
	rows, err := e.remote.Query(ctx, remote.TableAppointmentRequests, remote.Filter{
		Eq: map[string]any{"id": change.AppointmentID},
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &remote.Error{Kind: remote.ErrNotFound, Op: "update", Table: remote.TableAppointmentRequests}
	}

	current := appointment.Status(fmt.Sprint(rows[0]["status"]))
	if current == change.To {
		return rows[0], nil
	}
	if err := appointment.ValidateTransition(current, change.To); err != nil {
		return nil, &remote.Error{Kind: remote.ErrValidation, Op: "update", Table: remote.TableAppointmentRequests, Err: err}
	}

	return e.remote.Update(ctx, remote.TableAppointmentRequests, change.AppointmentID, remote.Row{
		"status":     string(change.To),
		"updated_at": change.UpdatedAt,
	})
}
