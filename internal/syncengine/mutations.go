package syncengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hackgods/agendavet-scheduling/internal/appointment"
	"github.com/hackgods/agendavet-scheduling/internal/localstate"
	"github.com/hackgods/agendavet-scheduling/internal/remote"
)

type PetInput struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Breed  *string  `json:"breed"`
	Age    *int     `json:"age"`
	Weight *float64 `json:"weight"`
	Notes  *string  `json:"notes"`
}

type AppointmentInput struct {
	PetID         string  `json:"pet_id"`
	PreferredDate string  `json:"preferred_date"`
	PreferredTime *string `json:"preferred_time"`
	Reason        string  `json:"reason"`
	Notes         *string `json:"notes"`
	ServiceID     *string `json:"service_id"`
}

// StatusChange is the payload of an update_appointment_status operation.
type StatusChange struct {
	AppointmentID string             `json:"appointment_id"`
	From          appointment.Status `json:"from"`
	To            appointment.Status `json:"to"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

type PetResult struct {
	Pet               localstate.Pet `json:"pet"`
	Queued            bool           `json:"queued"`
	PendingOperations int            `json:"pending_operations"`
}

type AppointmentResult struct {
	Appointment       localstate.Appointment `json:"appointment"`
	Queued            bool                   `json:"queued"`
	PendingOperations int                    `json:"pending_operations"`
}

// CreatePet writes a new pet remotely when possible. Offline, or when the
// write fails for connectivity, the pet is stored locally as pending and a
// create_pet operation is queued. Permission and validation failures are
// returned and nothing is stored.
func (e *Engine) CreatePet(ctx context.Context, userID string, in PetInput) (PetResult, error) {
	if userID == "" || strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Type) == "" {
		return PetResult{}, fmt.Errorf("%w: user, name and type are required", ErrValidation)
	}

	now := e.now()
	pet := localstate.Pet{
		ID:        e.newID(),
		UserID:    userID,
		Name:      strings.TrimSpace(in.Name),
		Type:      strings.TrimSpace(in.Type),
		Breed:     in.Breed,
		Age:       in.Age,
		Weight:    in.Weight,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	direct, err := e.canWriteDirectly(ctx, userID)
	if err != nil {
		return PetResult{}, err
	}
	if direct {
		row, err := e.insert(ctx, remote.TablePets, pet)
		switch {
		case err == nil:
			if row != nil {
				if err := remote.Decode(row, &pet); err != nil {
					return PetResult{}, err
				}
			}
			pet.SyncState = localstate.SyncSynced
			if err := e.state.UpsertLocalPet(ctx, userID, pet); err != nil {
				return PetResult{}, err
			}
			pending, err := e.state.GetPendingQueueCount(ctx, userID)
			return PetResult{Pet: pet, PendingOperations: pending}, err
		case !remote.IsRetryable(err):
			return PetResult{}, fmt.Errorf("create pet: %w", err)
		}
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("pet create deferred to offline queue")
	}

	payload := pet
	pet.SyncState = localstate.SyncPending
	if err := e.state.UpsertLocalPet(ctx, userID, pet); err != nil {
		return PetResult{}, err
	}
	if err := e.enqueue(ctx, localstate.OpCreatePet, userID, pet.ID, payload, now); err != nil {
		return PetResult{}, err
	}

	e.drainIfOnline(ctx, userID, direct)

	res := PetResult{Pet: pet, Queued: true}
	data, err := e.state.GetUserLocalData(ctx, userID)
	if err != nil {
		return res, err
	}
	for _, p := range data.Pets {
		if p.ID == pet.ID {
			res.Pet = p
		}
	}
	res.PendingOperations, err = e.state.GetPendingQueueCount(ctx, userID)
	return res, err
}

// CreateAppointmentRequest is CreatePet for appointment requests. New
// requests always start pending.
func (e *Engine) CreateAppointmentRequest(ctx context.Context, userID string, in AppointmentInput) (AppointmentResult, error) {
	if userID == "" || in.PetID == "" || strings.TrimSpace(in.Reason) == "" {
		return AppointmentResult{}, fmt.Errorf("%w: user, pet and reason are required", ErrValidation)
	}
	if _, err := time.Parse(time.DateOnly, in.PreferredDate); err != nil {
		return AppointmentResult{}, fmt.Errorf("%w: preferred_date must be YYYY-MM-DD", ErrValidation)
	}

	now := e.now()
	appt := localstate.Appointment{
		ID:            e.newID(),
		UserID:        userID,
		PetID:         in.PetID,
		PreferredDate: in.PreferredDate,
		PreferredTime: in.PreferredTime,
		Reason:        strings.TrimSpace(in.Reason),
		Notes:         in.Notes,
		Status:        appointment.StatusPending,
		ServiceID:     in.ServiceID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	direct, err := e.canWriteDirectly(ctx, userID)
	if err != nil {
		return AppointmentResult{}, err
	}
	if direct {
		row, err := e.insert(ctx, remote.TableAppointmentRequests, appt)
		switch {
		case err == nil:
			if row != nil {
				if err := remote.Decode(row, &appt); err != nil {
					return AppointmentResult{}, err
				}
			}
			appt.SyncState = localstate.SyncSynced
			return e.storeAppointment(ctx, userID, appt)
		case !remote.IsRetryable(err):
			return AppointmentResult{}, fmt.Errorf("create appointment request: %w", err)
		}
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("appointment request deferred to offline queue")
	}

	payload := appt
	appt.SyncState = localstate.SyncPending
	return e.queueAppointment(ctx, userID, appt, localstate.OpCreateAppointmentRequest, payload, direct)
}

// UpdateAppointmentStatus moves an appointment to status to. The transition
// is checked against the local copy before anything is written, and again
// against the remote row when the change is applied.
func (e *Engine) UpdateAppointmentStatus(ctx context.Context, userID, appointmentID string, to appointment.Status) (AppointmentResult, error) {
	data, err := e.state.GetUserLocalData(ctx, userID)
	if err != nil {
		return AppointmentResult{}, err
	}
	var appt *localstate.Appointment
	for i := range data.Appointments {
		if data.Appointments[i].ID == appointmentID {
			appt = &data.Appointments[i]
			break
		}
	}
	if appt == nil {
		return AppointmentResult{}, fmt.Errorf("%w: appointment %s", ErrNotFound, appointmentID)
	}
	if err := appointment.ValidateTransition(appt.Status, to); err != nil {
		return AppointmentResult{}, err
	}

	now := e.now()
	change := StatusChange{AppointmentID: appointmentID, From: appt.Status, To: to, UpdatedAt: now}

	direct, err := e.canWriteDirectly(ctx, userID)
	if err != nil {
		return AppointmentResult{}, err
	}
	if direct {
		row, err := e.applyStatusChange(ctx, change)
		switch {
		case err == nil:
			if err := remote.Decode(row, appt); err != nil {
				return AppointmentResult{}, err
			}
			appt.SyncState = localstate.SyncSynced
			return e.storeAppointment(ctx, userID, *appt)
		case !remote.IsRetryable(err):
			return AppointmentResult{}, fmt.Errorf("update appointment status: %w", err)
		}
		e.logger.Warn().Err(err).Str("appointment_id", appointmentID).Msg("status change deferred to offline queue")
	}

	appt.Status = to
	appt.UpdatedAt = now
	appt.SyncState = localstate.SyncPending
	return e.queueAppointment(ctx, userID, *appt, localstate.OpUpdateAppointmentStatus, change, direct)
}

// canWriteDirectly is true when the store is reachable and the user has no
// queued work that must be applied first.
func (e *Engine) canWriteDirectly(ctx context.Context, userID string) (bool, error) {
	if !e.probe.Online(ctx) {
		return false, nil
	}
	pending, err := e.state.GetPendingQueueCount(ctx, userID)
	if err != nil {
		return false, err
	}
	return pending == 0, nil
}

// insert treats a duplicate key as success: ids are generated here, so a
// duplicate means an earlier attempt was applied.
func (e *Engine) insert(ctx context.Context, table string, record any) (remote.Row, error) {
	row, err := remote.ToRow(record)
	if err != nil {
		return nil, err
	}
	delete(row, "sync_state")
	delete(row, "pets")

	inserted, err := e.remote.Insert(ctx, table, row)
	if errors.Is(err, remote.ErrDuplicate) {
		return nil, nil
	}
	return inserted, err
}

func (e *Engine) enqueue(ctx context.Context, typ localstate.OperationType, userID, entityID string, payload any, now time.Time) error {
	op, err := localstate.NewOperation(e.newID(), typ, userID, entityID, payload, now)
	if err != nil {
		return err
	}
	if err := e.state.UpsertQueueOperation(ctx, op); err != nil {
		return fmt.Errorf("queue %s: %w", typ, err)
	}
	e.logger.Debug().Str("operation_id", op.ID).Str("type", string(typ)).Str("user_id", userID).Msg("operation queued")
	return nil
}

// drainIfOnline applies the queue right away when the write was queued only
// because older operations were ahead of it. Failures stay queued for the
// next pass.
func (e *Engine) drainIfOnline(ctx context.Context, userID string, triedDirect bool) {
	if triedDirect || !e.probe.Online(ctx) {
		return
	}
	if _, err := e.Drain(ctx, userID); err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("drain after enqueue failed")
	}
}

func (e *Engine) withPetSummary(ctx context.Context, userID string, appt localstate.Appointment) (localstate.Appointment, error) {
	if appt.Pet != nil {
		return appt, nil
	}
	data, err := e.state.GetUserLocalData(ctx, userID)
	if err != nil {
		return appt, err
	}
	for _, p := range data.Pets {
		if p.ID == appt.PetID {
			s := p.Summary()
			appt.Pet = &s
			break
		}
	}
	return appt, nil
}

func (e *Engine) storeAppointment(ctx context.Context, userID string, appt localstate.Appointment) (AppointmentResult, error) {
	appt, err := e.withPetSummary(ctx, userID, appt)
	if err != nil {
		return AppointmentResult{}, err
	}
	if err := e.state.UpsertLocalAppointment(ctx, userID, appt); err != nil {
		return AppointmentResult{}, err
	}
	pending, err := e.state.GetPendingQueueCount(ctx, userID)
	return AppointmentResult{Appointment: appt, PendingOperations: pending}, err
}

// queueAppointment stores the optimistic record before its operation so a
// drain can never mark a record that is not there yet.
func (e *Engine) queueAppointment(ctx context.Context, userID string, appt localstate.Appointment, typ localstate.OperationType, payload any, triedDirect bool) (AppointmentResult, error) {
	appt, err := e.withPetSummary(ctx, userID, appt)
	if err != nil {
		return AppointmentResult{}, err
	}
	if err := e.state.UpsertLocalAppointment(ctx, userID, appt); err != nil {
		return AppointmentResult{}, err
	}
	if err := e.enqueue(ctx, typ, userID, appt.ID, payload, appt.UpdatedAt); err != nil {
		return AppointmentResult{}, err
	}

	e.drainIfOnline(ctx, userID, triedDirect)

	res := AppointmentResult{Appointment: appt, Queued: true}
	data, err := e.state.GetUserLocalData(ctx, userID)
	if err != nil {
		return res, err
	}
	for _, a := range data.Appointments {
		if a.ID == appt.ID {
			res.Appointment = a
		}
	}
	res.PendingOperations, err = e.state.GetPendingQueueCount(ctx, userID)
	return res, err
}
