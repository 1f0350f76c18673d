// Package syncengine applies user mutations against the remote store, queues
// them locally while offline and replays the queue when connectivity returns.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/agendavet-scheduling/internal/localstate"
	"github.com/hackgods/agendavet-scheduling/internal/remote"
)

var (
	// ErrValidation marks input rejected before any write. It is never queued.
	ErrValidation = errors.New("invalid input")
	ErrNotFound   = errors.New("record not found")
)

// Probe reports whether the remote store is believed reachable.
type Probe interface {
	Online(ctx context.Context) bool
}

type Engine struct {
	state  *localstate.Manager
	remote remote.Store
	probe  Probe
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string

	draining sync.Mutex
}

type Option func(*Engine)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides uuid generation for records and operations.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func NewEngine(state *localstate.Manager, store remote.Store, probe Probe, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		state:  state,
		remote: store,
		probe:  probe,
		logger: logger.With().Str("component", "syncengine").Logger(),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type DrainResult struct {
	Pushed int `json:"pushed"`
	Failed int `json:"failed"`
	// Deferred counts operations held back because an earlier operation of
	// the same user failed with a retryable error in this pass.
	Deferred int `json:"deferred"`
	// Skipped is set when another drain was already running.
	Skipped bool `json:"skipped"`
	Offline bool `json:"offline"`
}

// Drain replays queued operations oldest first, one attempt each. An empty
// userID drains every user's operations. Only one drain runs at a time; a
// call made while another is in progress returns immediately with Skipped.
// After a retryable failure the rest of that user's operations wait for the
// next pass.
func (e *Engine) Drain(ctx context.Context, userID string) (DrainResult, error) {
	if !e.draining.TryLock() {
		return DrainResult{Skipped: true}, nil
	}
	defer e.draining.Unlock()

	if !e.probe.Online(ctx) {
		return DrainResult{Offline: true}, nil
	}

	ops, err := e.state.GetQueueOperations(ctx, userID)
	if err != nil {
		return DrainResult{}, fmt.Errorf("load queue: %w", err)
	}

	var res DrainResult
	held := make(map[string]bool)
	for _, op := range ops {
		if !op.Retryable() {
			continue
		}
		if held[op.UserID] {
			res.Deferred++
			continue
		}
		if err := e.replay(ctx, op); err != nil {
			res.Failed++
			if remote.IsRetryable(err) {
				held[op.UserID] = true
			}
			if recErr := e.recordFailure(ctx, op, err); recErr != nil {
				return res, recErr
			}
			continue
		}
		res.Pushed++
		if err := e.markEntity(ctx, op, localstate.SyncSynced); err != nil {
			return res, err
		}
		if err := e.state.RemoveQueueOperation(ctx, op.ID); err != nil {
			return res, fmt.Errorf("remove operation %s: %w", op.ID, err)
		}
	}

	if res.Pushed+res.Failed > 0 {
		e.logger.Info().Str("user_id", userID).Int("pushed", res.Pushed).Int("failed", res.Failed).
			Int("deferred", res.Deferred).Msg("queue drained")
	}
	return res, nil
}

// recordFailure keeps the operation queued as failed. Errors that can never
// succeed on retry raise attempts to the cap so the operation stays listed
// but is no longer retried or counted as pending.
func (e *Engine) recordFailure(ctx context.Context, op localstate.Operation, cause error) error {
	msg := cause.Error()
	op.Status = localstate.OperationFailed
	op.Attempts++
	if !remote.IsRetryable(cause) && op.Attempts < localstate.MaxAttempts {
		op.Attempts = localstate.MaxAttempts
	}
	op.LastError = &msg
	op.UpdatedAt = e.now()

	e.logger.Warn().Err(cause).Str("operation_id", op.ID).Str("type", string(op.Type)).
		Int("attempts", op.Attempts).Msg("queued operation failed")

	if err := e.state.UpsertQueueOperation(ctx, op); err != nil {
		return fmt.Errorf("update operation %s: %w", op.ID, err)
	}
	return e.markEntity(ctx, op, localstate.SyncFailed)
}

func (e *Engine) markEntity(ctx context.Context, op localstate.Operation, state localstate.SyncState) error {
	var err error
	switch op.Type {
	case localstate.OpCreatePet:
		err = e.state.MarkLocalPetSyncState(ctx, op.UserID, op.EntityID, state)
	case localstate.OpCreateAppointmentRequest, localstate.OpUpdateAppointmentStatus:
		err = e.state.MarkLocalAppointmentSyncState(ctx, op.UserID, op.EntityID, state)
	}
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", op.EntityID, state, err)
	}
	return nil
}

type SyncResult struct {
	DrainResult
	PendingOperations int        `json:"pending_operations"`
	LastSyncedAt      *time.Time `json:"last_synced_at"`
}

// Sync drains the user's queue and then refreshes the local copy from the
// remote store. Offline it only reports the pending count.
func (e *Engine) Sync(ctx context.Context, userID string) (SyncResult, error) {
	if userID == "" {
		return SyncResult{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if !e.probe.Online(ctx) {
		pending, err := e.state.GetPendingQueueCount(ctx, userID)
		return SyncResult{DrainResult: DrainResult{Offline: true}, PendingOperations: pending}, err
	}

	drained, err := e.Drain(ctx, userID)
	if err != nil {
		return SyncResult{DrainResult: drained}, err
	}

	pets, appts, err := e.pull(ctx, userID)
	if err != nil {
		return SyncResult{DrainResult: drained}, err
	}

	syncedAt := e.now()
	if err := e.state.ReplaceUserLocalData(ctx, userID, localstate.UserData{
		Pets:         pets,
		Appointments: appts,
		LastSyncedAt: &syncedAt,
	}); err != nil {
		return SyncResult{DrainResult: drained}, fmt.Errorf("store pulled data: %w", err)
	}

	pending, err := e.state.GetPendingQueueCount(ctx, userID)
	if err != nil {
		return SyncResult{DrainResult: drained}, err
	}
	return SyncResult{DrainResult: drained, PendingOperations: pending, LastSyncedAt: &syncedAt}, nil
}

func (e *Engine) pull(ctx context.Context, userID string) ([]localstate.Pet, []localstate.Appointment, error) {
	byUser := remote.Filter{
		Eq:      map[string]any{"user_id": userID},
		OrderBy: "created_at",
		Desc:    true,
	}

	var petRows, apptRows []remote.Row
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := e.remote.Query(gctx, remote.TablePets, byUser)
		petRows = rows
		return err
	})
	g.Go(func() error {
		rows, err := e.remote.Query(gctx, remote.TableAppointmentRequests, byUser)
		apptRows = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("pull user data: %w", err)
	}

	pets := make([]localstate.Pet, 0, len(petRows))
	for _, row := range petRows {
		var p localstate.Pet
		if err := remote.Decode(row, &p); err != nil {
			return nil, nil, err
		}
		pets = append(pets, p)
	}
	appts := make([]localstate.Appointment, 0, len(apptRows))
	for _, row := range apptRows {
		var a localstate.Appointment
		if err := remote.Decode(row, &a); err != nil {
			return nil, nil, err
		}
		appts = append(appts, a)
	}
	return pets, withPetSummaries(appts, pets), nil
}

type Snapshot struct {
	Pets              []localstate.Pet         `json:"pets"`
	Appointments      []localstate.Appointment `json:"appointments"`
	LastSyncedAt      *time.Time               `json:"last_synced_at"`
	PendingOperations int                      `json:"pending_operations"`
}

// Snapshot is the local view of a user, with pet summaries attached to each
// appointment.
func (e *Engine) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	data, err := e.state.GetUserLocalData(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	pending, err := e.state.GetPendingQueueCount(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Pets:              data.Pets,
		Appointments:      withPetSummaries(data.Appointments, data.Pets),
		LastSyncedAt:      data.LastSyncedAt,
		PendingOperations: pending,
	}, nil
}

// RetryFailed moves the user's failed operations back to pending so the next
// drain attempts them again. It returns how many were re-enabled.
func (e *Engine) RetryFailed(ctx context.Context, userID string) (int, error) {
	ops, err := e.state.GetQueueOperations(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, op := range ops {
		if op.Status != localstate.OperationFailed {
			continue
		}
		op.Status = localstate.OperationPending
		op.UpdatedAt = e.now()
		if err := e.state.UpsertQueueOperation(ctx, op); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// QueueOperations lists the user's queued operations oldest first.
func (e *Engine) QueueOperations(ctx context.Context, userID string) ([]localstate.Operation, error) {
	return e.state.GetQueueOperations(ctx, userID)
}

func withPetSummaries(appts []localstate.Appointment, pets []localstate.Pet) []localstate.Appointment {
	summaries := make(map[string]localstate.PetSummary, len(pets))
	for _, p := range pets {
		summaries[p.ID] = p.Summary()
	}
	out := make([]localstate.Appointment, len(appts))
	for i, a := range appts {
		if a.Pet == nil {
			if s, ok := summaries[a.PetID]; ok {
				a.Pet = &s
			}
		}
		out[i] = a
	}
	return out
}
