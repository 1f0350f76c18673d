// Package localstate keeps the per-user local copy of pets and appointment
// requests, the offline operation queue and a small resource cache, all in
// one JSON document in a kvstore.Store.
package localstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/agendavet-scheduling/internal/kvstore"
)

// Manager serialises every read-modify-write of the root document through a
// FIFO lock owned by the instance. Reads do not take the lock and may observe
// state from before an in-flight mutation.
type Manager struct {
	store  kvstore.Store
	now    func() time.Time
	logger zerolog.Logger

	mu   sync.Mutex
	tail chan struct{}
}

// NewManager builds a Manager over store. A nil now uses time.Now.
func NewManager(store kvstore.Store, now func() time.Time, logger zerolog.Logger) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:  store,
		now:    now,
		logger: logger.With().Str("component", "localstate").Logger(),
	}
}

// mutate runs fn on the current document and persists the result. Callers are
// admitted in the order they reach the lock. ctx only bounds the wait for the
// lock; once admitted the write always completes.
func (m *Manager) mutate(ctx context.Context, fn func(*Schema) error) error {
	done := make(chan struct{})
	m.mu.Lock()
	prev := m.tail
	m.tail = done
	m.mu.Unlock()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Keep our place in the chain so the next waiter still waits for prev.
			go func() {
				<-prev
				close(done)
			}()
			return ctx.Err()
		}
	}
	defer close(done)

	ctx = context.WithoutCancel(ctx)
	state, err := m.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	return m.save(ctx, state)
}

func (m *Manager) load(ctx context.Context) (*Schema, error) {
	raw, ok, err := m.store.Get(ctx, StateKey)
	if err != nil {
		return nil, fmt.Errorf("read local state: %w", err)
	}
	state := emptySchema()
	if !ok {
		return state, nil
	}
	if err := json.Unmarshal(raw, state); err != nil {
		m.logger.Warn().Err(err).Msg("local state unreadable, starting from an empty document")
		return emptySchema(), nil
	}
	if state.Users == nil {
		state.Users = map[string]UserData{}
	}
	if state.Queue == nil {
		state.Queue = []Operation{}
	}
	if state.Resources == nil {
		state.Resources = map[string]ResourceEntry{}
	}
	return state, nil
}

func (m *Manager) save(ctx context.Context, state *Schema) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode local state: %w", err)
	}
	if err := m.store.Set(ctx, StateKey, raw); err != nil {
		return fmt.Errorf("write local state: %w", err)
	}
	return nil
}

// GetUserLocalData returns the user's cached records. Unknown users get empty
// lists.
func (m *Manager) GetUserLocalData(ctx context.Context, userID string) (UserData, error) {
	state, err := m.load(ctx)
	if err != nil {
		return UserData{}, err
	}
	return normalizeUser(state.Users[userID]), nil
}

// ReplaceUserLocalData installs data as the user's synced baseline, merged by
// id with unsynced local work: a record whose queued operation is still
// counted keeps its local version, and a record missing from the baseline is
// kept while any operation for it remains queued. Everything else takes the
// baseline's version.
func (m *Manager) ReplaceUserLocalData(ctx context.Context, userID string, data UserData) error {
	return m.mutate(ctx, func(s *Schema) error {
		queued := make(map[string]bool)
		counted := make(map[string]bool)
		for _, op := range s.Queue {
			if op.UserID == userID {
				queued[op.EntityID] = true
				counted[op.EntityID] = counted[op.EntityID] || op.Counted()
			}
		}
		current := s.Users[userID]

		incoming := make(map[string]bool, len(data.Pets)+len(data.Appointments))
		for _, p := range data.Pets {
			incoming[p.ID] = true
		}
		for _, a := range data.Appointments {
			incoming[a.ID] = true
		}
		keepLocal := func(id string) bool {
			return counted[id] || (queued[id] && !incoming[id])
		}

		kept := make(map[string]bool)
		pets := make([]Pet, 0, len(data.Pets))
		for _, p := range current.Pets {
			if keepLocal(p.ID) {
				kept[p.ID] = true
				pets = append(pets, p)
			}
		}
		for _, p := range data.Pets {
			if !kept[p.ID] {
				p.SyncState = SyncSynced
				pets = append(pets, p)
			}
		}

		appts := make([]Appointment, 0, len(data.Appointments))
		for _, a := range current.Appointments {
			if keepLocal(a.ID) {
				kept[a.ID] = true
				appts = append(appts, a)
			}
		}
		for _, a := range data.Appointments {
			if !kept[a.ID] {
				a.SyncState = SyncSynced
				appts = append(appts, a)
			}
		}

		sortPets(pets)
		sortAppointments(appts)
		s.Users[userID] = UserData{Pets: pets, Appointments: appts, LastSyncedAt: data.LastSyncedAt}
		return nil
	})
}

// UpsertLocalPet replaces the pet with the same id or adds it.
func (m *Manager) UpsertLocalPet(ctx context.Context, userID string, pet Pet) error {
	return m.mutate(ctx, func(s *Schema) error {
		u := normalizeUser(s.Users[userID])
		replaced := false
		for i := range u.Pets {
			if u.Pets[i].ID == pet.ID {
				u.Pets[i] = pet
				replaced = true
				break
			}
		}
		if !replaced {
			u.Pets = append(u.Pets, pet)
		}
		sortPets(u.Pets)
		s.Users[userID] = u
		return nil
	})
}

// UpsertLocalAppointment replaces the appointment with the same id or adds it.
func (m *Manager) UpsertLocalAppointment(ctx context.Context, userID string, appt Appointment) error {
	return m.mutate(ctx, func(s *Schema) error {
		u := normalizeUser(s.Users[userID])
		replaced := false
		for i := range u.Appointments {
			if u.Appointments[i].ID == appt.ID {
				u.Appointments[i] = appt
				replaced = true
				break
			}
		}
		if !replaced {
			u.Appointments = append(u.Appointments, appt)
		}
		sortAppointments(u.Appointments)
		s.Users[userID] = u
		return nil
	})
}

// MarkLocalPetSyncState sets the sync state of one pet. Unknown ids are
// ignored.
func (m *Manager) MarkLocalPetSyncState(ctx context.Context, userID, petID string, state SyncState) error {
	return m.mutate(ctx, func(s *Schema) error {
		u, ok := s.Users[userID]
		if !ok {
			return nil
		}
		for i := range u.Pets {
			if u.Pets[i].ID == petID {
				u.Pets[i].SyncState = state
				s.Users[userID] = u
				break
			}
		}
		return nil
	})
}

// MarkLocalAppointmentSyncState sets the sync state of one appointment.
// Unknown ids are ignored.
func (m *Manager) MarkLocalAppointmentSyncState(ctx context.Context, userID, appointmentID string, state SyncState) error {
	return m.mutate(ctx, func(s *Schema) error {
		u, ok := s.Users[userID]
		if !ok {
			return nil
		}
		for i := range u.Appointments {
			if u.Appointments[i].ID == appointmentID {
				u.Appointments[i].SyncState = state
				s.Users[userID] = u
				break
			}
		}
		return nil
	})
}

// UpsertQueueOperation stores op, replacing any operation with the same id.
func (m *Manager) UpsertQueueOperation(ctx context.Context, op Operation) error {
	return m.mutate(ctx, func(s *Schema) error {
		s.Queue = append(withoutOperation(s.Queue, op.ID), op)
		return nil
	})
}

func (m *Manager) RemoveQueueOperation(ctx context.Context, id string) error {
	return m.mutate(ctx, func(s *Schema) error {
		s.Queue = withoutOperation(s.Queue, id)
		return nil
	})
}

// GetQueueOperations returns queued operations oldest first. An empty userID
// returns every user's operations.
func (m *Manager) GetQueueOperations(ctx context.Context, userID string) ([]Operation, error) {
	state, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	ops := make([]Operation, 0, len(state.Queue))
	for _, op := range state.Queue {
		if userID == "" || op.UserID == userID {
			ops = append(ops, op)
		}
	}
	sort.SliceStable(ops, func(i, j int) bool { return ops[i].CreatedAt.Before(ops[j].CreatedAt) })
	return ops, nil
}

// GetPendingQueueCount counts operations that are still pending or have
// failed fewer than MaxAttempts times.
func (m *Manager) GetPendingQueueCount(ctx context.Context, userID string) (int, error) {
	ops, err := m.GetQueueOperations(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, op := range ops {
		if op.Counted() {
			n++
		}
	}
	return n, nil
}

// SetResourceCache stores data, encoded as JSON, under key.
func (m *Manager) SetResourceCache(ctx context.Context, key string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode resource %s: %w", key, err)
	}
	return m.mutate(ctx, func(s *Schema) error {
		s.Resources[key] = ResourceEntry{Data: raw, UpdatedAt: m.now()}
		return nil
	})
}

func (m *Manager) GetResourceCache(ctx context.Context, key string) (ResourceEntry, bool, error) {
	state, err := m.load(ctx)
	if err != nil {
		return ResourceEntry{}, false, err
	}
	entry, ok := state.Resources[key]
	return entry, ok, nil
}

// LoadResource decodes the cached resource into dest.
func (m *Manager) LoadResource(ctx context.Context, key string, dest any) (bool, error) {
	entry, ok, err := m.GetResourceCache(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(entry.Data, dest); err != nil {
		return false, fmt.Errorf("decode resource %s: %w", key, err)
	}
	return true, nil
}

// Reset discards the whole local document.
func (m *Manager) Reset(ctx context.Context) error {
	return m.mutate(ctx, func(s *Schema) error {
		*s = *emptySchema()
		return nil
	})
}

func normalizeUser(u UserData) UserData {
	if u.Pets == nil {
		u.Pets = []Pet{}
	}
	if u.Appointments == nil {
		u.Appointments = []Appointment{}
	}
	return u
}

func withoutOperation(queue []Operation, id string) []Operation {
	out := make([]Operation, 0, len(queue))
	for _, op := range queue {
		if op.ID != id {
			out = append(out, op)
		}
	}
	return out
}

func sortPets(pets []Pet) {
	sort.SliceStable(pets, func(i, j int) bool { return pets[i].CreatedAt.After(pets[j].CreatedAt) })
}

func sortAppointments(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool { return appts[i].CreatedAt.After(appts[j].CreatedAt) })
}
