package localstate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hackgods/agendavet-scheduling/internal/appointment"
)

// StateKey is where the Schema lives in the KV store. The suffix is the
// layout version; an incompatible layout gets a new key, not a migration.
const StateKey = "local-first-state-v1"

// MaxAttempts is the attempt count after which a failed operation stops being
// reported as pending. It is never deleted for it.
const MaxAttempts = 5

type SyncState string

const (
	SyncSynced  SyncState = "synced"
	SyncPending SyncState = "pending"
	SyncFailed  SyncState = "failed"
)

type Pet struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Breed     *string   `json:"breed"`
	Age       *int      `json:"age"`
	Weight    *float64  `json:"weight"`
	Notes     *string   `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	SyncState SyncState `json:"sync_state,omitempty"`
}

// PetSummary is the slice of a pet shown next to its appointments.
type PetSummary struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Breed *string `json:"breed"`
}

func (p Pet) Summary() PetSummary {
	return PetSummary{ID: p.ID, Name: p.Name, Type: p.Type, Breed: p.Breed}
}

// Appointment mirrors an appointment_requests row.
type Appointment struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id"`
	PetID         string             `json:"pet_id"`
	PreferredDate string             `json:"preferred_date"`
	PreferredTime *string            `json:"preferred_time"`
	Reason        string             `json:"reason"`
	Notes         *string            `json:"notes"`
	Status        appointment.Status `json:"status"`
	ServiceID     *string            `json:"service_id,omitempty"`
	ScheduledDate *string            `json:"scheduled_date,omitempty"`
	ScheduledTime *string            `json:"scheduled_time,omitempty"`
	Veterinarian  *string            `json:"veterinarian,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Pet           *PetSummary        `json:"pets,omitempty"`
	SyncState     SyncState          `json:"sync_state,omitempty"`
}

type UserData struct {
	Pets         []Pet         `json:"pets"`
	Appointments []Appointment `json:"appointments"`
	LastSyncedAt *time.Time    `json:"last_synced_at"`
}

type OperationType string

const (
	OpCreatePet                OperationType = "create_pet"
	OpCreateAppointmentRequest OperationType = "create_appointment_request"
	OpUpdateAppointmentStatus  OperationType = "update_appointment_status"
)

type OperationStatus string

const (
	OperationPending OperationStatus = "pending"
	OperationFailed  OperationStatus = "failed"
)

// Operation is a queued local mutation waiting to be applied remotely.
type Operation struct {
	ID     string        `json:"id"`
	Type   OperationType `json:"type"`
	UserID string        `json:"user_id"`
	// EntityID is the pet or appointment the operation writes.
	EntityID  string          `json:"entity_id"`
	Status    OperationStatus `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError *string         `json:"last_error"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Counted reports whether the operation still contributes to the pending count.
func (op Operation) Counted() bool {
	return op.Status != OperationFailed || op.Attempts < MaxAttempts
}

// Retryable reports whether a drain should attempt the operation.
func (op Operation) Retryable() bool {
	return op.Status == OperationPending || (op.Status == OperationFailed && op.Attempts < MaxAttempts)
}

// DecodePayload unmarshals the operation's payload into dest.
func (op Operation) DecodePayload(dest any) error {
	if err := json.Unmarshal(op.Payload, dest); err != nil {
		return fmt.Errorf("decode %s payload for operation %s: %w", op.Type, op.ID, err)
	}
	return nil
}

// NewOperation builds a pending operation with payload encoded as JSON.
func NewOperation(id string, typ OperationType, userID, entityID string, payload any, now time.Time) (Operation, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Operation{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Operation{
		ID:        id,
		Type:      typ,
		UserID:    userID,
		EntityID:  entityID,
		Status:    OperationPending,
		CreatedAt: now,
		UpdatedAt: now,
		Payload:   data,
	}, nil
}

type ResourceEntry struct {
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Schema is the single root object persisted under StateKey.
type Schema struct {
	Users     map[string]UserData      `json:"users"`
	Queue     []Operation              `json:"queue"`
	Resources map[string]ResourceEntry `json:"resources"`
}

func emptySchema() *Schema {
	return &Schema{
		Users:     map[string]UserData{},
		Queue:     []Operation{},
		Resources: map[string]ResourceEntry{},
	}
}
