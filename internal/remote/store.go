package remote

import (
	"context"
	"encoding/json"
	"fmt"
)

// Remote tables this core reads and writes.
const (
	TablePets                = "pets"
	TableAppointmentRequests = "appointment_requests"
	TableServices            = "services"
)

// Row is a remote record keyed by column name.
type Row map[string]any

// Filter narrows a Query. All conditions are ANDed.
type Filter struct {
	Eq      map[string]any
	NotEq   map[string]any
	In      map[string][]string
	NotNull []string
	OrderBy string
	Desc    bool
}

// Store is the remote source of truth. Implementations classify failures into
// ErrConnectivity, ErrPermission, ErrValidation, ErrDuplicate and ErrNotFound.
type Store interface {
	Query(ctx context.Context, table string, filter Filter) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table, id string, patch Row) (Row, error)
}

// Decode copies a row into dest through its JSON representation.
func Decode(row Row, dest any) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}

// ToRow is the inverse of Decode.
func ToRow(v any) (Row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return row, nil
}
