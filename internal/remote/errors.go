package remote

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrConnectivity covers unreachable store, dropped connections and timeouts.
	// It is the only retryable class.
	ErrConnectivity = errors.New("remote store unreachable")
	// ErrPermission means the store refused the operation for the caller.
	ErrPermission = errors.New("remote store permission denied")
	// ErrValidation means the store rejected the data itself.
	ErrValidation = errors.New("remote store rejected the request")
	// ErrDuplicate is a unique-key violation; for client-generated ids it means
	// the row was already applied.
	ErrDuplicate = errors.New("remote row already exists")
	ErrNotFound  = errors.New("remote row not found")
)

// Error carries the classified kind of a remote failure plus its cause.
type Error struct {
	Kind  error
	Op    string
	Table string
	Code  string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %v", e.Op, e.Table, e.Kind)
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }

// IsRetryable reports whether err should leave an operation queued for the
// next drain.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnectivity)
}

// Classify maps a driver error onto the remote error taxonomy. Already
// classified errors are returned unchanged.
func Classify(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	e := &Error{Op: op, Table: table, Err: err}

	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		e.Kind = ErrNotFound
	case errors.As(err, &pgErr):
		e.Code = pgErr.Code
		e.Kind = kindForCode(pgErr.Code)
	default:
		// Anything that never reached the server (dial failures, timeouts,
		// closed pools, cancelled contexts) is a connectivity problem.
		e.Kind = ErrConnectivity
	}
	return e
}

func kindForCode(code string) error {
	switch {
	case code == "23505":
		return ErrDuplicate
	case code == "42501", strings.HasPrefix(code, "28"):
		return ErrPermission
	case strings.HasPrefix(code, "08"), // connection exception
		strings.HasPrefix(code, "53"), // insufficient resources
		strings.HasPrefix(code, "57"), // operator intervention
		code == "40001", code == "40P01":
		return ErrConnectivity
	default:
		return ErrValidation
	}
}
