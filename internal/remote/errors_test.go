package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      error
		retryable bool
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, ErrDuplicate, false},
		{"not null violation", &pgconn.PgError{Code: "23502"}, ErrValidation, false},
		{"insufficient privilege", &pgconn.PgError{Code: "42501"}, ErrPermission, false},
		{"invalid authorization", &pgconn.PgError{Code: "28000"}, ErrPermission, false},
		{"connection failure", &pgconn.PgError{Code: "08006"}, ErrConnectivity, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, ErrConnectivity, true},
		{"no rows", pgx.ErrNoRows, ErrNotFound, false},
		{"deadline", context.DeadlineExceeded, ErrConnectivity, true},
		{"dial failure", errors.New("dial tcp 10.0.0.1:5432: connect: connection refused"), ErrConnectivity, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("insert", TablePets, fmt.Errorf("wrapped: %w", tt.err))
			if !errors.Is(got, tt.want) {
				t.Fatalf("Classify(%v) = %v, want kind %v", tt.err, got, tt.want)
			}
			if IsRetryable(got) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", IsRetryable(got), tt.retryable)
			}
		})
	}
}

func TestClassifyKeepsCause(t *testing.T) {
	cause := &pgconn.PgError{Code: "42501", Message: "permission denied for table pets"}
	got := Classify("insert", TablePets, cause)

	var pgErr *pgconn.PgError
	if !errors.As(got, &pgErr) || pgErr.Code != "42501" {
		t.Fatalf("cause not reachable through errors.As: %v", got)
	}
	if again := Classify("insert", TablePets, got); again != got {
		t.Error("classifying an already classified error should be a no-op")
	}
}

func TestBuildWhere(t *testing.T) {
	where, args := buildWhere(Filter{
		Eq:      map[string]any{"user_id": "u1", "scheduled_date": "2026-02-25"},
		NotEq:   map[string]any{"id": "a1"},
		In:      map[string][]string{"status": {"pending", "confirmed"}},
		NotNull: []string{"scheduled_time"},
	}, 1)

	want := ` WHERE "scheduled_date" = $1 AND "user_id" = $2 AND "id" <> $3 AND "status"::text = ANY($4) AND "scheduled_time" IS NOT NULL`
	if where != want {
		t.Errorf("where =\n%s\nwant\n%s", where, want)
	}
	if len(args) != 4 || args[0] != "2026-02-25" || args[2] != "a1" {
		t.Errorf("args = %v", args)
	}
}

func TestCheckTableRejectsUnknown(t *testing.T) {
	if err := checkTable("query", "users; DROP TABLE pets"); !errors.Is(err, ErrValidation) {
		t.Fatalf("checkTable = %v, want ErrValidation", err)
	}
}

func TestDecodeAndToRow(t *testing.T) {
	type pet struct {
		ID   string  `json:"id"`
		Name string  `json:"name"`
		Age  *string `json:"age"`
	}
	row, err := ToRow(pet{ID: "p1", Name: "Thor"})
	if err != nil {
		t.Fatal(err)
	}
	if row["name"] != "Thor" || row["age"] != nil {
		t.Fatalf("ToRow = %v", row)
	}
	var back pet
	if err := Decode(row, &back); err != nil {
		t.Fatal(err)
	}
	if back.ID != "p1" || back.Name != "Thor" {
		t.Errorf("Decode = %+v", back)
	}
}
