package testfixtures

import (
	"context"
	"errors"
	"testing"

	"github.com/hackgods/agendavet-scheduling/internal/remote"
)

func TestRemoteFiltersAndFaults(t *testing.T) {
	ctx := context.Background()
	r := NewRemote()
	r.Seed(remote.TableAppointmentRequests,
		map[string]any{"id": "a1", "scheduled_date": "2026-02-25", "scheduled_time": "10:00", "status": "confirmed"},
		map[string]any{"id": "a2", "scheduled_date": "2026-02-25", "scheduled_time": nil, "status": "pending"},
		map[string]any{"id": "a3", "scheduled_date": "2026-02-25", "scheduled_time": "09:00", "status": "cancelled"},
	)

	rows, err := r.Query(ctx, remote.TableAppointmentRequests, remote.Filter{
		Eq:      map[string]any{"scheduled_date": "2026-02-25"},
		In:      map[string][]string{"status": {"confirmed", "pending"}},
		NotNull: []string{"scheduled_time"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["id"] != "a1" {
		t.Fatalf("Query = %v", rows)
	}

	r.FailNext("insert", remote.TablePets, remote.ErrPermission)
	if _, err := r.Insert(ctx, remote.TablePets, remote.Row{"id": "p1"}); !errors.Is(err, remote.ErrPermission) {
		t.Fatalf("injected fault = %v", err)
	}
	if _, err := r.Insert(ctx, remote.TablePets, remote.Row{"id": "p1"}); err != nil {
		t.Fatalf("fault should be consumed: %v", err)
	}
	if _, err := r.Insert(ctx, remote.TablePets, remote.Row{"id": "p1"}); !errors.Is(err, remote.ErrDuplicate) {
		t.Fatalf("duplicate insert = %v", err)
	}

	r.SetOffline(true)
	if _, err := r.Query(ctx, remote.TablePets, remote.Filter{}); !remote.IsRetryable(err) {
		t.Fatalf("offline query = %v", err)
	}
	if got := len(r.CallsFor("insert")); got != 3 {
		t.Errorf("recorded %d inserts, want 3", got)
	}
}
