package appointment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/agendavet-scheduling/internal/appointment"
	"github.com/hackgods/agendavet-scheduling/internal/clinic"
	"github.com/hackgods/agendavet-scheduling/internal/kvstore"
	"github.com/hackgods/agendavet-scheduling/internal/localstate"
	"github.com/hackgods/agendavet-scheduling/internal/remote"
	"github.com/hackgods/agendavet-scheduling/internal/schedule"
	"github.com/hackgods/agendavet-scheduling/internal/testfixtures"
)

const day = "2026-03-02"

func ptr[T any](v T) *T { return &v }

func seedAgenda(r *testfixtures.Remote) {
	r.Seed(remote.TableServices,
		appointment.ServiceInfo{ID: "svc-consulta", Name: "Consulta", DurationMinutes: ptr(30)},
		appointment.ServiceInfo{ID: "svc-cirurgia", Name: "Cirurgia", DurationMinutes: ptr(60)},
		appointment.ServiceInfo{ID: "svc-banho", Name: "Banho"},
	)
	r.Seed(remote.TableAppointmentRequests,
		appointment.Booking{ID: "b1", ScheduledDate: day, ScheduledTime: "09:00", Veterinarian: ptr("vetA"), ServiceID: ptr("svc-cirurgia"), Status: appointment.StatusConfirmed},
		appointment.Booking{ID: "b2", ScheduledDate: day, ScheduledTime: "08:00", ServiceID: ptr("svc-consulta"), Status: appointment.StatusCancelled},
		remote.Row{"id": "b3", "scheduled_date": day, "scheduled_time": nil, "status": "pending"},
		appointment.Booking{ID: "b4", ScheduledDate: "2026-03-03", ScheduledTime: "08:00", Status: appointment.StatusConfirmed},
	)
}

func newService(t *testing.T, cache appointment.ResourceCache) (*appointment.Service, *testfixtures.Remote) {
	t.Helper()
	r := testfixtures.NewRemote()
	seedAgenda(r)
	svc := appointment.NewService(appointment.NewRemoteRepository(r), cache, clinic.Default(), zerolog.Nop())
	return svc, r
}

func starts(res schedule.Result) []string {
	out := make([]string, len(res.Suggestions))
	for i, s := range res.Suggestions {
		out[i] = s.Clock.String()
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSuggest(t *testing.T) {
	tests := []struct {
		name       string
		req        appointment.SuggestRequest
		wantStarts []string
		wantScores []int
		wantVet    *string
	}{
		{
			name:       "packs around the enriched booking",
			req:        appointment.SuggestRequest{ServiceID: "svc-consulta", Date: day},
			wantStarts: []string{"08:15", "10:15", "08:00"},
			wantScores: []int{100, 100, 88},
			wantVet:    ptr("vetA"),
		},
		{
			name:       "excluded request leaves an empty agenda",
			req:        appointment.SuggestRequest{ServiceID: "svc-consulta", Date: day, ExcludeRequestID: "b1"},
			wantStarts: []string{"08:00", "08:15", "08:30"},
			wantScores: []int{10, 10, 10},
		},
		{
			name:       "service without duration uses the default",
			req:        appointment.SuggestRequest{ServiceID: "svc-banho", Date: day},
			wantStarts: []string{"08:15", "10:15", "08:00"},
			wantScores: []int{100, 100, 88},
			wantVet:    ptr("vetA"),
		},
		{
			name:       "other veterinarian's agenda does not conflict",
			req:        appointment.SuggestRequest{ServiceID: "svc-consulta", Date: day, Veterinarian: ptr("vetB")},
			wantStarts: []string{"08:00", "08:15", "08:30"},
			wantScores: []int{10, 10, 10},
			wantVet:    ptr("vetB"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t, nil)
			res, err := svc.Suggest(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Suggest: %v", err)
			}
			if got := starts(res); !equal(got, tt.wantStarts) {
				t.Fatalf("starts = %v, want %v", got, tt.wantStarts)
			}
			for i, s := range res.Suggestions {
				if s.Score != tt.wantScores[i] {
					t.Errorf("%s score = %d, want %d", s.Clock, s.Score, tt.wantScores[i])
				}
				switch {
				case tt.wantVet == nil && s.Veterinarian != nil:
					t.Errorf("%s veterinarian = %s, want none", s.Clock, *s.Veterinarian)
				case tt.wantVet != nil && (s.Veterinarian == nil || *s.Veterinarian != *tt.wantVet):
					t.Errorf("%s veterinarian = %v, want %s", s.Clock, s.Veterinarian, *tt.wantVet)
				}
				if want := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.Clock) * time.Minute); !s.Start.Equal(want) {
					t.Errorf("start = %v, want %v", s.Start, want)
				}
			}
		})
	}
}

func TestSuggestErrors(t *testing.T) {
	tests := []struct {
		name    string
		req     appointment.SuggestRequest
		fail    string
		wantErr error
	}{
		{"missing service", appointment.SuggestRequest{Date: day}, "", appointment.ErrInvalidRequest},
		{"bad date", appointment.SuggestRequest{ServiceID: "svc-consulta", Date: "02/03/2026"}, "", appointment.ErrInvalidRequest},
		{"unknown service", appointment.SuggestRequest{ServiceID: "svc-nope", Date: day}, "", appointment.ErrServiceNotFound},
		{"bookings unreachable", appointment.SuggestRequest{ServiceID: "svc-consulta", Date: day}, remote.TableAppointmentRequests, remote.ErrConnectivity},
		{"catalog unreachable", appointment.SuggestRequest{ServiceID: "svc-consulta", Date: day}, remote.TableServices, remote.ErrConnectivity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, r := newService(t, nil)
			if tt.fail != "" {
				r.FailNext("query", tt.fail, remote.ErrConnectivity)
			}
			_, err := svc.Suggest(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSuggestFallsBackToCachedCatalog(t *testing.T) {
	ctx := context.Background()
	cache := localstate.NewManager(kvstore.NewMemory(), testfixtures.NewClock(time.Time{}).NowFunc(), zerolog.Nop())
	svc, r := newService(t, cache)

	n, err := svc.RefreshCatalog(ctx)
	if err != nil || n != 3 {
		t.Fatalf("RefreshCatalog = %d, %v", n, err)
	}

	// Both catalog reads fail; durations come from the cache.
	r.FailNext("query", remote.TableServices, remote.ErrConnectivity)
	r.FailNext("query", remote.TableServices, remote.ErrConnectivity)
	res, err := svc.Suggest(ctx, appointment.SuggestRequest{ServiceID: "svc-consulta", Date: day})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if got, want := starts(res), []string{"08:15", "10:15", "08:00"}; !equal(got, want) {
		t.Errorf("starts = %v, want %v", got, want)
	}
}

func TestSuggestRejectsPermissionErrorsWithoutCache(t *testing.T) {
	ctx := context.Background()
	cache := localstate.NewManager(kvstore.NewMemory(), time.Now, zerolog.Nop())
	svc, r := newService(t, cache)
	if _, err := svc.RefreshCatalog(ctx); err != nil {
		t.Fatal(err)
	}

	r.FailNext("query", remote.TableServices, remote.ErrPermission)
	if _, err := svc.Suggest(ctx, appointment.SuggestRequest{ServiceID: "svc-consulta", Date: day}); !errors.Is(err, remote.ErrPermission) {
		t.Errorf("err = %v, want permission error", err)
	}
}

func TestSuggestTreatsEveryActiveStatusAsBusy(t *testing.T) {
	fullDay := func(status appointment.Status) []any {
		var rows []any
		cfg := clinic.Default()
		for c := cfg.Open; c < cfg.Close; c = c.Add(30) {
			if c >= cfg.LunchStart && c < cfg.LunchEnd {
				continue
			}
			rows = append(rows, appointment.Booking{
				ID: "busy-" + c.String(), ScheduledDate: day, ScheduledTime: c.String(),
				ServiceID: ptr("svc-consulta"), Status: status,
			})
		}
		return rows
	}

	tests := []struct {
		status appointment.Status
		want   int
	}{
		{appointment.StatusPending, 0},
		{appointment.StatusConfirmed, 0},
		{appointment.StatusReminderSent, 0},
		{appointment.StatusCheckedIn, 0},
		{appointment.StatusInProgress, 0},
		{appointment.StatusCompleted, 3},
		{appointment.StatusCancelled, 3},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			r := testfixtures.NewRemote()
			r.Seed(remote.TableServices, appointment.ServiceInfo{ID: "svc-consulta", Name: "Consulta", DurationMinutes: ptr(30)})
			r.Seed(remote.TableAppointmentRequests, fullDay(tt.status)...)

			cfg := clinic.Default()
			cfg.BufferMinutes = 0
			svc := appointment.NewService(appointment.NewRemoteRepository(r), nil, cfg, zerolog.Nop())

			res, err := svc.Suggest(context.Background(), appointment.SuggestRequest{ServiceID: "svc-consulta", Date: day})
			if err != nil {
				t.Fatal(err)
			}
			if len(res.Suggestions) != tt.want {
				t.Errorf("suggestions = %v, want %d", starts(res), tt.want)
			}
		})
	}
}

type gatedRepository struct {
	appointment.Repository
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedRepository) ListDayBookings(ctx context.Context, date, excludeID string) ([]appointment.Booking, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Repository.ListDayBookings(ctx, date, excludeID)
}

func TestSharedBookingLoadSurvivesCallerCancellation(t *testing.T) {
	r := testfixtures.NewRemote()
	seedAgenda(r)
	repo := &gatedRepository{
		Repository: appointment.NewRemoteRepository(r),
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	svc := appointment.NewService(repo, nil, clinic.Default(), zerolog.Nop())
	req := appointment.SuggestRequest{ServiceID: "svc-consulta", Date: day}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Suggest(ctx, req)
		firstErr <- err
	}()
	<-repo.started

	type outcome struct {
		res schedule.Result
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := svc.Suggest(context.Background(), req)
		second <- outcome{res, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller err = %v", err)
	}
	close(repo.release)

	got := <-second
	if got.err != nil {
		t.Fatalf("second caller err = %v", got.err)
	}
	if want := []string{"08:15", "10:15", "08:00"}; !equal(starts(got.res), want) {
		t.Errorf("starts = %v, want %v", starts(got.res), want)
	}
}
