package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/agendavet-scheduling/internal/appointment"
	"github.com/hackgods/agendavet-scheduling/internal/clinic"
	"github.com/hackgods/agendavet-scheduling/internal/kvstore"
	"github.com/hackgods/agendavet-scheduling/internal/localstate"
	"github.com/hackgods/agendavet-scheduling/internal/remote"
	"github.com/hackgods/agendavet-scheduling/internal/schedule"
	"github.com/hackgods/agendavet-scheduling/internal/syncengine"
	"github.com/hackgods/agendavet-scheduling/internal/testfixtures"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type kvFlag bool

func (k kvFlag) Degraded() bool { return bool(k) }

type testServer struct {
	handler http.Handler
	remote  *testfixtures.Remote
	probe   *testfixtures.Probe
}

func newTestServer(t *testing.T, online bool) *testServer {
	t.Helper()
	clock := testfixtures.NewTickingClock(time.Time{}, time.Second)
	store := testfixtures.NewRemote()
	probe := testfixtures.NewProbe(online)
	state := localstate.NewManager(kvstore.NewMemory(), clock.NowFunc(), zerolog.Nop())
	engine := syncengine.NewEngine(state, store, probe, zerolog.Nop(),
		syncengine.WithClock(clock.NowFunc()),
		syncengine.WithIDGenerator(testfixtures.NewIDGenerator("rec").NextFunc()),
	)
	suggestions := appointment.NewService(appointment.NewRemoteRepository(store), state, clinic.Default(), zerolog.Nop())

	handler := NewRouter(RouterConfig{
		Suggestions: suggestions,
		Engine:      engine,
		Remote:      pingFunc(func(context.Context) error { return nil }),
		KV:          kvFlag(false),
		Logger:      zerolog.Nop(),
		Env:         "test",
		Version:     "v0.0.0-test",
	})
	return &testServer{handler: handler, remote: store, probe: probe}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %T: %v (body %q)", v, err, rec.Body.String())
	}
	return v
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		ping       error
		degraded   bool
		wantStatus string
		wantDeps   map[string]string
	}{
		{"all up", nil, false, "ok", map[string]string{"postgres": "ok", "local_store": "ok"}},
		{"remote offline", errors.New("dial tcp: refused"), false, "degraded", map[string]string{"postgres": "offline", "local_store": "ok"}},
		{"memory only", nil, true, "degraded", map[string]string{"postgres": "ok", "local_store": "memory_only"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(pingFunc(func(context.Context) error { return tt.ping }), kvFlag(tt.degraded), "test", "v1")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("code = %d", rec.Code)
			}
			resp := decode[ReadinessResponse](t, rec)
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", resp.Status, tt.wantStatus)
			}
			for k, v := range tt.wantDeps {
				if resp.Dependencies[k] != v {
					t.Errorf("%s = %s, want %s", k, resp.Dependencies[k], v)
				}
			}
		})
	}
}

func TestLivenessAndRequestID(t *testing.T) {
	s := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Header().Get("X-Request-ID") != "req-42" {
		t.Errorf("code = %d, request id = %q", rec.Code, rec.Header().Get("X-Request-ID"))
	}
	if resp := decode[LivenessResponse](t, rec); resp.Version != "v0.0.0-test" {
		t.Errorf("liveness = %+v", resp)
	}
}

func TestNextStatuses(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, http.MethodGet, "/statuses/confirmed/next", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	resp := decode[NextStatusesResponse](t, rec)
	if resp.Label != "Confirmado" || resp.Terminal || len(resp.Next) != 4 {
		t.Errorf("confirmed = %+v", resp)
	}
	if resp.Next[0].Status != appointment.StatusReminderSent || resp.Next[0].Action == "" {
		t.Errorf("first action = %+v", resp.Next[0])
	}

	rec = s.do(t, http.MethodGet, "/statuses/cancelled/next", nil)
	if resp := decode[NextStatusesResponse](t, rec); !resp.Terminal || resp.Next == nil || len(resp.Next) != 0 {
		t.Errorf("cancelled = %+v", resp)
	}

	if rec := s.do(t, http.MethodGet, "/statuses/archived/next", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status code = %d", rec.Code)
	}
}

func TestSuggestions(t *testing.T) {
	thirty := 30
	tests := []struct {
		name     string
		body     any
		fail     error
		wantCode int
		wantErr  string
	}{
		{"ranked", appointment.SuggestRequest{ServiceID: "svc-1", Date: "2026-03-02"}, nil, http.StatusOK, ""},
		{"missing date", appointment.SuggestRequest{ServiceID: "svc-1"}, nil, http.StatusBadRequest, "invalid_request"},
		{"unknown service", appointment.SuggestRequest{ServiceID: "svc-9", Date: "2026-03-02"}, nil, http.StatusNotFound, "service_not_found"},
		{"malformed body", `{"service_id":`, nil, http.StatusBadRequest, "invalid_request_body"},
		{"remote down", appointment.SuggestRequest{ServiceID: "svc-1", Date: "2026-03-02"}, remote.ErrConnectivity, http.StatusServiceUnavailable, "remote_unavailable"},
		{"forbidden", appointment.SuggestRequest{ServiceID: "svc-1", Date: "2026-03-02"}, remote.ErrPermission, http.StatusForbidden, "permission_denied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, true)
			s.remote.Seed(remote.TableServices, appointment.ServiceInfo{ID: "svc-1", Name: "Consulta", DurationMinutes: &thirty})
			if tt.fail != nil {
				s.remote.FailNext("query", remote.TableAppointmentRequests, tt.fail)
			}

			rec := s.do(t, http.MethodPost, "/suggestions", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantErr != "" {
				if resp := decode[ErrorResponse](t, rec); resp.Error != tt.wantErr {
					t.Errorf("error = %s, want %s", resp.Error, tt.wantErr)
				}
				return
			}
			res := decode[schedule.Result](t, rec)
			if len(res.Suggestions) != 3 || res.Suggestions[0].Clock.String() != "08:00" {
				t.Errorf("suggestions = %+v", res.Suggestions)
			}
		})
	}
}

func TestCreatePet(t *testing.T) {
	tests := []struct {
		name        string
		online      bool
		fail        error
		body        any
		wantCode    int
		wantPending bool
	}{
		{"applied", true, nil, syncengine.PetInput{Name: "Thor", Type: "dog"}, http.StatusCreated, false},
		{"queued offline", false, nil, syncengine.PetInput{Name: "Thor", Type: "dog"}, http.StatusAccepted, true},
		{"queued on connectivity error", true, remote.ErrConnectivity, syncengine.PetInput{Name: "Thor", Type: "dog"}, http.StatusAccepted, true},
		{"missing name", true, nil, syncengine.PetInput{Type: "dog"}, http.StatusBadRequest, false},
		{"forbidden", true, remote.ErrPermission, syncengine.PetInput{Name: "Thor", Type: "dog"}, http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.online)
			if tt.fail != nil {
				s.remote.FailNext("insert", remote.TablePets, tt.fail)
			}

			rec := s.do(t, http.MethodPost, "/users/u1/pets", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if rec.Code >= 300 {
				return
			}
			resp := decode[PetResponse](t, rec)
			if resp.PendingSync != tt.wantPending || resp.Pet.Name != "Thor" || resp.Pet.UserID != "u1" {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}

func TestAppointmentLifecycle(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(t, http.MethodPost, "/users/u1/pets", syncengine.PetInput{Name: "Luna", Type: "cat"})
	pet := decode[PetResponse](t, rec).Pet

	rec = s.do(t, http.MethodPost, "/users/u1/appointments", syncengine.AppointmentInput{
		PetID: pet.ID, PreferredDate: "2026-03-02", Reason: "vacina anual",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create appointment code = %d (%s)", rec.Code, rec.Body.String())
	}
	appt := decode[AppointmentResponse](t, rec).Appointment
	if appt.Status != appointment.StatusPending || appt.Pet == nil || appt.Pet.Name != "Luna" {
		t.Errorf("appointment = %+v", appt)
	}

	path := "/users/u1/appointments/" + appt.ID + "/status"
	if rec := s.do(t, http.MethodPost, path, UpdateStatusRequest{Status: "completed"}); rec.Code != http.StatusConflict {
		t.Errorf("illegal transition code = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, path, UpdateStatusRequest{Status: "archived"}); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status code = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/users/u1/appointments/nope/status", UpdateStatusRequest{Status: "confirmed"}); rec.Code != http.StatusNotFound {
		t.Errorf("missing appointment code = %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, path, UpdateStatusRequest{Status: "confirmed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm code = %d (%s)", rec.Code, rec.Body.String())
	}
	if got := decode[AppointmentResponse](t, rec).Appointment.Status; got != appointment.StatusConfirmed {
		t.Errorf("status = %s", got)
	}

	snap := decode[syncengine.Snapshot](t, s.do(t, http.MethodGet, "/users/u1/snapshot", nil))
	if len(snap.Pets) != 1 || len(snap.Appointments) != 1 || snap.PendingOperations != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestOfflineQueueEndpoints(t *testing.T) {
	s := newTestServer(t, false)
	s.do(t, http.MethodPost, "/users/u1/pets", syncengine.PetInput{Name: "Bidu", Type: "dog"})

	queue := decode[QueueResponse](t, s.do(t, http.MethodGet, "/users/u1/queue", nil))
	if len(queue.Operations) != 1 || queue.Operations[0].Type != localstate.OpCreatePet {
		t.Fatalf("queue = %+v", queue)
	}

	res := decode[syncengine.SyncResult](t, s.do(t, http.MethodPost, "/users/u1/sync", nil))
	if !res.Offline || res.PendingOperations != 1 {
		t.Errorf("offline sync = %+v", res)
	}

	if retry := decode[RetryResponse](t, s.do(t, http.MethodPost, "/users/u1/queue/retry", nil)); retry.Retried != 0 {
		t.Errorf("retried = %d", retry.Retried)
	}

	s.probe.Set(true)
	res = decode[syncengine.SyncResult](t, s.do(t, http.MethodPost, "/users/u1/sync", nil))
	if res.Pushed != 1 || res.PendingOperations != 0 {
		t.Errorf("online sync = %+v", res)
	}
	if rows := s.remote.Rows(remote.TablePets); len(rows) != 1 {
		t.Errorf("remote pets = %v", rows)
	}
}
