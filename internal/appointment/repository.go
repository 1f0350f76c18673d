package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/hackgods/agendavet-scheduling/internal/remote"
)

var ErrServiceNotFound = errors.New("service not found")

// Repository contains the remote reads the suggestion service needs.
type Repository interface {
	GetService(ctx context.Context, id string) (*ServiceInfo, error)
	// ListServices returns the services with the given ids, or the whole
	// catalog when ids is empty.
	ListServices(ctx context.Context, ids []string) ([]ServiceInfo, error)
	// ListDayBookings returns the scheduled bookings of date (YYYY-MM-DD) in
	// an active status, leaving out excludeID when set.
	ListDayBookings(ctx context.Context, date, excludeID string) ([]Booking, error)
}

type RemoteRepository struct {
	store remote.Store
}

func NewRemoteRepository(store remote.Store) *RemoteRepository {
	return &RemoteRepository{store: store}
}

func (r *RemoteRepository) GetService(ctx context.Context, id string) (*ServiceInfo, error) {
	rows, err := r.store.Query(ctx, remote.TableServices, remote.Filter{Eq: map[string]any{"id": id}})
	if err != nil {
		return nil, fmt.Errorf("query service %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, ErrServiceNotFound
	}
	var svc ServiceInfo
	if err := remote.Decode(rows[0], &svc); err != nil {
		return nil, err
	}
	return &svc, nil
}

func (r *RemoteRepository) ListServices(ctx context.Context, ids []string) ([]ServiceInfo, error) {
	filter := remote.Filter{OrderBy: "name"}
	if len(ids) > 0 {
		filter.In = map[string][]string{"id": ids}
	}
	rows, err := r.store.Query(ctx, remote.TableServices, filter)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	out := make([]ServiceInfo, 0, len(rows))
	for _, row := range rows {
		var svc ServiceInfo
		if err := remote.Decode(row, &svc); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, nil
}

func (r *RemoteRepository) ListDayBookings(ctx context.Context, date, excludeID string) ([]Booking, error) {
	statuses := make([]string, len(ActiveStatuses))
	for i, s := range ActiveStatuses {
		statuses[i] = string(s)
	}
	filter := remote.Filter{
		Eq:      map[string]any{"scheduled_date": date},
		In:      map[string][]string{"status": statuses},
		NotNull: []string{"scheduled_time"},
		OrderBy: "scheduled_time",
	}
	if excludeID != "" {
		filter.NotEq = map[string]any{"id": excludeID}
	}

	rows, err := r.store.Query(ctx, remote.TableAppointmentRequests, filter)
	if err != nil {
		return nil, fmt.Errorf("query bookings for %s: %w", date, err)
	}
	out := make([]Booking, 0, len(rows))
	for _, row := range rows {
		var b Booking
		if err := remote.Decode(row, &b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
