package appointment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/hackgods/agendavet-scheduling/internal/clinic"
	"github.com/hackgods/agendavet-scheduling/internal/remote"
	"github.com/hackgods/agendavet-scheduling/internal/schedule"
)

// CatalogCacheKey is the resource cache entry holding the service catalog.
const CatalogCacheKey = "services"

var ErrInvalidRequest = errors.New("invalid suggestion request")

// ResourceCache keeps the last known copy of remote reference data.
type ResourceCache interface {
	SetResourceCache(ctx context.Context, key string, data any) error
	LoadResource(ctx context.Context, key string, dest any) (bool, error)
}

type SuggestRequest struct {
	ServiceID string `json:"service_id"`
	// Date is YYYY-MM-DD.
	Date        string               `json:"date"`
	Preferences schedule.Preferences `json:"preferences"`
	// ExcludeRequestID leaves the request being rescheduled off the agenda.
	ExcludeRequestID string `json:"exclude_request_id,omitempty"`
	// Veterinarian, when already assigned, limits conflicts to that agenda.
	Veterinarian *string `json:"veterinarian,omitempty"`
}

type Service struct {
	repo      Repository
	cache     ResourceCache
	optimizer *schedule.Optimizer
	cfg       clinic.Config
	logger    zerolog.Logger

	loads singleflight.Group
}

// NewService builds the suggestion service. cache may be nil.
func NewService(repo Repository, cache ResourceCache, cfg clinic.Config, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		cache:     cache,
		optimizer: schedule.NewOptimizer(cfg),
		cfg:       cfg,
		logger:    logger.With().Str("component", "suggestions").Logger(),
	}
}

func (s *Service) Config() clinic.Config { return s.cfg }

// Suggest ranks the best start times for a service on a date, given the
// bookings already on that day's agenda.
func (s *Service) Suggest(ctx context.Context, req SuggestRequest) (schedule.Result, error) {
	if req.ServiceID == "" || req.Date == "" {
		return schedule.Result{}, fmt.Errorf("%w: service and date are required", ErrInvalidRequest)
	}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		return schedule.Result{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidRequest)
	}

	duration, err := s.serviceDuration(ctx, req.ServiceID)
	if err != nil {
		return schedule.Result{}, err
	}

	bookings, err := s.dayBookings(ctx, req.Date, req.ExcludeRequestID)
	if err != nil {
		return schedule.Result{}, err
	}

	existing, err := s.enrich(ctx, bookings, date)
	if err != nil {
		return schedule.Result{}, err
	}

	res, err := s.optimizer.SuggestFor(existing, schedule.Request{
		DurationMinutes: duration,
		Date:            date,
		Veterinarian:    req.Veterinarian,
		Preferences:     req.Preferences,
	})
	if err != nil {
		return schedule.Result{}, err
	}
	s.logger.Debug().Str("date", req.Date).Str("service_id", req.ServiceID).
		Int("bookings", len(existing)).Int("suggestions", len(res.Suggestions)).Msg("suggestions computed")
	return res, nil
}

// RefreshCatalog stores the full service catalog in the resource cache.
func (s *Service) RefreshCatalog(ctx context.Context) (int, error) {
	services, err := s.repo.ListServices(ctx, nil)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.SetResourceCache(ctx, CatalogCacheKey, services); err != nil {
			return 0, fmt.Errorf("cache service catalog: %w", err)
		}
	}
	return len(services), nil
}

func (s *Service) serviceDuration(ctx context.Context, id string) (int, error) {
	svc, err := s.repo.GetService(ctx, id)
	if err != nil && remote.IsRetryable(err) {
		if cached, ok := s.cachedCatalog(ctx)[id]; ok {
			s.logger.Warn().Err(err).Str("service_id", id).Msg("using cached service duration")
			svc, err = &cached, nil
		}
	}
	if err != nil {
		return 0, fmt.Errorf("load service: %w", err)
	}
	return s.durationOf(svc.DurationMinutes), nil
}

// dayBookings shares one remote query between concurrent callers asking for
// the same day. The shared query is detached from any single caller's
// cancellation; each caller still stops waiting when its own ctx ends.
func (s *Service) dayBookings(ctx context.Context, date, excludeID string) ([]Booking, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(date+"|"+excludeID, func() (any, error) {
		return s.repo.ListDayBookings(shared, date, excludeID)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load bookings: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("load bookings: %w", res.Err)
		}
		return res.Val.([]Booking), nil
	}
}

func (s *Service) enrich(ctx context.Context, bookings []Booking, date time.Time) ([]schedule.ScheduledAppointment, error) {
	var ids []string
	for _, b := range bookings {
		if b.ServiceID != nil && !slices.Contains(ids, *b.ServiceID) {
			ids = append(ids, *b.ServiceID)
		}
	}

	durations := make(map[string]int, len(ids))
	if len(ids) > 0 {
		services, err := s.repo.ListServices(ctx, ids)
		if err != nil {
			if !remote.IsRetryable(err) {
				return nil, fmt.Errorf("load booking services: %w", err)
			}
			s.logger.Warn().Err(err).Msg("booking durations from cached catalog")
			for _, svc := range s.cachedCatalog(ctx) {
				services = append(services, svc)
			}
		}
		for _, svc := range services {
			durations[svc.ID] = s.durationOf(svc.DurationMinutes)
		}
	}

	out := make([]schedule.ScheduledAppointment, 0, len(bookings))
	for _, b := range bookings {
		start, err := clinic.ParseClock(b.ScheduledTime)
		if err != nil {
			s.logger.Warn().Err(err).Str("appointment_id", b.ID).Msg("skipping booking with unreadable time")
			continue
		}
		d := s.cfg.DefaultServiceDurationMinutes
		if b.ServiceID != nil {
			if known, ok := durations[*b.ServiceID]; ok {
				d = known
			}
		}
		out = append(out, schedule.ScheduledAppointment{
			ID:              b.ID,
			Date:            date,
			Start:           start,
			Veterinarian:    b.Veterinarian,
			DurationMinutes: d,
		})
	}
	return out, nil
}

func (s *Service) cachedCatalog(ctx context.Context) map[string]ServiceInfo {
	if s.cache == nil {
		return nil
	}
	var services []ServiceInfo
	ok, err := s.cache.LoadResource(ctx, CatalogCacheKey, &services)
	if err != nil {
		s.logger.Warn().Err(err).Msg("read cached service catalog")
	}
	if !ok {
		return nil
	}
	byID := make(map[string]ServiceInfo, len(services))
	for _, svc := range services {
		byID[svc.ID] = svc
	}
	return byID
}

func (s *Service) durationOf(minutes *int) int {
	if minutes == nil || *minutes <= 0 {
		return s.cfg.DefaultServiceDurationMinutes
	}
	return *minutes
}
