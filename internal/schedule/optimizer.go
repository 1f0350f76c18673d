// Package schedule ranks free appointment slots for a clinic day.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hackgods/agendavet-scheduling/internal/clinic"
)

// scoreFloor is what a valid slot with no nearby appointment scores.
const scoreFloor = 10

const (
	turnBonus         = 15
	veterinarianBonus = 10
)

var ErrInvalidDuration = errors.New("service duration must be positive")

// ScheduledAppointment is an existing booking on the clinic agenda.
type ScheduledAppointment struct {
	ID    string
	Date  time.Time
	Start clinic.Clock
	// Veterinarian is nil when the booking has not been assigned yet.
	Veterinarian *string
	// DurationMinutes of 0 means the clinic's default service duration.
	DurationMinutes int
}

// Preferences bias the ranking. They never exclude a valid slot.
type Preferences struct {
	Turn         clinic.Turn `json:"turn,omitempty"`
	Veterinarian *string     `json:"veterinarian,omitempty"`
}

// Request describes the appointment being placed.
type Request struct {
	DurationMinutes int
	Date            time.Time
	// Veterinarian restricts conflicts to that vet's agenda (plus unassigned
	// bookings). Nil means the vet is not chosen yet and every booking counts.
	Veterinarian *string
	Preferences  Preferences
}

type Suggestion struct {
	Start        time.Time    `json:"start"`
	Clock        clinic.Clock `json:"time"`
	Veterinarian *string      `json:"veterinarian,omitempty"`
	Score        int          `json:"score"`
	// GapMinutes is the idle time to the nearest booking, -1 when there is none.
	GapMinutes    int    `json:"gap_minutes"`
	Justification string `json:"justification"`
}

// Result is ordered best first. An empty result is a valid outcome.
type Result struct {
	Suggestions []Suggestion `json:"suggestions"`
}

type Optimizer struct {
	cfg clinic.Config
}

func NewOptimizer(cfg clinic.Config) *Optimizer {
	return &Optimizer{cfg: cfg}
}

// Suggest ranks slots on date for a request with no assigned veterinarian.
func (o *Optimizer) Suggest(existing []ScheduledAppointment, durationMinutes int, date time.Time, prefs Preferences) (Result, error) {
	return o.SuggestFor(existing, Request{
		DurationMinutes: durationMinutes,
		Date:            date,
		Preferences:     prefs,
	})
}

type interval struct {
	start, end   int
	veterinarian *string
}

type candidate struct {
	start        int
	score        int
	gap          int
	veterinarian *string
	reason       string
}

// SuggestFor is the general form of Suggest.
func (o *Optimizer) SuggestFor(existing []ScheduledAppointment, req Request) (Result, error) {
	if req.DurationMinutes <= 0 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidDuration, req.DurationMinutes)
	}

	booked := o.relevantBookings(existing, req)
	d := req.DurationMinutes
	open, closing := int(o.cfg.Open), int(o.cfg.Close)

	var free []candidate
	for s := open; s+d <= closing; s += o.cfg.SlotIntervalMinutes {
		if o.crossesLunch(s, s+d) || o.conflicts(s, s+d, booked) {
			continue
		}
		free = append(free, o.score(s, d, booked, req))
	}

	if o.cfg.ReserveEmergencySlots {
		free = o.withoutEmergencySlots(free)
	}

	sort.SliceStable(free, func(i, j int) bool {
		if free[i].score != free[j].score {
			return free[i].score > free[j].score
		}
		return free[i].start < free[j].start
	})
	if len(free) > o.cfg.MaxSuggestions {
		free = free[:o.cfg.MaxSuggestions]
	}

	res := Result{Suggestions: make([]Suggestion, 0, len(free))}
	for _, c := range free {
		clock := clinic.Clock(c.start)
		res.Suggestions = append(res.Suggestions, Suggestion{
			Start:         clock.On(req.Date),
			Clock:         clock,
			Veterinarian:  c.veterinarian,
			Score:         c.score,
			GapMinutes:    c.gap,
			Justification: c.reason,
		})
	}
	return res, nil
}

func (o *Optimizer) relevantBookings(existing []ScheduledAppointment, req Request) []interval {
	var out []interval
	for _, a := range existing {
		if !sameDay(a.Date, req.Date) {
			continue
		}
		if req.Veterinarian != nil && a.Veterinarian != nil && *a.Veterinarian != *req.Veterinarian {
			continue
		}
		dur := a.DurationMinutes
		if dur <= 0 {
			dur = o.cfg.DefaultServiceDurationMinutes
		}
		out = append(out, interval{start: int(a.Start), end: int(a.Start) + dur, veterinarian: a.Veterinarian})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

func (o *Optimizer) crossesLunch(start, end int) bool {
	return start < int(o.cfg.LunchEnd) && end > int(o.cfg.LunchStart)
}

// conflicts applies the buffer once, around each existing booking.
func (o *Optimizer) conflicts(start, end int, booked []interval) bool {
	b := o.cfg.BufferMinutes
	for _, iv := range booked {
		if start < iv.end+b && end > iv.start-b {
			return true
		}
	}
	return false
}

// idle is the working time between from and to, lunch excluded.
func (o *Optimizer) idle(from, to int) int {
	gap := to - from
	ls, le := int(o.cfg.LunchStart), int(o.cfg.LunchEnd)
	if from < le && to > ls {
		gap -= min(to, le) - max(from, ls)
	}
	return max(gap, 0)
}

func (o *Optimizer) score(start, d int, booked []interval, req Request) candidate {
	b := o.cfg.BufferMinutes
	end := start + d

	gap := -1
	var neighbour *interval
	for i := range booked {
		iv := &booked[i]
		var g int
		if iv.end <= start {
			g = o.idle(iv.end+b, start)
		} else {
			g = o.idle(end, iv.start-b)
		}
		if gap < 0 || g < gap {
			gap, neighbour = g, iv
		}
	}

	c := candidate{start: start, gap: gap, score: scoreFloor}
	var reason strings.Builder
	switch {
	case gap == 0:
		c.score = 100
		reason.WriteString("encaixe imediato")
	case gap > 0 && gap <= o.cfg.MaxGapMinutes:
		c.score = scoreFloor + (100-scoreFloor)*(o.cfg.MaxGapMinutes-gap)/o.cfg.MaxGapMinutes
		fmt.Fprintf(&reason, "pequena lacuna de %dmin", gap)
	default:
		reason.WriteString("horário isolado")
	}

	if req.Preferences.Turn != "" && o.cfg.TurnOf(clinic.Clock(start)) == req.Preferences.Turn {
		c.score += turnBonus
		reason.WriteString(", turno preferido")
	}

	c.veterinarian = req.Veterinarian
	if c.veterinarian == nil && neighbour != nil {
		c.veterinarian = neighbour.veterinarian
	}
	if pv := req.Preferences.Veterinarian; pv != nil && c.veterinarian != nil && *pv == *c.veterinarian {
		c.score += veterinarianBonus
		fmt.Fprintf(&reason, ", com %s", *pv)
	}

	c.reason = reason.String()
	return c
}

// withoutEmergencySlots drops the last free slot of each turn. Candidates
// arrive in start order.
func (o *Optimizer) withoutEmergencySlots(free []candidate) []candidate {
	last := map[clinic.Turn]int{}
	for _, c := range free {
		last[o.cfg.TurnOf(clinic.Clock(c.start))] = c.start
	}
	out := free[:0]
	for _, c := range free {
		if last[o.cfg.TurnOf(clinic.Clock(c.start))] == c.start {
			continue
		}
		out = append(out, c)
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
