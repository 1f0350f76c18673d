package clinic

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the operating parameters of the clinic. It is loaded once and
// passed by value; no other package hard-codes clinic hours.
type Config struct {
	Open       Clock `yaml:"open"`
	Close      Clock `yaml:"close"`
	LunchStart Clock `yaml:"lunch_start"`
	LunchEnd   Clock `yaml:"lunch_end"`

	BufferMinutes                 int `yaml:"buffer_minutes"`
	SlotIntervalMinutes           int `yaml:"slot_interval_minutes"`
	DefaultServiceDurationMinutes int `yaml:"default_service_duration_minutes"`
	MaxGapMinutes                 int `yaml:"max_gap_minutes"`
	MaxSuggestions                int `yaml:"max_suggestions"`

	// ReserveEmergencySlots keeps the last free slot of each turn out of the
	// optimizer's suggestions so walk-in emergencies always have room.
	ReserveEmergencySlots bool `yaml:"reserve_emergency_slots"`
}

var ErrInvalidConfig = errors.New("invalid clinic config")

// Default returns the clinic's standard operating hours and scheduling rules.
func Default() Config {
	return Config{
		Open:                          MustClock("08:00"),
		Close:                         MustClock("18:00"),
		LunchStart:                    MustClock("12:00"),
		LunchEnd:                      MustClock("13:00"),
		BufferMinutes:                 15,
		SlotIntervalMinutes:           15,
		DefaultServiceDurationMinutes: 30,
		MaxGapMinutes:                 120,
		MaxSuggestions:                3,
	}
}

// Load overlays the YAML file at path onto Default. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read clinic config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse clinic config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks open < lunch_start < lunch_end < close and the numeric rules.
func (c Config) Validate() error {
	switch {
	case !(c.Open < c.LunchStart && c.LunchStart < c.LunchEnd && c.LunchEnd < c.Close):
		return fmt.Errorf("%w: expected open < lunch_start < lunch_end < close, got %s/%s/%s/%s",
			ErrInvalidConfig, c.Open, c.LunchStart, c.LunchEnd, c.Close)
	case c.BufferMinutes < 0:
		return fmt.Errorf("%w: buffer_minutes must be >= 0", ErrInvalidConfig)
	case c.SlotIntervalMinutes <= 0:
		return fmt.Errorf("%w: slot_interval_minutes must be > 0", ErrInvalidConfig)
	case c.DefaultServiceDurationMinutes <= 0:
		return fmt.Errorf("%w: default_service_duration_minutes must be > 0", ErrInvalidConfig)
	case c.MaxGapMinutes <= 0:
		return fmt.Errorf("%w: max_gap_minutes must be > 0", ErrInvalidConfig)
	case c.MaxSuggestions <= 0:
		return fmt.Errorf("%w: max_suggestions must be > 0", ErrInvalidConfig)
	}
	return nil
}

// Turn is the half of the working day a time falls in.
type Turn string

const (
	TurnMorning   Turn = "morning"
	TurnAfternoon Turn = "afternoon"
)

// TurnOf reports whether c is before lunch (morning) or not (afternoon).
func (c Config) TurnOf(t Clock) Turn {
	if t < c.LunchStart {
		return TurnMorning
	}
	return TurnAfternoon
}

// WorkingMinutes is the length of the working day excluding lunch.
func (c Config) WorkingMinutes() int {
	return int(c.LunchStart-c.Open) + int(c.Close-c.LunchEnd)
}
