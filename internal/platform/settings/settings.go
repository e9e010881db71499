// Package settings reads the user-owned shift settings. The engine only ever
// reads them; edits happen in the YAML file and are picked up by Watch.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const galleyDuration = 60 * time.Minute

type Settings struct {
	ShiftDurationHours        float64 `yaml:"shift_duration_hours"`
	HourlyRate                float64 `yaml:"hourly_rate"`
	ShoreLeaveDurationMinutes float64 `yaml:"shore_leave_duration_minutes"`
	BreakDurationMinutes      float64 `yaml:"break_duration_minutes,omitempty"`
	RequiresHoldConfirmation  bool    `yaml:"requires_hold_confirmation"`
	HoldDurationMS            int     `yaml:"hold_duration_ms"`
}

// Provider exposes the latest settings snapshot.
type Provider interface {
	Current() Settings
}

// Static is a Provider that never changes.
type Static Settings

func (s Static) Current() Settings { return Settings(s) }

func Defaults() Settings {
	return Settings{
		ShiftDurationHours:        8,
		HourlyRate:                0,
		ShoreLeaveDurationMinutes: 15,
		RequiresHoldConfirmation:  true,
		HoldDurationMS:            3000,
	}
}

func (s Settings) ShiftDuration() time.Duration {
	return time.Duration(s.ShiftDurationHours * float64(time.Hour))
}

func (s Settings) ShoreLeaveDuration() time.Duration {
	return time.Duration(s.ShoreLeaveDurationMinutes * float64(time.Minute))
}

// GalleyDuration is fixed and not user configurable.
func (s Settings) GalleyDuration() time.Duration {
	return galleyDuration
}

func (s Settings) HoldDuration() time.Duration {
	return time.Duration(s.HoldDurationMS) * time.Millisecond
}

func (s Settings) Validate() error {
	if s.ShiftDurationHours <= 0 {
		return fmt.Errorf("shift_duration_hours must be positive")
	}
	if s.HourlyRate < 0 {
		return fmt.Errorf("hourly_rate must be non-negative")
	}
	if s.ShoreLeaveDurationMinutes < 0 {
		return fmt.Errorf("shore_leave_duration_minutes must be non-negative")
	}
	if s.HoldDurationMS <= 0 {
		return fmt.Errorf("hold_duration_ms must be positive")
	}
	return nil
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Settings, error) {
	s := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if s.BreakDurationMinutes > 0 {
		s.ShoreLeaveDurationMinutes = s.BreakDurationMinutes
		s.BreakDurationMinutes = 0
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return s, nil
}

// Save writes s to path, creating the parent directory.
func Save(path string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	raw, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
