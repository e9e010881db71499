package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	apperrors "shiftwatch/internal/platform/errors"
)

type State string

const (
	StateIdle       State = "IDLE"
	StateCollecting State = "COLLECTING"
	StateSubmitting State = "SUBMITTING"
	StateDone       State = "DONE"
)

type Reason string

const (
	ReasonMedical        Reason = "MEDICAL"
	ReasonTechnical      Reason = "TECHNICAL"
	ReasonPersonal       Reason = "PERSONAL"
	ReasonCompletedEarly Reason = "COMPLETED_EARLY"
	ReasonEmergency      Reason = "EMERGENCY"
	ReasonOther          Reason = "OTHER"
)

// Reasons lists the codes in display order.
var Reasons = []Reason{ReasonMedical, ReasonTechnical, ReasonPersonal, ReasonCompletedEarly, ReasonEmergency, ReasonOther}

func ParseReason(raw string) (Reason, error) {
	r := Reason(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(raw)), "-", "_"))
	for _, known := range Reasons {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: unknown departure reason %q", apperrors.ErrInvalidInput, raw)
}

// EmergencyStatement replaces the user's statement when the manifest is bypassed.
const EmergencyStatement = "EMERGENCY DEPARTURE: manifest bypassed under emergency protocol"

type Manifest struct {
	Reason      *Reason
	Statement   string
	IsEmergency bool
}

func (m Manifest) CanSubmit() bool {
	return m.IsEmergency || (m.Reason != nil && strings.TrimSpace(m.Statement) != "")
}

// Problems names the fields that block submission, in form order.
func (m Manifest) Problems() []string {
	if m.IsEmergency {
		return nil
	}
	var fields []string
	if m.Reason == nil {
		fields = append(fields, "reason")
	}
	if strings.TrimSpace(m.Statement) == "" {
		fields = append(fields, "statement")
	}
	return fields
}

// IsEarly reports whether leaving now needs a manifest.
func IsEarly(elapsed, shiftDuration time.Duration) bool {
	return elapsed < shiftDuration
}

// Context is the read-only situation report attached to an early exit.
// Unavailable names lookups that failed; their values are reported as n/a.
type Context struct {
	DriftEvents   int
	EfficiencyPct int
	HoldingItems  int
	Unavailable   map[string]bool
}

const (
	ContextDrift      = "drift_events"
	ContextEfficiency = "efficiency"
	ContextHolding    = "holding_items"
)

// Efficiency is completed/total as a rounded percentage; zero tasks yields 0.
func Efficiency(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

func ComposeDetails(m Manifest, c Context) string {
	value := func(key string, v int, suffix string) string {
		if c.Unavailable[key] {
			return key + "=n/a"
		}
		return fmt.Sprintf("%s=%d%s", key, v, suffix)
	}
	parts := []string{
		strings.TrimSpace(m.Statement),
		value(ContextDrift, c.DriftEvents, ""),
		value(ContextEfficiency, c.EfficiencyPct, "%"),
		value(ContextHolding, c.HoldingItems, ""),
	}
	return strings.Join(parts, " | ")
}
