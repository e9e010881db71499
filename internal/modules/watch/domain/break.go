package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var ErrUnknownKind = errors.New("unknown break kind")

type Kind string

const (
	KindShoreLeave Kind = "SHORE_LEAVE"
	KindGalley     Kind = "GALLEY"
)

// ParseKind accepts SHORE_LEAVE / shore-leave style spellings, plus the
// short forms "break" and "lunch".
func ParseKind(raw string) (Kind, error) {
	s := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(raw)), "-", "_")
	switch s {
	case string(KindShoreLeave), "BREAK":
		return KindShoreLeave, nil
	case string(KindGalley), "LUNCH":
		return KindGalley, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

// Break is the active away period. There is at most one at a time and no
// limit on how many a shift may contain.
type Break struct {
	ID        string
	Kind      Kind
	AwayStart time.Time
	Planned   time.Duration
}

func (b Break) EstimatedReturn() time.Time {
	return b.AwayStart.Add(b.Planned)
}

// Remaining is display-only and never goes below zero; an expired countdown
// does not end the break.
func (b Break) Remaining(now time.Time) time.Duration {
	if r := b.EstimatedReturn().Sub(now); r > 0 {
		return r
	}
	return 0
}

func (b Break) Away(now time.Time) time.Duration {
	if now.Before(b.AwayStart) {
		return 0
	}
	return now.Sub(b.AwayStart)
}

// SafetyCheckDetails is the audit text written on resume.
func SafetyCheckDetails(kind Kind, away time.Duration) string {
	return fmt.Sprintf("%s duration=%d", kind, int64(math.Round(away.Seconds())))
}
