package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownKind   = errors.New("unknown audit kind")
	ErrUnknownReason = errors.New("unknown reason code")
)

type Kind string

const (
	KindEarlyExit   Kind = "EARLY_EXIT"
	KindOffline     Kind = "OFFLINE"
	KindDrift       Kind = "DRIFT"
	KindSecurity    Kind = "SECURITY"
	KindSafetyCheck Kind = "SAFETY_CHECK"
	KindSOSBeacon   Kind = "SOS_BEACON"
)

func (k Kind) Validate() error {
	switch k {
	case KindEarlyExit, KindOffline, KindDrift, KindSecurity, KindSafetyCheck, KindSOSBeacon:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}
}

// ParseKind accepts the canonical form as well as lower-case and kebab-case.
func ParseKind(raw string) (Kind, error) {
	k := Kind(normalize(raw))
	if err := k.Validate(); err != nil {
		return "", err
	}
	return k, nil
}

// ReasonCode mirrors the departure reasons recorded on EARLY_EXIT entries.
type ReasonCode string

const (
	ReasonMedical        ReasonCode = "MEDICAL"
	ReasonTechnical      ReasonCode = "TECHNICAL"
	ReasonPersonal       ReasonCode = "PERSONAL"
	ReasonCompletedEarly ReasonCode = "COMPLETED_EARLY"
	ReasonEmergency      ReasonCode = "EMERGENCY"
	ReasonOther          ReasonCode = "OTHER"
)

func (r ReasonCode) Validate() error {
	switch r {
	case ReasonMedical, ReasonTechnical, ReasonPersonal, ReasonCompletedEarly, ReasonEmergency, ReasonOther:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownReason, r)
	}
}

// Entry is one immutable line of the compliance record.
type Entry struct {
	ID         string
	Kind       Kind
	Timestamp  time.Time
	Details    string
	ReasonCode *ReasonCode
	Duration   *time.Duration
}

func (e Entry) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("audit entry id is required")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("audit entry timestamp is required")
	}
	if err := e.Kind.Validate(); err != nil {
		return err
	}
	if e.ReasonCode != nil {
		if err := e.ReasonCode.Validate(); err != nil {
			return err
		}
	}
	if e.Duration != nil && *e.Duration < 0 {
		return fmt.Errorf("audit entry duration must be non-negative")
	}
	return nil
}

func normalize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	return strings.ReplaceAll(s, "-", "_")
}
