package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseKindAcceptsSpellings(t *testing.T) {
	t.Parallel()
	cases := map[string]Kind{
		"EARLY_EXIT":   KindEarlyExit,
		"early-exit":   KindEarlyExit,
		" drift ":      KindDrift,
		"safety_check": KindSafetyCheck,
		"sos-beacon":   KindSOSBeacon,
	}
	for raw, want := range cases {
		got, err := ParseKind(raw)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := ParseKind("coffee"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestEntryValidate(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	bad := ReasonCode("BORED")
	neg := -time.Second
	cases := []struct {
		name  string
		entry Entry
		ok    bool
	}{
		{"valid", Entry{ID: "a", Kind: KindDrift, Timestamp: now}, true},
		{"missing id", Entry{Kind: KindDrift, Timestamp: now}, false},
		{"missing timestamp", Entry{ID: "a", Kind: KindDrift}, false},
		{"unknown kind", Entry{ID: "a", Kind: "X", Timestamp: now}, false},
		{"unknown reason", Entry{ID: "a", Kind: KindEarlyExit, Timestamp: now, ReasonCode: &bad}, false},
		{"negative duration", Entry{ID: "a", Kind: KindSafetyCheck, Timestamp: now, Duration: &neg}, false},
	}
	for _, tc := range cases {
		err := tc.entry.Validate()
		if (err == nil) != tc.ok {
			t.Fatalf("%s: Validate() = %v, want ok=%t", tc.name, err, tc.ok)
		}
	}
}
