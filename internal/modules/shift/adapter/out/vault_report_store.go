package out

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"shiftwatch/internal/modules/shift/domain"
	shiftout "shiftwatch/internal/modules/shift/port/out"
	"shiftwatch/internal/platform/markdown"
)

// ReportMeta is the frontmatter of an arrival report note.
type ReportMeta struct {
	SchemaVersion   int     `yaml:"schema_version"`
	SessionID       string  `yaml:"session_id"`
	StartTime       string  `yaml:"start_time"`
	EndTime         string  `yaml:"end_time"`
	DurationSeconds float64 `yaml:"duration_seconds"`
	ItemsCompleted  int     `yaml:"items_completed"`
	HourlyRate      float64 `yaml:"hourly_rate"`
	Earnings        float64 `yaml:"earnings"`
}

type VaultReportStore struct {
	dir string
}

func NewVaultReportStore(dir string) shiftout.ReportStore {
	return &VaultReportStore{dir: dir}
}

func (s *VaultReportStore) Save(_ context.Context, report shiftout.ArrivalReport) (string, error) {
	closed, ok := report.Session.Closed()
	if !ok {
		return "", fmt.Errorf("arrival report for open session %s", report.Session.ID)
	}
	start := report.Session.StartTime
	dir := filepath.Join(s.dir, start.Format("2006"), start.Format("01"), start.Format("02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.md", start.Format("150405"), shortID(report.Session.ID)))

	elapsed := report.Session.Elapsed(closed.EndTime)
	meta := ReportMeta{
		SchemaVersion:   domain.SchemaVersion,
		SessionID:       report.Session.ID,
		StartTime:       start.Format(time.RFC3339),
		EndTime:         closed.EndTime.Format(time.RFC3339),
		DurationSeconds: elapsed.Seconds(),
		ItemsCompleted:  closed.ItemsCompleted,
		HourlyRate:      report.Rate,
		Earnings:        domain.RoundCents(report.Earnings),
	}
	body := fmt.Sprintf("# Arrival %s\n\n- On watch: %s\n- Items completed: %d\n- Earnings: %.2f\n",
		start.Format("2006-01-02"), elapsed.Round(time.Second), closed.ItemsCompleted, domain.RoundCents(report.Earnings))
	rendered, err := markdown.RenderNote(meta, body)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return "", fmt.Errorf("write arrival report: %w", err)
	}
	return path, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "shift"
	}
	return id
}
