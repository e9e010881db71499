package clock

import "time"

// Clock abstracts time to keep usecases deterministic in tests.
type Clock interface {
	Now() time.Time
}

// Ticker is the subset of time.Ticker the poll loops rely on.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates tickers so loops can be driven manually in tests.
type TickerFactory func(d time.Duration) Ticker

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

// NewSystemTicker is the TickerFactory backed by time.NewTicker.
func NewSystemTicker(d time.Duration) Ticker {
	return systemTicker{t: time.NewTicker(d)}
}
