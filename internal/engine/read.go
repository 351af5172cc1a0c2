package engine

import (
	"marketsync/internal/instrument"
	"marketsync/internal/pricecache"
	"marketsync/internal/quality"
	"marketsync/internal/session"
	"marketsync/internal/stream"
	"marketsync/internal/timeseries"
)

// PriceView is a cached record with its freshness at read time.
type PriceView struct {
	pricecache.Record
	Freshness quality.Freshness `json:"freshness"`
}

type Status struct {
	State       session.State    `json:"state"`
	Quality     quality.Tier     `json:"quality"`
	Realtime    bool             `json:"realtime"`
	Polling     bool             `json:"polling"`
	Attempts    int              `json:"reconnect_attempts"`
	Display     string           `json:"display,omitempty"`
	Timeframe   string           `json:"timeframe,omitempty"`
	LastFailure *session.Failure `json:"last_failure,omitempty"`
}

func (e *Engine) CurrentPrice(symbol string) (PriceView, bool) {
	rec, ok := e.cache.Get(instrument.Normalize(symbol))
	if !ok {
		return PriceView{}, false
	}
	return PriceView{Record: rec, Freshness: rec.Freshness(e.clock.Now())}, true
}

// Series returns the staged series when symbol is the displayed instrument.
func (e *Engine) Series(symbol string) (timeseries.Series, bool) {
	symbol = instrument.Normalize(symbol)

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.buffer == nil || e.displaySymbol != symbol {
		return timeseries.Series{}, false
	}
	return e.buffer.Snapshot(), true
}

func (e *Engine) ConnectionStatus() Status {
	tier, ok := e.window.Tier()
	if !ok {
		tier = quality.TierUnknown
	}

	e.mu.RLock()
	st := Status{
		State:     session.StateIdle,
		Quality:   tier,
		Realtime:  e.realtime,
		Display:   e.displaySymbol,
		Timeframe: e.displayFrame,
	}
	e.mu.RUnlock()

	st.Polling = e.poller.Running()
	if e.session != nil {
		ss := e.session.Status()
		st.State, st.Attempts, st.LastFailure = ss.State, ss.Attempts, ss.LastFailure
	}
	return st
}

// Signals returns the recent signals, newest first.
func (e *Engine) Signals() []stream.Signal {
	return e.signals.recent(0)
}

// Failures delivers a notice each time real-time mode gives up.
func (e *Engine) Failures() <-chan session.Failure {
	return e.failures
}

func (e *Engine) Metrics() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// Display returns the displayed symbol and timeframe.
func (e *Engine) Display() (string, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.displaySymbol, e.displayFrame
}
