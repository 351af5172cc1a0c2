package engine

import (
	"time"

	"marketsync/internal/instrument"
	"marketsync/internal/pricecache"
	"marketsync/internal/quality"
	"marketsync/internal/stream"
	"marketsync/pkg/marketdata"

	"go.uber.org/zap"
)

// ingest is the single path from both producers into the cache, the
// displayed series and the archive.
func (e *Engine) ingest(rec pricecache.Record) pricecache.Outcome {
	if rec.ObservedAt.IsZero() {
		rec.ObservedAt = e.clock.Now()
	}
	rec.Price = instrument.Round(rec.Symbol, rec.Price)

	out := e.cache.Upsert(rec)
	e.metrics.countOutcome(out)
	if !out.Accepted() {
		e.logger.Debug("price not accepted", zap.String("symbol", rec.Symbol),
			zap.String("source", string(rec.Source)), zap.Stringer("outcome", out))
		return out
	}

	// Late results for a previous display target still update the cache
	// but never reach the new buffer.
	e.mu.RLock()
	if e.buffer != nil && e.displaySymbol == rec.Symbol {
		e.buffer.Append(toPoint(rec))
	}
	e.mu.RUnlock()

	e.archive.enqueue(ToTickRecord(rec))
	return out
}

// currentTier is the quality tier to stamp on live records.
func (e *Engine) currentTier() quality.Tier {
	tier, ok := e.window.Tier()
	if !ok {
		return ""
	}
	return tier
}

// OnQuote handles a successful poll.
func (e *Engine) OnQuote(q marketdata.Quote) {
	symbol := instrument.Normalize(q.Symbol)
	live := q.Live()
	e.window.Add(quality.Sample{Latency: q.Latency, Live: live})

	rec := pricecache.Record{
		Symbol:     symbol,
		Price:      q.Price,
		ServerTime: q.ServerTime,
		Latency:    q.Latency,
		Source:     pricecache.SourcePoll,
	}
	if live {
		rec.Quality = e.currentTier()
	} else {
		rec.Source = pricecache.SourceSimulated
	}
	e.ingest(rec)
}

// OnFetchError handles a failed poll. The cached record is kept; a
// synthetic price is produced only when there is none or it has gone
// stale past the ceiling.
func (e *Engine) OnFetchError(symbol string, latency time.Duration, err error) {
	e.metrics.fetchErrors.Add(1)
	e.window.Add(quality.Sample{Latency: latency, Live: false})
	e.logger.Warn("price fetch failed", zap.String("symbol", symbol), zap.Error(err))

	if !e.cache.Stale(symbol) {
		return
	}
	price, ok := e.synth.Synthesize(symbol, e.clock.Now())
	if !ok {
		return
	}
	out := e.ingest(pricecache.Record{Symbol: symbol, Price: price, Source: pricecache.SourceSimulated})
	if out.Accepted() {
		e.metrics.synthesized.Add(1)
	}
}

// OnPriceTick handles a push channel price.
func (e *Engine) OnPriceTick(tick stream.PriceTick) {
	e.window.Add(quality.Sample{Latency: 0, Live: true})
	e.ingest(pricecache.Record{
		Symbol:     tick.Symbol,
		Price:      tick.Price,
		ServerTime: tick.Timestamp.Time,
		Source:     pricecache.SourcePush,
		Quality:    e.currentTier(),
	})
}

// OnSignals records a signal batch; their symbols join the poll set.
func (e *Engine) OnSignals(signals []stream.Signal) {
	e.metrics.signals.Add(int64(len(signals)))
	e.signals.add(signals...)
}

// ActiveSymbols is the displayed instrument plus the symbols of the most
// recent signals.
func (e *Engine) ActiveSymbols() []string {
	e.mu.RLock()
	display := e.displaySymbol
	e.mu.RUnlock()

	var out []string
	if display != "" {
		out = append(out, display)
	}
	for _, s := range e.signals.recentSymbols(e.cfg.SignalSymbols) {
		if s != display {
			out = append(out, s)
		}
	}
	return out
}

func (e *Engine) LastWriteAt(symbol string) time.Time {
	return e.cache.LastWriteAt(symbol)
}
