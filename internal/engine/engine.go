// Package engine keeps per-instrument prices fresh from the poller and the
// push session, stages the displayed instrument's series, and exposes the
// read surface used by the display layer.
package engine

import (
	"context"
	"fmt"
	"sync"

	"marketsync/config"
	"marketsync/internal/clock"
	"marketsync/internal/fallback"
	"marketsync/internal/instrument"
	"marketsync/internal/poller"
	"marketsync/internal/pricecache"
	"marketsync/internal/quality"
	"marketsync/internal/session"
	"marketsync/internal/stream"
	"marketsync/internal/timeseries"
	"marketsync/pkg/marketdata"

	"go.uber.org/zap"
)

// SeriesLoader returns the points a freshly displayed series starts with.
type SeriesLoader interface {
	LoadPoints(ctx context.Context, symbol, timeframe string, count int) ([]timeseries.Point, error)
}

// Deps are the collaborators an Engine drives. Dialer, Loader and Sinks
// are optional; a nil Synthesizer disables fallback prices.
type Deps struct {
	Fetcher     poller.Fetcher
	Loader      SeriesLoader
	Dialer      session.Dialer
	Synthesizer fallback.Synthesizer
	Sinks       []TickSink
	QueueSize   int // archive queue, default 1024
	Clock       clock.Clock
	Logger      *zap.Logger
}

type Engine struct {
	cfg     config.EngineConfig
	clock   clock.Clock
	logger  *zap.Logger
	cache   *pricecache.Cache
	window  *quality.Window
	synth   fallback.Synthesizer
	loader  SeriesLoader
	poller  *poller.Scheduler
	session *session.Manager
	signals *signalBook
	archive *archiveWorker
	metrics *Metrics

	failures chan session.Failure
	handle   func([]byte)

	mu            sync.RWMutex
	runCtx        context.Context
	started       bool
	realtime      bool
	pollByUser    bool
	pollBySession bool
	displaySymbol string
	displayFrame  string
	buffer        *timeseries.Buffer
	indicators    []timeseries.Indicator
}

func New(cfg config.EngineConfig, deps Deps) *Engine {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	synth := deps.Synthesizer
	if synth == nil {
		synth = fallback.Disabled{}
	}

	e := &Engine{
		cfg:      cfg,
		clock:    clk,
		logger:   logger,
		cache:    pricecache.New(clk, cfg.StalenessCeiling),
		window:   quality.NewWindow(),
		synth:    synth,
		loader:   deps.Loader,
		signals:  &signalBook{},
		metrics:  &Metrics{},
		failures: make(chan session.Failure, 8),
		runCtx:   context.Background(),
	}
	e.archive = newArchiveWorker(deps.Sinks, deps.QueueSize, e.metrics, logger.Named("archive"))
	e.handle = stream.MakeMessageHandler(logger.Named("stream"), e)

	e.poller = poller.New(poller.Config{
		Interval:      cfg.PollInterval,
		Throttle:      cfg.ThrottleInterval,
		Stagger:       cfg.FetchStagger,
		FetchTimeout:  cfg.FetchTimeout,
		MaxConcurrent: cfg.MaxConcurrent,
	}, deps.Fetcher, e, clk, logger.Named("poller"))

	if deps.Dialer != nil {
		e.session = session.NewManager(deps.Dialer, session.Policy{
			MaxRetries:     cfg.MaxRetries,
			ReconnectDelay: cfg.ReconnectDelay,
		}, clk, session.Hooks{
			OnMessage:    e.onPushMessage,
			StartPolling: e.onSessionStartPolling,
			StopPolling:  e.onSessionStopPolling,
			OnFailure:    e.onSessionFailure,
		}, logger.Named("session"))
	}

	for _, w := range cfg.SMAWindows {
		if w > 0 {
			e.indicators = append(e.indicators, timeseries.SMA(w))
		}
	}
	return e
}

// Start launches the archive worker and applies the configured start-up
// display and real-time mode. ctx bounds background work until Stop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.started = true
	e.runCtx = ctx
	e.mu.Unlock()

	e.archive.start()

	if e.cfg.DisplaySymbol != "" {
		if err := e.SetDisplay(ctx, e.cfg.DisplaySymbol, e.cfg.DisplayTimeframe); err != nil {
			return err
		}
	}
	if e.cfg.RealtimeOnStart {
		e.EnableRealtime()
	}
	e.logger.Info("engine started",
		zap.String("display", e.cfg.DisplaySymbol), zap.Bool("realtime", e.cfg.RealtimeOnStart))
	return nil
}

// Stop turns everything off and drains the archive queue.
func (e *Engine) Stop() {
	e.DisableRealtime()
	e.DisablePolling()
	e.archive.close()
	e.logger.Info("engine stopped")
}

// EnableRealtime opens the push session. Without a push channel it falls
// back to starting the poller.
func (e *Engine) EnableRealtime() {
	e.mu.Lock()
	e.realtime = true
	ctx := e.runCtx
	e.mu.Unlock()

	if e.session == nil {
		e.onSessionStartPolling()
		return
	}
	e.session.Enable(ctx)
}

// DisableRealtime closes the push transport, cancels the reconnect timer
// and stops the poller's pending tick.
func (e *Engine) DisableRealtime() {
	e.mu.Lock()
	e.realtime = false
	e.pollBySession = false
	e.pollByUser = false
	e.mu.Unlock()

	if e.session != nil {
		e.session.Disable()
	}
	e.poller.Stop()
}

// EnablePolling starts the poller independently of real-time mode.
func (e *Engine) EnablePolling() {
	e.mu.Lock()
	e.pollByUser = true
	e.mu.Unlock()
	e.poller.Start()
}

func (e *Engine) DisablePolling() {
	e.mu.Lock()
	e.pollByUser = false
	keep := e.pollBySession
	e.mu.Unlock()
	if !keep {
		e.poller.Stop()
	}
}

// SetDisplay switches the displayed instrument: a fresh buffer seeded from
// candles replaces the old one, then every active symbol is refreshed.
func (e *Engine) SetDisplay(ctx context.Context, symbol, timeframe string) error {
	symbol = instrument.Normalize(symbol)
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if timeframe == "" {
		timeframe = string(marketdata.Timeframe1h)
	}
	if _, err := marketdata.ParseTimeframe(timeframe); err != nil {
		return err
	}

	buf := timeseries.NewBuffer(symbol, timeframe, e.cfg.BufferCapacity)
	e.mu.Lock()
	for _, ind := range e.indicators {
		buf.Enable(ind)
	}
	e.displaySymbol, e.displayFrame, e.buffer = symbol, timeframe, buf
	e.mu.Unlock()

	e.logger.Info("display switched", zap.String("symbol", symbol), zap.String("timeframe", timeframe))

	if e.loader != nil && e.cfg.SeedCandles > 0 {
		points, err := e.loader.LoadPoints(ctx, symbol, timeframe, e.cfg.SeedCandles)
		if err != nil {
			e.logger.Warn("series starts empty", zap.String("symbol", symbol), zap.Error(err))
		} else if e.isCurrentBuffer(buf) {
			// ticks appended while loading stay on top of the candles
			buf.Seed(points)
		}
	}
	if rec, ok := e.cache.Get(symbol); ok && e.isCurrentBuffer(buf) {
		buf.Append(toPoint(rec))
	}

	e.poller.Refresh(ctx, true)
	return nil
}

// EnableIndicator turns on an indicator such as "SMA_20" for the current
// and every later displayed series.
func (e *Engine) EnableIndicator(name string) error {
	ind, err := timeseries.ParseIndicator(name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, held := range e.indicators {
		if held.Name() == ind.Name() {
			return nil
		}
	}
	e.indicators = append(e.indicators, ind)
	if e.buffer != nil {
		e.buffer.Enable(ind)
	}
	return nil
}

func (e *Engine) DisableIndicator(name string) error {
	ind, err := timeseries.ParseIndicator(name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.indicators[:0]
	for _, held := range e.indicators {
		if held.Name() != ind.Name() {
			kept = append(kept, held)
		}
	}
	e.indicators = kept
	if e.buffer != nil {
		e.buffer.Disable(ind.Name())
	}
	return nil
}

func (e *Engine) isCurrentBuffer(buf *timeseries.Buffer) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.buffer == buf
}

func (e *Engine) onSessionStartPolling() {
	e.mu.Lock()
	e.pollBySession = true
	e.mu.Unlock()
	e.poller.Start()
}

func (e *Engine) onSessionStopPolling() {
	e.mu.Lock()
	e.pollBySession = false
	keep := e.pollByUser
	e.mu.Unlock()
	if !keep {
		e.poller.Stop()
	}
}

func (e *Engine) onSessionFailure(f session.Failure) {
	e.mu.Lock()
	e.realtime = false
	e.mu.Unlock()

	e.logger.Error("real-time mode disabled", zap.Int("attempts", f.Attempts), zap.Error(f.Err))
	select {
	case e.failures <- f:
	default:
		e.logger.Warn("failure notice dropped, nobody is reading")
	}
}

func (e *Engine) onPushMessage(msg []byte) {
	e.metrics.pushMessages.Add(1)
	e.handle(msg)
}

func toPoint(r pricecache.Record) timeseries.Point {
	return timeseries.Point{Time: r.EffectiveTime(), Price: r.Price.InexactFloat64()}
}
