// Package poller periodically refreshes the active symbols from the
// market data API.
package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"marketsync/internal/clock"
	"marketsync/pkg/marketdata"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Fetcher interface {
	GetPrice(ctx context.Context, symbol string) (marketdata.Quote, error)
}

// Sink decides what to poll and receives the results.
type Sink interface {
	ActiveSymbols() []string
	LastWriteAt(symbol string) time.Time
	OnQuote(q marketdata.Quote)
	OnFetchError(symbol string, latency time.Duration, err error)
}

type Config struct {
	Interval      time.Duration
	Throttle      time.Duration
	Stagger       time.Duration
	FetchTimeout  time.Duration
	MaxConcurrent int
}

func DefaultConfig() Config {
	return Config{
		Interval:      time.Second,
		Throttle:      time.Second,
		Stagger:       50 * time.Millisecond,
		FetchTimeout:  5 * time.Second,
		MaxConcurrent: 8,
	}
}

// Scheduler fetches on a fixed cadence while running. A tick that fires
// while the previous cycle is still in flight is skipped.
type Scheduler struct {
	cfg     Config
	fetcher Fetcher
	sink    Sink
	clock   clock.Clock
	logger  *zap.Logger
	group   singleflight.Group

	mu      sync.Mutex
	running bool
	gen     uint64
	timer   clock.Timer
	ctx     context.Context
	cancel  context.CancelFunc

	inFlight atomic.Bool
	cycles   atomic.Int64
}

func New(cfg Config, fetcher Fetcher, sink Sink, clk clock.Clock, logger *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{cfg: cfg, fetcher: fetcher, sink: sink, clock: clk, logger: logger}
}

// Start arms the tick timer. Calling it while running does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.gen++
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.armLocked(s.gen)
	s.logger.Info("polling started", zap.Duration("interval", s.cfg.Interval))
}

// Stop cancels the pending tick and every fetch in flight.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("polling stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Cycles is the number of completed poll cycles.
func (s *Scheduler) Cycles() int64 { return s.cycles.Load() }

func (s *Scheduler) armLocked(gen uint64) {
	s.timer = s.clock.AfterFunc(s.cfg.Interval, func() { s.tick(gen) })
}

func (s *Scheduler) tick(gen uint64) {
	s.mu.Lock()
	if !s.running || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.armLocked(gen)
	ctx := s.ctx
	s.mu.Unlock()

	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("poll tick skipped, previous cycle still running")
		return
	}
	go func() {
		s.cycle(ctx, false)
		s.inFlight.Store(false)
		s.cycles.Add(1)
	}()
}

// Refresh runs one cycle now and returns the number of symbols fetched.
// force ignores the throttle.
func (s *Scheduler) Refresh(ctx context.Context, force bool) int {
	n := s.cycle(ctx, force)
	s.cycles.Add(1)
	return n
}

func (s *Scheduler) cycle(ctx context.Context, force bool) int {
	due := s.dueSymbols(force)
	if len(due) == 0 {
		return 0
	}

	p := pool.New().WithMaxGoroutines(s.cfg.MaxConcurrent).WithErrors()
	for i, symbol := range due {
		if i > 0 && s.cfg.Stagger > 0 {
			if !sleep(ctx, s.cfg.Stagger) {
				break
			}
		}
		symbol := symbol
		p.Go(func() error { return s.fetch(ctx, symbol) })
	}

	if err := p.Wait(); err != nil {
		s.logger.Warn("poll cycle finished with failures", zap.Int("symbols", len(due)), zap.Error(err))
	}
	return len(due)
}

func (s *Scheduler) dueSymbols(force bool) []string {
	now := s.clock.Now()
	seen := make(map[string]struct{})
	var due []string
	for _, symbol := range s.sink.ActiveSymbols() {
		if symbol == "" {
			continue
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}

		if !force {
			last := s.sink.LastWriteAt(symbol)
			if !last.IsZero() && now.Sub(last) < s.cfg.Throttle {
				continue
			}
		}
		due = append(due, symbol)
	}
	return due
}

// fetch collapses concurrent requests for the same symbol into one and
// hands the outcome to the sink exactly once.
func (s *Scheduler) fetch(ctx context.Context, symbol string) error {
	_, err, _ := s.group.Do(symbol, func() (any, error) {
		fctx := ctx
		if s.cfg.FetchTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
			defer cancel()
		}

		start := s.clock.Now()
		q, err := s.fetcher.GetPrice(fctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.sink.OnFetchError(symbol, s.clock.Now().Sub(start), err)
			return nil, fmt.Errorf("%s: %w", symbol, err)
		}
		if q.Symbol == "" {
			q.Symbol = symbol
		}
		s.sink.OnQuote(q)
		return nil, nil
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
