package poller

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"marketsync/internal/clock"
	"marketsync/pkg/marketdata"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	failing map[string]bool
	block   chan struct{}
	starts  []time.Time
	onCall  func(symbol string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: map[string]int{}, failing: map[string]bool{}}
}

func (f *fakeFetcher) GetPrice(ctx context.Context, symbol string) (marketdata.Quote, error) {
	f.mu.Lock()
	f.calls[symbol]++
	f.starts = append(f.starts, time.Now())
	fail := f.failing[symbol]
	block := f.block
	onCall := f.onCall
	f.mu.Unlock()

	if onCall != nil {
		onCall(symbol)
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return marketdata.Quote{}, ctx.Err()
		}
	}
	if fail {
		return marketdata.Quote{}, errors.New("upstream unavailable")
	}
	return marketdata.Quote{Symbol: symbol, Price: decimal.NewFromInt(1), Source: marketdata.SourceLive}, nil
}

func (f *fakeFetcher) count(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

type fakeSink struct {
	mu      sync.Mutex
	clk     clock.Clock
	symbols []string
	writes  map[string]time.Time
	quotes  []string
	errs    []string
}

func newFakeSink(clk clock.Clock, symbols ...string) *fakeSink {
	return &fakeSink{clk: clk, symbols: symbols, writes: map[string]time.Time{}}
}

func (s *fakeSink) ActiveSymbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.symbols...)
}

func (s *fakeSink) LastWriteAt(symbol string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[symbol]
}

func (s *fakeSink) OnQuote(q marketdata.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, q.Symbol)
	s.writes[q.Symbol] = s.clk.Now()
}

func (s *fakeSink) OnFetchError(symbol string, _ time.Duration, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, symbol)
}

func (s *fakeSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.quotes), len(s.errs)
}

func testConfig() Config {
	return Config{Interval: time.Second, Throttle: time.Second, FetchTimeout: time.Second, MaxConcurrent: 4}
}

// go test -v --run TestRefreshIsolatesFailures
func TestRefreshIsolatesFailures(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	fetcher := newFakeFetcher()
	fetcher.failing["GBPUSD"] = true
	sink := newFakeSink(clk, "EURUSD", "GBPUSD", "USDJPY", "EURUSD")

	s := New(testConfig(), fetcher, sink, clk, zap.NewNop())
	if n := s.Refresh(context.Background(), false); n != 3 {
		t.Fatalf("fetched %d symbols, want 3 (duplicates removed)", n)
	}

	quotes, errs := sink.counts()
	if quotes != 2 || errs != 1 {
		t.Errorf("quotes=%d errs=%d, want 2 and 1", quotes, errs)
	}
}

// go test -v --run TestRefreshThrottle
func TestRefreshThrottle(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	fetcher := newFakeFetcher()
	sink := newFakeSink(clk, "EURUSD")
	s := New(testConfig(), fetcher, sink, clk, zap.NewNop())

	s.Refresh(context.Background(), false)
	clk.Advance(500 * time.Millisecond)

	if n := s.Refresh(context.Background(), false); n != 0 {
		t.Errorf("throttled refresh fetched %d symbols", n)
	}
	if n := s.Refresh(context.Background(), true); n != 1 {
		t.Errorf("forced refresh fetched %d symbols, want 1", n)
	}

	clk.Advance(time.Second)
	if n := s.Refresh(context.Background(), false); n != 1 {
		t.Errorf("refresh after throttle fetched %d symbols, want 1", n)
	}
	if fetcher.count("EURUSD") != 3 {
		t.Errorf("EURUSD fetched %d times, want 3", fetcher.count("EURUSD"))
	}
}

// go test -v --run TestStartStop
func TestStartStop(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	fetcher := newFakeFetcher()
	sink := newFakeSink(clk, "EURUSD")
	s := New(testConfig(), fetcher, sink, clk, zap.NewNop())

	s.Start()
	s.Start()
	if !s.Running() || clk.Pending() != 1 {
		t.Fatalf("running=%v pending=%d", s.Running(), clk.Pending())
	}

	clk.Advance(time.Second)
	waitCycles(t, s, 1)
	clk.Advance(time.Second)
	waitCycles(t, s, 2)

	if fetcher.count("EURUSD") != 2 {
		t.Errorf("EURUSD fetched %d times, want 2", fetcher.count("EURUSD"))
	}

	s.Stop()
	if s.Running() || clk.Pending() != 0 {
		t.Fatalf("after stop running=%v pending=%d", s.Running(), clk.Pending())
	}
	clk.Advance(5 * time.Second)
	if fetcher.count("EURUSD") != 2 {
		t.Error("fetch issued after stop")
	}
}

// go test -v --run TestOverlappingTickSkipped
func TestOverlappingTickSkipped(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	fetcher := newFakeFetcher()
	fetcher.block = make(chan struct{})
	sink := newFakeSink(clk, "EURUSD")
	cfg := testConfig()
	cfg.FetchTimeout = 0
	s := New(cfg, fetcher, sink, clk, zap.NewNop())

	s.Start()
	clk.Advance(time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for fetcher.count("EURUSD") == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	// The first cycle is blocked; the next two ticks must not start more.
	clk.Advance(time.Second)
	clk.Advance(time.Second)
	if got := fetcher.count("EURUSD"); got != 1 {
		t.Errorf("fetch calls = %d, want 1 while a cycle is in flight", got)
	}

	close(fetcher.block)
	waitCycles(t, s, 1)
	s.Stop()
}

// go test -v --run TestStopCancelsInFlight
func TestStopCancelsInFlight(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	fetcher := newFakeFetcher()
	fetcher.block = make(chan struct{})
	sink := newFakeSink(clk, "EURUSD")
	cfg := testConfig()
	cfg.FetchTimeout = 0
	s := New(cfg, fetcher, sink, clk, zap.NewNop())

	s.Start()
	clk.Advance(time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for fetcher.count("EURUSD") == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	s.Stop()
	waitCycles(t, s, 1)
	if quotes, errs := sink.counts(); quotes != 0 || errs != 0 {
		t.Errorf("cancelled fetch reached the sink: quotes=%d errs=%d", quotes, errs)
	}
}

// go test -v --run TestStaggeredIssuance
func TestStaggeredIssuance(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	fetcher := newFakeFetcher()
	sink := newFakeSink(clk, "EURUSD", "GBPUSD", "USDJPY", "AUDUSD")
	cfg := testConfig()
	cfg.Stagger = 20 * time.Millisecond
	s := New(cfg, fetcher, sink, clk, zap.NewNop())

	if n := s.Refresh(context.Background(), true); n != 4 {
		t.Fatalf("fetched %d symbols, want 4", n)
	}

	fetcher.mu.Lock()
	starts := append([]time.Time(nil), fetcher.starts...)
	fetcher.mu.Unlock()
	if len(starts) != 4 {
		t.Fatalf("recorded %d fetch starts, want 4", len(starts))
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	// Goroutine start-up jitter can shave a little off a single gap.
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < 10*time.Millisecond {
			t.Errorf("gap %d = %v, want about %v", i, gap, cfg.Stagger)
		}
	}
	if span := starts[3].Sub(starts[0]); span < 55*time.Millisecond {
		t.Errorf("issuance span = %v, want at least 3 staggers", span)
	}
}

// go test -v --run TestStaggerStopsOnCancel
func TestStaggerStopsOnCancel(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	fetcher := newFakeFetcher()
	sink := newFakeSink(clk, "EURUSD", "GBPUSD", "USDJPY")
	cfg := testConfig()
	cfg.Stagger = time.Second
	s := New(cfg, fetcher, sink, clk, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher.onCall = func(string) { cancel() }

	start := time.Now()
	s.Refresh(ctx, true)
	if took := time.Since(start); took > 500*time.Millisecond {
		t.Errorf("cancelled cycle took %v, should not wait out the stagger", took)
	}

	if fetcher.count("EURUSD") != 1 {
		t.Errorf("EURUSD fetched %d times, want 1", fetcher.count("EURUSD"))
	}
	if fetcher.count("GBPUSD") != 0 || fetcher.count("USDJPY") != 0 {
		t.Errorf("fetches issued after cancel: GBPUSD=%d USDJPY=%d",
			fetcher.count("GBPUSD"), fetcher.count("USDJPY"))
	}
}

func waitCycles(t *testing.T, s *Scheduler, n int64) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for s.Cycles() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d cycles, got %d", n, s.Cycles())
		}
		time.Sleep(time.Millisecond)
	}
}
