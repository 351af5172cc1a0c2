package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"marketsync/config"
	"marketsync/internal/fallback"
	"marketsync/pkg/marketdata"
	"marketsync/pkg/storage/redismirror"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func testConfig(t *testing.T, redisAddr string) *config.Config {
	return &config.Config{
		MarketData: config.MarketDataConfig{
			REST: config.RESTConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second},
		},
		Engine: config.EngineConfig{
			PollInterval:     time.Second,
			ThrottleInterval: time.Second,
			FetchTimeout:     time.Second,
			MaxConcurrent:    2,
			MaxRetries:       5,
			ReconnectDelay:   3 * time.Second,
			StalenessCeiling: 30 * time.Second,
			BufferCapacity:   100,
			SignalSymbols:    5,
		},
		Fallback: config.FallbackConfig{Enabled: true},
		Archive: config.ArchiveConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(t.TempDir(), "archive.db"),
			Retention:  24 * time.Hour,
		},
		Redis: config.RedisConfig{Addr: redisAddr, TTL: time.Minute, KeepTicks: 10},
	}
}

// go test -v --run TestBuildAndRun
func TestBuildAndRun(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())

	a, err := Build(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Run starts the engine asynchronously; ticks queued before the
	// archive worker starts are drained once it does.
	a.Engine.OnQuote(marketdata.Quote{
		Symbol:     "EURUSD",
		Price:      decimal.RequireFromString("1.08512"),
		ServerTime: time.Now().UTC(),
		Source:     marketdata.SourceLive,
	})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	ticks, err := a.archive.LatestTicks(context.Background(), "EURUSD", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ticks) != 1 || !ticks[0].Price.Equal(decimal.RequireFromString("1.08512")) {
		t.Errorf("archived ticks = %+v", ticks)
	}

	latest, err := redismirror.New(a.redis, time.Minute, 10).Latest(context.Background(), "EURUSD")
	if err != nil {
		t.Fatalf("redis mirror: %v", err)
	}
	if latest.Source != "live-poll" {
		t.Errorf("mirrored source = %s", latest.Source)
	}
}

// go test -v --run TestBuildRejectsBadRedis
func TestBuildRejectsBadRedis(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:1")
	if _, err := Build(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatal("expected error for unreachable redis")
	}
}

// go test -v --run TestBuildSynthesizer
func TestBuildSynthesizer(t *testing.T) {
	s, err := buildSynthesizer(config.FallbackConfig{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(fallback.Disabled); !ok {
		t.Errorf("disabled fallback built %T", s)
	}

	s, err = buildSynthesizer(config.FallbackConfig{Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Synthesize("EURUSD", time.Now()); !ok {
		t.Error("embedded baselines should cover EURUSD")
	}
}
