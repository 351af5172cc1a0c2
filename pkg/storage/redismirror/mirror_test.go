package redismirror

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketsync/pkg/storage/archive"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func newMirror(t *testing.T, keep int64) (*Mirror, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, time.Minute, keep), mr
}

// go test -v --run TestSaveAndLatest
func TestSaveAndLatest(t *testing.T) {
	m, mr := newMirror(t, 2)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	if _, err := m.Latest(ctx, "EURUSD"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for i, p := range []string{"1.08500", "1.08510", "1.08520"} {
		rec := archive.TickRecord{
			Symbol:     "EURUSD",
			Price:      decimal.RequireFromString(p),
			Source:     "live-push",
			ObservedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := m.SaveTick(ctx, rec); err != nil {
			t.Fatalf("SaveTick failed: %v", err)
		}
	}

	got, err := m.Latest(ctx, "EURUSD")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if !got.Price.Equal(decimal.RequireFromString("1.0852")) || !got.ObservedAt.Equal(base.Add(2*time.Second)) {
		t.Errorf("latest = %+v", got)
	}

	hist, err := m.History(ctx, "EURUSD", 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("history len = %d, want 2 (trimmed)", len(hist))
	}
	if !hist[0].Price.Equal(decimal.RequireFromString("1.0852")) {
		t.Errorf("history not newest first: %+v", hist[0])
	}

	mr.FastForward(2 * time.Minute)
	if _, err := m.Latest(ctx, "EURUSD"); !errors.Is(err, ErrNotFound) {
		t.Errorf("latest key should expire, got %v", err)
	}
}

// go test -v --run TestDial
func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := Dial(context.Background(), mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	rdb.Close()

	mr.Close()
	if _, err := Dial(context.Background(), mr.Addr(), "", 0); err == nil {
		t.Error("expected error dialing a closed server")
	}
}
