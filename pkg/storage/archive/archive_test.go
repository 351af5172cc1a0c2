package archive_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"marketsync/internal/engine"
	"marketsync/internal/retention"
	"marketsync/pkg/storage/archive"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
)

// Both stores plug into the engine archive queue and the retention pruner.
var (
	_ engine.TickSink  = (*archive.Client)(nil)
	_ engine.TickSink  = (*archive.MemoryStore)(nil)
	_ retention.Pruner = (*archive.Client)(nil)
	_ retention.Pruner = (*archive.MemoryStore)(nil)
)

func openSQLite(t *testing.T) *archive.Client {
	t.Helper()
	client, err := archive.OpenSQLite(filepath.Join(t.TempDir(), "archive", "ticks.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// go test -v --run TestTickCRUD
func TestTickCRUD(t *testing.T) {
	client := openSQLite(t)
	ctx := context.Background()

	if !client.IsHealthy(ctx) {
		t.Fatal("expected healthy archive")
	}

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rec := &archive.TickRecord{
		Symbol:     "EURUSD",
		ObservedAt: base,
		Source:     "live-poll",
		Price:      decimal.RequireFromString("1.08512"),
		LatencyMs:  42,
		Quality:    "excellent",
	}
	if err := client.InsertTick(ctx, rec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	dup := *rec
	dup.ID = 0
	if err := client.InsertTick(ctx, &dup); !errors.Is(err, archive.ErrDuplicateTick) {
		t.Fatalf("expected ErrDuplicateTick, got %v", err)
	}
	if err := client.SaveTick(ctx, dup); err != nil {
		t.Fatalf("SaveTick should ignore duplicates: %v", err)
	}

	newer := archive.TickRecord{
		Symbol:     "EURUSD",
		ObservedAt: base.Add(time.Hour),
		Source:     "live-push",
		Price:      decimal.RequireFromString("1.08601"),
	}
	if err := client.SaveTick(ctx, newer); err != nil {
		t.Fatalf("SaveTick failed: %v", err)
	}

	got, err := client.LatestTicks(ctx, "EURUSD", 10)
	if err != nil {
		t.Fatalf("LatestTicks failed: %v", err)
	}
	if len(got) != 2 || got[0].Source != "live-push" {
		t.Fatalf("latest ticks = %+v", got)
	}
	if !got[1].Price.Equal(decimal.RequireFromString("1.08512")) {
		t.Errorf("price round trip = %s", got[1].Price)
	}

	n, err := client.DeleteOlderThan(ctx, base.Add(30*time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("DeleteOlderThan = %d, %v; want 1", n, err)
	}
	got, _ = client.LatestTicks(ctx, "EURUSD", 10)
	if len(got) != 1 {
		t.Errorf("remaining ticks = %d, want 1", len(got))
	}
}

// go test -v --run TestMemoryStore
func TestMemoryStore(t *testing.T) {
	store := archive.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	store.SaveTick(ctx, archive.TickRecord{Symbol: "USDJPY", ObservedAt: base})
	store.SaveTick(ctx, archive.TickRecord{Symbol: "USDJPY", ObservedAt: base.Add(time.Hour)})

	if n, _ := store.DeleteOlderThan(ctx, base.Add(time.Minute)); n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if ticks := store.Ticks(); len(ticks) != 1 || !ticks[0].ObservedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("ticks = %+v", ticks)
	}
}

// go test -v --run TestMemoryStoreRetention
func TestMemoryStoreRetention(t *testing.T) {
	store := archive.NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	store.SaveTick(ctx, archive.TickRecord{Symbol: "EURUSD", ObservedAt: now.Add(-48 * time.Hour)})
	store.SaveTick(ctx, archive.TickRecord{Symbol: "EURUSD", ObservedAt: now.Add(-time.Hour)})

	pruner := &retention.MidnightPruner{
		Pruner:    store,
		Retention: 24 * time.Hour,
		Logger:    zap.NewNop(),
		Now:       func() time.Time { return now },
	}
	if n := pruner.RunOnce(ctx); n != 1 {
		t.Errorf("pruned %d ticks, want 1", n)
	}
	if len(store.Ticks()) != 1 {
		t.Errorf("remaining ticks = %d, want 1", len(store.Ticks()))
	}
}

// go test -v --run ^TestPostgresLive$
func TestPostgresLive(t *testing.T) {
	dsn := os.Getenv("MARKETSYNC_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("MARKETSYNC_TEST_PG_DSN not set")
	}

	client, err := archive.NewClient(postgres.Open(dsn))
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	if err := client.AutoMigrate(); err != nil {
		t.Fatalf("auto migration failed: %v", err)
	}
	if !client.IsHealthy(context.Background()) {
		t.Fatal("expected healthy DB connection")
	}

	if _, err := archive.NewClient(postgres.Open("host=invalid port=1 user=x password=x dbname=x sslmode=disable connect_timeout=1")); err == nil {
		t.Error("expected error for invalid DSN")
	}
}
