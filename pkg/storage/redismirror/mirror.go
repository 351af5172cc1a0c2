// Package redismirror publishes the latest accepted price per symbol to
// Redis so other processes can read it without going through the engine.
package redismirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketsync/pkg/storage/archive"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("no mirrored price")

const keyPrefix = "marketsync:"

func latestKey(symbol string) string  { return keyPrefix + "latest:" + symbol }
func historyKey(symbol string) string { return keyPrefix + "ticks:" + symbol }

type Mirror struct {
	rdb       redis.UniversalClient
	ttl       time.Duration
	keepTicks int64
}

// New wraps rdb. ttl expires the latest-price key; keepTicks bounds the
// per-symbol history sorted set (0 disables history).
func New(rdb redis.UniversalClient, ttl time.Duration, keepTicks int64) *Mirror {
	return &Mirror{rdb: rdb, ttl: ttl, keepTicks: keepTicks}
}

// Dial connects to addr and checks the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

type tickJSON struct {
	Symbol     string     `json:"symbol"`
	Price      string     `json:"price"`
	Source     string     `json:"source"`
	Quality    string     `json:"quality,omitempty"`
	ObservedAt time.Time  `json:"observed_at"`
	ServerTime *time.Time `json:"server_time,omitempty"`
	LatencyMs  int64      `json:"latency_ms"`
}

// SaveTick stores rec as the latest price and appends it to the history.
func (m *Mirror) SaveTick(ctx context.Context, rec archive.TickRecord) error {
	payload, err := json.Marshal(tickJSON{
		Symbol:     rec.Symbol,
		Price:      rec.Price.String(),
		Source:     rec.Source,
		Quality:    rec.Quality,
		ObservedAt: rec.ObservedAt,
		ServerTime: rec.ServerTime,
		LatencyMs:  rec.LatencyMs,
	})
	if err != nil {
		return fmt.Errorf("encode tick: %w", err)
	}

	pipe := m.rdb.TxPipeline()
	pipe.Set(ctx, latestKey(rec.Symbol), payload, m.ttl)
	if m.keepTicks > 0 {
		key := historyKey(rec.Symbol)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(rec.ObservedAt.UnixMilli()), Member: payload})
		pipe.ZRemRangeByRank(ctx, key, 0, -m.keepTicks-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror tick %s: %w", rec.Symbol, err)
	}
	return nil
}

// Latest returns the mirrored latest price for symbol.
func (m *Mirror) Latest(ctx context.Context, symbol string) (archive.TickRecord, error) {
	raw, err := m.rdb.Get(ctx, latestKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return archive.TickRecord{}, ErrNotFound
	}
	if err != nil {
		return archive.TickRecord{}, err
	}
	return decodeTick(raw)
}

// History returns up to n most recent mirrored ticks, newest first.
func (m *Mirror) History(ctx context.Context, symbol string, n int64) ([]archive.TickRecord, error) {
	raws, err := m.rdb.ZRevRange(ctx, historyKey(symbol), 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]archive.TickRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := decodeTick([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeTick(raw []byte) (archive.TickRecord, error) {
	var t tickJSON
	if err := json.Unmarshal(raw, &t); err != nil {
		return archive.TickRecord{}, fmt.Errorf("decode tick: %w", err)
	}
	rec := archive.TickRecord{
		Symbol:     t.Symbol,
		Source:     t.Source,
		Quality:    t.Quality,
		ObservedAt: t.ObservedAt,
		ServerTime: t.ServerTime,
		LatencyMs:  t.LatencyMs,
	}
	if err := rec.Price.UnmarshalText([]byte(t.Price)); err != nil {
		return archive.TickRecord{}, fmt.Errorf("decode price: %w", err)
	}
	return rec, nil
}
