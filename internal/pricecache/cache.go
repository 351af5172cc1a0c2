// Package pricecache holds the single current price per instrument. Upsert
// is the only way in, for both the poller and the push session.
package pricecache

import (
	"sort"
	"sync"
	"time"

	"marketsync/internal/clock"
)

// DefaultStalenessCeiling is how old a live record must be before a
// simulated value may replace it.
const DefaultStalenessCeiling = 30 * time.Second

type Cache struct {
	clock   clock.Clock
	ceiling time.Duration

	globalMu sync.RWMutex
	data     map[string]*symbolEntry
}

type symbolEntry struct {
	mu          sync.Mutex
	record      Record
	lastWriteAt time.Time
}

func New(clk clock.Clock, ceiling time.Duration) *Cache {
	if clk == nil {
		clk = clock.Real()
	}
	if ceiling <= 0 {
		ceiling = DefaultStalenessCeiling
	}
	return &Cache{
		clock:   clk,
		ceiling: ceiling,
		data:    make(map[string]*symbolEntry),
	}
}

func (c *Cache) Ceiling() time.Duration { return c.ceiling }

// Upsert applies the acceptance rules and stores the candidate when they
// allow it. A zero ObservedAt is stamped with the cache clock.
func (c *Cache) Upsert(candidate Record) Outcome {
	now := c.clock.Now()
	if candidate.ObservedAt.IsZero() {
		candidate.ObservedAt = now
	}

	c.globalMu.RLock()
	entry, ok := c.data[candidate.Symbol]
	c.globalMu.RUnlock()

	if !ok {
		c.globalMu.Lock()
		if entry, ok = c.data[candidate.Symbol]; !ok {
			c.data[candidate.Symbol] = &symbolEntry{record: candidate, lastWriteAt: now}
			c.globalMu.Unlock()
			return Inserted
		}
		c.globalMu.Unlock()
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	outcome := c.decide(entry.record, candidate, now)
	if outcome == Updated {
		entry.record = candidate
		entry.lastWriteAt = now
	}
	return outcome
}

func (c *Cache) decide(current, candidate Record, now time.Time) Outcome {
	if candidate.EffectiveTime().Before(current.EffectiveTime()) {
		return RejectedOlder
	}
	if candidate.EffectiveTime().Equal(current.EffectiveTime()) &&
		candidate.Price.Equal(current.Price) && candidate.Source == current.Source {
		return Duplicate
	}
	if !candidate.Source.Simulated() || current.Source.Simulated() {
		return Updated
	}
	if now.Sub(current.ObservedAt) > c.ceiling {
		return Updated
	}
	return RejectedSynthetic
}

func (c *Cache) Get(symbol string) (Record, bool) {
	c.globalMu.RLock()
	entry, ok := c.data[symbol]
	c.globalMu.RUnlock()
	if !ok {
		return Record{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.record, true
}

// LastWriteAt returns when the symbol was last accepted, zero if never.
func (c *Cache) LastWriteAt(symbol string) time.Time {
	c.globalMu.RLock()
	entry, ok := c.data[symbol]
	c.globalMu.RUnlock()
	if !ok {
		return time.Time{}
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.lastWriteAt
}

// Stale reports whether the cached record for symbol is missing or older
// than the staleness ceiling.
func (c *Cache) Stale(symbol string) bool {
	rec, ok := c.Get(symbol)
	if !ok {
		return true
	}
	return c.clock.Now().Sub(rec.ObservedAt) > c.ceiling
}

func (c *Cache) Symbols() []string {
	c.globalMu.RLock()
	defer c.globalMu.RUnlock()

	out := make([]string, 0, len(c.data))
	for sym := range c.data {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (c *Cache) Len() int {
	c.globalMu.RLock()
	defer c.globalMu.RUnlock()
	return len(c.data)
}
