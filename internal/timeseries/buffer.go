// Package timeseries keeps the bounded price series of the displayed
// instrument together with its derived indicator series.
package timeseries

import (
	"sort"
	"sync"
	"time"
)

const DefaultCapacity = 100

type Point struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// Series is a copy of a buffer's contents.
type Series struct {
	Symbol     string             `json:"symbol"`
	Timeframe  string             `json:"timeframe"`
	Points     []Point            `json:"points"`
	Indicators map[string][]Value `json:"indicators"`
}

// Buffer is a fixed-capacity FIFO of points. Every enabled indicator has
// exactly one value per point.
type Buffer struct {
	mu         sync.RWMutex
	symbol     string
	timeframe  string
	capacity   int
	points     []Point
	indicators map[string]Indicator
	values     map[string][]Value
}

func NewBuffer(symbol, timeframe string, capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		symbol:     symbol,
		timeframe:  timeframe,
		capacity:   capacity,
		points:     make([]Point, 0, capacity),
		indicators: make(map[string]Indicator),
		values:     make(map[string][]Value),
	}
}

// Append adds p at the end. A point older than the last one is dropped
// and a point with the same timestamp replaces the last one. It reports
// whether the buffer changed.
func (b *Buffer) Append(p Point) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n := len(b.points); n > 0 {
		last := b.points[n-1]
		switch {
		case p.Time.Before(last.Time):
			return false
		case p.Time.Equal(last.Time):
			if p.Price == last.Price {
				return false
			}
			b.points[n-1] = p
			b.recomputeLocked()
			return true
		}
	}

	b.points = append(b.points, p)
	if over := len(b.points) - b.capacity; over > 0 {
		b.points = append(b.points[:0:0], b.points[over:]...)
	}
	b.recomputeLocked()
	return true
}

// Seed loads pts, sorted, beneath the current contents. Buffered points
// newer than the last seeded one are kept after it; the newest capacity
// points survive.
func (b *Buffer) Seed(pts []Point) {
	b.mu.Lock()
	defer b.mu.Unlock()

	merged := make([]Point, len(pts), len(pts)+len(b.points))
	copy(merged, pts)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Time.Before(merged[j].Time) })
	for _, p := range b.points {
		if len(merged) == 0 || p.Time.After(merged[len(merged)-1].Time) {
			merged = append(merged, p)
		}
	}
	if over := len(merged) - b.capacity; over > 0 {
		merged = merged[over:]
	}
	b.points = merged
	b.recomputeLocked()
}

func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.points = b.points[:0]
	b.recomputeLocked()
}

// Enable turns on ind and backfills it over the buffered points.
func (b *Buffer) Enable(ind Indicator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.indicators[ind.Name()] = ind
	b.values[ind.Name()] = ind.Compute(b.pricesLocked())
}

// Disable drops the indicator and its values.
func (b *Buffer) Disable(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.indicators, name)
	delete(b.values, name)
}

func (b *Buffer) Enabled() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.indicators))
	for name := range b.indicators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.points)
}

func (b *Buffer) Snapshot() Series {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Series{
		Symbol:     b.symbol,
		Timeframe:  b.timeframe,
		Points:     make([]Point, len(b.points)),
		Indicators: make(map[string][]Value, len(b.values)),
	}
	copy(s.Points, b.points)
	for name, vals := range b.values {
		cp := make([]Value, len(vals))
		copy(cp, vals)
		s.Indicators[name] = cp
	}
	return s
}

// recomputeLocked recomputes every indicator over the full series.
func (b *Buffer) recomputeLocked() {
	prices := b.pricesLocked()
	for name, ind := range b.indicators {
		b.values[name] = ind.Compute(prices)
	}
}

func (b *Buffer) pricesLocked() []float64 {
	prices := make([]float64, len(b.points))
	for i, p := range b.points {
		prices[i] = p.Price
	}
	return prices
}
