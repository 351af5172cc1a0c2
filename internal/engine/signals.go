package engine

import (
	"sync"

	"marketsync/internal/stream"
)

const signalHistory = 50

// signalBook keeps the most recent signals, newest last. A signal whose
// ID is already held replaces the old entry.
type signalBook struct {
	mu      sync.Mutex
	signals []stream.Signal
}

func (b *signalBook) add(signals ...stream.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range signals {
		if s.ID != "" {
			for i, held := range b.signals {
				if held.ID == s.ID {
					b.signals = append(b.signals[:i], b.signals[i+1:]...)
					break
				}
			}
		}
		b.signals = append(b.signals, s)
	}
	if over := len(b.signals) - signalHistory; over > 0 {
		b.signals = append(b.signals[:0:0], b.signals[over:]...)
	}
}

// recent returns up to n signals, newest first.
func (b *signalBook) recent(n int) []stream.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > len(b.signals) {
		n = len(b.signals)
	}
	out := make([]stream.Signal, 0, n)
	for i := len(b.signals) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, b.signals[i])
	}
	return out
}

// recentSymbols returns the distinct symbols of the newest n signals.
func (b *signalBook) recentSymbols(n int) []string {
	if n <= 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, s := range b.recent(n) {
		if _, ok := seen[s.Symbol]; ok {
			continue
		}
		seen[s.Symbol] = struct{}{}
		out = append(out, s.Symbol)
	}
	return out
}
