package quality

import (
	"sync"
	"time"
)

type Tier string

const (
	TierUnknown      Tier = "unknown"
	TierExcellent    Tier = "excellent"
	TierGood         Tier = "good"
	TierPoor         Tier = "poor"
	TierDisconnected Tier = "disconnected"
)

// WindowSize is the number of samples needed before a tier is reported.
const WindowSize = 10

// Sample is one observation of the live channel.
type Sample struct {
	Latency time.Duration
	Live    bool
}

// Evaluate checks the rules from worst to best and returns the first match.
func Evaluate(avgLatency time.Duration, liveRatio float64) Tier {
	switch {
	case liveRatio < 0.5:
		return TierDisconnected
	case avgLatency > 2000*time.Millisecond || liveRatio < 0.8:
		return TierPoor
	case avgLatency > 1000*time.Millisecond || liveRatio < 0.95:
		return TierGood
	default:
		return TierExcellent
	}
}

// Window is a fixed-size FIFO of recent samples.
type Window struct {
	mu      sync.Mutex
	samples [WindowSize]Sample
	next    int
	count   int
}

func NewWindow() *Window {
	return &Window{}
}

func (w *Window) Add(s Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.next] = s
	w.next = (w.next + 1) % WindowSize
	if w.count < WindowSize {
		w.count++
	}
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Stats returns the average latency and share of live samples held.
func (w *Window) Stats() (time.Duration, float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count == 0 {
		return 0, 0
	}
	var total time.Duration
	live := 0
	for i := 0; i < w.count; i++ {
		total += w.samples[i].Latency
		if w.samples[i].Live {
			live++
		}
	}
	return total / time.Duration(w.count), float64(live) / float64(w.count)
}

// Tier reports the connection quality, or (TierUnknown, false) while the
// window is still filling.
func (w *Window) Tier() (Tier, bool) {
	if w.Len() < WindowSize {
		return TierUnknown, false
	}
	avg, ratio := w.Stats()
	return Evaluate(avg, ratio), true
}

func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next, w.count = 0, 0
}
