// Package fallback produces stand-in prices when no live source answers.
package fallback

import (
	_ "embed"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"marketsync/internal/instrument"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Synthesizer yields a plausible price for symbol, or false when it
// cannot (unknown symbol or synthesis disabled).
type Synthesizer interface {
	Synthesize(symbol string, now time.Time) (decimal.Decimal, bool)
}

// Disabled never synthesizes.
type Disabled struct{}

func (Disabled) Synthesize(string, time.Time) (decimal.Decimal, bool) {
	return decimal.Decimal{}, false
}

var (
	jpyVolatility     = decimal.RequireFromString("0.03")
	defaultVolatility = decimal.RequireFromString("0.0003")
)

// DefaultMaxDrift bounds the walk to ±2% around the baseline.
const DefaultMaxDrift = 0.02

//go:embed baselines.yaml
var embeddedBaselines []byte

type Baseline struct {
	Symbol     string          `yaml:"symbol"`
	Price      decimal.Decimal `yaml:"price"`
	Volatility decimal.Decimal `yaml:"volatility"`
}

type baselineFile struct {
	Baselines []Baseline `yaml:"baselines"`
}

// ParseBaselines decodes a baseline table.
func ParseBaselines(data []byte) ([]Baseline, error) {
	var f baselineFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse baselines: %w", err)
	}
	for i, b := range f.Baselines {
		if b.Symbol == "" || !b.Price.IsPositive() {
			return nil, fmt.Errorf("invalid baseline at index %d", i)
		}
		f.Baselines[i].Symbol = instrument.Normalize(b.Symbol)
	}
	return f.Baselines, nil
}

// LoadBaselines reads path, or the embedded table when path is empty.
func LoadBaselines(path string) ([]Baseline, error) {
	if path == "" {
		return ParseBaselines(embeddedBaselines)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read baselines: %w", err)
	}
	return ParseBaselines(data)
}

// RandomWalk steps each symbol's last synthetic price by a uniform amount
// in ±volatility/2, staying within baseline·(1±maxDrift).
type RandomWalk struct {
	mu       sync.Mutex
	rng      *rand.Rand
	maxDrift decimal.Decimal
	walks    map[string]*walk
}

type walk struct {
	baseline   decimal.Decimal
	volatility decimal.Decimal
	last       decimal.Decimal
}

func NewRandomWalk(baselines []Baseline, maxDrift float64, seed uint64) *RandomWalk {
	if maxDrift <= 0 {
		maxDrift = DefaultMaxDrift
	}
	rw := &RandomWalk{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		maxDrift: decimal.NewFromFloat(maxDrift),
		walks:    make(map[string]*walk, len(baselines)),
	}
	for _, b := range baselines {
		vol := b.Volatility
		if !vol.IsPositive() {
			vol = defaultVolatility
			if instrument.IsJPYQuoted(b.Symbol) {
				vol = jpyVolatility
			}
		}
		rw.walks[b.Symbol] = &walk{baseline: b.Price, volatility: vol, last: b.Price}
	}
	return rw
}

func (rw *RandomWalk) Synthesize(symbol string, _ time.Time) (decimal.Decimal, bool) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	w, ok := rw.walks[symbol]
	if !ok {
		return decimal.Decimal{}, false
	}

	step := decimal.NewFromFloat(rw.rng.Float64() - 0.5).Mul(w.volatility)
	next := w.last.Add(step)

	band := w.baseline.Mul(rw.maxDrift)
	lo, hi := w.baseline.Sub(band), w.baseline.Add(band)
	if next.LessThan(lo) {
		next = lo
	} else if next.GreaterThan(hi) {
		next = hi
	}

	w.last = instrument.Round(symbol, next)
	return w.last, true
}
