package timeseries

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value is one indicator output; Valid is false while the window is
// still filling.
type Value struct {
	Float float64
	Valid bool
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	if err := json.Unmarshal(data, &v.Float); err != nil {
		return err
	}
	v.Valid = true
	return nil
}

// Indicator derives a series aligned index for index with its input.
type Indicator interface {
	Name() string
	Compute(prices []float64) []Value
}

type sma struct{ window int }

// SMA is the simple moving average over window points.
func SMA(window int) Indicator { return sma{window: window} }

func (s sma) Name() string { return fmt.Sprintf("SMA_%d", s.window) }

func (s sma) Compute(prices []float64) []Value {
	out := make([]Value, len(prices))
	if s.window <= 0 {
		return out
	}
	var sum float64
	for i, p := range prices {
		sum += p
		if i >= s.window {
			sum -= prices[i-s.window]
		}
		if i >= s.window-1 {
			out[i] = Value{Float: sum / float64(s.window), Valid: true}
		}
	}
	return out
}

type ema struct{ window int }

// EMA is seeded with the SMA of the first window points.
func EMA(window int) Indicator { return ema{window: window} }

func (e ema) Name() string { return fmt.Sprintf("EMA_%d", e.window) }

func (e ema) Compute(prices []float64) []Value {
	out := make([]Value, len(prices))
	if e.window <= 0 || len(prices) < e.window {
		return out
	}
	k := 2 / float64(e.window+1)

	var sum float64
	for _, p := range prices[:e.window] {
		sum += p
	}
	prev := sum / float64(e.window)
	out[e.window-1] = Value{Float: prev, Valid: true}

	for i := e.window; i < len(prices); i++ {
		prev = prices[i]*k + prev*(1-k)
		out[i] = Value{Float: prev, Valid: true}
	}
	return out
}

// ParseIndicator accepts names such as "SMA_20" or "ema_50".
func ParseIndicator(name string) (Indicator, error) {
	kind, n, ok := strings.Cut(name, "_")
	window, err := strconv.Atoi(n)
	if !ok || err != nil || window <= 0 {
		return nil, fmt.Errorf("unknown indicator: %s", name)
	}
	switch strings.ToUpper(kind) {
	case "SMA":
		return SMA(window), nil
	case "EMA":
		return EMA(window), nil
	default:
		return nil, fmt.Errorf("unknown indicator: %s", name)
	}
}
