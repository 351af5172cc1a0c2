// Package quality classifies how recent a price is and how reliable the
// live channel has been over the last few samples.
package quality

import "time"

type Freshness string

const (
	Fresh     Freshness = "fresh"
	Recent    Freshness = "recent"
	Stale     Freshness = "stale"
	Simulated Freshness = "simulated"
)

const (
	FreshAge  = 2 * time.Second
	RecentAge = 10 * time.Second
)

// ClassifyFreshness maps a sample age to its tier. Negative ages (clock
// skew between source and engine) count as zero.
func ClassifyFreshness(age time.Duration, simulated bool) Freshness {
	if simulated {
		return Simulated
	}
	if age < 0 {
		age = 0
	}
	switch {
	case age < FreshAge:
		return Fresh
	case age < RecentAge:
		return Recent
	default:
		return Stale
	}
}
