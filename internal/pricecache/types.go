package pricecache

import (
	"time"

	"marketsync/internal/quality"

	"github.com/shopspring/decimal"
)

// Source tells where a price came from.
type Source string

const (
	SourcePush      Source = "live-push"
	SourcePoll      Source = "live-poll"
	SourceSimulated Source = "simulated-fallback"
)

func (s Source) Simulated() bool { return s == SourceSimulated }

// Record is the latest known price of one instrument.
type Record struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`           // when the engine accepted the value
	ServerTime time.Time       `json:"server_time,omitempty"` // reported by the source; zero when absent
	Latency    time.Duration   `json:"latency"`               // round trip of the fetch, 0 for push ticks
	Source     Source          `json:"source"`
	Quality    quality.Tier    `json:"quality,omitempty"` // connection tier at write time, live sources only
}

// EffectiveTime is the timestamp used for ordering: the source's own
// timestamp when known, the acceptance time otherwise.
func (r Record) EffectiveTime() time.Time {
	if !r.ServerTime.IsZero() {
		return r.ServerTime
	}
	return r.ObservedAt
}

// Freshness derives the tier at read time.
func (r Record) Freshness(now time.Time) quality.Freshness {
	return quality.ClassifyFreshness(now.Sub(r.EffectiveTime()), r.Source.Simulated())
}

// Outcome is the result of an Upsert.
type Outcome int

const (
	Inserted Outcome = iota
	Updated
	Duplicate
	RejectedOlder
	RejectedSynthetic
)

func (o Outcome) Accepted() bool { return o == Inserted || o == Updated }

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Duplicate:
		return "duplicate"
	case RejectedOlder:
		return "rejected_older"
	case RejectedSynthetic:
		return "rejected_synthetic"
	default:
		return "unknown"
	}
}
