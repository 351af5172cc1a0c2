package engine

import (
	"sync/atomic"

	"marketsync/internal/pricecache"
)

// Metrics counts what happened to incoming data since start.
type Metrics struct {
	inserted          atomic.Int64
	updated           atomic.Int64
	duplicates        atomic.Int64
	rejectedOlder     atomic.Int64
	rejectedSynthetic atomic.Int64
	synthesized       atomic.Int64
	fetchErrors       atomic.Int64
	pushMessages      atomic.Int64
	signals           atomic.Int64
	archiveDropped    atomic.Int64
	archiveErrors     atomic.Int64
}

type MetricsSnapshot struct {
	Inserted          int64 `json:"inserted"`
	Updated           int64 `json:"updated"`
	Duplicates        int64 `json:"duplicates"`
	RejectedOlder     int64 `json:"rejected_older"`
	RejectedSynthetic int64 `json:"rejected_synthetic"`
	Synthesized       int64 `json:"synthesized"`
	FetchErrors       int64 `json:"fetch_errors"`
	PushMessages      int64 `json:"push_messages"`
	Signals           int64 `json:"signals"`
	ArchiveDropped    int64 `json:"archive_dropped"`
	ArchiveErrors     int64 `json:"archive_errors"`
}

func (m *Metrics) countOutcome(o pricecache.Outcome) {
	switch o {
	case pricecache.Inserted:
		m.inserted.Add(1)
	case pricecache.Updated:
		m.updated.Add(1)
	case pricecache.Duplicate:
		m.duplicates.Add(1)
	case pricecache.RejectedOlder:
		m.rejectedOlder.Add(1)
	case pricecache.RejectedSynthetic:
		m.rejectedSynthetic.Add(1)
	}
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Inserted:          m.inserted.Load(),
		Updated:           m.updated.Load(),
		Duplicates:        m.duplicates.Load(),
		RejectedOlder:     m.rejectedOlder.Load(),
		RejectedSynthetic: m.rejectedSynthetic.Load(),
		Synthesized:       m.synthesized.Load(),
		FetchErrors:       m.fetchErrors.Load(),
		PushMessages:      m.pushMessages.Load(),
		Signals:           m.signals.Load(),
		ArchiveDropped:    m.archiveDropped.Load(),
		ArchiveErrors:     m.archiveErrors.Load(),
	}
}
