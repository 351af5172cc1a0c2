package engine

import (
	"context"
	"sync"
	"time"

	"marketsync/internal/pricecache"
	"marketsync/pkg/storage/archive"

	"go.uber.org/zap"
)

// TickSink persists accepted records outside the process.
type TickSink interface {
	SaveTick(ctx context.Context, rec archive.TickRecord) error
}

// ToTickRecord converts a cache record into its archived form.
func ToTickRecord(r pricecache.Record) archive.TickRecord {
	rec := archive.TickRecord{
		Symbol:     r.Symbol,
		ObservedAt: r.ObservedAt.UTC(),
		Source:     string(r.Source),
		Price:      r.Price,
		LatencyMs:  r.Latency.Milliseconds(),
		Quality:    string(r.Quality),
	}
	if !r.ServerTime.IsZero() {
		st := r.ServerTime.UTC()
		rec.ServerTime = &st
	}
	return rec
}

// archiveWorker drains accepted records to the sinks on one goroutine so
// ingestion never waits on storage. A full queue drops the record.
type archiveWorker struct {
	sinks   []TickSink
	logger  *zap.Logger
	metrics *Metrics
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan archive.TickRecord
	wg     sync.WaitGroup
}

func newArchiveWorker(sinks []TickSink, size int, metrics *Metrics, logger *zap.Logger) *archiveWorker {
	if size <= 0 {
		size = 1024
	}
	return &archiveWorker{
		sinks:   sinks,
		logger:  logger,
		metrics: metrics,
		timeout: 2 * time.Second,
		queue:   make(chan archive.TickRecord, size),
	}
}

func (w *archiveWorker) start() {
	if len(w.sinks) == 0 {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for rec := range w.queue {
			w.write(rec)
		}
	}()
}

func (w *archiveWorker) write(rec archive.TickRecord) {
	for _, sink := range w.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err := sink.SaveTick(ctx, rec)
		cancel()
		if err != nil {
			w.metrics.archiveErrors.Add(1)
			w.logger.Warn("failed to archive tick", zap.String("symbol", rec.Symbol), zap.Error(err))
		}
	}
}

func (w *archiveWorker) enqueue(rec archive.TickRecord) {
	if len(w.sinks) == 0 {
		return
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.queue <- rec:
	default:
		w.metrics.archiveDropped.Add(1)
		w.logger.Warn("archive queue full, dropping tick", zap.String("symbol", rec.Symbol))
	}
}

// close stops accepting records and waits for the queue to drain.
func (w *archiveWorker) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()
	w.wg.Wait()
}
