package snapshot

import (
	"context"
	"fmt"
	"time"

	"marketsync/internal/timeseries"
	"marketsync/pkg/marketdata"

	"go.uber.org/zap"
)

type CandleFetcher interface {
	GetCandles(ctx context.Context, symbol string, tf marketdata.Timeframe, count int) ([]marketdata.Candle, error)
}

// Loader seeds a time-series buffer with recent candle closes.
type Loader struct {
	Client  CandleFetcher
	Timeout time.Duration
	Logger  *zap.Logger
}

// LoadPoints fetches up to count candles for symbol and converts their
// closes to points, oldest first.
func (l *Loader) LoadPoints(ctx context.Context, symbol, timeframe string, count int) ([]timeseries.Point, error) {
	tf, err := marketdata.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	candles, err := l.Client.GetCandles(ctx, symbol, tf, count)
	if err != nil {
		l.Logger.Warn("failed to load candles", zap.String("symbol", symbol),
			zap.String("timeframe", timeframe), zap.Error(err))
		return nil, fmt.Errorf("load candles %s %s: %w", symbol, timeframe, err)
	}

	points := make([]timeseries.Point, 0, len(candles))
	for _, c := range candles {
		points = append(points, timeseries.Point{Time: c.Time.Time, Price: c.Close.InexactFloat64()})
	}
	l.Logger.Info("loaded candles", zap.String("symbol", symbol),
		zap.String("timeframe", timeframe), zap.Int("count", len(points)))
	return points, nil
}
