package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketsync/pkg/marketdata"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubCandles struct {
	candles []marketdata.Candle
	err     error
	gotTF   marketdata.Timeframe
}

func (s *stubCandles) GetCandles(ctx context.Context, symbol string, tf marketdata.Timeframe, count int) ([]marketdata.Candle, error) {
	s.gotTF = tf
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("expected a deadline")
	}
	return s.candles, s.err
}

// go test -v --run TestLoadPoints
func TestLoadPoints(t *testing.T) {
	base := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	stub := &stubCandles{candles: []marketdata.Candle{
		{Time: marketdata.Timestamp{Time: base}, Close: decimal.RequireFromString("1.085")},
		{Time: marketdata.Timestamp{Time: base.Add(time.Hour)}, Close: decimal.RequireFromString("1.086")},
	}}
	l := &Loader{Client: stub, Timeout: time.Second, Logger: zap.NewNop()}

	points, err := l.LoadPoints(context.Background(), "EURUSD", "1h", 2)
	if err != nil {
		t.Fatalf("LoadPoints failed: %v", err)
	}
	if stub.gotTF != marketdata.Timeframe1h {
		t.Errorf("timeframe = %s", stub.gotTF)
	}
	if len(points) != 2 || points[1].Price != 1.086 || !points[0].Time.Equal(base) {
		t.Errorf("points = %+v", points)
	}
}

// go test -v --run TestLoadPointsErrors
func TestLoadPointsErrors(t *testing.T) {
	l := &Loader{Client: &stubCandles{err: marketdata.ErrNoCandles}, Timeout: time.Second, Logger: zap.NewNop()}

	if _, err := l.LoadPoints(context.Background(), "EURUSD", "1h", 10); !errors.Is(err, marketdata.ErrNoCandles) {
		t.Errorf("expected ErrNoCandles, got %v", err)
	}
	if _, err := l.LoadPoints(context.Background(), "EURUSD", "2h", 10); !errors.Is(err, marketdata.ErrUnknownTimeframe) {
		t.Errorf("expected ErrUnknownTimeframe, got %v", err)
	}
}
