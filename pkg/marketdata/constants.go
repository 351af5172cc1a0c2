package marketdata

import (
	"errors"
	"fmt"
	"time"
)

// Timeframe is the candle width accepted by the candles endpoint.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

var ErrUnknownTimeframe = errors.New("unknown timeframe")

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe1d:  24 * time.Hour,
}

func (tf Timeframe) IsValid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// Duration is the width of one candle.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownTimeframe, s)
	}
	return tf, nil
}

// SourceLive is the only source tag treated as a real market price.
const SourceLive = "live"
