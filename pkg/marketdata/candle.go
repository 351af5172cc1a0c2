package marketdata

import "sort"

// CleanCandles drops candles without a time or a positive close and
// returns the rest sorted by time with duplicate timestamps collapsed to
// the last one received.
func CleanCandles(raw []Candle) []Candle {
	byTime := make(map[int64]Candle, len(raw))
	for _, c := range raw {
		if c.Time.IsZero() || !c.Close.IsPositive() {
			continue
		}
		byTime[c.Time.UnixMilli()] = c
	}

	out := make([]Candle, 0, len(byTime))
	for _, c := range byTime {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time.Time) })
	return out
}
