package marketdata

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Timestamp decodes an RFC3339 string (zone optional), a
// "2006-01-02 15:04:05" string, or epoch milliseconds. Values without a
// zone are UTC. A null, empty or unrecognized value leaves it zero; the
// unrecognized text is kept in Unparsed.
type Timestamp struct {
	time.Time
	Unparsed string `json:"-"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	*ts = Timestamp{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" || string(data) == `""` {
		return nil
	}

	if data[0] != '"' {
		var ms float64
		if err := json.Unmarshal(data, &ms); err != nil {
			ts.Unparsed = string(data)
			return nil
		}
		ts.Time = time.UnixMilli(int64(ms)).UTC()
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		ts.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t.UTC()
			return nil
		}
	}
	ts.Unparsed = s
	return nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.UTC().Format(time.RFC3339Nano))
}

// PriceResponse is the body of the price endpoint.
type PriceResponse struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp Timestamp       `json:"timestamp"`
	Source    string          `json:"source"`
}

// Quote is a price fetched for one symbol.
type Quote struct {
	Symbol     string
	Price      decimal.Decimal
	ServerTime time.Time // zero when the API omits it
	Source     string
	Latency    time.Duration
}

// Live reports whether the API tagged the price as a real market price.
// A missing tag or any other tag counts as simulated.
func (q Quote) Live() bool { return q.Source == SourceLive }

type Candle struct {
	Time   Timestamp       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

type CandlesResponse struct {
	Candles []Candle `json:"candles"`
}
