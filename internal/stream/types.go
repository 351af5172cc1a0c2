package stream

import (
	"marketsync/pkg/marketdata"

	"github.com/shopspring/decimal"
)

// Wire type tags of push channel messages.
const (
	TypePriceUpdate = "price_update"
	TypePrice       = "price"
	TypeNewSignals  = "new_signals"
	TypeSignals     = "signals"
)

// Message is one decoded push message: PriceTick, SignalBatch or Unknown.
type Message interface {
	isMessage()
}

// PriceTick is a single live price.
type PriceTick struct {
	Symbol    string               `json:"symbol"`
	Price     decimal.Decimal      `json:"price"`
	Timestamp marketdata.Timestamp `json:"timestamp"` // zero when the server omits it
}

// SignalBatch carries trading signals to annotate the chart with.
type SignalBatch struct {
	Signals []Signal
}

// Unknown is any message with a type tag this engine does not handle.
type Unknown struct {
	Type string
}

func (PriceTick) isMessage()   {}
func (SignalBatch) isMessage() {}
func (Unknown) isMessage()     {}

type Signal struct {
	ID         string               `json:"id"`
	Symbol     string               `json:"symbol"`
	Action     string               `json:"action"` // e.g. "BUY", "SELL"
	Price      decimal.Decimal      `json:"price"`
	Confidence float64              `json:"confidence"`
	Timestamp  marketdata.Timestamp `json:"timestamp"`
}

// envelope is the outer shape shared by every message. Payload fields may
// sit at the top level or under "data".
type envelope struct {
	Type    string   `json:"type"`
	Signals []Signal `json:"signals"`
}
