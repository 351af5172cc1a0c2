package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"marketsync/internal/instrument"
)

var ErrMissingType = errors.New("push message has no type")

// Decode turns a raw push frame into a Message. Unknown type tags are not
// an error; malformed JSON and invalid payloads are.
func Decode(raw []byte) (Message, error) {
	var head struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("failed to parse push message: %w", err)
	}
	if head.Type == "" {
		return nil, ErrMissingType
	}

	payload := raw
	if d := bytes.TrimSpace(head.Data); len(d) > 0 && !bytes.Equal(d, []byte("null")) {
		payload = d
	}

	switch head.Type {
	case TypePriceUpdate, TypePrice:
		return decodeTick(payload)
	case TypeNewSignals, TypeSignals:
		return decodeSignals(payload)
	default:
		return Unknown{Type: head.Type}, nil
	}
}

func decodeTick(payload []byte) (Message, error) {
	var tick PriceTick
	if err := json.Unmarshal(payload, &tick); err != nil {
		return nil, fmt.Errorf("failed to parse price tick: %w", err)
	}
	tick.Symbol = instrument.Normalize(tick.Symbol)
	if tick.Symbol == "" || !tick.Price.IsPositive() {
		return nil, fmt.Errorf("invalid price tick: symbol=%q price=%s", tick.Symbol, tick.Price)
	}
	return tick, nil
}

func decodeSignals(payload []byte) (Message, error) {
	var signals []Signal
	if trimmed := bytes.TrimSpace(payload); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &signals); err != nil {
			return nil, fmt.Errorf("failed to parse signals: %w", err)
		}
	} else {
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, fmt.Errorf("failed to parse signals: %w", err)
		}
		signals = env.Signals
	}

	out := signals[:0]
	for _, s := range signals {
		s.Symbol = instrument.Normalize(s.Symbol)
		if s.Symbol == "" {
			continue
		}
		out = append(out, s)
	}
	return SignalBatch{Signals: out}, nil
}
