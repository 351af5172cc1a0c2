package stream

import (
	"go.uber.org/zap"
)

// Sink receives decoded push messages.
type Sink interface {
	OnPriceTick(tick PriceTick)
	OnSignals(signals []Signal)
}

// MakeMessageHandler returns a function that decodes incoming push frames
// and routes them to sink. Bad frames are logged and dropped.
func MakeMessageHandler(logger *zap.Logger, sink Sink) func(msg []byte) {
	return func(msg []byte) {
		m, err := Decode(msg)
		if err != nil {
			logger.Warn("dropping push message", zap.Error(err), zap.Int("bytes", len(msg)))
			return
		}

		switch m := m.(type) {
		case PriceTick:
			if m.Timestamp.Unparsed != "" {
				logger.Debug("unrecognized tick timestamp, using receive time",
					zap.String("symbol", m.Symbol), zap.String("timestamp", m.Timestamp.Unparsed))
			}
			sink.OnPriceTick(m)
		case SignalBatch:
			if len(m.Signals) > 0 {
				sink.OnSignals(m.Signals)
			}
		case Unknown:
			logger.Debug("ignoring push message", zap.String("type", m.Type))
		}
	}
}
