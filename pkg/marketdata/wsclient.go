package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSDialer opens push channel connections. It does not reconnect; the
// caller owns the retry policy.
type WSDialer struct {
	URL              string
	Topics           []string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	Logger           *zap.Logger
}

// WSConn is one open push channel connection.
type WSConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	logger      *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// Dial performs the handshake and, when topics are configured, sends the
// subscription frame.
func (d *WSDialer) Dial(ctx context.Context) (*WSConn, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", d.URL, err)
	}
	logger.Info("WebSocket connected", zap.String("url", d.URL))

	if len(d.Topics) > 0 {
		subMsg := map[string]interface{}{
			"op":   "subscribe",
			"args": d.Topics,
		}
		if err := conn.WriteJSON(subMsg); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("websocket subscribe failed: %w", err)
		}
	}

	c := &WSConn{
		conn:        conn,
		readTimeout: d.ReadTimeout,
		logger:      logger,
		done:        make(chan struct{}),
	}
	if c.readTimeout > 0 {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		})
	}
	if d.PingInterval > 0 {
		go c.pingLoop(d.PingInterval)
	}
	return c, nil
}

// ReadMessage blocks until the next data frame arrives or the
// connection fails.
func (c *WSConn) ReadMessage() ([]byte, error) {
	if c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return nil, err
		}
	}
	_, msg, err := c.conn.ReadMessage()
	return msg, err
}

func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

func (c *WSConn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				c.logger.Warn("WebSocket ping failed", zap.Error(err))
				return
			}
		}
	}
}
