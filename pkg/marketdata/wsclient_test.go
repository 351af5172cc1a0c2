package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// go test -v --run TestWSDialerSubscribeAndRead
func TestWSDialerSubscribeAndRead(t *testing.T) {
	subscribed := make(chan []string, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub struct {
			Op   string   `json:"op"`
			Args []string `json:"args"`
		}
		if err := conn.ReadJSON(&sub); err != nil || sub.Op != "subscribe" {
			return
		}
		subscribed <- sub.Args

		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"price_update","symbol":"EURUSD","price":1.085}`))
		// Keep the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	d := &WSDialer{
		URL:              "ws" + strings.TrimPrefix(srv.URL, "http"),
		Topics:           []string{"prices", "signals"},
		HandshakeTimeout: 5 * time.Second,
		ReadTimeout:      5 * time.Second,
		PingInterval:     time.Second,
	}

	conn, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	select {
	case args := <-subscribed:
		if len(args) != 2 || args[0] != "prices" {
			t.Errorf("subscribe args = %v", args)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subscription frame not received")
	}

	msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	var meta struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &meta); err != nil || meta.Type != "price_update" {
		t.Errorf("unexpected message %s", msg)
	}

	if err := conn.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close returned error: %v", err)
	}
}

// go test -v --run TestWSDialerFailure
func TestWSDialerFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := &WSDialer{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), HandshakeTimeout: time.Second}
	if _, err := d.Dial(context.Background()); err == nil {
		t.Fatal("expected handshake error")
	}
}
