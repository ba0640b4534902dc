package signal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"camclient/native/internal/api"
	"camclient/native/internal/domain"
	"camclient/native/internal/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestClient(t *testing.T, timeout time.Duration) *Client {
	return NewClient(timeout, logger.For(logger.NewTestLogger(t), "signal"))
}

func TestExchange_Answer(t *testing.T) {
	var offer map[string]string
	var authOK bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, authOK = r.BasicAuth()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		if err := conn.ReadJSON(&offer); err != nil {
			t.Errorf("read offer: %v", err)
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte("garbage"))
		conn.WriteJSON(map[string]string{"type": "candidate"})
		conn.WriteJSON(map[string]string{"type": "answer", "sdp": "v=0\r\nanswer"})
	}))
	defer srv.Close()

	answer, err := newTestClient(t, time.Second).Exchange(context.Background(), wsURL(srv),
		domain.SDPPayload{Type: "offer", SDP: "v=0\r\noffer"},
		&domain.Credentials{Username: "u", Password: "p"},
		map[string]string{"modelId": "m1"},
	)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if answer.SDP != "v=0\r\nanswer" || answer.Type != "answer" {
		t.Errorf("unexpected answer: %+v", answer)
	}
	if offer["type"] != "offer" || offer["modelId"] != "m1" {
		t.Errorf("unexpected offer: %v", offer)
	}
	if !authOK {
		t.Error("expected basic auth on the upgrade request")
	}
}

func TestExchange_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var offer map[string]string
		conn.ReadJSON(&offer)
		conn.WriteJSON(map[string]string{"error": "unknown camera"})
	}))
	defer srv.Close()

	_, err := newTestClient(t, time.Second).Exchange(context.Background(), wsURL(srv), domain.SDPPayload{Type: "offer"}, nil, nil)

	var sigErr *domain.SignalingError
	if !errors.As(err, &sigErr) {
		t.Fatalf("expected SignalingError, got %v", err)
	}
	if !strings.Contains(sigErr.Error(), "unknown camera") {
		t.Errorf("expected server message in error, got %v", sigErr)
	}
}

func TestExchange_HandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(t, time.Second).Exchange(context.Background(), wsURL(srv), domain.SDPPayload{Type: "offer"}, nil, nil)

	var sigErr *domain.SignalingError
	if !errors.As(err, &sigErr) {
		t.Fatalf("expected SignalingError, got %v", err)
	}
	if sigErr.Status != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", sigErr.Status)
	}
}

func TestExchange_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	start := time.Now()
	_, err := newTestClient(t, 50*time.Millisecond).Exchange(context.Background(), wsURL(srv), domain.SDPPayload{Type: "offer"}, nil, nil)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 400*time.Millisecond {
		t.Errorf("expected exchange to stop at the timeout, took %v", time.Since(start))
	}
}

func TestNewExchanger(t *testing.T) {
	log := logger.For(logger.NewTestLogger(t), "signal")

	if _, ok := NewExchanger("ws://localhost:9000/offer", 0, log).(*Client); !ok {
		t.Error("expected WebSocket client for ws://")
	}
	if _, ok := NewExchanger("WSS://example.com/offer", 0, log).(*Client); !ok {
		t.Error("expected WebSocket client for wss://")
	}
	if _, ok := NewExchanger("http://localhost:9000/offer", 0, log).(*api.Client); !ok {
		t.Error("expected HTTP client for http://")
	}
}
