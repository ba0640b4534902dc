package signal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"camclient/native/internal/api"
	"camclient/native/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds one offer/answer round trip.
const DefaultTimeout = 10 * time.Second

// message is the WebSocket signaling envelope.
type message struct {
	Type  string `json:"type"`
	SDP   string `json:"sdp,omitempty"`
	Error string `json:"error,omitempty"`
}

// Client exchanges one offer for one answer over a WebSocket connection.
type Client struct {
	dialer  *websocket.Dialer
	timeout time.Duration
	log     *logrus.Entry
}

// NewClient creates a WebSocket signaling client. A zero timeout uses
// DefaultTimeout.
func NewClient(timeout time.Duration, log *logrus.Entry) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		dialer:  websocket.DefaultDialer,
		timeout: timeout,
		log:     log,
	}
}

// Exchange dials endpoint, sends the offer as one text frame and waits for a
// frame of type "answer". Frames of other types are skipped.
func (c *Client) Exchange(ctx context.Context, endpoint string, offer domain.SDPPayload, creds *domain.Credentials, metadata map[string]string) (*domain.SDPPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	answer, status, err := c.exchange(ctx, endpoint, offer, creds, metadata)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, &domain.SignalingError{Endpoint: endpoint, Status: status, Cause: err}
	}
	return answer, nil
}

func (c *Client) exchange(ctx context.Context, endpoint string, offer domain.SDPPayload, creds *domain.Credentials, metadata map[string]string) (*domain.SDPPayload, int, error) {
	header := http.Header{}
	if creds != nil {
		c.log.Infof("authenticating as %s", creds.Username)
		auth := base64.StdEncoding.EncodeToString([]byte(creds.Username + ":" + creds.Password))
		header.Set("Authorization", "Basic "+auth)
	}

	c.log.Debugf("connecting to %s", endpoint)
	conn, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, status, fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	// unblock ReadMessage when ctx ends
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := c.sendJSON(conn, api.OfferBody(offer, metadata)); err != nil {
		return nil, 0, err
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, 0, fmt.Errorf("read answer: %w", err)
		}
		c.log.Debugf("<<< %s", string(data))

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debugf("unmarshal error: %v", err)
			continue
		}

		switch {
		case msg.Error != "":
			return nil, 0, fmt.Errorf("server error: %s", msg.Error)
		case msg.Type == "answer":
			return &domain.SDPPayload{Type: msg.Type, SDP: msg.SDP}, 0, nil
		default:
			c.log.Debugf("unhandled message type: %q", msg.Type)
		}
	}
}

func (c *Client) sendJSON(conn *websocket.Conn, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal offer: %w", err)
	}
	c.log.Debugf(">>> %s", string(data))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write offer: %w", err)
	}
	return nil
}
