// Package control handles application messages on a session's side-channel:
// ping/pong text frames, rtt probe echoes and rtt results.
package control

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"camclient/native/internal/domain"

	"github.com/sirupsen/logrus"
)

// Message types carried on the side-channel.
const (
	TypeRTTPacket       = "rtt-packet"
	TypeRTTClient       = "rtt-client"
	TypeRTTClientResult = "rtt-client-result"
)

const pingPrefix = "ping"

// Message is the JSON envelope of side-channel control messages.
type Message struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp,omitempty"`
	RTT       int64  `json:"rtt,omitempty"`
}

// Channel is the part of a side-channel the handler replies on.
type Channel interface {
	Label() string
	IsOpen() bool
	SendText(text string) error
}

// Handler dispatches inbound side-channel payloads.
type Handler struct {
	log *logrus.Entry
	// OnResult receives rtt-client-result messages.
	OnResult func(Message)
}

// NewHandler creates a Handler logging through log.
func NewHandler(log *logrus.Entry, onResult func(Message)) *Handler {
	return &Handler{log: log, OnResult: onResult}
}

// Handle processes one text payload received on ch. Malformed payloads are
// logged and dropped.
func (h *Handler) Handle(ch Channel, payload string) {
	if strings.HasPrefix(payload, pingPrefix) {
		h.reply(ch, "pong"+payload[len(pingPrefix):])
		return
	}

	msg, err := Parse(payload)
	if err != nil {
		h.log.WithField("channel", ch.Label()).Debug(err)
		return
	}

	switch msg.Type {
	case TypeRTTPacket, TypeRTTClient:
		h.reply(ch, payload)
	case TypeRTTClientResult:
		if h.OnResult != nil {
			h.OnResult(msg)
		}
	default:
		h.log.WithFields(logrus.Fields{
			"channel": ch.Label(),
			"type":    msg.Type,
		}).Info("message received")
	}
}

func (h *Handler) reply(ch Channel, text string) {
	if !ch.IsOpen() {
		h.log.WithField("channel", ch.Label()).Debug("channel not open, reply dropped")
		return
	}
	if err := ch.SendText(text); err != nil {
		h.log.WithField("channel", ch.Label()).Warnf("send reply: %v", err)
	}
}

// envelope defers decoding of the numeric fields, whose encoding varies
// between peers.
type envelope struct {
	Type      *string         `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
	RTT       json.RawMessage `json:"rtt"`
}

var errMissingType = errors.New("missing type")

// Parse decodes a JSON control message. Only the type is required; numeric
// fields given as fractions, exponents or quoted strings are rounded to
// whole milliseconds and anything else reads as zero.
func Parse(payload string) (Message, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Message{}, &domain.MalformedMessageError{Payload: payload, Cause: err}
	}
	if env.Type == nil {
		return Message{}, &domain.MalformedMessageError{Payload: payload, Cause: errMissingType}
	}
	return Message{
		Type:      *env.Type,
		Timestamp: millis(env.Timestamp),
		RTT:       millis(env.RTT),
	}, nil
}

func millis(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return 0
	}
	return int64(math.Round(f))
}

// Encode renders msg as a JSON text frame.
func Encode(msg Message) string {
	data, _ := json.Marshal(msg)
	return string(data)
}
