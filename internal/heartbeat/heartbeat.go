// Package heartbeat measures round-trip latency over a session's side-channel.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"camclient/native/internal/control"

	"github.com/sirupsen/logrus"
)

// DefaultInterval is the time between two probes.
const DefaultInterval = time.Second

// maxPending bounds the unanswered sends remembered for results that do
// not echo their timestamp.
const maxPending = 32

// Channel is the side-channel the probe sends on.
type Channel interface {
	IsOpen() bool
	SendText(text string) error
}

// Record is one completed round trip.
type Record struct {
	SentAt time.Time
	RTT    time.Duration
	// Reported is the rtt the remote side included in its result, if any.
	Reported time.Duration
}

// Probe periodically sends rtt-client probes and logs the round trip of
// every rtt-client-result it observes.
type Probe struct {
	ch       Channel
	interval time.Duration
	log      *logrus.Entry
	now      func() time.Time

	mu sync.Mutex
	// pending holds the unanswered send times, oldest first.
	pending []int64
	last    *Record
}

// New creates a probe on ch. A zero interval uses DefaultInterval.
func New(ch Channel, interval time.Duration, log *logrus.Entry) *Probe {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Probe{
		ch:       ch,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// Start runs the probe loop in a goroutine. The returned stop function
// cancels the loop and waits for it to exit.
func (p *Probe) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// Run sends a probe every interval until ctx is done. Ticks where the
// channel is not open are skipped.
func (p *Probe) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Send()
		}
	}
}

// Send emits one probe if the channel is open. It reports whether a probe
// was sent.
func (p *Probe) Send() bool {
	if !p.ch.IsOpen() {
		return false
	}

	ts := p.now().UnixMilli()
	p.mu.Lock()
	p.pending = append(p.pending, ts)
	if len(p.pending) > maxPending {
		p.pending = p.pending[len(p.pending)-maxPending:]
	}
	p.mu.Unlock()

	msg := control.Encode(control.Message{Type: control.TypeRTTClient, Timestamp: ts})
	if err := p.ch.SendText(msg); err != nil {
		p.log.Debugf("send probe: %v", err)
		p.forget(ts)
		return false
	}
	return true
}

func (p *Probe) forget(ts int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, v := range p.pending {
		if v == ts {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			return
		}
	}
}

// Observe completes a round trip from an rtt-client-result. The echoed
// timestamp is used when present, otherwise the oldest unanswered send.
func (p *Probe) Observe(msg control.Message) (Record, bool) {
	if msg.Type != control.TypeRTTClientResult {
		return Record{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sent := msg.Timestamp
	if sent == 0 {
		if len(p.pending) == 0 {
			return Record{}, false
		}
		sent = p.pending[0]
	}
	// older unanswered sends are considered lost
	n := 0
	for n < len(p.pending) && p.pending[n] <= sent {
		n++
	}
	p.pending = p.pending[n:]

	rec := Record{
		SentAt:   time.UnixMilli(sent),
		RTT:      time.Duration(p.now().UnixMilli()-sent) * time.Millisecond,
		Reported: time.Duration(msg.RTT) * time.Millisecond,
	}
	p.last = &rec

	p.log.WithFields(logrus.Fields{
		"rtt_ms":      rec.RTT.Milliseconds(),
		"reported_ms": msg.RTT,
	}).Info("round trip")

	return rec, true
}

// Last returns the most recent record.
func (p *Probe) Last() (Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Record{}, false
	}
	return *p.last, true
}
