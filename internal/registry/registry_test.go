package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"camclient/native/internal/domain"
	"camclient/native/internal/logger"
)

// slowSession takes a while to close, like a peer connection tearing down.
type slowSession struct {
	id     string
	delay  time.Duration
	closed atomic.Bool
	once   sync.Once
	done   chan struct{}
}

func newSlowSession(id string, delay time.Duration) *slowSession {
	return &slowSession{id: id, delay: delay, done: make(chan struct{})}
}

func (s *slowSession) ID() string                          { return s.id }
func (s *slowSession) Open(ctx context.Context) error      { return nil }
func (s *slowSession) Subscribe(func(domain.Event)) func() { return func() {} }
func (s *slowSession) Done() <-chan struct{}               { return s.done }
func (s *slowSession) State() domain.ConnectionState {
	if s.closed.Load() {
		return domain.ConnectionStateClosed
	}
	return domain.ConnectionStateConnected
}
func (s *slowSession) Close() error {
	s.once.Do(func() {
		time.Sleep(s.delay)
		s.closed.Store(true)
		close(s.done)
	})
	return nil
}

func newRegistry(t *testing.T) *Registry {
	return New(logger.For(logger.NewTestLogger(t), "registry"))
}

func TestAddRemove(t *testing.T) {
	r := newRegistry(t)
	a := newSlowSession("a", 0)
	b := newSlowSession("b", 0)

	r.Add(a)
	r.Add(b)
	if r.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", r.Len())
	}

	r.Remove(a)
	r.Remove(a)
	if r.Has(a) {
		t.Error("expected a to be removed")
	}
	if !r.Has(b) {
		t.Error("expected b to remain")
	}
}

func TestCloseAll_WaitsForEverySession(t *testing.T) {
	r := newRegistry(t)
	var sessions []*slowSession
	for i := 0; i < 5; i++ {
		s := newSlowSession(fmt.Sprintf("s%d", i), time.Duration(i*10)*time.Millisecond)
		sessions = append(sessions, s)
		r.Add(s)
	}

	if err := r.CloseAll(context.Background()); err != nil {
		t.Fatalf("close all: %v", err)
	}

	for _, s := range sessions {
		if s.State() != domain.ConnectionStateClosed {
			t.Errorf("session %s not closed when CloseAll returned", s.id)
		}
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}

func TestCloseAll_HonoursContext(t *testing.T) {
	r := newRegistry(t)
	r.Add(newSlowSession("slow", time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := r.CloseAll(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestCloseAll_Empty(t *testing.T) {
	if err := newRegistry(t).CloseAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
