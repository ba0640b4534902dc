package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"camclient/native/internal/domain"
	"camclient/native/internal/logger"
	"camclient/native/internal/supervisor"

	pion "github.com/pion/webrtc/v4"
)

// mockSource records acquire and close calls.
type mockSource struct {
	err error

	mu       sync.Mutex
	acquired bool
	closed   bool
}

func (m *mockSource) Acquire(ctx context.Context) (pion.TrackLocal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquired = true
	if m.err != nil {
		return nil, m.err
	}
	return pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeH264}, "video", "test")
}

func (m *mockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockSource) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// mockSession is an always-healthy session.
type mockSession struct {
	id      string
	openErr error

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func (m *mockSession) ID() string                             { return m.id }
func (m *mockSession) Open(ctx context.Context) error         { return m.openErr }
func (m *mockSession) Subscribe(fn func(domain.Event)) func() { return func() {} }
func (m *mockSession) Done() <-chan struct{}                  { return m.done }
func (m *mockSession) State() domain.ConnectionState          { return domain.ConnectionStateConnected }
func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func newTestPublisher(t *testing.T, src *mockSource, openErr error) (*Publisher, chan *mockSession) {
	t.Helper()
	log := logger.For(logger.NewTestLogger(t), "publisher")

	p := New(src, nil, Options{Supervisor: supervisor.Config{Policy: supervisor.Fixed(time.Millisecond)}}, log)
	built := make(chan *mockSession, 4)
	p.SetSessionFactory(func(ctx context.Context, track pion.TrackLocal) (domain.Session, error) {
		if track == nil {
			t.Error("session built without a track")
		}
		s := &mockSession{id: "s1", openErr: openErr, done: make(chan struct{})}
		built <- s
		return s, nil
	})
	return p, built
}

func TestRun_MediaFailureIsFatal(t *testing.T) {
	acqErr := &domain.MediaAcquisitionError{Locator: "/dev/video0", Cause: errors.New("busy")}
	src := &mockSource{err: acqErr}
	p, built := newTestPublisher(t, src, nil)

	err := p.Run(context.Background())

	var me *domain.MediaAcquisitionError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want MediaAcquisitionError", err)
	}
	if len(built) != 0 {
		t.Error("session built after media failure")
	}
}

func TestRun_FirstSignalingFailureIsFatal(t *testing.T) {
	src := &mockSource{}
	sigErr := &domain.SignalingError{Endpoint: "http://x/offer", Status: 500}
	p, _ := newTestPublisher(t, src, sigErr)

	err := p.Run(context.Background())

	var se *domain.SignalingError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want SignalingError", err)
	}
	if !src.isClosed() {
		t.Error("media source not closed")
	}
	if p.Registry().Len() != 0 {
		t.Errorf("registry has %d sessions", p.Registry().Len())
	}
}

func TestShutdown_ClosesEverything(t *testing.T) {
	src := &mockSource{}
	p, built := newTestPublisher(t, src, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(context.Background()) }()

	var s *mockSession
	select {
	case s = <-built:
	case <-time.After(2 * time.Second):
		t.Fatal("no session built")
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.Registry().Len() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("session never registered")
		}
		time.Sleep(2 * time.Millisecond)
	}

	p.Shutdown()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}

	select {
	case <-s.Done():
	default:
		t.Error("session not closed")
	}
	if p.Registry().Len() != 0 {
		t.Errorf("registry has %d sessions", p.Registry().Len())
	}
	if !src.isClosed() {
		t.Error("media source not closed")
	}
}

func TestShutdown_BeforeRun(t *testing.T) {
	p, _ := newTestPublisher(t, &mockSource{}, nil)
	p.Shutdown()
}
