// Package registry tracks the live sessions of a client so that they can be
// closed together at shutdown.
package registry

import (
	"context"
	"sync"

	"camclient/native/internal/domain"

	"github.com/sirupsen/logrus"
)

// Registry is the set of live sessions. It is created at startup by the
// publisher and drained with CloseAll at shutdown.
type Registry struct {
	log *logrus.Entry

	mu       sync.Mutex
	sessions map[string]domain.Session
}

// New creates an empty registry.
func New(log *logrus.Entry) *Registry {
	return &Registry{
		log:      log,
		sessions: make(map[string]domain.Session),
	}
}

// Add registers s.
func (r *Registry) Add(s domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Remove unregisters s. Removing an unknown session is a no-op.
func (r *Registry) Remove(s domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s.ID())
}

// Has reports whether s is registered.
func (r *Registry) Has(s domain.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[s.ID()]
	return ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll closes every registered session concurrently and returns once all
// of them are closed, or when ctx is done.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	sessions := make([]domain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]domain.Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s domain.Session) {
			defer wg.Done()
			if err := s.Close(); err != nil {
				r.log.WithField("session", s.ID()).Warnf("close: %v", err)
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Debugf("closed %d sessions", len(sessions))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
