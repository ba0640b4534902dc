// Package supervisor keeps one session alive: it builds a session, watches it
// until it reaches a terminal state, tears it down and builds the next one.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"camclient/native/internal/domain"
	"camclient/native/internal/registry"

	"github.com/sirupsen/logrus"
)

// Factory builds a new, unopened session.
type Factory func(ctx context.Context) (domain.Session, error)

// Config tunes the reconnect behavior.
type Config struct {
	Policy Policy
	// MaxAttempts bounds consecutive failed rebuild attempts. 0 retries forever.
	MaxAttempts int
}

// Supervisor runs the build/watch/teardown/delay loop.
type Supervisor struct {
	newSession  Factory
	registry    *registry.Registry
	policy      Policy
	maxAttempts int
	log         *logrus.Entry
}

// New creates a supervisor. A nil policy waits DefaultDelay between attempts.
func New(newSession Factory, reg *registry.Registry, cfg Config, log *logrus.Entry) *Supervisor {
	policy := cfg.Policy
	if policy == nil {
		policy = Fixed(DefaultDelay)
	}
	return &Supervisor{
		newSession:  newSession,
		registry:    reg,
		policy:      policy,
		maxAttempts: cfg.MaxAttempts,
		log:         log,
	}
}

// Run blocks until ctx is done or the loop gives up. A failure before any
// session was ever opened is returned as is; later failures are retried.
// Cancellation returns nil and leaves the live session registered for
// shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	established := false
	attempt := 0

	for {
		sess, terminal, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !established {
				return err
			}
			if s.maxAttempts > 0 && attempt >= s.maxAttempts {
				return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
			}
			s.log.WithField("attempt", attempt).Warnf("reconnect failed: %v", err)
		} else {
			established = true
			attempt = 0
			s.log.WithField("session", sess.ID()).Info("exchanging media")

			select {
			case <-ctx.Done():
				return nil
			case <-terminal:
			case <-sess.Done():
			}

			s.teardown(sess)
		}

		attempt++
		delay := s.policy.Delay(attempt)
		s.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Info("waiting before reconnect")
		if !sleep(ctx, delay) {
			return nil
		}
		s.log.Info("reconnecting")
	}
}

// connect builds, registers and opens a session. The returned channel fires
// once the session reports a terminal connection state.
func (s *Supervisor) connect(ctx context.Context) (domain.Session, <-chan struct{}, error) {
	sess, err := s.newSession(ctx)
	if err != nil {
		return nil, nil, err
	}

	terminal := make(chan struct{}, 1)
	sess.Subscribe(func(ev domain.Event) {
		if ev.Kind != domain.ConnectionStateChanged {
			return
		}
		switch domain.ConnectionState(ev.State) {
		case domain.ConnectionStateFailed, domain.ConnectionStateClosed:
			select {
			case terminal <- struct{}{}:
			default:
			}
		}
	})

	s.registry.Add(sess)
	if err := sess.Open(ctx); err != nil {
		s.teardown(sess)
		return nil, nil, err
	}
	return sess, terminal, nil
}

func (s *Supervisor) teardown(sess domain.Session) {
	if err := sess.Close(); err != nil {
		s.log.WithField("session", sess.ID()).Warnf("close: %v", err)
	}
	s.registry.Remove(sess)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
