// Package publisher wires a media source to the reconnect supervisor and owns
// the process-wide session registry.
package publisher

import (
	"context"
	"sync"
	"time"

	"camclient/native/internal/domain"
	"camclient/native/internal/media"
	"camclient/native/internal/registry"
	"camclient/native/internal/supervisor"
	"camclient/native/internal/webrtc"

	pion "github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// shutdownTimeout bounds closing the live sessions on exit.
const shutdownTimeout = 5 * time.Second

// Options configures the sessions the publisher builds.
type Options struct {
	Endpoint    string
	Credentials *domain.Credentials
	Metadata    map[string]string

	ForceH264         bool
	ICEServers        []string
	HeartbeatInterval time.Duration

	Supervisor supervisor.Config
}

// SessionFactory builds one session publishing track.
type SessionFactory func(ctx context.Context, track pion.TrackLocal) (domain.Session, error)

// Publisher coordinates the media source, the supervisor and the registry.
type Publisher struct {
	source     media.Source
	exchanger  domain.Exchanger
	opts       Options
	registry   *registry.Registry
	newSession SessionFactory
	log        *logrus.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a Publisher streaming source through sessions that signal
// with exchanger.
func New(source media.Source, exchanger domain.Exchanger, opts Options, log *logrus.Entry) *Publisher {
	p := &Publisher{
		source:    source,
		exchanger: exchanger,
		opts:      opts,
		registry:  registry.New(log.WithField("prefix", "registry")),
		log:       log,
	}
	p.newSession = p.buildSession
	return p
}

// SetSessionFactory replaces how sessions are built.
func (p *Publisher) SetSessionFactory(f SessionFactory) {
	p.newSession = f
}

// Registry returns the live-session registry.
func (p *Publisher) Registry() *registry.Registry {
	return p.registry
}

func (p *Publisher) buildSession(ctx context.Context, track pion.TrackLocal) (domain.Session, error) {
	opts := webrtc.Options{
		Endpoint:          p.opts.Endpoint,
		Credentials:       p.opts.Credentials,
		Metadata:          p.opts.Metadata,
		Track:             track,
		ICEServers:        p.opts.ICEServers,
		HeartbeatInterval: p.opts.HeartbeatInterval,
	}
	if p.opts.ForceH264 {
		opts.ForceCodec = pion.MimeTypeH264
	}
	return webrtc.NewSession(p.exchanger, opts, p.log.WithField("prefix", "webrtc"))
}

// Run acquires the media track and keeps a session alive until ctx is done,
// Shutdown is called or the supervisor gives up. Live sessions and the
// media source are closed before it returns.
func (p *Publisher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.log.Info("acquiring media")
	track, err := p.source.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.source.Close(); err != nil {
			p.log.Warnf("close media source: %v", err)
		}
	}()

	factory := func(ctx context.Context) (domain.Session, error) {
		return p.newSession(ctx, track)
	}
	sup := supervisor.New(factory, p.registry, p.opts.Supervisor, p.log.WithField("prefix", "supervisor"))
	err = sup.Run(ctx)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer closeCancel()
	if cerr := p.registry.CloseAll(closeCtx); cerr != nil {
		p.log.Warnf("close sessions: %v", cerr)
	}

	p.log.Info("done")
	return err
}

// Shutdown stops Run.
func (p *Publisher) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.log.Info("shutting down")
		p.cancel()
	}
}
