package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"camclient/native/internal/control"
	"camclient/native/internal/domain"
	"camclient/native/internal/heartbeat"
	"camclient/native/internal/logger"

	"github.com/google/uuid"
	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/transport/v3"
	pion "github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// DefaultChannelLabel is the label of the side-channel the client creates.
const DefaultChannelLabel = "client-channel"

var (
	ErrSessionClosed = errors.New("session closed")
	ErrAlreadyOpened = errors.New("session already opened")
)

// Options configures one session.
type Options struct {
	Endpoint    string
	Credentials *domain.Credentials
	Metadata    map[string]string

	// Track is the outbound media attached by Open. Nil publishes no media.
	Track pion.TrackLocal
	// ForceCodec restricts the video transceiver to one MIME type, e.g. "video/H264".
	ForceCodec string

	ICEServers        []string
	HeartbeatInterval time.Duration
	ChannelLabel      string

	// Net replaces the host network, e.g. with a pion vnet.
	Net transport.Net
}

// Session wraps a pion PeerConnection, its side-channels and the heartbeat
// probe for one connection attempt.
type Session struct {
	id        string
	createdAt time.Time
	opts      Options
	exchanger domain.Exchanger
	log       *logrus.Entry

	pc      *pion.PeerConnection
	client  *sideChannel
	probe   *heartbeat.Probe
	handler *control.Handler

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     domain.ConnectionState
	opened    bool
	closed    bool
	channels  []*sideChannel
	stopProbe func()

	subsMu  sync.Mutex
	subs    map[int]func(domain.Event)
	nextSub int

	queue        *eventQueue
	dispatchDone chan struct{}
	done         chan struct{}
	closeOnce    sync.Once
}

var _ domain.Session = (*Session)(nil)

// NewSession creates the peer connection and the client side-channel. The
// session does not touch the network until Open.
func NewSession(exchanger domain.Exchanger, opts Options, log *logrus.Entry) (*Session, error) {
	if opts.ChannelLabel == "" {
		opts.ChannelLabel = DefaultChannelLabel
	}

	id := uuid.NewString()
	log = log.WithField("session", id[:8])

	m := &pion.MediaEngine{}
	for _, codec := range videoCodecs() {
		if err := m.RegisterCodec(codec, pion.RTPCodecTypeVideo); err != nil {
			return nil, fmt.Errorf("register %s: %w", codec.MimeType, err)
		}
	}

	i := &interceptor.Registry{}
	responderFactory, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	i.Add(responderFactory)
	if err := pion.ConfigureRTCPReports(i); err != nil {
		return nil, fmt.Errorf("configure rtcp reports: %w", err)
	}

	se := pion.SettingEngine{
		LoggerFactory: logger.PionFactory(log.WithField("prefix", "pion")),
	}
	if opts.Net != nil {
		se.SetNet(opts.Net)
		se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	}

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
		pion.WithSettingEngine(se),
	)

	var servers []pion.ICEServer
	for _, u := range opts.ICEServers {
		servers = append(servers, pion.ICEServer{URLs: []string{u}})
	}

	pc, err := api.NewPeerConnection(pion.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	dc, err := pc.CreateDataChannel(opts.ChannelLabel, nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:           id,
		createdAt:    time.Now(),
		opts:         opts,
		exchanger:    exchanger,
		log:          log,
		pc:           pc,
		ctx:          ctx,
		cancel:       cancel,
		state:        domain.ConnectionStateNew,
		subs:         make(map[int]func(domain.Event)),
		queue:        newEventQueue(),
		dispatchDone: make(chan struct{}),
		done:         make(chan struct{}),
	}

	s.client = s.attachChannel(dc)
	s.probe = heartbeat.New(s.client, opts.HeartbeatInterval, log.WithField("prefix", "heartbeat"))
	s.handler = control.NewHandler(log.WithField("prefix", "control"), func(msg control.Message) {
		s.probe.Observe(msg)
	})

	pc.OnDataChannel(func(d *pion.DataChannel) {
		s.log.Infof("data channel %q announced by remote", d.Label())
		s.attachChannel(d)
	})
	pc.OnConnectionStateChange(s.onConnectionState)
	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		s.onInfoState(domain.ICEStateChanged, state.String())
	})
	pc.OnICEGatheringStateChange(func(state pion.ICEGatheringState) {
		s.onInfoState(domain.GatheringStateChanged, state.String())
	})
	pc.OnSignalingStateChange(func(state pion.SignalingState) {
		s.onInfoState(domain.SignalingStateChanged, state.String())
	})
	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		s.log.Infof("track %s received", track.Kind())
	})

	go func() {
		defer close(s.dispatchDone)
		s.queue.run(s.deliver)
	}()

	return s, nil
}

func (s *Session) attachChannel(dc *pion.DataChannel) *sideChannel {
	ch := &sideChannel{dc: dc}

	s.mu.Lock()
	s.channels = append(s.channels, ch)
	s.mu.Unlock()

	dc.OnOpen(func() {
		s.log.Infof("data channel %q opened", dc.Label())
	})
	dc.OnClose(func() {
		s.log.Infof("data channel %q closed", dc.Label())
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		if !msg.IsString {
			return
		}
		s.handler.Handle(ch, string(msg.Data))
	})
	return ch
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was built.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// State returns the current connection state.
func (s *Session) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once Close has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// Subscribe registers fn for lifecycle events. Events are delivered in order
// on the session's dispatcher goroutine; fn must not call Close.
func (s *Session) Subscribe(fn func(domain.Event)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Session) deliver(ev domain.Event) {
	s.subsMu.Lock()
	fns := make([]func(domain.Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Session) emit(kind domain.EventKind, state string) {
	s.queue.push(domain.Event{
		SessionID: s.id,
		Kind:      kind,
		State:     state,
		At:        time.Now(),
	})
}

func (s *Session) onConnectionState(state pion.PeerConnectionState) {
	next := domain.ConnectionState(state.String())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	prev := s.state
	if prev == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()

	if !prev.CanTransition(next) {
		s.log.Warnf("unexpected connection transition %s -> %s", prev, next)
	}
	s.log.Infof("connection state is %s", next)
	s.emit(domain.ConnectionStateChanged, string(next))

	if next == domain.ConnectionStateClosed {
		go s.Close()
	}
}

func (s *Session) onInfoState(kind domain.EventKind, state string) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	s.log.Infof("%s state is %s", kind, state)
	s.emit(kind, state)
}

// Open attaches the track, runs the offer/answer exchange and starts the
// heartbeat. A session can be opened once.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrSessionClosed
	case s.opened:
		s.mu.Unlock()
		return ErrAlreadyOpened
	}
	s.opened = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	if s.opts.Track != nil {
		sender, err := s.pc.AddTrack(s.opts.Track)
		if err != nil {
			return fmt.Errorf("add track: %w", err)
		}
		go drainRTCP(sender)

		if s.opts.ForceCodec != "" {
			s.forceCodec(s.opts.ForceCodec)
		}
	}

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}

	gatherComplete := pion.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return s.openAborted(ctx)
	}

	local := s.pc.LocalDescription()
	answer, err := s.exchanger.Exchange(ctx, s.opts.Endpoint,
		domain.SDPPayload{Type: local.Type.String(), SDP: local.SDP},
		s.opts.Credentials, s.opts.Metadata)
	if err != nil {
		if s.ctx.Err() != nil {
			return ErrSessionClosed
		}
		return err
	}

	sdpType := pion.NewSDPType(answer.Type)
	if sdpType == pion.SDPTypeUnknown {
		sdpType = pion.SDPTypeAnswer
	}
	if err := s.pc.SetRemoteDescription(pion.SessionDescription{Type: sdpType, SDP: answer.SDP}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	s.log.Info("remote answer set")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.stopProbe = s.probe.Start(s.ctx)
	return nil
}

func (s *Session) openAborted(ctx context.Context) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	return ctx.Err()
}

func (s *Session) forceCodec(mimeType string) {
	codecs := matchCodecs(videoCodecs(), mimeType)
	if len(codecs) == 0 {
		s.log.Infof("no %s codecs found", mimeType)
		return
	}

	for _, t := range s.pc.GetTransceivers() {
		if t.Kind() != pion.RTPCodecTypeVideo {
			continue
		}
		if err := t.SetCodecPreferences(codecs); err != nil {
			s.log.Warnf("set codec preferences: %v", err)
		}
		return
	}
	s.log.Infof("no video transceiver to restrict to %s", mimeType)
}

// drainRTCP reads incoming RTCP so that interceptors such as the NACK
// responder see it.
func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// Close stops the heartbeat, closes the side-channels and the peer
// connection, and delivers the final closed event. It is idempotent and must
// not be called from a Subscribe callback.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		prev := s.state
		s.state = domain.ConnectionStateClosed
		stopProbe := s.stopProbe
		channels := s.channels
		s.mu.Unlock()

		s.cancel()
		if stopProbe != nil {
			stopProbe()
		}
		for _, ch := range channels {
			if cerr := ch.Close(); cerr != nil {
				s.log.Debugf("close data channel %q: %v", ch.Label(), cerr)
			}
		}
		if cerr := s.pc.Close(); cerr != nil {
			err = fmt.Errorf("close peer connection: %w", cerr)
		}

		if prev != domain.ConnectionStateClosed {
			s.log.Infof("connection state is %s", domain.ConnectionStateClosed)
			s.emit(domain.ConnectionStateChanged, string(domain.ConnectionStateClosed))
		}
		s.queue.close()
		<-s.dispatchDone
		close(s.done)
	})
	return err
}
