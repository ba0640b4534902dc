package domain

import "context"

// Exchanger trades a local offer for a remote answer with a signaling endpoint.
// Metadata keys are merged into the offer body next to "sdp" and "type".
type Exchanger interface {
	Exchange(ctx context.Context, endpoint string, offer SDPPayload, creds *Credentials, metadata map[string]string) (*SDPPayload, error)
}

// Session is one negotiated connection attempt as seen by the supervisor
// and the registry.
type Session interface {
	ID() string
	Open(ctx context.Context) error
	Close() error
	State() ConnectionState
	// Subscribe registers fn for lifecycle events. fn runs on the session's
	// dispatcher goroutine and must not call Close.
	Subscribe(fn func(Event)) (unsubscribe func())
	// Done is closed once the session reached ConnectionStateClosed.
	Done() <-chan struct{}
}
