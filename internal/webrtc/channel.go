package webrtc

import (
	"errors"
	"sync"

	pion "github.com/pion/webrtc/v4"
)

var errChannelNotOpen = errors.New("data channel not open")

// sideChannel serializes sends on a DataChannel and refuses them unless the
// channel is open.
type sideChannel struct {
	dc *pion.DataChannel
	mu sync.Mutex
}

func (c *sideChannel) Label() string { return c.dc.Label() }

func (c *sideChannel) IsOpen() bool {
	return c.dc.ReadyState() == pion.DataChannelStateOpen
}

func (c *sideChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.IsOpen() {
		return errChannelNotOpen
	}
	return c.dc.SendText(text)
}

func (c *sideChannel) Close() error {
	return c.dc.Close()
}
