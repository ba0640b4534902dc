package signal

import (
	"net/url"
	"strings"
	"time"

	"camclient/native/internal/api"
	"camclient/native/internal/domain"

	"github.com/sirupsen/logrus"
)

// NewExchanger picks the signaling transport for endpoint: WebSocket for
// ws:// and wss:// URLs, HTTP POST otherwise.
func NewExchanger(endpoint string, timeout time.Duration, log *logrus.Entry) domain.Exchanger {
	if u, err := url.Parse(endpoint); err == nil {
		switch strings.ToLower(u.Scheme) {
		case "ws", "wss":
			return NewClient(timeout, log)
		}
	}
	return api.NewClient(timeout, log)
}
