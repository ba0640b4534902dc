package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"camclient/native/internal/domain"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds one offer/answer round trip.
const DefaultTimeout = 10 * time.Second

// statusError carries a non-200 response out of the try-based request code.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, e.body)
}

// Client exchanges SDP offers for answers with an HTTP signaling endpoint.
type Client struct {
	http *http.Client
	log  *logrus.Entry
}

// NewClient creates a signaling client. A zero timeout uses DefaultTimeout.
func NewClient(timeout time.Duration, log *logrus.Entry) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

// Exchange posts the offer to endpoint and returns the decoded answer. Any
// transport failure or non-200 status is reported as a *domain.SignalingError.
func (c *Client) Exchange(ctx context.Context, endpoint string, offer domain.SDPPayload, creds *domain.Credentials, metadata map[string]string) (*domain.SDPPayload, error) {
	if creds != nil {
		c.log.Infof("authenticating as %s", creds.Username)
	}

	answer, err := c.post(ctx, endpoint, OfferBody(offer, metadata), creds)
	if err != nil {
		sigErr := &domain.SignalingError{Endpoint: endpoint, Cause: err}
		var se *statusError
		if errors.As(err, &se) {
			sigErr.Status = se.status
		}
		return nil, sigErr
	}

	c.log.WithField("endpoint", endpoint).Debug("answer received")
	return answer, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body map[string]string, creds *domain.Credentials) (answer *domain.SDPPayload, err error) {
	defer err2.Handle(&err)

	data := try.To1(json.Marshal(body))
	req := try.To1(http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data)))
	req.Header.Set("Content-Type", "application/json")
	if creds != nil {
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	resp := try.To1(c.http.Do(req))
	defer resp.Body.Close()

	respBody := try.To1(io.ReadAll(resp.Body))
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{status: resp.StatusCode, body: string(bytes.TrimSpace(respBody))}
	}

	answer = new(domain.SDPPayload)
	try.To(json.Unmarshal(respBody, answer))
	return answer, nil
}

// OfferBody merges metadata into the offer. The sdp and type keys always
// come from the offer.
func OfferBody(offer domain.SDPPayload, metadata map[string]string) map[string]string {
	body := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		body[k] = v
	}
	body["sdp"] = offer.SDP
	body["type"] = offer.Type
	return body
}
