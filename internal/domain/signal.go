package domain

// SDPPayload is the JSON structure for SDP offer/answer messages.
type SDPPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Credentials holds HTTP basic-auth credentials for the signaling endpoint.
type Credentials struct {
	Username string
	Password string
}
