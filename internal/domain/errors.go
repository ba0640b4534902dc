package domain

import "fmt"

// SignalingError reports a failed offer/answer exchange.
type SignalingError struct {
	Endpoint string
	// Status is the HTTP status code, 0 when the request never got a response.
	Status int
	Cause  error
}

func (e *SignalingError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("signaling %s: status %d: %v", e.Endpoint, e.Status, e.Cause)
	}
	return fmt.Sprintf("signaling %s: %v", e.Endpoint, e.Cause)
}

func (e *SignalingError) Unwrap() error { return e.Cause }

// MediaAcquisitionError reports a capture device, file or stream that could not be opened.
type MediaAcquisitionError struct {
	Locator string
	Cause   error
}

func (e *MediaAcquisitionError) Error() string {
	return fmt.Sprintf("acquire media %q: %v", e.Locator, e.Cause)
}

func (e *MediaAcquisitionError) Unwrap() error { return e.Cause }

// UnsupportedPlatformError reports an OS without a known capture-device convention.
type UnsupportedPlatformError struct {
	OS string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("OS [%s] not supported", e.OS)
}

// MalformedMessageError reports a side-channel payload that is not valid JSON.
// It is always handled where it occurs.
type MalformedMessageError struct {
	Payload string
	Cause   error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed side-channel message %q: %v", e.Payload, e.Cause)
}

func (e *MalformedMessageError) Unwrap() error { return e.Cause }
