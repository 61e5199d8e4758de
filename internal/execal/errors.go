package execal

import (
	"errors"
	"fmt"

	"execal-client/internal/decode"
	"execal-client/internal/transport"
)

// Error kinds reported by Kind.
const (
	KindTransport = "transport"
	KindAPI       = "api"
	KindMalformed = "malformed"
	KindUnknown   = "unknown"
)

const maxBodyInError = 512

// APIError is a non-2xx HTTP response.
type APIError struct {
	Op     string
	Status int
	Body   []byte
}

func (e *APIError) Error() string {
	body := string(e.Body)
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError] + "..."
	}
	if e.Op == "" {
		return fmt.Sprintf("api error: status %d: %s", e.Status, body)
	}
	return fmt.Sprintf("api error: %s: status %d: %s", e.Op, e.Status, body)
}

// AsAPIError unwraps err to an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// Kind classifies err into one of the three client error kinds.
func Kind(err error) string {
	var (
		terr      *transport.TransportError
		apiErr    *APIError
		malformed *decode.MalformedResponse
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &terr):
		return KindTransport
	case errors.As(err, &apiErr):
		return KindAPI
	case errors.As(err, &malformed):
		return KindMalformed
	default:
		return KindUnknown
	}
}
