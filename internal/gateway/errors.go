package gateway

import (
	"fmt"

	"github.com/pkg/errors"
)

// msgNotLoggedIn is the one backend business error the panel promotes to
// success: it confirms the session is already disconnected.
const msgNotLoggedIn = "Cannot disconnect because it is not logged in"

// ErrNoQRCode reports a QR fetch whose response was missing the QRCode field.
var ErrNoQRCode = errors.New("gateway: QR payload missing QRCode")

// APIError is a structured business error reported by the gateway in a
// response body, carrying the HTTP status and the raw body for display.
type APIError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("gateway: request failed with status %d", e.Status)
}

func newAPIError(status int, body []byte) *APIError {
	var envelope struct {
		Error string `json:"error"`
	}
	// body may be empty or non-JSON; the status alone is still an error
	_ = json.Unmarshal(body, &envelope)
	return &APIError{Status: status, Message: envelope.Error, Body: body}
}

// IsNotLoggedIn reports whether err is the tolerated disconnect error,
// matched by the exact backend message.
func IsNotLoggedIn(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Message == msgNotLoggedIn
}
