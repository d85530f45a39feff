package providers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

const maxErrorBody = 4 << 10

// StatusError describes a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// CheckResponse returns a *StatusError for non-2xx responses. The body is
// drained up to a small limit so the message stays loggable.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// StatusMessage turns an HTTP failure into the message shown to clients.
func StatusMessage(provider string, err error) string {
	var se *StatusError
	if !errors.As(err, &se) {
		return provider + " request failed"
	}
	switch {
	case se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden:
		return provider + " rejected the API credentials"
	case se.StatusCode == http.StatusTooManyRequests:
		return provider + " rate limit exceeded"
	case se.StatusCode == http.StatusBadRequest:
		return provider + " rejected the request"
	case se.StatusCode >= 500:
		return provider + " is unavailable"
	default:
		return fmt.Sprintf("%s returned status %d", provider, se.StatusCode)
	}
}
