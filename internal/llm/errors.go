package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why a completion call failed.
type Kind int

const (
	KindNetwork Kind = iota + 1
	KindTimeout
	KindAuth
	KindQuota
	KindRateLimited
	KindServer
	KindRejected
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindRejected:
		return "rejected"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// APIError is returned for every failed completion call.
type APIError struct {
	Kind       Kind
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("LLM API %s error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("LLM API %s error (status %d): %s", e.Kind, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("LLM API %s error: %v", e.Kind, e.Err)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the same request could succeed.
func (e *APIError) Temporary() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindRateLimited, KindServer:
		return true
	}
	return false
}

// IsTemporary reports whether err carries a retryable APIError.
func IsTemporary(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Temporary()
}

// KindOf returns the failure kind of err, or zero when err is not an APIError.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusPaymentRequired:
		return KindQuota
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindRejected
	}
}
