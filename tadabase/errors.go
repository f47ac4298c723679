package tadabase

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnexpectedStatus is wrapped by every StatusError.
	ErrUnexpectedStatus = errors.New("unexpected vendor status")

	// ErrMalformedResponse: the vendor answered 2xx with a body we cannot use.
	ErrMalformedResponse = errors.New("malformed vendor response")

	// ErrMalformedRecord: a record lacks a field the mapping requires.
	ErrMalformedRecord = errors.New("malformed vendor record")
)

// StatusError is a non-2xx answer from the vendor API.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// IsClientError reports whether err is a 4xx answer.
func IsClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}

// IsNotFound reports whether err is a 404 answer.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// IsRetryable reports whether repeating the request may succeed: transport
// failures, 429 and 5xx.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return !errors.Is(err, ErrMalformedResponse) && !errors.Is(err, ErrMalformedRecord)
}
