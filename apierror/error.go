// Package apierror provides an error type that carries an HTTP-style status
// code. The status classifies a failure for callers on the far side of a
// transport, which only see the error message.
package apierror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is an error annotated with a status code.
type Error struct {
	err    error
	status int
}

// New annotates err with status.
func New(err error, status int) *Error {
	return &Error{
		err:    err,
		status: status,
	}
}

// BadRequest marks err as caused by an invalid argument.
func BadRequest(err error) *Error { return New(err, http.StatusBadRequest) }

// NotFound marks err as a lookup of something that does not exist.
func NotFound(err error) *Error { return New(err, http.StatusNotFound) }

// Timeout marks err as an operation that ran out of time.
func Timeout(err error) *Error { return New(err, http.StatusGatewayTimeout) }

// Unavailable marks err as a refusal because of load.
func Unavailable(err error) *Error { return New(err, http.StatusServiceUnavailable) }

// FromResponse creates an error from the status and body of an upstream
// response.
func FromResponse(status int, body []byte) error {
	var err error
	text := strings.TrimSpace(string(body))
	if text != "" {
		err = errors.New(text)
	}
	if status == 0 {
		return err
	}
	return New(err, status)
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	if e.status == 0 {
		return ""
	}
	if text := http.StatusText(e.status); text != "" {
		return fmt.Sprintf("%d %s", e.status, text)
	}
	return fmt.Sprintf("%d", e.status)
}

// Status returns the status code of the error.
func (e *Error) Status() int {
	return e.status
}

func (e *Error) Unwrap() error {
	return e.err
}

// StatusOf returns the status code that classifies err. Errors that are not
// annotated map to 500, except context expiry which maps to 504. A nil error
// is 200.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var apierr *Error
	if errors.As(err, &apierr) && apierr.status != 0 {
		return apierr.status
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
