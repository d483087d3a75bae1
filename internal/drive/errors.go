// Package drive is the remote side of a folder tree: a Drive v3 client whose
// every call runs under the retry protocol, and whose listings prefetch the
// next page while the caller consumes the current one.
package drive

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// Sentinel errors. Use errors.Is(err, drive.ErrNotFound) to check.
var (
	ErrNotFound             = errors.New("drive: not found")
	ErrExportFormatRequired = errors.New("drive: an export format is required for this document")
	ErrImmutableFolder      = errors.New("drive: folders can't be modified")
	ErrNotAFolder           = errors.New("drive: not a folder")

	ErrBadRequest   = errors.New("drive: bad request")
	ErrUnauthorized = errors.New("drive: unauthorized")
	ErrForbidden    = errors.New("drive: forbidden")
	ErrThrottled    = errors.New("drive: throttled")
	ErrServerError  = errors.New("drive: server error")
)

// APIError is a failure status returned by the remote service.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("drive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without one.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// apiFailure splits an SDK error into the status the retry protocol looks at
// and the error handed back to callers. Errors without a response (network,
// token source, canceled context) have status 0.
func apiFailure(err error) (int, error) {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return 0, err
	}

	msg := gerr.Message
	if msg == "" {
		msg = http.StatusText(gerr.Code)
	}

	return gerr.Code, &APIError{
		StatusCode: gerr.Code,
		Message:    msg,
		Err:        classifyStatus(gerr.Code),
	}
}
