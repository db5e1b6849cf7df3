package download

import (
	"errors"
	"fmt"
)

var (
	// ErrRangeUnsupported is returned by the prober when the server cannot serve partial content.
	ErrRangeUnsupported = errors.New("server does not support range requests")
	// ErrUnknownLength is returned by the prober when the server does not report the content length.
	ErrUnknownLength = errors.New("server did not report a content length")
	// ErrIncomplete is returned when a session ended without error but bytes of the file were never written.
	ErrIncomplete = errors.New("download incomplete")
	// ErrAlreadyStarted is returned when Start is called twice on one scheduler.
	ErrAlreadyStarted = errors.New("scheduler already started")
)

type HTTPStatusError struct {
	StatusCode int
}

func ErrUnexpectedHTTPStatus(statusCode int) error {
	return HTTPStatusError{StatusCode: statusCode}
}

var _ error = HTTPStatusError{}

func (c HTTPStatusError) Error() string {
	return fmt.Sprintf("Status code %d", c.StatusCode)
}

// ChunkError reports the byte range whose fetch failed and aborted the session.
type ChunkError struct {
	Start int64
	End   int64
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("error downloading bytes %d-%d: %v", e.Start, e.End, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}
