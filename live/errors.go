package live

import (
	"errors"
	"fmt"
)

var (
	// ErrPollExhausted means every attempt came back without a live video.
	ErrPollExhausted = errors.New("no livestream found whilst polling")
	// ErrPollCancelled means the caller cancelled before a live video was found.
	ErrPollCancelled = errors.New("polling cancelled")
	// ErrAmbiguous means the channel has more than one simultaneous live video.
	ErrAmbiguous = errors.New("multiple livestreams airing")
	// ErrTransport means the search API could not be queried successfully.
	ErrTransport = errors.New("search api transport error")
	// ErrEmptyChannel rejects an empty channel target before any query.
	ErrEmptyChannel = errors.New("channel id empty")
)

// ExhaustedError reports how many attempts were consumed.
type ExhaustedError struct{ Attempts int }

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts", ErrPollExhausted, e.Attempts)
}
func (e *ExhaustedError) Unwrap() error { return ErrPollExhausted }

// CancelledError reports how many attempts ran before cancellation.
type CancelledError struct {
	Attempts int
	Cause    error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s after %d attempts", ErrPollCancelled, e.Attempts)
}
func (e *CancelledError) Unwrap() []error { return []error{ErrPollCancelled, e.Cause} }

// AmbiguousError carries the number of live videos reported.
type AmbiguousError struct{ Count int }

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%d livestreams airing on channel; refusing to pick one", e.Count)
}
func (e *AmbiguousError) Unwrap() error { return ErrAmbiguous }

// TransportError carries the HTTP status (0 when none was received) and raw body.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", ErrTransport, e.Body)
	}
	return fmt.Sprintf("bad response status '%d':\n%s", e.Status, e.Body)
}
func (e *TransportError) Unwrap() error { return ErrTransport }
