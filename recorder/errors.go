package recorder

import (
	"errors"
	"fmt"
)

var (
	// ErrDownloadCancelled means the user stopped the recording and the child was terminated.
	ErrDownloadCancelled = errors.New("download cancelled by user")
	// ErrDownloadFailed means the downloader could not start or exited unsuccessfully.
	ErrDownloadFailed = errors.New("download failed")
	// ErrEmptyVideoID rejects a launch without a video id.
	ErrEmptyVideoID = errors.New("video id empty")
)

// CancelledError carries how the terminated child ended.
type CancelledError struct {
	Status ExitStatus
	Cause  error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s (%s)", ErrDownloadCancelled, e.Status)
}
func (e *CancelledError) Unwrap() []error { return []error{ErrDownloadCancelled, e.Cause} }

// FailedError carries the child's exit status, or the launch error when it never started.
type FailedError struct {
	Status ExitStatus
	Err    error
}

func (e *FailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", ErrDownloadFailed, e.Err)
	}
	return fmt.Sprintf("%s: downloader %s", ErrDownloadFailed, e.Status)
}
func (e *FailedError) Unwrap() []error { return []error{ErrDownloadFailed, e.Err} }
