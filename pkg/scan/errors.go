package scan

import "errors"

var (
	// ErrScanInProgress is returned when a scan is requested while another
	// one is still running.
	ErrScanInProgress = errors.New("scan: scan already in progress")

	// ErrClosed is returned when the orchestrator is closed, including to a
	// scan that was running when Close was called.
	ErrClosed = errors.New("scan: closed")
)
