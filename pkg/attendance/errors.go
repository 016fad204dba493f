package attendance

import (
	"context"
	"errors"
	"fmt"

	"github.com/backkem/attendbeacon/pkg/advertise"
	"github.com/backkem/attendbeacon/pkg/beacon"
	"github.com/backkem/attendbeacon/pkg/radio"
	"github.com/backkem/attendbeacon/pkg/relay"
	"github.com/backkem/attendbeacon/pkg/scan"
)

// Configuration and lifecycle errors.
var (
	// ErrAdapterRequired is returned when DeviceConfig.Adapter is nil.
	ErrAdapterRequired = errors.New("attendance: adapter is required")

	// ErrStoreRequired is returned when DeviceConfig.Store is nil.
	ErrStoreRequired = errors.New("attendance: store is required")

	// ErrClosed is returned when the device has been closed.
	ErrClosed = errors.New("attendance: device closed")
)

// Stable error codes reported across the request boundary.
const (
	CodeInvalidLength     = "INVALID_LENGTH"
	CodeUnknownMarker     = "UNKNOWN_MARKER"
	CodeInvalidSession    = "INVALID_SESSION"
	CodeNoAdapter         = "NO_ADAPTER"
	CodeMissingPermission = "MISSING_PERMISSION"
	CodeNoBroadcaster     = "NO_BROADCASTER"
	CodeNoScanner         = "NO_SCANNER"
	CodeRadioOff          = "RADIO_OFF"
	CodePositioningOff    = "POSITIONING_OFF"
	CodeBroadcastFailed   = "BROADCAST_FAILED"
	CodeScanFailed        = "SCAN_FAILED"
	CodeAlreadyRelayed    = "ALREADY_RELAYED"
	CodeAlreadyAccepted   = "ALREADY_ACCEPTED"
	CodeScanInProgress    = "SCAN_IN_PROGRESS"
	CodeCanceled          = "CANCELED"
	CodeClosed            = "CLOSED"
	CodeInternal          = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{beacon.ErrInvalidLength, CodeInvalidLength},
	{beacon.ErrUnknownMarker, CodeUnknownMarker},
	{beacon.ErrInvalidSessionID, CodeInvalidSession},
	{advertise.ErrNilSession, CodeInvalidSession},
	{radio.ErrNoAdapter, CodeNoAdapter},
	{radio.ErrMissingPermission, CodeMissingPermission},
	{radio.ErrNoBroadcaster, CodeNoBroadcaster},
	{radio.ErrNoScanner, CodeNoScanner},
	{radio.ErrRadioOff, CodeRadioOff},
	{radio.ErrPositioningOff, CodePositioningOff},
	{radio.ErrBroadcastFailed, CodeBroadcastFailed},
	{radio.ErrScanFailed, CodeScanFailed},
	{relay.ErrAlreadyRelayed, CodeAlreadyRelayed},
	{scan.ErrScanInProgress, CodeScanInProgress},
	{context.Canceled, CodeCanceled},
	{context.DeadlineExceeded, CodeCanceled},
	{ErrClosed, CodeClosed},
	{scan.ErrClosed, CodeClosed},
	{advertise.ErrClosed, CodeClosed},
	{relay.ErrClosed, CodeClosed},
}

// ErrorCode returns the stable code for err, or "" for nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var re *RequestError
	if errors.As(err, &re) {
		return re.Code
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// RequestError is a failed request as seen by the caller.
type RequestError struct {
	Code    string
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// newRequestError wraps err for the request boundary. It returns nil for nil.
func newRequestError(err error) error {
	if err == nil {
		return nil
	}
	var re *RequestError
	if errors.As(err, &re) {
		return re
	}
	return &RequestError{Code: ErrorCode(err), Message: err.Error(), Err: err}
}
