package radio

import (
	"errors"
	"fmt"
)

// Precondition and platform errors.
var (
	// ErrNoAdapter is returned when the device has no radio at all.
	ErrNoAdapter = errors.New("radio: no adapter")

	// ErrMissingPermission is returned when a required authorization is not held.
	ErrMissingPermission = errors.New("radio: missing permission")

	// ErrNoBroadcaster is returned when the device cannot broadcast.
	ErrNoBroadcaster = errors.New("radio: broadcaster unavailable")

	// ErrNoScanner is returned when the device cannot scan.
	ErrNoScanner = errors.New("radio: scanner unavailable")

	// ErrRadioOff is returned when the radio is powered off.
	ErrRadioOff = errors.New("radio: radio is off")

	// ErrPositioningOff is returned when the positioning service required
	// for scanning is disabled.
	ErrPositioningOff = errors.New("radio: positioning is off")

	// ErrBroadcastFailed matches every *BroadcastError.
	ErrBroadcastFailed = errors.New("radio: broadcast failed")

	// ErrScanFailed matches every *ScanError.
	ErrScanFailed = errors.New("radio: scan failed")
)

// Platform broadcast failure codes.
const (
	BroadcastErrDataTooLarge       = 1
	BroadcastErrTooManyAdvertisers = 2
	BroadcastErrAlreadyStarted     = 3
	BroadcastErrInternal           = 4
	BroadcastErrFeatureUnsupported = 5
)

// Platform scan failure codes.
const (
	ScanErrAlreadyStarted     = 1
	ScanErrRegistrationFailed = 2
	ScanErrInternal           = 3
	ScanErrFeatureUnsupported = 4
)

// BroadcastError is a platform-reported broadcast start failure.
type BroadcastError struct {
	Code int
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("radio: broadcast failed: code %d", e.Code)
}

// Is makes every BroadcastError match ErrBroadcastFailed.
func (e *BroadcastError) Is(target error) bool {
	return target == ErrBroadcastFailed
}

// ScanError is a platform-reported scan failure.
type ScanError struct {
	Code int
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("radio: scan failed: code %d", e.Code)
}

// Is makes every ScanError match ErrScanFailed.
func (e *ScanError) Is(target error) bool {
	return target == ErrScanFailed
}
