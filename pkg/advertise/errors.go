package advertise

import "errors"

var (
	// ErrClosed is returned when an operation is attempted on a closed controller.
	ErrClosed = errors.New("advertise: closed")

	// ErrNilSession is returned when starting a beacon for the nil session id.
	ErrNilSession = errors.New("advertise: nil session id")
)
