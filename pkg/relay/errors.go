package relay

import "errors"

var (
	// ErrAlreadyRelayed is returned when the session was relayed by this
	// device before. This is a policy outcome, not a failure.
	ErrAlreadyRelayed = errors.New("relay: session already relayed")

	// ErrClosed is returned when an operation is attempted on a closed component.
	ErrClosed = errors.New("relay: closed")

	// ErrNilStore is returned when a Registry is created without a store.
	ErrNilStore = errors.New("relay: nil store")

	// ErrNilRegistry is returned when a Coordinator is created without a registry.
	ErrNilRegistry = errors.New("relay: nil registry")
)
