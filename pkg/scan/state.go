package scan

// State is the orchestrator state.
type State int

const (
	// StateIdle means no scan is running.
	StateIdle State = iota

	// StateScanning means a scan is waiting for a beacon.
	StateScanning

	// StateFound means the last scan accepted a beacon.
	StateFound

	// StateTimedOut means the last scan ended without an accepted beacon.
	StateTimedOut

	// StateFailed means the last scan failed.
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateScanning:
		return "Scanning"
	case StateFound:
		return "Found"
	case StateTimedOut:
		return "TimedOut"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsTerminal returns true for the states that answer a scan.
func (s State) IsTerminal() bool {
	return s == StateFound || s == StateTimedOut || s == StateFailed
}
