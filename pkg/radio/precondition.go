package radio

// CheckBroadcast validates that a can broadcast right now and returns its
// Broadcaster. Checks run in order: adapter present, authorization, radio
// powered, broadcaster present.
func CheckBroadcast(a Adapter) (Broadcaster, error) {
	if a == nil {
		return nil, ErrNoAdapter
	}
	if !a.Authorized(PermissionAdvertise) {
		return nil, ErrMissingPermission
	}
	if !a.Enabled() {
		return nil, ErrRadioOff
	}
	b := a.Broadcaster()
	if b == nil {
		return nil, ErrNoBroadcaster
	}
	return b, nil
}

// CheckScan validates that a can scan right now and returns its Scanner.
// Checks run in order: adapter present, radio powered, positioning on,
// scanner present, authorization.
func CheckScan(a Adapter) (Scanner, error) {
	if a == nil {
		return nil, ErrNoAdapter
	}
	if !a.Enabled() {
		return nil, ErrRadioOff
	}
	if !a.PositioningEnabled() {
		return nil, ErrPositioningOff
	}
	s := a.Scanner()
	if s == nil {
		return nil, ErrNoScanner
	}
	if !a.Authorized(PermissionScan) {
		return nil, ErrMissingPermission
	}
	return s, nil
}
