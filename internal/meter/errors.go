package meter

import "errors"

var (
	// ErrSend is returned when a reading could not be handed to the sink.
	ErrSend = errors.New("send reading")
	// ErrNoCities is returned when a fleet has nothing to simulate.
	ErrNoCities = errors.New("no cities to simulate")
)
