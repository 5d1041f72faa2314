package slave

import "errors"

var (
	// ErrDisowned means the engine stopped answering heartbeats.
	ErrDisowned = errors.New("slave has lost the controlling engine")
)
