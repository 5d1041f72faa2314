package sandbox

import (
	"log/slog"
	"time"
)

// Stream is the I/O capability a sandbox borrows for the duration of one
// invocation. Read pulls the next input chunk, returning false once the
// timeout elapses without data; Write emits one output chunk. The capability
// must not be retained past the invocation.
type Stream interface {
	Read(timeout time.Duration) ([]byte, bool)
	Write(data []byte) error
}

// Sandbox runs user code for one event at a time. Invoke may read zero or
// more input chunks and write zero or more output chunks before returning.
type Sandbox interface {
	Invoke(event string, io Stream) error
	Close() error
}

// Config carries the per-app construction arguments a sandbox factory
// receives: the manifest name, the manifest's sandbox args, and the spool
// directory the user code runs in.
type Config struct {
	AppName string
	Args    map[string]any
	WorkDir string
}

// Factory is the sandbox category signature registered with the repository.
type Factory func(cfg Config, logger *slog.Logger) (Sandbox, error)
