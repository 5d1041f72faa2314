package isolate

import "log/slog"

// Handle owns one spawned worker. Terminate reaps the worker without
// blocking and delivers SIGTERM if it is still alive; callers drop the
// handle after terminating. Grace beyond SIGTERM is best effort.
type Handle interface {
	Terminate()
}

// Isolate is a sandbox-hosting strategy: it spawns worker processes for an
// app and returns handles owning them.
type Isolate interface {
	Spawn(path string, args map[string]string, env map[string]string) (Handle, error)
	Close() error
}

// Config carries the per-app construction arguments an isolate factory
// receives from the profile.
type Config struct {
	AppName string
	Args    map[string]any
}

// Factory is the isolate category signature registered with the repository.
type Factory func(cfg Config, logger *slog.Logger) (Isolate, error)
