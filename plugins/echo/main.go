// Package main builds into an echo.cocaine-plugin shared object. It registers
// an "echo" sandbox that replays incoming chunks back to the caller, which is
// useful for exercising a freshly deployed engine end to end.
//
// Build with:
//
//	go build -buildmode=plugin -o echo.cocaine-plugin ./plugins/echo
package main

import (
	"fmt"
	"log/slog"
	"time"

	"cocaine/internal/repository"
	"cocaine/internal/sandbox"
)

// Validation reports the repository version the plugin was built against.
func Validation() repository.Preconditions {
	return repository.Preconditions{Version: repository.Version}
}

// Initialize registers the echo sandbox factory.
func Initialize(r *repository.Repository) error {
	return repository.Insert[sandbox.Factory](r, "echo", newEcho)
}

type echoSandbox struct {
	logger *slog.Logger
}

func newEcho(cfg sandbox.Config, logger *slog.Logger) (sandbox.Sandbox, error) {
	return &echoSandbox{
		logger: logger.With("sandbox", "echo", "app", cfg.AppName),
	}, nil
}

func (e *echoSandbox) Invoke(event string, io sandbox.Stream) error {
	switch event {
	case "echo":
		body, ok := io.Read(time.Second)
		if !ok {
			return sandbox.Failed(fmt.Errorf("no input chunk within a second"))
		}
		return io.Write(body)

	case "cat":
		for {
			body, ok := io.Read(200 * time.Millisecond)
			if !ok {
				return nil
			}
			if err := io.Write(body); err != nil {
				return err
			}
		}

	case "noop":
		return nil

	default:
		return sandbox.Failed(fmt.Errorf("%w: %s", sandbox.ErrUnknownEvent, event))
	}
}

func (e *echoSandbox) Close() error {
	return nil
}

var _ sandbox.Sandbox = (*echoSandbox)(nil)
