package isolate

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

var _ Isolate = (*Process)(nil)

// Process spawns workers as plain child processes. The worker argv is the
// executable path followed by alternating key/value pairs of the argument
// map; the environment map is rendered as K=V strings.
type Process struct {
	logger *slog.Logger
}

// NewProcess is the process isolate factory.
func NewProcess(cfg Config, logger *slog.Logger) (Isolate, error) {
	return &Process{
		logger: logger.With("component", "process-isolate", "app", cfg.AppName),
	}, nil
}

func (p *Process) Spawn(path string, args map[string]string, env map[string]string) (Handle, error) {
	argv := make([]string, 0, 1+2*len(args))
	argv = append(argv, path)
	for k, v := range args {
		argv = append(argv, k, v)
	}

	envp := make([]string, 0, len(env))
	for k, v := range env {
		envp = append(envp, fmt.Sprintf("%s=%s", k, v))
	}

	proc, err := os.StartProcess(path, argv, &os.ProcAttr{
		Env:   envp,
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: unable to execute %s: %v", ErrSpawnFailed, path, err)
	}

	p.logger.Info("spawned worker", "path", path, "pid", proc.Pid)

	return &processHandle{pid: proc.Pid, logger: p.logger}, nil
}

func (p *Process) Close() error {
	return nil
}

type processHandle struct {
	pid    int
	logger *slog.Logger
}

// Terminate reaps the child without blocking; if it has not exited yet, it
// is sent SIGTERM. Collecting the eventual zombie is the supervisor's job.
func (h *processHandle) Terminate() {
	var status unix.WaitStatus

	pid, err := unix.Wait4(h.pid, &status, unix.WNOHANG, nil)
	if err != nil {
		// Already reaped elsewhere, nothing left to signal.
		return
	}

	if pid == 0 {
		if err := unix.Kill(h.pid, unix.SIGTERM); err != nil {
			h.logger.Warn("failed to signal worker", "pid", h.pid, "error", err)
		}
	}
}
