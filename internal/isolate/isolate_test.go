package isolate

import (
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessSpawnAndTerminate(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("no sleep binary available")
	}

	iso, err := NewProcess(Config{AppName: "testapp"}, testLogger())
	if err != nil {
		t.Fatalf("NewProcess: %v", err)
	}
	defer iso.Close()

	h, err := iso.Spawn(sleep, map[string]string{"30": "30"}, nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	ph, ok := h.(*processHandle)
	if !ok {
		t.Fatalf("handle has type %T", h)
	}
	if ph.pid <= 0 {
		t.Fatalf("pid = %d", ph.pid)
	}

	// Give the child a moment to exec before signalling.
	time.Sleep(50 * time.Millisecond)
	h.Terminate()

	var status unix.WaitStatus
	pid, err := unix.Wait4(ph.pid, &status, 0, nil)
	if err != nil {
		t.Fatalf("Wait4: %v", err)
	}
	if pid != ph.pid {
		t.Fatalf("reaped pid %d, want %d", pid, ph.pid)
	}
	if !status.Signaled() || status.Signal() != unix.SIGTERM {
		t.Fatalf("child did not die from SIGTERM: %v", status)
	}
}

func TestProcessTerminateExitedChild(t *testing.T) {
	truePath, err := exec.LookPath("true")
	if err != nil {
		t.Skip("no true binary available")
	}

	iso, err := NewProcess(Config{AppName: "testapp"}, testLogger())
	if err != nil {
		t.Fatalf("NewProcess: %v", err)
	}
	defer iso.Close()

	h, err := iso.Spawn(truePath, nil, nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	// Let the child exit, then make sure Terminate reaps it quietly instead
	// of signalling a dead pid.
	time.Sleep(100 * time.Millisecond)
	h.Terminate()
	h.Terminate()
}

func TestProcessSpawnMissingExecutable(t *testing.T) {
	iso, err := NewProcess(Config{AppName: "testapp"}, testLogger())
	if err != nil {
		t.Fatalf("NewProcess: %v", err)
	}
	defer iso.Close()

	missing := filepath.Join(t.TempDir(), "absent")
	if _, err := iso.Spawn(missing, nil, nil); !errors.Is(err, ErrSpawnFailed) {
		t.Fatalf("Spawn = %v, want ErrSpawnFailed", err)
	}
}

func TestNewDockerRequiresImage(t *testing.T) {
	if _, err := NewDocker(Config{AppName: "testapp"}, testLogger()); err == nil {
		t.Fatal("docker isolate accepted an empty image")
	}
	if _, err := NewDocker(Config{
		AppName: "testapp",
		Args:    map[string]any{"image": 42},
	}, testLogger()); err == nil {
		t.Fatal("docker isolate accepted a non-string image")
	}
}
