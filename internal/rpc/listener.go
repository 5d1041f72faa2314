package rpc

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
)

// Listener is the engine-side half of the bus: it binds the app endpoint and
// hands out one Channel per connecting slave, keyed by the announced
// identity.
type Listener struct {
	ln     net.Listener
	logger *slog.Logger
}

// Listen binds the unix socket at endpoint, replacing a stale socket file if
// one was left behind.
func Listen(endpoint string, logger *slog.Logger) (*Listener, error) {
	if err := os.Remove(endpoint); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to clear stale endpoint %s: %w", endpoint, err)
	}

	ln, err := net.Listen("unix", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", endpoint, err)
	}

	return &Listener{ln: ln, logger: logger}, nil
}

// Accept waits for a slave connection and returns its channel together with
// the identity it announced.
func (l *Listener) Accept(hwm int) (*Channel, string, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, "", err
	}

	identity, err := readFrame(conn)
	if err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("failed to read peer identity: %w", err)
	}

	return newChannel(conn, hwm, l.logger), string(identity), nil
}

func (l *Listener) Close() error {
	return l.ln.Close()
}
