package slave

import (
	"time"

	"cocaine/internal/monitor"
	"cocaine/internal/rpc"
	"cocaine/internal/sandbox"
)

var _ sandbox.Stream = (*Slave)(nil)

// Read receives the next input chunk for the current invocation, waiting at
// most timeout. Heartbeat responses arriving mid-invocation are handled in
// place; any other frame belongs to the main loop and is deferred until the
// invocation returns.
func (s *Slave) Read(timeout time.Duration) ([]byte, bool) {
	deadline := time.Now().Add(timeout)

	for {
		m, ok := s.bus.Recv(timeout)
		if !ok {
			return nil, false
		}

		switch m.Command() {
		case rpc.Chunk:
			var body []byte
			if err := m.Next(&body); err != nil {
				s.logger.Warn("dropping malformed chunk", "error", err)
				m.Drop()
				return nil, false
			}
			monitor.ChunksReadTotal.Inc()
			return body, true

		case rpc.Pong:
			s.disarmDisown()
			monitor.PongsTotal.Inc()
			timeout = time.Until(deadline)
			if timeout <= 0 {
				return nil, false
			}

		default:
			s.deferred = append(s.deferred, m)
			return nil, false
		}
	}
}

// Write emits one output chunk for the current invocation.
func (s *Slave) Write(data []byte) error {
	m, err := rpc.NewMessage(rpc.Chunk, data)
	if err != nil {
		return err
	}
	if err := s.bus.Send(m); err != nil {
		s.stop(err)
		return err
	}
	monitor.ChunksWrittenTotal.Inc()
	return nil
}
