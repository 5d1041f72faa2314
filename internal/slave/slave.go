// Package slave implements the worker side of the engine protocol: a
// single-goroutine event loop that owns the bus, one sandbox instance, a
// heartbeat with a disown watchdog, and an idle-eviction timer.
package slave

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cocaine/internal/app"
	"cocaine/internal/config"
	"cocaine/internal/monitor"
	"cocaine/internal/repository"
	"cocaine/internal/rpc"
	"cocaine/internal/sandbox"
)

// Config identifies one slave instance at startup.
type Config struct {
	UUID    string
	App     string
	Profile string
}

// Slave serves invocations for a single app. Lifecycle: New connects the bus
// and builds the sandbox; Run drives the loop until the engine terminates
// the slave, the engine disappears, or the idle timer evicts it.
type Slave struct {
	cfg     Config
	runtime *config.Config
	logger  *slog.Logger

	bus      *rpc.Channel
	manifest *app.Manifest
	profile  *app.Profile
	box      sandbox.Sandbox

	disown      *time.Timer
	disownArmed bool
	idle        *time.Timer

	// Frames picked up by the sandbox read path that belong to the main
	// loop; replayed once the invocation returns.
	deferred []*rpc.Message

	stopping   bool
	stopErr    error
	terminated bool
}

// New connects to the engine endpoint and prepares the slave for Run. A
// manifest, profile or sandbox failure is reported to the engine as a server
// error followed by a terminate frame, and propagates to the caller.
func New(cfg Config, runtime *config.Config, repo *repository.Repository, logger *slog.Logger) (*Slave, error) {
	logger = logger.With("component", "slave", "app", cfg.App, "uuid", cfg.UUID)

	endpoint := rpc.Endpoint(runtime.Paths.IPC, cfg.App)
	bus, err := rpc.Dial(endpoint, cfg.UUID, runtime.Bus.HWM, logger)
	if err != nil {
		return nil, err
	}

	s := &Slave{
		cfg:     cfg,
		runtime: runtime,
		logger:  logger,
		bus:     bus,
	}

	if err := s.configure(repo); err != nil {
		s.logger.Error("slave configuration failed", "error", err)
		s.sendError(rpc.ServerError, err.Error())
		s.terminate()
		s.bus.Close()
		return nil, err
	}

	return s, nil
}

func (s *Slave) configure(repo *repository.Repository) error {
	manifest, err := app.LoadManifest(s.runtime.Paths.Runtime, s.cfg.App)
	if err != nil {
		return err
	}
	profile, err := app.LoadProfile(s.runtime.Paths.Runtime, s.cfg.Profile)
	if err != nil {
		return err
	}

	s.manifest = manifest
	s.profile = profile

	s.idle = time.NewTimer(profile.IdleTimeout)
	s.disown = time.NewTimer(s.runtime.Bus.DisownTimeout)
	stopTimer(s.disown)

	factory, err := repository.Get[sandbox.Factory](repo, manifest.Sandbox.Type)
	if err != nil {
		return err
	}

	box, err := factory(sandbox.Config{
		AppName: manifest.Name,
		Args:    manifest.Sandbox.Args,
		WorkDir: app.SpoolDir(s.runtime.Paths.Spool, manifest.Name),
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create %s sandbox: %w", manifest.Sandbox.Type, err)
	}

	s.box = box
	return nil
}

// Run drives the event loop until the slave unloops. It returns nil on a
// clean termination (engine request or idle eviction) and the fatal
// condition otherwise.
func (s *Slave) Run() error {
	defer s.shutdown()

	heartbeat := time.NewTicker(s.runtime.Bus.HeartbeatInterval)
	defer heartbeat.Stop()

	// The first heartbeat fires immediately.
	s.sendHeartbeat()

	for !s.stopping {
		select {
		case m, ok := <-s.bus.In():
			if !ok {
				err := s.bus.Err()
				if errors.Is(err, rpc.ErrChannelClosed) {
					return nil
				}
				return err
			}
			s.process(m)
			s.drain()

		case <-heartbeat.C:
			if s.disownArmed {
				// The previous ping is still unanswered.
				s.logger.Error("slave has lost the controlling engine")
				s.stop(ErrDisowned)
				continue
			}
			s.sendHeartbeat()

		case <-s.disown.C:
			s.disownArmed = false
			s.logger.Error("slave has lost the controlling engine")
			s.stop(ErrDisowned)

		case <-s.idle.C:
			s.logger.Info("slave is idle, terminating", "idle_timeout", s.profile.IdleTimeout)
			s.terminate()
		}
	}

	return s.stopErr
}

// drain replays frames deferred during an invocation, then consumes every
// already-buffered bus message so the loop never parks while work is
// pending.
func (s *Slave) drain() {
	for !s.stopping {
		if len(s.deferred) > 0 {
			m := s.deferred[0]
			s.deferred = s.deferred[1:]
			s.process(m)
			continue
		}

		m, ok := s.bus.Recv(0)
		if !ok {
			return
		}
		s.process(m)
	}
}

func (s *Slave) process(m *rpc.Message) {
	s.logger.Debug("received message", "command", m.Command().String())

	switch m.Command() {
	case rpc.Pong:
		s.disarmDisown()
		monitor.PongsTotal.Inc()

	case rpc.Invoke:
		var event string
		if err := m.Next(&event); err != nil {
			s.logger.Warn("dropping malformed invoke", "error", err)
			m.Drop()
			return
		}
		s.invoke(event)

	case rpc.Chunk:
		// Outstanding chunks from an abandoned job.
		m.Drop()
		monitor.OrphanChunksTotal.Inc()
		s.logger.Debug("dropped orphan chunk")

	case rpc.Terminate:
		s.terminate()

	default:
		s.logger.Warn("dropping unknown message", "command", m.Command().String())
		m.Drop()
	}
}

func (s *Slave) invoke(event string) {
	monitor.InvocationsTotal.Inc()
	start := time.Now()

	err := s.safeInvoke(event)
	monitor.InvocationLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		var unrecoverable *sandbox.UnrecoverableError
		if errors.As(err, &unrecoverable) {
			monitor.InvocationErrorsTotal.WithLabelValues("server").Inc()
			s.sendError(rpc.ServerError, err.Error())
		} else {
			monitor.InvocationErrorsTotal.WithLabelValues("app").Inc()
			s.sendError(rpc.AppError, err.Error())
		}
		s.logger.Warn("invocation failed", "event", event, "error", err)
	}

	s.send(rpc.Choke)
	s.resetIdle()
}

func (s *Slave) safeInvoke(event string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = sandbox.Unrecoverable(fmt.Errorf("unexpected panic while processing an event: %v", r))
		}
	}()
	return s.box.Invoke(event, s)
}

func (s *Slave) sendHeartbeat() {
	s.send(rpc.Ping)
	monitor.HeartbeatsTotal.Inc()
	s.armDisown()
}

func (s *Slave) sendError(code uint32, message string) {
	s.send(rpc.ErrorCmd, code, message)
}

func (s *Slave) send(command rpc.Command, payload ...any) {
	m, err := rpc.NewMessage(command, payload...)
	if err != nil {
		s.stop(err)
		return
	}
	if err := s.bus.Send(m); err != nil {
		s.logger.Error("failed to send frame", "command", command.String(), "error", err)
		s.stop(fmt.Errorf("failed to send %s: %w", command, err))
	}
}

// terminate announces termination to the engine and unloops. Repeated calls
// collapse into one.
func (s *Slave) terminate() {
	if !s.terminated {
		s.terminated = true
		s.send(rpc.Terminate)
	}
	s.stop(nil)
}

func (s *Slave) stop(err error) {
	if s.stopping {
		return
	}
	s.stopping = true
	s.stopErr = err
}

func (s *Slave) shutdown() {
	if s.box != nil {
		if err := s.box.Close(); err != nil {
			s.logger.Warn("failed to close sandbox", "error", err)
		}
	}
	s.bus.Close()
}

func (s *Slave) armDisown() {
	stopTimer(s.disown)
	s.disown.Reset(s.runtime.Bus.DisownTimeout)
	s.disownArmed = true
}

func (s *Slave) disarmDisown() {
	stopTimer(s.disown)
	s.disownArmed = false
}

func (s *Slave) resetIdle() {
	stopTimer(s.idle)
	s.idle.Reset(s.profile.IdleTimeout)
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
