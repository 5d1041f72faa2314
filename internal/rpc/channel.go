package rpc

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// DefaultHWM bounds the number of outgoing messages queued locally
	// before Send starts failing.
	DefaultHWM = 10

	maxFrameSize = 64 << 20

	writeTimeout = 5 * time.Second
)

// Channel is a framed duplex message bus over a local unix socket. One
// logical message is a command tag plus msgpack-encoded payload parts,
// delivered atomically. Sends are non-blocking up to the high-water mark;
// receives are timed. The peer routes on the identity exchanged at connect
// time.
type Channel struct {
	conn   net.Conn
	logger *slog.Logger

	out  chan *Message
	in   chan *Message
	done chan struct{}

	closeOnce sync.Once
	failOnce  sync.Once
	errMu     sync.Mutex
	err       error

	wgWriter sync.WaitGroup
	wgReader sync.WaitGroup
}

// Endpoint computes the socket path the engine binds for an app.
func Endpoint(ipcPath, appName string) string {
	return ipcPath + "/" + appName
}

// Dial connects to the engine endpoint and announces the slave identity.
func Dial(endpoint, identity string, hwm int, logger *slog.Logger) (*Channel, error) {
	conn, err := net.Dial("unix", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	if err := writeFrame(conn, []byte(identity)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to announce identity: %w", err)
	}

	return newChannel(conn, hwm, logger), nil
}

func newChannel(conn net.Conn, hwm int, logger *slog.Logger) *Channel {
	if hwm <= 0 {
		hwm = DefaultHWM
	}

	c := &Channel{
		conn:   conn,
		logger: logger.With("component", "rpc-channel"),
		out:    make(chan *Message, hwm),
		in:     make(chan *Message, 1),
		done:   make(chan struct{}),
	}

	c.wgReader.Add(1)
	go c.readLoop()
	c.wgWriter.Add(1)
	go c.writeLoop()

	return c
}

// Send enqueues one message without blocking. ErrChannelFull is returned
// once the local queue reaches the high-water mark.
func (c *Channel) Send(m *Message) error {
	if err := c.Err(); err != nil {
		return err
	}

	select {
	case c.out <- m:
		return nil
	default:
		return ErrChannelFull
	}
}

// In exposes the inbound message stream for event-loop selection. It is
// closed when the channel shuts down.
func (c *Channel) In() <-chan *Message {
	return c.in
}

// Recv waits up to timeout for one inbound message. A non-positive timeout
// polls without waiting. The second result is false on timeout or channel
// failure.
func (c *Channel) Recv(timeout time.Duration) (*Message, bool) {
	if timeout <= 0 {
		select {
		case m, ok := <-c.in:
			return m, ok && m != nil
		default:
			return nil, false
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case m, ok := <-c.in:
		return m, ok && m != nil
	case <-t.C:
		return nil, false
	}
}

// Pending reports whether a decoded message is already buffered.
func (c *Channel) Pending() bool {
	return len(c.in) > 0
}

// Done is closed when the channel fails or closes.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns the first transport error, or ErrChannelClosed after a clean
// Close.
func (c *Channel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close flushes queued outgoing messages and shuts the channel down.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		if c.err == nil {
			c.err = ErrChannelClosed
		}
		c.errMu.Unlock()

		close(c.out)
		c.wgWriter.Wait()

		c.fail(ErrChannelClosed)
		c.wgReader.Wait()
	})
	return nil
}

func (c *Channel) fail(err error) {
	c.failOnce.Do(func() {
		c.errMu.Lock()
		if c.err == nil {
			c.err = err
		}
		c.errMu.Unlock()
		close(c.done)
		c.conn.Close()
	})
}

func (c *Channel) readLoop() {
	defer c.wgReader.Done()
	defer close(c.in)

	for {
		m, err := readMessage(c.conn)
		if err != nil {
			select {
			case <-c.done:
			default:
				if err != io.EOF {
					c.logger.Warn("channel read failed", "error", err)
				}
				c.fail(fmt.Errorf("channel read failed: %w", err))
			}
			return
		}

		select {
		case c.in <- m:
		case <-c.done:
			return
		}
	}
}

func (c *Channel) writeLoop() {
	defer c.wgWriter.Done()

	for {
		select {
		case m, ok := <-c.out:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := writeMessage(c.conn, m); err != nil {
				select {
				case <-c.done:
				default:
					c.logger.Warn("channel write failed", "error", err)
					c.fail(fmt.Errorf("channel write failed: %w", err))
				}
				return
			}
		case <-c.done:
			return
		}
	}
}

// Wire layout: every frame is a big-endian u32 length followed by that many
// bytes. A message is a u32 part count followed by its frames; part zero is
// the msgpack-packed command tag.

func writeFrame(w io.Writer, data []byte) error {
	var head [4]byte
	binary.BigEndian.PutUint32(head[:], uint32(len(data)))
	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(head[:])
	if size > maxFrameSize {
		return nil, ErrFrameTooLarge
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

func writeMessage(w io.Writer, m *Message) error {
	var head [4]byte
	binary.BigEndian.PutUint32(head[:], uint32(len(m.parts)+1))
	if _, err := w.Write(head[:]); err != nil {
		return err
	}

	tag, err := msgpack.Marshal(uint32(m.command))
	if err != nil {
		return err
	}
	if err := writeFrame(w, tag); err != nil {
		return err
	}

	for _, part := range m.parts {
		if err := writeFrame(w, part); err != nil {
			return err
		}
	}
	return nil
}

func readMessage(r io.Reader) (*Message, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(head[:])
	if count == 0 || count > 1024 {
		return nil, fmt.Errorf("malformed message: %d parts", count)
	}

	tagFrame, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	var tag uint32
	if err := msgpack.Unmarshal(tagFrame, &tag); err != nil {
		return nil, fmt.Errorf("malformed command tag: %w", err)
	}

	parts := make([][]byte, 0, count-1)
	for i := uint32(1); i < count; i++ {
		part, err := readFrame(r)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}

	return &Message{command: Command(tag), parts: parts}, nil
}
