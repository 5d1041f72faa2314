package rpc

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Message is one logical multipart bus frame: a leading command tag followed
// by zero or more msgpack-encoded payload parts. Messages are received
// atomically; a consumer either walks the remaining parts with Next or
// discards them with Drop.
type Message struct {
	command Command
	parts   [][]byte
	index   int
}

// NewMessage packs a command and its payload values into a wire message.
func NewMessage(command Command, payload ...any) (*Message, error) {
	parts := make([][]byte, 0, len(payload))
	for _, v := range payload {
		data, err := msgpack.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to pack %s payload: %w", command, err)
		}
		parts = append(parts, data)
	}
	return &Message{command: command, parts: parts}, nil
}

func (m *Message) Command() Command {
	return m.command
}

// Next decodes the next payload part into v.
func (m *Message) Next(v any) error {
	if m.index >= len(m.parts) {
		return ErrMessageDrained
	}
	data := m.parts[m.index]
	m.index++
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unpack %s payload part %d: %w", m.command, m.index-1, err)
	}
	return nil
}

// More reports whether payload parts remain unconsumed.
func (m *Message) More() bool {
	return m.index < len(m.parts)
}

// Drop discards the remainder of the message.
func (m *Message) Drop() {
	m.index = len(m.parts)
}
