package rpc

import "errors"

var (
	// ErrChannelFull is returned by Send when the outgoing queue has reached
	// its high-water mark.
	ErrChannelFull = errors.New("channel send queue is full")

	ErrChannelClosed = errors.New("channel is closed")

	ErrMessageDrained = errors.New("no more parts in this message")

	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)
