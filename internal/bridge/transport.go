// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import "sync"

// defaultPipeBuffer is the number of frames each direction buffers.
const defaultPipeBuffer = 64

// Conn is an ordered, bidirectional frame channel between two execution
// contexts. Frames are opaque encoded bytes; nothing else crosses.
type Conn interface {
	// Send queues a frame for the peer. Returns ErrBridgeSevered once the
	// connection is closed.
	Send(frame []byte) error
	// Recv delivers frames from the peer in send order.
	Recv() <-chan []byte
	// Done is closed when either side closes the connection.
	Done() <-chan struct{}
	// Close severs the connection for both sides. Safe to call repeatedly.
	Close() error
}

// pipeEnd is one side of an in-memory pipe.
type pipeEnd struct {
	in    chan []byte
	out   chan []byte
	done  chan struct{}
	close func()
}

// Pipe returns two connected in-memory connections.
func Pipe() (Conn, Conn) {
	ab := make(chan []byte, defaultPipeBuffer)
	ba := make(chan []byte, defaultPipeBuffer)
	done := make(chan struct{})

	var once sync.Once
	closeFn := func() { once.Do(func() { close(done) }) }

	a := &pipeEnd{in: ba, out: ab, done: done, close: closeFn}
	b := &pipeEnd{in: ab, out: ba, done: done, close: closeFn}
	return a, b
}

func (p *pipeEnd) Send(frame []byte) error {
	// Check first so a closed pipe never accepts a frame even when the
	// buffer has room.
	select {
	case <-p.done:
		return ErrBridgeSevered
	default:
	}

	select {
	case p.out <- frame:
		return nil
	case <-p.done:
		return ErrBridgeSevered
	}
}

func (p *pipeEnd) Recv() <-chan []byte { return p.in }

func (p *pipeEnd) Done() <-chan struct{} { return p.done }

func (p *pipeEnd) Close() error {
	p.close()
	return nil
}
