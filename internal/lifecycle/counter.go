// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lifecycle

import (
	"errors"
	"sync"
)

// ErrCounterNegative is returned by Done when nothing is pending.
var ErrCounterNegative = errors.New("pending counter decremented below zero")

// PendingCounter counts fragments that have been discovered but not yet
// executed. Its completion channel closes exactly once, the first time the
// count returns to zero after an increment.
type PendingCounter struct {
	mu      sync.Mutex
	n       int
	touched bool
	closed  bool
	done    chan struct{}
}

// NewPendingCounter returns a counter at zero.
func NewPendingCounter() *PendingCounter {
	return &PendingCounter{done: make(chan struct{})}
}

// Add increments the count.
func (c *PendingCounter) Add() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	c.touched = true
}

// Done decrements the count.
func (c *PendingCounter) Done() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == 0 {
		return ErrCounterNegative
	}
	c.n--
	if c.n == 0 && !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

// Pending returns the current count.
func (c *PendingCounter) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Drained is closed once the count has gone back to zero after an increment.
func (c *PendingCounter) Drained() <-chan struct{} {
	return c.done
}

// Settle closes the completion channel if nothing was ever added, so a page
// without fragments does not wait forever.
func (c *PendingCounter) Settle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.touched && !c.closed {
		c.closed = true
		close(c.done)
	}
}
