// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"context"
	"sync"
)

// waitCell is a single-assignment slot with blocking wait and notify, the
// shared-memory primitive behind CallSync. The writer fills the slot and
// wakes the parked caller; the caller does nothing else until woken.
type waitCell struct {
	mu     sync.Mutex
	cond   *sync.Cond
	filled bool
	value  *Value
	err    error
}

func newWaitCell() *waitCell {
	c := &waitCell{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// notify fills the cell. Only the first notify wins.
func (c *waitCell) notify(v *Value, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.filled {
		return false
	}
	c.value, c.err, c.filled = v, err, true
	c.cond.Broadcast()
	return true
}

// wait parks until the cell is filled. A context with no deadline and no
// cancel waits forever.
func (c *waitCell) wait(ctx context.Context) (*Value, error) {
	stop := context.AfterFunc(ctx, func() {
		c.notify(nil, ctx.Err())
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.filled {
		c.cond.Wait()
	}
	return c.value, c.err
}
