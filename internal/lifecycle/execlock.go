// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lifecycle

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// ExecLock runs one task at a time. Waiters are admitted in the order they
// asked.
type ExecLock struct {
	sem *semaphore.Weighted
}

// NewExecLock returns an unlocked ExecLock.
func NewExecLock() *ExecLock {
	return &ExecLock{sem: semaphore.NewWeighted(1)}
}

// Do waits for the lock, runs fn and releases the lock. It returns ctx's
// error if the lock could not be acquired.
func (l *ExecLock) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return fn(ctx)
}

// Drain returns once every task that asked for the lock before it has run.
func (l *ExecLock) Drain(ctx context.Context) error {
	return l.Do(ctx, func(context.Context) error { return nil })
}
