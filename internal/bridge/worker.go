// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
)

// ServeFunc runs the worker side of a bridge until the connection ends.
type ServeFunc func(ctx context.Context, conn Conn) error

// StartWorker runs serve on a dedicated OS thread and returns the host side
// of the connection. When serve returns or panics the connection is severed,
// so every outstanding call fails with ErrBridgeSevered. Closing the returned
// Conn waits for the worker to exit.
func StartWorker(ctx context.Context, serve ServeFunc) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	host, worker := Pipe()
	exited := make(chan struct{})

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(exited)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("bridge worker panicked", "panic", r)
			}
			_ = worker.Close()
		}()

		if err := serve(ctx, worker); err != nil {
			slog.Error("bridge worker stopped", "error", err)
		}
	}()

	return &workerConn{Conn: host, exited: exited}, nil
}

type workerConn struct {
	Conn
	exited chan struct{}
}

func (w *workerConn) Close() error {
	err := w.Conn.Close()
	<-w.exited
	return err
}
