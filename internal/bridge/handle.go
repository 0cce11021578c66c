// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handle refers to an object owned by the peer endpoint.
type Handle struct {
	ep       *Endpoint
	id       HandleID
	root     string
	released atomic.Bool
}

// ID returns the handle's identifier. Root handles have ID zero.
func (h *Handle) ID() HandleID { return h.id }

// Released reports whether Release has been called.
func (h *Handle) Released() bool { return h.released.Load() }

// String implements fmt.Stringer.
func (h *Handle) String() string {
	if h.root != "" {
		return fmt.Sprintf("handle(%s:root:%s)", h.ep.name, h.root)
	}
	return fmt.Sprintf("handle(%s:%d)", h.ep.name, h.id)
}

// Go invokes method asynchronously. The returned Call completes when the
// peer responds or the bridge is severed.
func (h *Handle) Go(ctx context.Context, method string, args ...any) *Call {
	c := &Call{Method: method, done: make(chan struct{})}
	p := &pending{kind: "call", call: c}
	if err := h.ep.start(ctx, h, kindCall, method, args, p); err != nil {
		c.Error = err
		close(c.done)
		callsTotal.WithLabelValues(h.ep.name, "call", statusOf(err)).Inc()
		return c
	}
	c.ep, c.id = h.ep, p.id
	return c
}

// Call invokes method and waits for its result.
func (h *Handle) Call(ctx context.Context, method string, args ...any) (*Value, error) {
	return h.Go(ctx, method, args...).Wait(ctx)
}

// CallSync invokes method and parks the calling goroutine until the result
// arrives. It is meant for executors that must not yield, such as an
// interpreter thread calling back into its host. The call has no timeout of
// its own; cancel ctx to stop waiting.
func (h *Handle) CallSync(ctx context.Context, method string, args ...any) (*Value, error) {
	cell := newWaitCell()
	p := &pending{kind: "sync", cell: cell}
	if err := h.ep.start(ctx, h, kindCall, method, args, p); err != nil {
		callsTotal.WithLabelValues(h.ep.name, "sync", statusOf(err)).Inc()
		return nil, err
	}
	v, err := cell.wait(ctx)
	if ctx.Err() != nil && h.ep.take(p.id) != nil {
		p.finish(ctx.Err())
	}
	return v, err
}

// Get reads a property of the remote object.
func (h *Handle) Get(ctx context.Context, name string) (*Value, error) {
	c := &Call{Method: name, done: make(chan struct{})}
	p := &pending{kind: "get", call: c}
	if err := h.ep.start(ctx, h, kindGet, name, nil, p); err != nil {
		callsTotal.WithLabelValues(h.ep.name, "get", statusOf(err)).Inc()
		return nil, err
	}
	c.ep, c.id = h.ep, p.id
	return c.Wait(ctx)
}

// Release tells the peer it may drop the object. Releasing twice is a no-op,
// as is releasing after the bridge has been severed. Root handles only mark
// themselves released.
func (h *Handle) Release(_ context.Context) error {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}
	if h.root != "" {
		return nil
	}
	liveHandles.WithLabelValues(h.ep.name).Dec()
	h.ep.sendRelease(h.id)
	return nil
}

// Call is an in-flight asynchronous call.
type Call struct {
	Method string
	Result *Value
	Error  error

	ep   *Endpoint
	id   uint64
	done chan struct{}
}

// Done is closed when the call completes.
func (c *Call) Done() <-chan struct{} { return c.done }

// Wait blocks until the call completes or ctx is done. Giving up on a call
// does not cancel it on the peer; its eventual response is discarded.
func (c *Call) Wait(ctx context.Context) (*Value, error) {
	select {
	case <-c.done:
		return c.Result, c.Error
	case <-ctx.Done():
		if c.ep != nil {
			if p := c.ep.take(c.id); p != nil {
				p.resolve(nil, ctx.Err())
			}
		}
		<-c.done
		return c.Result, c.Error
	}
}

// pending is an outgoing call awaiting its response.
type pending struct {
	id       uint64
	kind     string
	endpoint string
	method   string
	started  time.Time
	span     trace.Span

	call *Call
	cell *waitCell
}

func (p *pending) resolve(v *Value, err error) {
	p.finish(err)
	if p.cell != nil {
		if !p.cell.notify(v, err) {
			// The caller already gave up; nobody will release this.
			if h := v.Handle(); h != nil {
				_ = h.Release(context.Background())
			}
		}
		return
	}
	p.call.Result, p.call.Error = v, err
	close(p.call.done)
}

// finish records metrics and ends the span.
func (p *pending) finish(err error) {
	callsTotal.WithLabelValues(p.endpoint, p.kind, statusOf(err)).Inc()
	callDuration.WithLabelValues(p.endpoint, p.kind).Observe(time.Since(p.started).Seconds())
	if p.span == nil {
		return
	}
	if err != nil {
		p.span.RecordError(err)
		p.span.SetStatus(codes.Error, err.Error())
	}
	p.span.End()
}
