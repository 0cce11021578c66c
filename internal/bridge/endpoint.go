// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package bridge makes objects in another execution context callable as if
// they were local.
//
// Two Endpoints share a Conn. Each endpoint runs a reader goroutine, which
// completes outgoing calls as responses arrive, and an executor goroutine,
// which serves incoming calls one at a time in arrival order. Because
// responses never wait behind the executor, a handler may itself call back
// across the bridge (including with CallSync) without deadlocking.
//
// Every value is structurally copied with CBOR. Values wrapped in Ref or
// implementing Referable cross by reference instead and appear on the other
// side as a Handle, which must be released exactly once.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("scriptkit/bridge")

// Endpoint is one side of the bridge.
type Endpoint struct {
	name       string
	conn       Conn
	decoders   map[string]ErrorDecoder
	lockThread bool

	mu      sync.Mutex
	roots   map[string]any
	objects map[HandleID]any
	pending map[uint64]*pending
	err     error

	nextObject atomic.Uint64
	nextCall   atomic.Uint64

	queue     *frameQueue
	ctx       context.Context
	cancel    context.CancelFunc
	closed    chan struct{}
	severOnce sync.Once
	wg        sync.WaitGroup
}

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithName labels the endpoint in logs, traces and metrics.
func WithName(name string) Option {
	return func(e *Endpoint) {
		e.name = name
	}
}

// WithDedicatedThread pins the executor goroutine to its own OS thread.
// This is how an endpoint acts as a worker thread.
func WithDedicatedThread() Option {
	return func(e *Endpoint) {
		e.lockThread = true
	}
}

// WithErrorDecoder rebuilds envelopes of the given kind into typed errors.
func WithErrorDecoder(kind string, dec ErrorDecoder) Option {
	return func(e *Endpoint) {
		e.decoders[kind] = dec
	}
}

// NewEndpoint starts serving conn.
func NewEndpoint(conn Conn, opts ...Option) *Endpoint {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Endpoint{
		name:     "endpoint",
		conn:     conn,
		decoders: make(map[string]ErrorDecoder),
		roots:    make(map[string]any),
		objects:  make(map[HandleID]any),
		pending:  make(map[uint64]*pending),
		queue:    newFrameQueue(),
		ctx:      ctx,
		cancel:   cancel,
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.wg.Add(2)
	go e.readLoop()
	go e.execLoop()
	return e
}

// Name returns the endpoint label.
func (e *Endpoint) Name() string { return e.name }

// Expose publishes obj under a well-known name the peer can reach with Root.
func (e *Endpoint) Expose(name string, obj any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.roots[name] = obj
}

// Root returns a handle to an object the peer exposed under name.
func (e *Endpoint) Root(name string) *Handle {
	return &Handle{ep: e, root: name}
}

// Done is closed once the bridge is severed.
func (e *Endpoint) Done() <-chan struct{} { return e.closed }

// Err returns the reason the bridge was severed, or nil.
func (e *Endpoint) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Close severs the bridge and waits for the endpoint's goroutines to exit.
// It must not be called from inside a handler served by this endpoint.
func (e *Endpoint) Close() error {
	_ = e.conn.Close()
	e.sever(ErrBridgeSevered)
	e.wg.Wait()
	return nil
}

// sever fails every pending call and refuses new ones.
func (e *Endpoint) sever(cause error) {
	e.severOnce.Do(func() {
		e.mu.Lock()
		e.err = cause
		calls := e.pending
		e.pending = make(map[uint64]*pending)
		e.mu.Unlock()

		close(e.closed)
		e.cancel()

		if len(calls) > 0 {
			slog.Warn("bridge severed with calls in flight",
				"endpoint", e.name,
				"pending", len(calls),
				"error", cause)
		}
		for _, p := range calls {
			p.resolve(nil, cause)
		}
	})
}

func (e *Endpoint) readLoop() {
	defer e.wg.Done()
	for {
		select {
		case data := <-e.conn.Recv():
			e.dispatch(data)
		case <-e.conn.Done():
			// Frames sent before the close are still buffered; they belong
			// ahead of the close on the ordered channel.
			e.drain()
			e.sever(ErrBridgeSevered)
			return
		case <-e.closed:
			return
		}
	}
}

// drain dispatches whatever the connection still buffers without blocking.
func (e *Endpoint) drain() {
	for {
		select {
		case data := <-e.conn.Recv():
			e.dispatch(data)
		default:
			return
		}
	}
}

// dispatch routes one received frame: responses complete pending calls,
// requests go to the executor.
func (e *Endpoint) dispatch(data []byte) {
	f, err := decodeFrame(data)
	if err != nil {
		slog.Error("dropping malformed bridge frame",
			"endpoint", e.name,
			"bytes", len(data),
			"error", err)
		return
	}
	switch f.Kind {
	case kindReturn, kindThrow:
		e.complete(f)
	case kindCall, kindGet, kindRelease:
		e.queue.push(f)
	default:
		slog.Warn("ignoring unknown bridge frame",
			"endpoint", e.name,
			"kind", f.Kind.String())
	}
}

func (e *Endpoint) execLoop() {
	defer e.wg.Done()
	if e.lockThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	for {
		f, ok := e.queue.pop(e.closed)
		if !ok {
			return
		}
		e.serve(f)
	}
}

// complete resolves the pending call a response belongs to.
func (e *Endpoint) complete(f *frame) {
	p := e.take(f.ID)
	if p == nil {
		// The caller gave up; do not leak a reference it will never release.
		if f.Value != nil && f.Value.Local != 0 {
			e.sendRelease(f.Value.Local)
		}
		return
	}
	if f.Kind == kindThrow {
		env := ErrorEnvelope{Kind: KindInternal, Message: "missing error envelope"}
		if f.Err != nil {
			env = *f.Err
		}
		p.resolve(nil, decodeEnvelope(env, e.decoders))
		return
	}
	v, err := e.decodeValue(f.Value)
	p.resolve(v, err)
}

// serve handles one incoming call on the executor goroutine. Every call
// frame gets exactly one response, including when the handler panics.
func (e *Endpoint) serve(f *frame) {
	if f.Kind == kindRelease {
		e.drop(f.Target)
		return
	}

	var result any
	obj, err := e.lookup(f.Target, f.Root)
	if err == nil {
		var args Args
		args, err = e.decodeArgs(f.Args)
		if err == nil {
			result, err = e.invoke(obj, f, args)
			e.releaseArgs(args)
		}
	}

	resp := &frame{Kind: kindReturn, ID: f.ID}
	if err == nil {
		var wv wireValue
		wv, err = e.encodeValue(result)
		if err == nil {
			resp.Value = &wv
		}
	}
	if err != nil {
		env := envelopeFrom(err)
		resp.Kind = kindThrow
		resp.Value = nil
		resp.Err = &env
	}

	data, encErr := encodeFrame(resp)
	if encErr != nil {
		env := envelopeFrom(encErr)
		data, encErr = encodeFrame(&frame{Kind: kindThrow, ID: f.ID, Err: &env})
		if encErr != nil {
			slog.Error("cannot encode bridge response", "endpoint", e.name, "error", encErr)
			return
		}
	}
	if err := e.conn.Send(data); err != nil {
		slog.Debug("bridge response not delivered",
			"endpoint", e.name,
			"method", f.Method,
			"error", err)
	}
}

func (e *Endpoint) invoke(obj any, f *frame, args Args) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("bridge handler panicked",
				"endpoint", e.name,
				"method", f.Method,
				"panic", r)
			err = fmt.Errorf("handler %s panicked: %v", f.Method, r)
		}
	}()

	if f.Kind == kindGet {
		g, ok := obj.(Getter)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchProperty, f.Method)
		}
		return g.Property(e.ctx, f.Method)
	}

	r, ok := obj.(Receiver)
	if !ok {
		return nil, fmt.Errorf("%w: %s (target is not callable)", ErrNoSuchMethod, f.Method)
	}
	return r.Invoke(e.ctx, f.Method, args)
}

func (e *Endpoint) lookup(id HandleID, root string) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if root != "" {
		obj, ok := e.roots[root]
		if !ok {
			return nil, fmt.Errorf("%w: root %q", ErrNoSuchObject, root)
		}
		return obj, nil
	}
	obj, ok := e.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: handle %d", ErrNoSuchObject, id)
	}
	return obj, nil
}

// export registers obj so the peer can address it by handle.
func (e *Endpoint) export(obj any) HandleID {
	id := HandleID(e.nextObject.Add(1))
	e.mu.Lock()
	e.objects[id] = obj
	e.mu.Unlock()
	return id
}

// drop forgets an exported object after the peer released its handle.
func (e *Endpoint) drop(id HandleID) {
	e.mu.Lock()
	obj, ok := e.objects[id]
	delete(e.objects, id)
	e.mu.Unlock()

	if !ok {
		return
	}
	if closer, ok := obj.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			slog.Warn("released object failed to close",
				"endpoint", e.name,
				"handle", uint64(id),
				"error", err)
		}
	}
}

// Exported returns the number of objects currently exported to the peer.
func (e *Endpoint) Exported() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.objects)
}

func (e *Endpoint) encodeValue(v any) (wireValue, error) {
	switch x := v.(type) {
	case nil:
		return wireValue{Data: cborNull}, nil
	case *Handle:
		if x == nil {
			return wireValue{Data: cborNull}, nil
		}
		if x.ep != e {
			return wireValue{}, fmt.Errorf("%w: handle belongs to another bridge", ErrUncopyable)
		}
		if x.Released() {
			return wireValue{}, ErrHandleReleased
		}
		if x.root != "" {
			return wireValue{Root: x.root}, nil
		}
		return wireValue{Remote: x.id}, nil
	case *Value:
		if x == nil {
			return wireValue{Data: cborNull}, nil
		}
		if x.handle != nil {
			return e.encodeValue(x.handle)
		}
		if x.object != nil {
			return wireValue{Local: e.export(x.object)}, nil
		}
		return wireValue{Data: x.data}, nil
	case reference:
		return wireValue{Local: e.export(x.obj)}, nil
	case Referable:
		return wireValue{Local: e.export(x)}, nil
	default:
		data, err := copyData(v)
		if err != nil {
			return wireValue{}, err
		}
		return wireValue{Data: data}, nil
	}
}

func (e *Endpoint) decodeValue(wv *wireValue) (*Value, error) {
	switch {
	case wv == nil:
		return &Value{data: cborNull}, nil
	case wv.Local != 0:
		return &Value{handle: e.newHandle(wv.Local)}, nil
	case wv.Remote != 0 || wv.Root != "":
		obj, err := e.lookup(wv.Remote, wv.Root)
		if err != nil {
			return nil, err
		}
		return &Value{object: obj}, nil
	default:
		return &Value{data: wv.Data}, nil
	}
}

func (e *Endpoint) decodeArgs(wargs []wireValue) (Args, error) {
	args := make(Args, 0, len(wargs))
	for i := range wargs {
		v, err := e.decodeValue(&wargs[i])
		if err != nil {
			e.releaseArgs(args)
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args = append(args, v)
	}
	return args, nil
}

// releaseArgs releases argument handles the handler did not retain.
func (e *Endpoint) releaseArgs(args Args) {
	for _, a := range args {
		if a.handle != nil && !a.retained.Load() {
			_ = a.handle.Release(context.Background())
		}
	}
}

func (e *Endpoint) newHandle(id HandleID) *Handle {
	liveHandles.WithLabelValues(e.name).Inc()
	return &Handle{ep: e, id: id}
}

func (e *Endpoint) sendRelease(id HandleID) {
	data, err := encodeFrame(&frame{Kind: kindRelease, Target: id})
	if err != nil {
		return
	}
	if err := e.conn.Send(data); err != nil && !errors.Is(err, ErrBridgeSevered) {
		slog.Debug("release not delivered", "endpoint", e.name, "handle", uint64(id), "error", err)
	}
}

// take removes and returns a pending call.
func (e *Endpoint) take(id uint64) *pending {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pending[id]
	if !ok {
		return nil
	}
	delete(e.pending, id)
	return p
}

// start encodes and sends an outgoing call.
func (e *Endpoint) start(ctx context.Context, h *Handle, kind frameKind, method string, args []any, p *pending) error {
	if h.Released() {
		return ErrHandleReleased
	}

	var exported []HandleID
	wargs := make([]wireValue, 0, len(args))
	for i, a := range args {
		wv, err := e.encodeValue(a)
		if err != nil {
			e.unexport(exported)
			return fmt.Errorf("argument %d: %w", i, err)
		}
		if wv.Local != 0 {
			exported = append(exported, wv.Local)
		}
		wargs = append(wargs, wv)
	}

	id := e.nextCall.Add(1)
	f := &frame{
		Kind:   kind,
		ID:     id,
		Target: h.id,
		Root:   h.root,
		Method: method,
		Args:   wargs,
		Sync:   p.cell != nil,
	}
	data, err := encodeFrame(f)
	if err != nil {
		e.unexport(exported)
		return fmt.Errorf("%w: %v", ErrUncopyable, err)
	}

	_, p.span = tracer.Start(ctx, "bridge."+p.kind,
		trace.WithAttributes(
			attribute.String("bridge.endpoint", e.name),
			attribute.String("bridge.method", method),
		),
	)
	p.endpoint = e.name
	p.method = method
	p.started = time.Now()
	p.id = id

	e.mu.Lock()
	if e.err != nil {
		cause := e.err
		e.mu.Unlock()
		e.unexport(exported)
		p.span.End()
		return cause
	}
	e.pending[id] = p
	e.mu.Unlock()

	if err := e.conn.Send(data); err != nil {
		if e.take(id) != nil {
			p.span.End()
		}
		e.unexport(exported)
		return ErrBridgeSevered
	}
	return nil
}

func (e *Endpoint) unexport(ids []HandleID) {
	if len(ids) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		delete(e.objects, id)
	}
}

// frameQueue is an unbounded FIFO so the reader never blocks behind the
// executor.
type frameQueue struct {
	mu     sync.Mutex
	items  []*frame
	signal chan struct{}
}

func newFrameQueue() *frameQueue {
	return &frameQueue{signal: make(chan struct{}, 1)}
}

func (q *frameQueue) push(f *frame) {
	q.mu.Lock()
	q.items = append(q.items, f)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *frameQueue) pop(closed <-chan struct{}) (*frame, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			f := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return f, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-closed:
			return nil, false
		}
	}
}
