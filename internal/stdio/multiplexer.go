// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package stdio fans interpreter output out to registered listeners.
package stdio

import (
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
)

// Listener receives output lines from the interpreter.
type Listener interface {
	StdoutWriteline(line string) error
	StderrWriteline(line string) error
}

// Token identifies one registration made with Add.
type Token uint64

type entry struct {
	token   Token
	l       Listener
	removed bool
}

// Multiplexer delivers each line to every registered listener in
// registration order. A failing listener never stops delivery to the rest.
type Multiplexer struct {
	mu      sync.RWMutex
	entries []*entry
	byToken map[Token]*entry
	dead    int
	next    Token
}

// NewMultiplexer creates a multiplexer with optional initial listeners.
func NewMultiplexer(listeners ...Listener) *Multiplexer {
	m := &Multiplexer{byToken: make(map[Token]*entry)}
	for _, l := range listeners {
		m.Add(l)
	}
	return m
}

// Add registers a listener and returns the token that removes exactly this
// registration. Duplicates are kept and receive lines once per registration.
func (m *Multiplexer) Add(l Listener) Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	e := &entry{token: m.next, l: l}
	m.entries = append(m.entries, e)
	m.byToken[e.token] = e
	return e.token
}

// RemoveToken unregisters the registration tok was returned for. Unknown and
// already removed tokens are a no-op.
func (m *Multiplexer) RemoveToken(tok Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.byToken[tok]; ok {
		m.unlink(e)
	}
}

// Remove unregisters the first registration of l. Removing a listener that
// is not registered is a no-op, as is removing a listener whose type cannot
// be compared; use RemoveToken for those.
func (m *Multiplexer) Remove(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if !e.removed && sameListener(e.l, l) {
			m.unlink(e)
			return
		}
	}
}

// unlink marks e removed and compacts once half the entries are dead.
func (m *Multiplexer) unlink(e *entry) {
	e.removed = true
	delete(m.byToken, e.token)
	m.dead++
	if m.dead*2 < len(m.entries) {
		return
	}
	live := make([]*entry, 0, len(m.entries)-m.dead)
	for _, e := range m.entries {
		if !e.removed {
			live = append(live, e)
		}
	}
	m.entries, m.dead = live, 0
}

func sameListener(a, b Listener) (same bool) {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta == nil || ta != tb || !ta.Comparable() {
		return false
	}
	// Comparable struct types can still hold an uncomparable interface field.
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// Len returns the number of registrations.
func (m *Multiplexer) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries) - m.dead
}

// StdoutWriteline sends line to every listener's stdout.
func (m *Multiplexer) StdoutWriteline(line string) error {
	m.deliver("stdout", line, func(l Listener) error { return l.StdoutWriteline(line) })
	return nil
}

// StderrWriteline sends line to every listener's stderr.
func (m *Multiplexer) StderrWriteline(line string) error {
	m.deliver("stderr", line, func(l Listener) error { return l.StderrWriteline(line) })
	return nil
}

func (m *Multiplexer) deliver(stream, line string, write func(Listener) error) {
	// Snapshot so listeners may add or remove listeners while being called.
	m.mu.RLock()
	snapshot := make([]Listener, 0, len(m.entries)-m.dead)
	for _, e := range m.entries {
		if !e.removed {
			snapshot = append(snapshot, e.l)
		}
	}
	m.mu.RUnlock()

	for i, l := range snapshot {
		if err := safeWrite(l, write); err != nil {
			slog.Warn("stdio listener failed",
				"stream", stream,
				"listener", fmt.Sprintf("%T", l),
				"index", i,
				"bytes", len(line),
				"error", err)
		}
	}
}

func safeWrite(l Listener, write func(Listener) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return write(l)
}

// Funcs adapts a pair of functions to a Listener. Nil functions drop lines.
type Funcs struct {
	Stdout func(line string) error
	Stderr func(line string) error
}

// StdoutWriteline implements Listener.
func (f *Funcs) StdoutWriteline(line string) error {
	if f.Stdout == nil {
		return nil
	}
	return f.Stdout(line)
}

// StderrWriteline implements Listener.
func (f *Funcs) StderrWriteline(line string) error {
	if f.Stderr == nil {
		return nil
	}
	return f.Stderr(line)
}

// WriterListener writes lines to a pair of writers, typically the process's
// own stdout and stderr.
type WriterListener struct {
	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
}

// NewWriterListener creates a listener writing to the given writers.
func NewWriterListener(stdout, stderr io.Writer) *WriterListener {
	return &WriterListener{stdout: stdout, stderr: stderr}
}

// StdoutWriteline implements Listener.
func (w *WriterListener) StdoutWriteline(line string) error {
	return w.write(w.stdout, line)
}

// StderrWriteline implements Listener.
func (w *WriterListener) StderrWriteline(line string) error {
	return w.write(w.stderr, line)
}

func (w *WriterListener) write(out io.Writer, line string) error {
	if out == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(out, line+"\n"); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	return nil
}
