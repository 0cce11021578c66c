// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"context"
	"sync"
)

// Scope collects handles and releases them together.
type Scope struct {
	mu      sync.Mutex
	handles []*Handle
}

// NewScope returns an empty scope.
func NewScope() *Scope {
	return &Scope{}
}

// Track adds h to the scope and returns it.
func (s *Scope) Track(h *Handle) *Handle {
	if h == nil {
		return nil
	}
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
	return h
}

// Keep tracks the handle carried by a call result, if any.
func (s *Scope) Keep(v *Value, err error) (*Value, error) {
	if err == nil {
		s.Track(v.Handle())
	}
	return v, err
}

// Release releases every tracked handle in reverse order.
func (s *Scope) Release(ctx context.Context) {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	for i := len(handles) - 1; i >= 0; i-- {
		_ = handles[i].Release(ctx)
	}
}

// WithScope runs fn and releases every handle it tracked, on every path.
func WithScope(ctx context.Context, fn func(*Scope) error) error {
	s := NewScope()
	defer s.Release(ctx)
	return fn(s)
}
