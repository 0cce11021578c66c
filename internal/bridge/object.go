// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"context"
	"fmt"
)

// Receiver is an object that can be called through the bridge.
type Receiver interface {
	Invoke(ctx context.Context, method string, args Args) (any, error)
}

// Getter is implemented by receivers that expose readable properties.
type Getter interface {
	Property(ctx context.Context, name string) (any, error)
}

// Referable marks values that must cross the bridge by reference. Returning
// one from a method hands the caller a new Handle instead of a copy.
type Referable interface {
	BridgeReferable()
}

// reference wraps an arbitrary value so it is passed by reference.
type reference struct {
	obj any
}

// Ref marks obj to be passed by reference. obj should implement Receiver to
// be callable from the other side.
func Ref(obj any) any {
	return reference{obj: obj}
}

// Method handles a single named call.
type Method func(ctx context.Context, args Args) (any, error)

// Methods is a Receiver built from a method table.
type Methods map[string]Method

// Invoke implements Receiver.
func (m Methods) Invoke(ctx context.Context, method string, args Args) (any, error) {
	fn, ok := m[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchMethod, method)
	}
	return fn(ctx, args)
}

// Args are the decoded arguments of an incoming call.
type Args []*Value

// Len returns the number of arguments.
func (a Args) Len() int { return len(a) }

// At returns argument i or an error if it is missing.
func (a Args) At(i int) (*Value, error) {
	if i < 0 || i >= len(a) {
		return nil, fmt.Errorf("argument %d missing (got %d)", i, len(a))
	}
	return a[i], nil
}

// Decode decodes argument i into v.
func (a Args) Decode(i int, v any) error {
	arg, err := a.At(i)
	if err != nil {
		return err
	}
	return arg.Decode(v)
}

// String returns argument i as a string.
func (a Args) String(i int) (string, error) {
	var s string
	if err := a.Decode(i, &s); err != nil {
		return "", err
	}
	return s, nil
}

// Optional decodes argument i into v if present and not nil.
func (a Args) Optional(i int, v any) error {
	if i >= len(a) || a[i].IsNil() {
		return nil
	}
	return a[i].Decode(v)
}

// Handle returns argument i as a handle to an object on the caller's side.
func (a Args) Handle(i int) (*Handle, error) {
	arg, err := a.At(i)
	if err != nil {
		return nil, err
	}
	h := arg.Handle()
	if h == nil {
		return nil, fmt.Errorf("argument %d is not a reference", i)
	}
	return h, nil
}
