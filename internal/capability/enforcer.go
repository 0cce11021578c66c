// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package capability gates engine host functions behind grants.
//
// A subject (the page, or an engine-native plugin) holds a list of glob
// patterns. Patterns use '.' as the segment separator, so "fs.*" matches
// "fs.read" but not "fs.read.meta", while "fs.**" matches both.
package capability

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gobwas/glob"
)

// Capabilities checked by the engine host module.
const (
	FSRead  = "fs.read"
	FSWrite = "fs.write"
)

// ErrDenied is returned by Require when a subject lacks a capability.
var ErrDenied = errors.New("capability denied")

type grant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer checks subject capabilities. The zero value denies everything.
type Enforcer struct {
	mu     sync.RWMutex
	grants map[string][]grant
}

// NewEnforcer creates an empty enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{grants: make(map[string][]grant)}
}

// Grant replaces the patterns held by subject. Nothing changes if any
// pattern is invalid.
func (e *Enforcer) Grant(subject string, patterns []string) error {
	if subject == "" {
		return errors.New("subject cannot be empty")
	}

	compiled := make([]grant, len(patterns))
	for i, p := range patterns {
		if p == "" {
			return fmt.Errorf("capability %d: empty pattern", i)
		}
		g, err := glob.Compile(p, '.')
		if err != nil {
			return fmt.Errorf("capability %d (%q): %w", i, p, err)
		}
		compiled[i] = grant{pattern: p, glob: g}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.grants == nil {
		e.grants = make(map[string][]grant)
	}
	e.grants[subject] = compiled
	return nil
}

// Revoke drops every grant held by subject.
func (e *Enforcer) Revoke(subject string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.grants, subject)
}

// Grants returns a copy of the patterns held by subject.
func (e *Enforcer) Grants(subject string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	grants, ok := e.grants[subject]
	if !ok {
		return nil
	}
	out := make([]string, len(grants))
	for i, g := range grants {
		out[i] = g.pattern
	}
	return out
}

// Check reports whether subject holds capability. Unknown subjects and empty
// capabilities are denied.
func (e *Enforcer) Check(subject, capability string) bool {
	if capability == "" {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, g := range e.grants[subject] {
		if g.glob.Match(capability) {
			return true
		}
	}
	return false
}

// Require is Check as an error.
func (e *Enforcer) Require(subject, capability string) error {
	if e.Check(subject, capability) {
		return nil
	}
	return fmt.Errorf("%w: %s requires %s", ErrDenied, subject, capability)
}
