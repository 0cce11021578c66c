// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lifecycle

import (
	"log/slog"
	"sync"
	"time"
)

// Status is a progress message published as the run advances.
type Status struct {
	State   State
	Message string
	At      time.Time
}

// broadcaster distributes status messages to subscribers.
type broadcaster struct {
	mu   sync.RWMutex
	subs []chan Status
}

func (b *broadcaster) subscribe() chan Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Status, 32)
	b.subs = append(b.subs, ch)
	return ch
}

func (b *broadcaster) unsubscribe(ch chan Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (b *broadcaster) broadcast(s Status) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- s:
		default:
			slog.Warn("status dropped: subscriber buffer full", "state", s.State.String())
		}
	}
}

// closeAll ends every subscription.
func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
