// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package page

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// NewID generates an element id for a fragment that has none. IDs sort in
// creation order.
func NewID() string {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return "sk-" + strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}
