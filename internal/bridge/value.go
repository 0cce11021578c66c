// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
)

// cborNull is the encoding of nil.
var cborNull = []byte{0xf6}

// Value is a call argument or a call result. It holds either a structural
// copy, a Handle to an object on the other side, or (when the peer passed
// one of our own handles back) the local object itself.
type Value struct {
	data     cbor.RawMessage
	handle   *Handle
	object   any
	retained atomic.Bool
}

// IsNil reports whether the value is an absent or nil copy.
func (v *Value) IsNil() bool {
	if v == nil {
		return true
	}
	if v.handle != nil || v.object != nil {
		return false
	}
	return len(v.data) == 0 || bytes.Equal(v.data, cborNull)
}

// Decode unmarshals a copied value into dst.
func (v *Value) Decode(dst any) error {
	if v == nil {
		return errors.New("nil value")
	}
	if v.handle != nil || v.object != nil {
		return errors.New("value is a reference, not a copy")
	}
	if len(v.data) == 0 {
		return nil
	}
	if err := decMode.Unmarshal(v.data, dst); err != nil {
		return fmt.Errorf("decode value into %T: %w", dst, err)
	}
	return nil
}

// Any decodes a copied value into generic Go types.
func (v *Value) Any() (any, error) {
	var out any
	if err := v.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Handle returns the handle if the value is a reference to a peer object.
func (v *Value) Handle() *Handle {
	if v == nil {
		return nil
	}
	return v.handle
}

// Object returns the local object when the peer referred to one of ours.
func (v *Value) Object() any {
	if v == nil {
		return nil
	}
	return v.object
}

// Retain keeps an argument handle alive after the call that delivered it
// returns. The caller becomes responsible for releasing it.
func (v *Value) Retain() *Handle {
	if v == nil || v.handle == nil {
		return nil
	}
	v.retained.Store(true)
	return v.handle
}
