// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// HandleID identifies an object exported by one endpoint.
type HandleID uint64

type frameKind uint8

const (
	kindCall frameKind = iota + 1
	kindGet
	kindReturn
	kindThrow
	kindRelease
)

func (k frameKind) String() string {
	switch k {
	case kindCall:
		return "call"
	case kindGet:
		return "get"
	case kindReturn:
		return "return"
	case kindThrow:
		return "throw"
	case kindRelease:
		return "release"
	default:
		return fmt.Sprintf("frame(%d)", uint8(k))
	}
}

// frame is the unit sent over a Conn.
type frame struct {
	Kind   frameKind      `cbor:"1,keyasint"`
	ID     uint64         `cbor:"2,keyasint,omitempty"`
	Target HandleID       `cbor:"3,keyasint,omitempty"`
	Root   string         `cbor:"4,keyasint,omitempty"`
	Method string         `cbor:"5,keyasint,omitempty"`
	Args   []wireValue    `cbor:"6,keyasint,omitempty"`
	Value  *wireValue     `cbor:"7,keyasint,omitempty"`
	Err    *ErrorEnvelope `cbor:"8,keyasint,omitempty"`
	Sync   bool           `cbor:"9,keyasint,omitempty"`
}

// wireValue is either a structural copy or a reference. Local refers to an
// object exported by the sender; Remote and Root refer to objects owned by
// the receiver.
type wireValue struct {
	Data   cbor.RawMessage `cbor:"1,keyasint,omitempty"`
	Local  HandleID        `cbor:"2,keyasint,omitempty"`
	Remote HandleID        `cbor:"3,keyasint,omitempty"`
	Root   string          `cbor:"4,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bridge: cbor encode mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("bridge: cbor decode mode: %v", err))
	}
}

func encodeFrame(f *frame) ([]byte, error) {
	data, err := encMode.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Kind, err)
	}
	return data, nil
}

func decodeFrame(data []byte) (*frame, error) {
	var f frame
	if err := decMode.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &f, nil
}

// copyData structurally copies v into CBOR.
func copyData(v any) (cbor.RawMessage, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %T: %v", ErrUncopyable, v, err)
	}
	return data, nil
}
