// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"errors"
	"fmt"

	"github.com/holomush/scriptkit/internal/usererr"
)

// Sentinel errors for programmatic error checking.
var (
	// ErrBridgeSevered fails every in-flight and future call once the
	// transport is gone.
	ErrBridgeSevered = errors.New("bridge severed")
	// ErrHandleReleased is returned when a released handle is used.
	ErrHandleReleased = errors.New("handle already released")
	// ErrUncopyable is returned when a value cannot be structurally copied.
	ErrUncopyable = errors.New("value cannot be copied across the bridge")
	// ErrNoSuchObject is returned when a call targets an unknown handle.
	ErrNoSuchObject = errors.New("no such remote object")
	// ErrNoSuchMethod is returned when the target has no such method.
	ErrNoSuchMethod = errors.New("no such method")
	// ErrNoSuchProperty is returned when the target has no such property.
	ErrNoSuchProperty = errors.New("no such property")
)

// Envelope kinds.
const (
	KindUser        = "user"
	KindInterpreter = "interpreter"
	KindReleased    = "released"
	KindUncopyable  = "uncopyable"
	KindNotFound    = "not_found"
	KindInternal    = "internal"
)

// ErrorEnvelope is the wire form of a thrown error. The UserError flag is the
// discriminator the receiving side uses to choose between a banner and a
// crash, so it is carried as a first-class field instead of being recovered
// from the message.
type ErrorEnvelope struct {
	Kind        string `cbor:"1,keyasint"`
	Code        string `cbor:"2,keyasint,omitempty"`
	Message     string `cbor:"3,keyasint"`
	Traceback   string `cbor:"4,keyasint,omitempty"`
	UserError   bool   `cbor:"5,keyasint,omitempty"`
	MessageType string `cbor:"6,keyasint,omitempty"`
	HTML        bool   `cbor:"7,keyasint,omitempty"`
}

// Enveloper lets an error choose its own envelope.
type Enveloper interface {
	BridgeEnvelope() ErrorEnvelope
}

// RemoteError is an error thrown on the other side of the bridge that has no
// more specific local representation.
type RemoteError struct {
	Envelope ErrorEnvelope
}

// Error implements error.
func (e *RemoteError) Error() string {
	if e.Envelope.Code != "" {
		return fmt.Sprintf("remote %s error (%s): %s", e.Envelope.Kind, e.Envelope.Code, e.Envelope.Message)
	}
	return fmt.Sprintf("remote %s error: %s", e.Envelope.Kind, e.Envelope.Message)
}

// ErrorDecoder rebuilds a typed error from an envelope.
type ErrorDecoder func(ErrorEnvelope) error

// envelopeFrom converts a handler error into its wire form.
func envelopeFrom(err error) ErrorEnvelope {
	if info, ok := usererr.Extract(err); ok {
		return ErrorEnvelope{
			Kind:        KindUser,
			Code:        info.Code,
			Message:     info.Message,
			UserError:   true,
			MessageType: string(info.MessageType),
			HTML:        info.HTML,
		}
	}

	var env Enveloper
	if errors.As(err, &env) {
		return env.BridgeEnvelope()
	}

	switch {
	case errors.Is(err, ErrHandleReleased):
		return ErrorEnvelope{Kind: KindReleased, Message: err.Error()}
	case errors.Is(err, ErrUncopyable):
		return ErrorEnvelope{Kind: KindUncopyable, Message: err.Error()}
	case errors.Is(err, ErrNoSuchObject), errors.Is(err, ErrNoSuchMethod), errors.Is(err, ErrNoSuchProperty):
		return ErrorEnvelope{Kind: KindNotFound, Message: err.Error()}
	default:
		return ErrorEnvelope{Kind: KindInternal, Message: err.Error()}
	}
}

// decodeEnvelope turns an envelope back into an error on the caller side.
func decodeEnvelope(env ErrorEnvelope, decoders map[string]ErrorDecoder) error {
	if env.UserError {
		return usererr.FromInfo(usererr.Info{
			Code:        env.Code,
			Message:     env.Message,
			MessageType: usererr.MessageType(env.MessageType),
			HTML:        env.HTML,
		})
	}
	if dec, ok := decoders[env.Kind]; ok {
		return dec(env)
	}
	switch env.Kind {
	case KindReleased:
		return fmt.Errorf("%w: %s", ErrHandleReleased, env.Message)
	case KindUncopyable:
		return fmt.Errorf("%w: %s", ErrUncopyable, env.Message)
	default:
		return &RemoteError{Envelope: env}
	}
}
