// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package usererr defines the errors that are shown to the page author
// instead of being treated as internal faults.
//
// A user error is an oops error tagged with user_error=true. The tag lives in
// the oops context so it survives wrapping, logging and the bridge's error
// envelope.
package usererr

import (
	"fmt"

	"github.com/samber/oops"
)

// Error codes for user-facing failures.
const (
	CodeBadConfig        = "BAD_CONFIG"
	CodeFetchError       = "FETCH_ERROR"
	CodeInstallError     = "INSTALL_ERROR"
	CodeBadPluginFile    = "BAD_PLUGIN_FILE"
	CodeInterpreterLoad  = "INTERPRETER_LOAD_ERROR"
	CodeConflictingCode  = "CONFLICTING_CODE"
	CodeAlreadyLoaded    = "ALREADY_LOADED"
	CodeUnsupportedValue = "UNSUPPORTED_VALUE"
)

// MessageType controls how a banner is rendered.
type MessageType string

// Banner kinds. Warnings are dismissible, errors are not.
const (
	TypeError   MessageType = "error"
	TypeWarning MessageType = "warning"
)

const (
	keyUserError   = "user_error"
	keyMessageType = "message_type"
	keyHTML        = "html"
)

// Info is the flattened view of a user error, used for banners and for the
// bridge error envelope.
type Info struct {
	Code        string
	Message     string
	MessageType MessageType
	HTML        bool
}

// Option adjusts a user error while it is built.
type Option func(oops.OopsErrorBuilder) oops.OopsErrorBuilder

// AsWarning renders the error as a dismissible warning.
func AsWarning() Option {
	return func(b oops.OopsErrorBuilder) oops.OopsErrorBuilder {
		return b.With(keyMessageType, string(TypeWarning))
	}
}

// AsHTML opts into raw HTML rendering of the message.
func AsHTML() Option {
	return func(b oops.OopsErrorBuilder) oops.OopsErrorBuilder {
		return b.With(keyHTML, true)
	}
}

func builder(code string, opts []Option) oops.OopsErrorBuilder {
	b := oops.Code(code).
		With(keyUserError, true).
		With(keyMessageType, string(TypeError))
	for _, opt := range opts {
		b = opt(b)
	}
	return b
}

// New creates a user error with the given code.
func New(code, message string, opts ...Option) error {
	return builder(code, opts).Errorf("%s", message)
}

// Newf creates a user error with a formatted message.
func Newf(code, format string, args ...any) error {
	return builder(code, nil).Errorf(format, args...)
}

// Wrap creates a user error around cause.
func Wrap(code string, cause error, message string, opts ...Option) error {
	return builder(code, opts).Wrapf(cause, "%s", message)
}

// BadConfig reports an invalid or unsupported configuration.
func BadConfig(format string, args ...any) error {
	return Newf(CodeBadConfig, format, args...)
}

// FetchError reports a failed resource download.
func FetchError(url string, cause error) error {
	return builder(CodeFetchError, nil).
		With("url", url).
		Wrapf(cause, "fetching %s failed", url)
}

// InstallError reports a package that could not be installed.
func InstallError(name string, cause error) error {
	return builder(CodeInstallError, nil).
		With("package", name).
		Wrapf(cause, "installing package %q failed", name)
}

// BadPluginFile reports a plugin reference that cannot be loaded.
func BadPluginFile(ref, reason string) error {
	return builder(CodeBadPluginFile, nil).
		With("plugin", ref).
		Errorf("plugin %q cannot be loaded: %s", ref, reason)
}

// InterpreterLoadError reports an engine that failed to initialize.
func InterpreterLoadError(cause error) error {
	return builder(CodeInterpreterLoad, nil).Wrapf(cause, "interpreter failed to load")
}

// ConflictingCode reports a script that has both inline code and a src.
func ConflictingCode(src string) error {
	return builder(CodeConflictingCode, nil).
		With("src", src).
		Errorf("script has both a src attribute (%s) and inline code; only one is allowed", src)
}

// Is reports whether err carries the user error discriminator.
func Is(err error) bool {
	if err == nil {
		return false
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	flag, _ := oopsErr.Context()[keyUserError].(bool)
	return flag
}

// Extract returns the banner information for a user error.
func Extract(err error) (Info, bool) {
	if !Is(err) {
		return Info{}, false
	}
	oopsErr, _ := oops.AsOops(err)
	ctx := oopsErr.Context()

	info := Info{
		Message:     err.Error(),
		MessageType: TypeError,
	}
	if code := oopsErr.Code(); code != nil {
		info.Code = fmt.Sprint(code)
	}
	if mt, ok := ctx[keyMessageType].(string); ok && mt == string(TypeWarning) {
		info.MessageType = TypeWarning
	}
	if html, ok := ctx[keyHTML].(bool); ok {
		info.HTML = html
	}
	return info, true
}

// FromInfo rebuilds a user error on the far side of the bridge.
func FromInfo(info Info) error {
	var opts []Option
	if info.MessageType == TypeWarning {
		opts = append(opts, AsWarning())
	}
	if info.HTML {
		opts = append(opts, AsHTML())
	}
	return New(info.Code, info.Message, opts...)
}

// BannerText formats the message shown in a banner.
func BannerText(info Info) string {
	if info.Code == "" {
		return info.Message
	}
	return "(" + info.Code + "): " + info.Message
}
