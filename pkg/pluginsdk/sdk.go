// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package pluginsdk provides the SDK for building scriptkit binary plugins.
//
// Binary plugins run as separate processes and talk to the host over net/rpc
// using the HashiCorp go-plugin framework. Each lifecycle hook the host
// reaches is delivered to the plugin's Handler with its options decoded into
// a generic map.
//
// Example usage:
//
//	package main
//
//	import (
//		"context"
//		"github.com/holomush/scriptkit/pkg/pluginsdk"
//	)
//
//	type Banner struct{}
//
//	func (Banner) HandleHook(ctx context.Context, hook string, opts map[string]any) error {
//		if hook == "configure" && opts["config"] == nil {
//			return &pluginsdk.UserError{Code: "BAD_CONFIG", Message: "no config"}
//		}
//		return nil
//	}
//
//	func main() {
//		pluginsdk.Serve(&pluginsdk.ServeConfig{
//			Handler: Banner{},
//		})
//	}
package pluginsdk

import (
	"context"
	"errors"
	"fmt"
	"net/rpc"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	hashiplug "github.com/hashicorp/go-plugin"
)

// PluginKey is the name the hook service is dispensed under.
const PluginKey = "hooks"

// Handler is the interface that binary plugins must implement.
type Handler interface {
	// HandleHook runs one lifecycle hook. Returning a *UserError shows a
	// banner on the page; any other error is logged by the host.
	HandleHook(ctx context.Context, hook string, opts map[string]any) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, hook string, opts map[string]any) error

// HandleHook implements Handler.
func (f HandlerFunc) HandleHook(ctx context.Context, hook string, opts map[string]any) error {
	return f(ctx, hook, opts)
}

// UserError is a failure the page author should see.
type UserError struct {
	Code    string
	Message string
	Warning bool
	HTML    bool
}

// Error implements error.
func (e *UserError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HandshakeConfig is the go-plugin handshake configuration.
// Both host and plugins must use the same values.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "SCRIPTKIT_PLUGIN",
	MagicCookieValue: "scriptkit-v1",
}

// HookRequest carries one hook invocation. Options is CBOR.
type HookRequest struct {
	Hook    string
	Options []byte
}

// HookResponse reports a user error raised by the plugin. Plain errors
// travel as the RPC error instead.
type HookResponse struct {
	UserError *UserError
}

var decMode cbor.DecMode

func init() {
	var err error
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// ServeConfig configures the plugin server.
type ServeConfig struct {
	// Handler is the hook handler implementation.
	// Required; Serve will panic if nil.
	Handler Handler
}

// Serve starts the plugin server. This should be called from main().
// It blocks and never returns under normal operation.
func Serve(config *ServeConfig) {
	if config == nil {
		panic("pluginsdk: config cannot be nil")
	}
	if config.Handler == nil {
		panic("pluginsdk: config.Handler cannot be nil")
	}
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: map[string]hashiplug.Plugin{
			PluginKey: &RPCPlugin{Impl: config.Handler},
		},
	})
}

// RPCPlugin implements go-plugin's Plugin interface for net/rpc.
type RPCPlugin struct {
	// Impl is used by the plugin side only.
	Impl Handler
}

// Server returns the RPC server (called by plugin process).
func (p *RPCPlugin) Server(*hashiplug.MuxBroker) (interface{}, error) {
	if p.Impl == nil {
		return nil, errors.New("pluginsdk: handler is nil")
	}
	return &RPCServer{Impl: p.Impl}, nil
}

// Client returns the RPC client (called by host process).
func (p *RPCPlugin) Client(_ *hashiplug.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}

// RPCServer adapts Handler to net/rpc.
type RPCServer struct {
	Impl Handler
}

// Hook is the net/rpc method the host calls.
func (s *RPCServer) Hook(req HookRequest, resp *HookResponse) error {
	opts := map[string]any{}
	if len(req.Options) > 0 {
		if err := decMode.Unmarshal(req.Options, &opts); err != nil {
			return fmt.Errorf("decode %s options: %w", req.Hook, err)
		}
	}

	err := s.Impl.HandleHook(context.Background(), req.Hook, opts)
	var ue *UserError
	if errors.As(err, &ue) {
		resp.UserError = ue
		return nil
	}
	if err != nil {
		return fmt.Errorf("handler error: %w", err)
	}
	return nil
}

// RPCClient calls hooks on a plugin process.
type RPCClient struct {
	client *rpc.Client
}

// NewRPCClient wraps an established net/rpc client.
func NewRPCClient(c *rpc.Client) *RPCClient {
	return &RPCClient{client: c}
}

// Hook delivers hook with opts encoded as CBOR and waits for the plugin. The
// returned error is a *UserError when the plugin raised one.
func (c *RPCClient) Hook(ctx context.Context, hook string, opts any) error {
	data, err := cbor.Marshal(opts)
	if err != nil {
		return fmt.Errorf("encode %s options: %w", hook, err)
	}

	var resp HookResponse
	call := c.client.Go("Plugin.Hook", HookRequest{Hook: hook, Options: data}, &resp, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-call.Done:
	}
	if call.Error != nil {
		return call.Error
	}
	if resp.UserError != nil {
		return resp.UserError
	}
	return nil
}
