// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package interpreter

import (
	"context"
	"errors"
	"fmt"

	"github.com/holomush/scriptkit/internal/bridge"
)

// Mode selects where the engine executes.
type Mode string

// Execution modes.
const (
	ModeMain   Mode = "main"
	ModeWorker Mode = "worker"
)

// Session is a started engine and the client connected to it.
type Session struct {
	*Client

	mode   Mode
	host   *bridge.Endpoint
	engine *bridge.Endpoint
}

// Start creates a Remote and connects a Client to it. In worker mode the
// engine runs on its own OS thread.
func Start(ctx context.Context, mode Mode, opts ...RemoteOption) (*Session, error) {
	s := &Session{mode: mode}

	var conn bridge.Conn
	switch mode {
	case ModeMain, "":
		s.mode = ModeMain
		hostSide, engineSide := bridge.Pipe()
		s.engine = bridge.NewEndpoint(engineSide, bridge.WithName("interpreter"))
		s.engine.Expose(RootName, NewRemote(opts...))
		conn = hostSide
	case ModeWorker:
		c, err := bridge.StartWorker(ctx, func(ctx context.Context, c bridge.Conn) error {
			ep := bridge.NewEndpoint(c, bridge.WithName("interpreter-worker"), bridge.WithDedicatedThread())
			remote := NewRemote(opts...)
			ep.Expose(RootName, remote)
			select {
			case <-ep.Done():
			case <-ctx.Done():
			}
			err := ep.Close()
			_ = remote.Close()
			return err
		})
		if err != nil {
			return nil, err
		}
		conn = c
	default:
		return nil, fmt.Errorf("unknown execution mode %q", mode)
	}

	s.host = bridge.NewEndpoint(conn,
		bridge.WithName("host"),
		bridge.WithErrorDecoder(bridge.KindInterpreter, DecodeError),
	)
	s.Client = NewClient(s.host.Root(RootName))
	return s, nil
}

// Mode reports where the engine executes.
func (s *Session) Mode() Mode { return s.mode }

// Done is closed when the bridge to the engine is severed.
func (s *Session) Done() <-chan struct{} { return s.host.Done() }

// Close tears down the engine and the bridge.
func (s *Session) Close(ctx context.Context) error {
	err := s.Client.Close(ctx)
	err = errors.Join(err, s.host.Close())
	if s.engine != nil {
		err = errors.Join(err, s.engine.Close())
	}
	return err
}
