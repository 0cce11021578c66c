// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package interpreter

import (
	"context"
	"errors"
	"fmt"

	"github.com/holomush/scriptkit/internal/bridge"
	"github.com/holomush/scriptkit/internal/stdio"
)

// StdioOutput sends script output to a multiplexer and display calls to
// DisplayFunc.
type StdioOutput struct {
	Stdio       *stdio.Multiplexer
	DisplayFunc func(target, text string) error
}

var _ Output = (*StdioOutput)(nil)

// Stdout implements Output.
func (o *StdioOutput) Stdout(line string) error { return o.Stdio.StdoutWriteline(line) }

// Stderr implements Output.
func (o *StdioOutput) Stderr(line string) error { return o.Stdio.StderrWriteline(line) }

// Display implements Output.
func (o *StdioOutput) Display(target, text string) error {
	if o.DisplayFunc == nil {
		return errors.New("display is not available")
	}
	return o.DisplayFunc(target, text)
}

// hostIO is the caller-side object the engine writes through.
type hostIO struct {
	out Output
}

// Invoke implements bridge.Receiver.
func (h *hostIO) Invoke(_ context.Context, method string, args bridge.Args) (any, error) {
	switch method {
	case "stdout", "stderr":
		line, err := args.String(0)
		if err != nil {
			return nil, err
		}
		if method == "stdout" {
			return nil, h.out.Stdout(line)
		}
		return nil, h.out.Stderr(line)
	case "display":
		target, err := args.String(0)
		if err != nil {
			return nil, err
		}
		text, err := args.String(1)
		if err != nil {
			return nil, err
		}
		return nil, h.out.Display(target, text)
	default:
		return nil, fmt.Errorf("%w: %s", bridge.ErrNoSuchMethod, method)
	}
}
