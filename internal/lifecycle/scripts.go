// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/holomush/scriptkit/internal/interpreter"
	"github.com/holomush/scriptkit/internal/page"
	"github.com/holomush/scriptkit/internal/plugin"
	"github.com/holomush/scriptkit/internal/usererr"
)

// ErrorClass marks traceback lines displayed under a failed fragment.
const ErrorClass = "scriptkit-error"

// resolved is a fragment with its code in hand, or the user error that kept
// it from being resolved.
type resolved struct {
	script page.Script
	code   string
	err    error
}

// executeScripts runs every page fragment in document order. Sources are
// fetched concurrently; execution is serialized through the exec lock. A
// user error in one fragment is shown and the next fragment still runs.
func (c *Controller) executeScripts(ctx context.Context) error {
	if err := c.enter(StateScriptsExecuting); err != nil {
		return err
	}

	scripts := c.page.Scripts()
	for range scripts {
		c.counter.Add()
	}
	c.counter.Settle()

	for _, r := range c.resolve(ctx, scripts) {
		err := r.err
		if err == nil {
			err = c.lock.Do(ctx, func(ctx context.Context) error {
				return c.execute(ctx, r.script, r.code)
			})
		}
		if derr := c.counter.Done(); derr != nil {
			return derr
		}
		if err == nil {
			continue
		}
		info, ok := usererr.Extract(err)
		if !ok {
			return err
		}
		ScriptExecutions.WithLabelValues(string(r.script.Kind), OutcomeUserError).Inc()
		c.reportUserError(ctx, info)
	}

	select {
	case <-c.counter.Drained():
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.lock.Drain(ctx)
}

// resolve fetches external sources. A fragment with both inline code and a
// src attribute is a conflict.
func (c *Controller) resolve(ctx context.Context, scripts []page.Script) []resolved {
	out := make([]resolved, len(scripts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)
	for i, s := range scripts {
		out[i].script = s
		if s.Src == "" {
			out[i].code = s.Source
			continue
		}
		if strings.TrimSpace(s.Source) != "" {
			out[i].err = usererr.ConflictingCode(s.Src)
			continue
		}
		if c.fetcher == nil {
			out[i].err = usererr.FetchError(s.Src, errors.New("no fetcher configured"))
			continue
		}
		g.Go(func() error {
			data, err := c.fetcher.Fetch(gctx, s.Src)
			if err != nil {
				out[i].err = usererr.FetchError(s.Src, err)
				return nil
			}
			out[i].code = string(data)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Exec runs a fragment through the exec lock with its plugin hooks. It may
// be called from any goroutine once the interpreter is ready; calls are
// admitted in the order they were made.
func (c *Controller) Exec(ctx context.Context, s page.Script) error {
	if c.Session() == nil {
		return interpreter.ErrNotLoaded
	}
	code := s.Source
	if s.Src != "" {
		rs := c.resolve(ctx, []page.Script{s})
		if rs[0].err != nil {
			return rs[0].err
		}
		code = rs[0].code
	}
	return c.lock.Do(ctx, func(ctx context.Context) error {
		return c.execute(ctx, s, code)
	})
}

// execute runs one fragment. Engine exceptions are written to stderr and
// under the fragment's target; they do not fail the run.
func (c *Controller) execute(ctx context.Context, s page.Script, code string) error {
	before, after := c.plugins.BeforeScriptExec, c.plugins.AfterScriptExec
	if s.Kind == page.KindRepl {
		before, after = c.plugins.BeforeReplExec, c.plugins.AfterReplExec
	}

	opts := plugin.ExecOptions{ID: s.ID, Source: code, Target: s.Target}
	before(ctx, opts)

	res, err := c.Session().Run(ctx, code, s.Target)
	var ie *interpreter.InterpreterError
	switch {
	case errors.As(err, &ie):
		ScriptExecutions.WithLabelValues(string(s.Kind), OutcomeInterpreter).Inc()
		c.showTraceback(s, ie)
		opts.Error = ie.Error()
		after(ctx, opts)
		return nil
	case err != nil:
		if !usererr.Is(err) {
			ScriptExecutions.WithLabelValues(string(s.Kind), OutcomeError).Inc()
			return fmt.Errorf("run %s: %w", s.ID, err)
		}
		opts.Error = err.Error()
		after(ctx, opts)
		return err
	}

	ScriptExecutions.WithLabelValues(string(s.Kind), OutcomeOK).Inc()
	if s.Kind == page.KindRepl && res.Result != nil && s.Target != "" {
		if derr := c.page.Append(s.Target, fmt.Sprint(res.Result)); derr != nil {
			c.logger.Warn("display result failed", "script", s.ID, "error", derr)
		}
	}
	opts.Result = res.Result
	after(ctx, opts)
	return nil
}

func (c *Controller) showTraceback(s page.Script, ie *interpreter.InterpreterError) {
	text := ie.Message
	if ie.Traceback != "" && ie.Traceback != ie.Message {
		text += "\n" + ie.Traceback
	}
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		_ = c.stdio.StderrWriteline(line)
		if s.Target != "" {
			if err := c.page.AppendClass(s.Target, line, ErrorClass); err != nil {
				c.logger.Warn("display traceback failed", "script", s.ID, "error", err)
			}
		}
	}
}
