// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package plugin_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/spf13/afero"

	"github.com/holomush/scriptkit/internal/config"
	"github.com/holomush/scriptkit/internal/interpreter"
	"github.com/holomush/scriptkit/internal/plugin"
	"github.com/holomush/scriptkit/internal/stdio"
)

const announcer = `
local M = {}

function M.configure(opts)
  print("configuring " .. opts.config.name)
end

function M.after_script_exec(opts)
  if opts.error then
    eprint(opts.id .. " failed: " .. opts.error)
  else
    print(opts.id .. " returned " .. tostring(opts.result))
  end
end

return M
`

var _ = Describe("Engine-native plugins in a worker", func() {
	var (
		ctx     context.Context
		session *interpreter.Session
		mu      sync.Mutex
		stdout  []string
		stderr  []string
	)

	lines := func() ([]string, []string) {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), stdout...), append([]string(nil), stderr...)
	}

	BeforeEach(func() {
		ctx = context.Background()
		stdout, stderr = nil, nil

		var err error
		session, err = interpreter.Start(ctx, interpreter.ModeWorker,
			interpreter.WithFetcher(staticFetcher{pluginBase + "announcer.lua": announcer}),
			interpreter.WithFS(afero.NewMemMapFs()),
		)
		Expect(err).NotTo(HaveOccurred())

		out := &interpreter.StdioOutput{
			Stdio: stdio.NewMultiplexer(&stdio.Funcs{
				Stdout: func(line string) error {
					mu.Lock()
					defer mu.Unlock()
					stdout = append(stdout, line)
					return nil
				},
				Stderr: func(line string) error {
					mu.Lock()
					defer mu.Unlock()
					stderr = append(stderr, line)
					return nil
				},
			}),
			DisplayFunc: func(string, string) error { return nil },
		}
		Expect(session.Load(ctx, interpreter.LoadConfig{}, out)).To(Succeed())
	})

	AfterEach(func() {
		Expect(session.Close(ctx)).To(Succeed())
	})

	It("routes hook output through the host stdio", func() {
		p, err := plugin.NewLoader(session).Load(ctx, pluginBase+"announcer.lua")
		Expect(err).NotTo(HaveOccurred())

		m := plugin.NewManager()
		Expect(m.Register(p)).To(Succeed())

		Expect(m.Configure(ctx, plugin.ConfigOptions{Config: config.AppConfig{Name: "demo"}})).To(Succeed())
		m.AfterScriptExec(ctx, plugin.ExecOptions{ID: "frag-1", Result: int64(3)})
		m.AfterScriptExec(ctx, plugin.ExecOptions{ID: "frag-2", Error: "boom"})

		out, errs := lines()
		Expect(out).To(Equal([]string{"configuring demo", "frag-1 returned 3"}))
		Expect(errs).To(Equal([]string{"frag-2 failed: boom"}))
	})

	It("keeps dispatching after the worker is gone", func() {
		p, err := plugin.NewLoader(session).Load(ctx, pluginBase+"announcer.lua")
		Expect(err).NotTo(HaveOccurred())

		var seen []string
		m := plugin.NewManager()
		Expect(m.Register(p)).To(Succeed())
		Expect(m.Register(plugin.HostNative{Plugin: &plugin.Funcs{
			PluginName: "host",
			Set: plugin.Hooks{
				AfterScriptExec: func(context.Context, plugin.ExecOptions) error {
					seen = append(seen, "host")
					return nil
				},
			},
		}})).To(Succeed())

		Expect(session.Close(ctx)).To(Succeed())
		m.AfterScriptExec(ctx, plugin.ExecOptions{ID: "frag-1"})
		Expect(seen).To(Equal([]string{"host"}))
	})
})
