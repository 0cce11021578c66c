// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/scriptkit/internal/bridge"
	"github.com/holomush/scriptkit/internal/fetch"
	"github.com/holomush/scriptkit/internal/interpreter"
	"github.com/holomush/scriptkit/internal/lifecycle"
	"github.com/holomush/scriptkit/internal/observability"
	"github.com/holomush/scriptkit/internal/page"
	"github.com/holomush/scriptkit/internal/plugin"
	"github.com/holomush/scriptkit/internal/stdio"
)

// assets is what the test HTTP server serves, keyed by path.
var assets = map[string]string{
	"/index/greet.lua": `return { hello = function(who) return "hello " .. who end }`,
	"/data/words.txt":  "alpha beta",
	"/two.lua":         `scriptkit.display(scriptkit.read_file("/home/data/words.txt"))`,
	"/counter.lua": `
runs = 0
local M = {}
function M.after_script_exec(opts) runs = runs + 1 end
return M
`,
}

func pageSource(base, thread string) string {
	return fmt.Sprintf(`<!doctype html>
<html><body>
<script type="lua-config">
name: integration
execution_thread: %[2]s
index_url: %[1]s/index
packages: [greet]
plugins: ["%[1]s/counter.lua"]
fetch:
  - from: %[1]s/data
    to_folder: /home/data
    files: [words.txt]
</script>
<script type="lua" id="one">
local greet = require("greet")
print("stdout line")
scriptkit.display(greet.hello("page"))
</script>
<script type="lua" id="two" src="%[1]s/two.lua"></script>
<script type="lua" id="broken">error("kaboom")</script>
<script type="lua-repl" id="repl">return 6 * 7</script>
<pre id="term" scriptkit-terminal></pre>
</body></html>`, base, thread)
}

// lines collects what scripts write to stdout and stderr.
type lines struct {
	mu     sync.Mutex
	stdout []string
	stderr []string
}

func (l *lines) listener() stdio.Listener {
	return &stdio.Funcs{
		Stdout: func(line string) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.stdout = append(l.stdout, line)
			return nil
		},
		Stderr: func(line string) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.stderr = append(l.stderr, line)
			return nil
		},
	}
}

func (l *lines) snapshot() ([]string, []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.stdout...), append([]string(nil), l.stderr...)
}

var _ = Describe("Page run", func() {
	var (
		srv  *httptest.Server
		hits *sync.Map
	)

	BeforeEach(func() {
		hits = &sync.Map{}
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, ok := assets[r.URL.Path]
			if !ok {
				http.NotFound(w, r)
				return
			}
			hits.Store(r.URL.Path, true)
			_, _ = io.WriteString(w, body)
		}))
		DeferCleanup(srv.Close)
	})

	run := func(thread string) (*lifecycle.Controller, *page.Page, *lines) {
		p, err := page.Parse(strings.NewReader(pageSource(srv.URL, thread)),
			page.WithEnvironment(page.Environment{CrossContextIsolated: true}))
		Expect(err).NotTo(HaveOccurred())

		out := &lines{}
		ctrl := lifecycle.New(p,
			lifecycle.WithPlugins(plugin.NewManager()),
			lifecycle.WithStdio(stdio.NewMultiplexer(out.listener())),
			lifecycle.WithFetcher(fetch.New(
				fetch.WithHTTPClient(srv.Client()),
				fetch.WithRetry(2, 10*time.Millisecond),
			)),
		)
		DeferCleanup(func() { _ = ctrl.Close(context.Background()) })

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		Expect(ctrl.Main(ctx)).To(Succeed())
		return ctrl, p, out
	}

	for _, thread := range []string{"main", "worker"} {
		Context("on the "+thread+" thread", func() {
			It("runs every fragment in order and reaches ready", func() {
				ctrl, p, out := run(thread)

				Expect(ctrl.State()).To(Equal(lifecycle.StateReady))
				Expect(p.Banners()).To(BeEmpty())
				if thread == "worker" {
					Expect(ctrl.Session().Mode()).To(Equal(interpreter.ModeWorker))
				} else {
					Expect(ctrl.Session().Mode()).To(Equal(interpreter.ModeMain))
				}

				Expect(p.Text("one-output")).To(Equal("hello page"))
				Expect(p.Text("two-output")).To(Equal("alpha beta"))
				Expect(p.Text("repl-output")).To(Equal("42"))
				Expect(p.Text("broken-output")).To(ContainSubstring("kaboom"))

				stdout, stderr := out.snapshot()
				Expect(stdout).To(Equal([]string{"stdout line"}))
				Expect(strings.Join(stderr, "\n")).To(ContainSubstring("kaboom"))
				Expect(p.Text("term")).To(HavePrefix("stdout line"))

				for _, path := range []string{"/index/greet.lua", "/data/words.txt", "/two.lua", "/counter.lua"} {
					_, ok := hits.Load(path)
					Expect(ok).To(BeTrue(), "expected a request for %s", path)
				}

				res, err := ctrl.Session().Run(context.Background(), "return runs", "")
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Result).To(BeEquivalentTo(3), "the user plugin saw every script fragment")

				var buf bytes.Buffer
				Expect(p.Render(&buf)).To(Succeed())
				Expect(buf.String()).To(ContainSubstring(`class="` + lifecycle.ErrorClass + `"`))
			})
		})
	}

	It("serves run metrics and status over the observability server", func() {
		var ctrl *lifecycle.Controller
		obs, err := observability.NewServer("127.0.0.1:0",
			func() bool { return ctrl != nil && ctrl.State() == lifecycle.StateReady },
			bridge.RegisterMetrics,
			plugin.RegisterMetrics,
			lifecycle.RegisterMetrics,
		)
		Expect(err).NotTo(HaveOccurred())
		_, err = obs.Start()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = obs.Stop(context.Background()) })

		ctrl, _, _ = run("main")
		obs.SetReportFunc(func() observability.Report {
			return observability.Report{Phase: ctrl.State().String()}
		})

		get := func(path string) (int, string) {
			resp, err := http.Get("http://" + obs.Addr() + path) //nolint:noctx // test helper
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = resp.Body.Close() }()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			return resp.StatusCode, string(body)
		}

		code, _ := get("/healthz/readiness")
		Expect(code).To(Equal(http.StatusOK))

		code, body := get("/status")
		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`{"phase":"ready"}`))

		_, body = get("/metrics")
		Expect(body).To(ContainSubstring("scriptkit_lifecycle_phase_duration_seconds"))
		Expect(body).To(ContainSubstring("scriptkit_script_executions_total"))
	})
})
