// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package page_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/scriptkit/internal/page"
	"github.com/holomush/scriptkit/internal/stdio"
	"github.com/holomush/scriptkit/internal/usererr"
	"github.com/holomush/scriptkit/pkg/errutil"
)

const demoPage = `<!doctype html>
<html>
<head><title>demo</title></head>
<body>
  <h1>Demo</h1>
  <script type="lua-config">
name: demo
packages: [greet]
  </script>
  <script type="lua" id="first">print("hi")</script>
  <div id="out"></div>
  <script type="lua" target="out">return 1</script>
  <script type="lua" src="lib/main.lua"></script>
  <script type="lua-repl" id="repl">x = 1</script>
  <script type="text/javascript">ignored()</script>
  <pre id="term" scriptkit-terminal></pre>
</body>
</html>`

func parse(t *testing.T, src string, opts ...page.Option) *page.Page {
	t.Helper()
	p, err := page.Parse(strings.NewReader(src), opts...)
	require.NoError(t, err)
	return p
}

func TestParse_Scripts(t *testing.T) {
	p := parse(t, demoPage)

	scripts := p.Scripts()
	require.Len(t, scripts, 4)

	assert.Equal(t, "first", scripts[0].ID)
	assert.Equal(t, page.KindScript, scripts[0].Kind)
	assert.Equal(t, `print("hi")`, scripts[0].Source)
	assert.Equal(t, "first-output", scripts[0].Target)
	assert.True(t, p.Find("first-output"), "an output element is inserted for fragments without a target")

	assert.True(t, strings.HasPrefix(scripts[1].ID, "sk-"), "generated id %q", scripts[1].ID)
	assert.Equal(t, "out", scripts[1].Target)
	assert.False(t, p.Find(scripts[1].ID+"-output"))

	assert.Equal(t, "lib/main.lua", scripts[2].Src)
	assert.Empty(t, strings.TrimSpace(scripts[2].Source))

	assert.Equal(t, page.KindRepl, scripts[3].Kind)
	assert.Equal(t, "repl", scripts[3].ID)
}

func TestParse_GeneratedIDsAreUnique(t *testing.T) {
	p := parse(t, `<body><script type="lua">a()</script><script type="lua">b()</script></body>`)
	scripts := p.Scripts()
	require.Len(t, scripts, 2)
	assert.NotEqual(t, scripts[0].ID, scripts[1].ID)
	assert.Less(t, scripts[0].ID, scripts[1].ID)
}

func TestParse_Config(t *testing.T) {
	p := parse(t, demoPage)
	file, inline := p.Config()
	assert.Empty(t, file)
	assert.Contains(t, string(inline), "name: demo")

	p = parse(t, `<body><script type="lua-config" config="app.yaml"></script></body>`)
	file, inline = p.Config()
	assert.Equal(t, "app.yaml", file)
	assert.Nil(t, inline)

	p = parse(t, `<body></body>`)
	file, inline = p.Config()
	assert.Empty(t, file)
	assert.Nil(t, inline)
}

func TestParse_TwoConfigBlocks(t *testing.T) {
	_, err := page.Parse(strings.NewReader(
		`<body><script type="lua-config">a: 1</script><script type="lua-config">b: 2</script></body>`))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, usererr.CodeBadConfig)
}

func TestParse_Environment(t *testing.T) {
	p := parse(t, demoPage)
	assert.False(t, p.Environment().CrossContextIsolated)

	p = parse(t, demoPage, page.WithEnvironment(page.Environment{CrossContextIsolated: true}))
	assert.True(t, p.Environment().CrossContextIsolated)
}

func TestPage_AppendEscapes(t *testing.T) {
	p := parse(t, demoPage)

	require.NoError(t, p.Append("out", "<b>bold</b> & more"))
	text, err := p.Text("out")
	require.NoError(t, err)
	assert.Equal(t, "<b>bold</b> & more", text)

	var buf bytes.Buffer
	require.NoError(t, p.Render(&buf))
	assert.Contains(t, buf.String(), "&lt;b&gt;bold&lt;/b&gt; &amp; more")
	assert.NotContains(t, buf.String(), "<b>bold</b>")
}

func TestPage_AppendUnknownID(t *testing.T) {
	p := parse(t, demoPage)
	assert.ErrorIs(t, p.Append("missing", "x"), page.ErrNoElement)
	_, err := p.Text("missing")
	assert.ErrorIs(t, err, page.ErrNoElement)
}

func TestPage_ShowBanner(t *testing.T) {
	p := parse(t, demoPage)

	require.NoError(t, p.ShowBanner(usererr.Info{
		Code:        usererr.CodeFetchError,
		Message:     "fetching <x> failed",
		MessageType: usererr.TypeError,
	}))
	require.NoError(t, p.ShowBanner(usererr.Info{
		Message:     "heads <i>up</i>",
		MessageType: usererr.TypeWarning,
		HTML:        true,
	}))

	assert.Equal(t, []string{"heads up", "(FETCH_ERROR): fetching <x> failed"}, p.Banners())

	var buf bytes.Buffer
	require.NoError(t, p.Render(&buf))
	out := buf.String()
	assert.Contains(t, out, "fetching &lt;x&gt; failed")
	assert.Contains(t, out, "heads <i>up</i>")
	assert.Contains(t, out, `class="scriptkit-banner scriptkit-banner-warning"`)
	assert.Contains(t, out, `class="scriptkit-banner scriptkit-banner-error"`)
	assert.Equal(t, 1, strings.Count(out, "scriptkit-banner-close"), "only warnings are dismissible")
}

func TestTerminals(t *testing.T) {
	p := parse(t, demoPage)
	assert.Equal(t, []string{"term"}, p.Terminals())

	p = parse(t, `<body><pre scriptkit-terminal></pre></body>`)
	ids := p.Terminals()
	require.Len(t, ids, 1)
	assert.Equal(t, ids, p.Terminals(), "generated terminal ids are stable")
}

func TestTargetListener(t *testing.T) {
	p := parse(t, demoPage)
	mux := stdio.NewMultiplexer(&page.TargetListener{Page: p, ID: "term"})

	mux.StdoutWriteline("hello")
	mux.StderrWriteline("warning")

	text, err := p.Text("term")
	require.NoError(t, err)
	assert.Equal(t, "hellowarning", text)

	var buf bytes.Buffer
	require.NoError(t, p.Render(&buf))
	assert.Contains(t, buf.String(), `<div class="scriptkit-stderr">warning</div>`)
}
