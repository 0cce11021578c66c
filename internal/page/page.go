// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package page models the host page: an HTML document carrying script
// fragments, an optional config block and the elements scripts display
// into.
package page

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/holomush/scriptkit/internal/usererr"
)

// Script tag types.
const (
	TypeScript = "lua"
	TypeRepl   = "lua-repl"
	TypeConfig = "lua-config"
)

// Attributes the page understands.
const (
	attrID       = "id"
	attrType     = "type"
	attrSrc      = "src"
	attrTarget   = "target"
	attrConfig   = "config"
	attrTerminal = "scriptkit-terminal"
)

// ErrNoElement is returned when an id does not name an element.
var ErrNoElement = errors.New("no element with that id")

// Kind says how a fragment is executed.
type Kind string

// Fragment kinds.
const (
	KindScript Kind = "script"
	KindRepl   Kind = "repl"
)

// Script is one executable fragment of the page.
type Script struct {
	ID     string
	Kind   Kind
	Source string
	Src    string
	Target string
}

// Environment describes the security context the page runs in.
type Environment struct {
	// CrossContextIsolated reports whether shared wait/notify cells may be
	// used between the host and a worker thread.
	CrossContextIsolated bool
}

// Option configures Parse.
type Option func(*Page)

// WithEnvironment sets the page environment.
func WithEnvironment(env Environment) Option {
	return func(p *Page) {
		p.env = env
	}
}

// Page is a parsed host page. It is safe for concurrent use; display output
// arrives from the interpreter while the lifecycle is running.
type Page struct {
	mu      sync.Mutex
	doc     *html.Node
	body    *html.Node
	env     Environment
	scripts []Script
	config  *html.Node
}

// Parse reads an HTML document and collects its fragments. Every fragment is
// given an id and a display target; fragments without a target attribute
// get an output element inserted right after them.
func Parse(r io.Reader, opts ...Option) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	p := &Page{doc: doc}
	for _, opt := range opts {
		opt(p)
	}
	p.body = findAtom(doc, atom.Body)
	if p.body == nil {
		return nil, errors.New("parse page: document has no body")
	}

	var scriptNodes []*html.Node
	walk(doc, func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script {
			scriptNodes = append(scriptNodes, n)
		}
	})

	for _, n := range scriptNodes {
		switch attr(n, attrType) {
		case TypeConfig:
			if p.config != nil {
				return nil, usererr.BadConfig("the page has more than one %s block", TypeConfig)
			}
			p.config = n
		case TypeScript:
			p.scripts = append(p.scripts, p.fragment(n, KindScript))
		case TypeRepl:
			p.scripts = append(p.scripts, p.fragment(n, KindRepl))
		}
	}
	return p, nil
}

func (p *Page) fragment(n *html.Node, kind Kind) Script {
	id := attr(n, attrID)
	if id == "" {
		id = NewID()
		setAttr(n, attrID, id)
	}

	target := attr(n, attrTarget)
	if target == "" {
		target = id + "-output"
		out := &html.Node{
			Type:     html.ElementNode,
			Data:     "div",
			DataAtom: atom.Div,
			Attr: []html.Attribute{
				{Key: "id", Val: target},
				{Key: "class", Val: "scriptkit-output"},
			},
		}
		if n.Parent != nil {
			n.Parent.InsertBefore(out, n.NextSibling)
		}
	}

	return Script{
		ID:     id,
		Kind:   kind,
		Source: textContent(n),
		Src:    attr(n, attrSrc),
		Target: target,
	}
}

// Environment returns the environment the page was parsed with.
func (p *Page) Environment() Environment {
	return p.env
}

// Scripts returns the fragments in document order.
func (p *Page) Scripts() []Script {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Script, len(p.scripts))
	copy(out, p.scripts)
	return out
}

// Config returns the config block: a file reference from its config
// attribute and its inline YAML body. Both are empty when the page has no
// config block.
func (p *Page) Config() (file string, inline []byte) {
	if p.config == nil {
		return "", nil
	}
	body := strings.TrimSpace(textContent(p.config))
	if body != "" {
		inline = []byte(body)
	}
	return attr(p.config, attrConfig), inline
}

// Terminals returns the ids of elements that mirror interpreter output.
func (p *Page) Terminals() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []string
	walk(p.doc, func(n *html.Node) {
		if n.Type != html.ElementNode || !hasAttr(n, attrTerminal) {
			return
		}
		id := attr(n, attrID)
		if id == "" {
			id = NewID()
			setAttr(n, attrID, id)
		}
		ids = append(ids, id)
	})
	return ids
}

// Find reports whether an element with the given id exists.
func (p *Page) Find(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.find(id) != nil
}

func (p *Page) find(id string) *html.Node {
	var found *html.Node
	walk(p.doc, func(n *html.Node) {
		if found == nil && n.Type == html.ElementNode && attr(n, attrID) == id {
			found = n
		}
	})
	return found
}

// Append adds a line of text to the element with the given id. The text is
// escaped when rendered.
func (p *Page) Append(id, text string) error {
	return p.appendLine(id, text, "")
}

// AppendClass is Append with a class on the inserted line.
func (p *Page) AppendClass(id, text, class string) error {
	return p.appendLine(id, text, class)
}

func (p *Page) appendLine(id, text, class string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	el := p.find(id)
	if el == nil {
		return fmt.Errorf("%w: %q", ErrNoElement, id)
	}
	line := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	if class != "" {
		line.Attr = []html.Attribute{{Key: "class", Val: class}}
	}
	line.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	el.AppendChild(line)
	return nil
}

// Text returns the text content of the element with the given id.
func (p *Page) Text(id string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	el := p.find(id)
	if el == nil {
		return "", fmt.Errorf("%w: %q", ErrNoElement, id)
	}
	return textContent(el), nil
}

// Render writes the page, with everything displayed into it, as HTML.
func (p *Page) Render(w io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := html.Render(w, p.doc); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}

func findAtom(n *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) {
		if found == nil && c.Type == html.ElementNode && c.DataAtom == a {
			found = c
		}
	})
	return found
}

// walk visits n and its descendants in document order.
func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}
