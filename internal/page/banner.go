// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package page

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/holomush/scriptkit/internal/usererr"
)

// BannerClass is set on every banner element.
const BannerClass = "scriptkit-banner"

// ShowBanner puts a user error at the top of the body. The message is
// escaped unless the error opted into HTML. Warnings get a close button;
// errors cannot be dismissed.
func (p *Page) ShowBanner(info usererr.Info) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	kind := string(info.MessageType)
	if kind == "" {
		kind = string(usererr.TypeError)
	}
	banner := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "class", Val: BannerClass + " " + BannerClass + "-" + kind},
			{Key: "role", Val: "alert"},
		},
	}

	text := usererr.BannerText(info)
	if info.HTML {
		nodes, err := html.ParseFragment(strings.NewReader(text), &html.Node{
			Type:     html.ElementNode,
			Data:     "div",
			DataAtom: atom.Div,
		})
		if err != nil {
			return fmt.Errorf("parse banner html: %w", err)
		}
		for _, n := range nodes {
			banner.AppendChild(n)
		}
	} else {
		banner.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}

	if info.MessageType == usererr.TypeWarning {
		closeBtn := &html.Node{
			Type:     html.ElementNode,
			Data:     "button",
			DataAtom: atom.Button,
			Attr: []html.Attribute{
				{Key: "class", Val: BannerClass + "-close"},
				{Key: "onclick", Val: "this.parentElement.remove()"},
			},
		}
		closeBtn.AppendChild(&html.Node{Type: html.TextNode, Data: "×"})
		banner.AppendChild(closeBtn)
	}

	p.body.InsertBefore(banner, p.body.FirstChild)
	return nil
}

// Banners returns the text of every banner shown, top first.
func (p *Page) Banners() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []string
	for c := p.body.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && strings.HasPrefix(attr(c, "class"), BannerClass+" ") {
			var b strings.Builder
			for t := c.FirstChild; t != nil; t = t.NextSibling {
				if t.DataAtom == atom.Button {
					continue
				}
				b.WriteString(textContent(t))
			}
			out = append(out, b.String())
		}
	}
	return out
}
