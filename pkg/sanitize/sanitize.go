// Package sanitize restricts rich-text note bodies to a small allow-listed
// tag set, removing executable or otherwise unsafe markup before it is
// stored, transmitted, or rendered.
//
// The sanitizer is deliberately strict: every attribute is stripped from
// every surviving element (no on* handlers, no href/src), dangerous subtrees
// such as script and style are removed outright, and any element outside the
// allow list is unwrapped so its plain-text content survives while the tag
// itself is dropped. A handful of synonymous tags are normalized to one
// canonical form each so downstream comparison and highlighting only ever
// see a single spelling.
//
// Sanitize is pure and idempotent: Sanitize(Sanitize(x)) == Sanitize(x).
// Any internal failure degrades to a best-effort plain-text strip instead of
// propagating into the render path.
package sanitize

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// allowed is the canonical tag allow list: bold, italic, strikethrough,
// unordered list, list item, line break, and the generic block container.
var allowed = map[string]bool{
	"b":   true,
	"i":   true,
	"s":   true,
	"ul":  true,
	"li":  true,
	"br":  true,
	"div": true,
}

// synonyms maps tags with equivalent semantics onto their canonical form.
var synonyms = map[string]string{
	"strong": "b",
	"em":     "i",
	"del":    "s",
	"strike": "s",
	"p":      "div",
}

// unsafe lists elements whose entire subtree is removed, content included.
// Everything here either executes, styles, or embeds external resources.
var unsafe = map[string]bool{
	"script":   true,
	"style":    true,
	"iframe":   true,
	"frame":    true,
	"object":   true,
	"embed":    true,
	"applet":   true,
	"template": true,
	"noscript": true,
	"link":     true,
	"meta":     true,
	"base":     true,
}

// Sanitize parses raw HTML and returns a safe serialization containing only
// allow-listed elements with no attributes. Unknown elements are replaced by
// their children; unsafe elements are dropped together with their content.
func Sanitize(raw string) (out string) {
	// The render path must never break on hostile input; fall back to a
	// plain-text strip if the parser or renderer misbehaves.
	defer func() {
		if recover() != nil {
			out = StripTags(raw)
		}
	}()

	nodes, err := parseFragment(raw)
	if err != nil {
		return StripTags(raw)
	}

	var b strings.Builder
	for _, n := range nodes {
		render(&b, n)
	}
	return b.String()
}

// parseFragment parses raw as the children of a div container, matching how
// note content is embedded in the board.
func parseFragment(raw string) ([]*html.Node, error) {
	ctx := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	}
	return html.ParseFragment(strings.NewReader(raw), ctx)
}

func render(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(html.EscapeString(n.Data))
	case html.ElementNode:
		name := strings.ToLower(n.Data)
		if canonical, ok := synonyms[name]; ok {
			name = canonical
		}
		if unsafe[name] {
			return
		}
		if !allowed[name] {
			// Tag dropped, children kept.
			renderChildren(b, n)
			return
		}
		if name == "br" {
			b.WriteString("<br/>")
			return
		}
		b.WriteString("<")
		b.WriteString(name)
		b.WriteString(">")
		renderChildren(b, n)
		b.WriteString("</")
		b.WriteString(name)
		b.WriteString(">")
	case html.DocumentNode:
		renderChildren(b, n)
	}
	// Comments and doctypes are dropped.
}

func renderChildren(b *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		render(b, c)
	}
}

// StripTags is the degraded fallback: it discards everything that looks like
// markup and returns escaped plain text. It never fails.
func StripTags(raw string) string {
	var b strings.Builder
	inTag := false
	for _, r := range raw {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return html.EscapeString(b.String())
}
