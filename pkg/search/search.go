// Package search implements diacritic-insensitive substring matching over
// sanitized rich text, plus highlight-span injection for rendering results.
//
// Matching works on a folded form of the text: Unicode-decomposed (NFD),
// combining marks stripped, lowercased. Because folding changes byte
// offsets, FindRanges maintains an index map from the folded copy back to
// the original text so highlights land on the exact original runes.
// Matching is substring-only; there is no tokenization and no fuzzy
// distance.
package search

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

// Fold normalizes text for accent-insensitive comparison: NFD decomposition,
// removal of combining diacritical marks, lowercasing. Fold("Úsek") equals
// Fold("usek").
func Fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Range is a half-open [Start, End) byte range into the original text.
type Range struct {
	Start int
	End   int
}

// FindRanges locates every occurrence of query in text, compared in folded
// form, and returns the matches as byte ranges into the original text.
// Overlapping and adjacent-overlapping occurrences are merged so the result
// is a sorted set of non-overlapping ranges. An empty query matches nothing.
func FindRanges(text, query string) []Range {
	fq := Fold(query)
	if fq == "" {
		return nil
	}

	folded, starts, ends := foldWithMap(text)

	var ranges []Range
	for from := 0; ; {
		i := strings.Index(folded[from:], fq)
		if i < 0 {
			break
		}
		fs := from + i
		fe := fs + len(fq)
		r := Range{Start: starts[fs], End: ends[fe-1]}
		if n := len(ranges); n > 0 && r.Start <= ranges[n-1].End {
			if r.End > ranges[n-1].End {
				ranges[n-1].End = r.End
			}
		} else {
			ranges = append(ranges, r)
		}
		// Advance one folded byte so overlapping hits are still found and
		// then merged, rather than skipped.
		from = fs + 1
	}
	return ranges
}

// foldWithMap folds text while recording, for every byte of the folded copy,
// the start and end byte offsets of the original rune it came from. A rune
// may fold to several bytes (decomposition) or none (a bare combining mark),
// so the map is per folded byte rather than per rune.
func foldWithMap(text string) (folded string, starts, ends []int) {
	var b strings.Builder
	b.Grow(len(text))
	starts = make([]int, 0, len(text))
	ends = make([]int, 0, len(text))

	off := 0
	for _, r := range text {
		size := len(string(r))
		for _, fr := range norm.NFD.String(string(r)) {
			if unicode.Is(unicode.Mn, fr) {
				continue
			}
			n := b.Len()
			b.WriteRune(unicode.ToLower(fr))
			for ; n < b.Len(); n++ {
				starts = append(starts, off)
				ends = append(ends, off+size)
			}
		}
		off += size
	}
	return b.String(), starts, ends
}

// Text extracts the plain text of HTML content: the concatenated character
// data of its text nodes, entities decoded. Matching should run against
// this form rather than the serialized markup, where escaped entities and
// tag names would distort the comparison. Any parse failure degrades to
// returning the content unchanged.
func Text(content string) (out string) {
	defer func() {
		if recover() != nil {
			out = content
		}
	}()

	ctx := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	}
	nodes, err := html.ParseFragment(strings.NewReader(content), ctx)
	if err != nil {
		return content
	}

	var b strings.Builder
	for _, n := range nodes {
		appendText(&b, n)
	}
	return b.String()
}

func appendText(b *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		appendText(b, c)
	}
}

// highlightOpen is injected as a plain style attribute rather than a class:
// the sanitizer strips every attribute from stored content, so class-based
// styling hooks would never survive a round trip through it.
const (
	highlightOpen  = `<span style="background-color:#ffe066;">`
	highlightClose = `</span>`
)

// Highlight walks the text nodes of sanitized HTML content and wraps every
// folded-match of query in an inline highlight span. Markup boundaries and
// attribute values are never touched; only character data is matched. Any
// failure degrades to returning the content unchanged rather than breaking
// the render path.
func Highlight(content, query string) (out string) {
	defer func() {
		if recover() != nil {
			out = content
		}
	}()

	if strings.TrimSpace(query) == "" {
		return content
	}

	ctx := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	}
	nodes, err := html.ParseFragment(strings.NewReader(content), ctx)
	if err != nil {
		return content
	}

	var b strings.Builder
	for _, n := range nodes {
		renderHighlighted(&b, n, query)
	}
	return b.String()
}

func renderHighlighted(b *strings.Builder, n *html.Node, query string) {
	switch n.Type {
	case html.TextNode:
		writeHighlightedText(b, n.Data, query)
	case html.ElementNode:
		if n.Data == "br" {
			b.WriteString("<br/>")
			return
		}
		b.WriteString("<")
		b.WriteString(n.Data)
		b.WriteString(">")
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderHighlighted(b, c, query)
		}
		b.WriteString("</")
		b.WriteString(n.Data)
		b.WriteString(">")
	}
}

func writeHighlightedText(b *strings.Builder, text, query string) {
	ranges := FindRanges(text, query)
	if len(ranges) == 0 {
		b.WriteString(html.EscapeString(text))
		return
	}
	prev := 0
	for _, r := range ranges {
		b.WriteString(html.EscapeString(text[prev:r.Start]))
		b.WriteString(highlightOpen)
		b.WriteString(html.EscapeString(text[r.Start:r.End]))
		b.WriteString(highlightClose)
		prev = r.End
	}
	b.WriteString(html.EscapeString(text[prev:]))
}
