// Package render turns raw assistant text into display blocks.
//
// It is deliberately not a Markdown parser: lines starting with "- " become
// list items, **x** and *x* become strong and emphasis spans by paired
// delimiter substitution, and nothing else is interpreted.
package render

import (
	"regexp"
	"strings"
)

// BlockKind distinguishes paragraphs from list items.
type BlockKind int

const (
	Paragraph BlockKind = iota
	ListItem
)

// SpanStyle is the emphasis applied to a run of text.
type SpanStyle int

const (
	Normal SpanStyle = iota
	Strong
	Emphasis
)

// Span is a run of text with one style.
type Span struct {
	Style SpanStyle
	Text  string
}

// Block is one rendered line. A Paragraph with no spans is a blank line.
type Block struct {
	Kind  BlockKind
	Spans []Span
}

var (
	strongRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	emphasisRe = regexp.MustCompile(`\*([^*]+?)\*`)
)

// Render splits text into blocks. It never fails.
func Render(text string) []Block {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	blocks := make([]Block, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blocks = append(blocks, Block{Kind: Paragraph})
			continue
		}
		kind := Paragraph
		if rest, ok := strings.CutPrefix(line, "- "); ok {
			kind = ListItem
			line = rest
		}
		blocks = append(blocks, Block{Kind: kind, Spans: Inline(line)})
	}
	return blocks
}

// Inline splits one line into styled spans.
func Inline(line string) []Span {
	var spans []Span
	for _, seg := range splitBy(line, strongRe) {
		if seg.matched {
			spans = append(spans, Span{Style: Strong, Text: seg.text})
			continue
		}
		for _, inner := range splitBy(seg.text, emphasisRe) {
			style := Normal
			if inner.matched {
				style = Emphasis
			}
			if inner.text != "" {
				spans = append(spans, Span{Style: style, Text: inner.text})
			}
		}
	}
	return spans
}

type segment struct {
	text    string
	matched bool
}

func splitBy(s string, re *regexp.Regexp) []segment {
	var out []segment
	last := 0
	for _, m := range re.FindAllStringSubmatchIndex(s, -1) {
		if m[0] > last {
			out = append(out, segment{text: s[last:m[0]]})
		}
		out = append(out, segment{text: s[m[2]:m[3]], matched: true})
		last = m[1]
	}
	if last < len(s) {
		out = append(out, segment{text: s[last:]})
	}
	return out
}

// Plain flattens blocks back to text without delimiters, with list items
// prefixed by a bullet.
func Plain(blocks []Block) string {
	var b strings.Builder
	for i, blk := range blocks {
		if i > 0 {
			b.WriteByte('\n')
		}
		if blk.Kind == ListItem {
			b.WriteString("• ")
		}
		for _, sp := range blk.Spans {
			b.WriteString(sp.Text)
		}
	}
	return b.String()
}
