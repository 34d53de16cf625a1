package docs

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Line styles for rendered documents.
const (
	styleBody = iota
	styleH1
	styleH2
	styleH3
	styleBullet
	styleCode
)

// docLine is one renderable line of a generated document.
type docLine struct {
	Text  string
	Style int
}

// parseMarkdown walks the goldmark AST and flattens the document into
// styled lines for the PDF and RTF writers.
func parseMarkdown(markdown string) ([]docLine, error) {
	src := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var lines []docLine
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Heading:
			lines = append(lines, docLine{Text: stripInline(blockText(v, src)), Style: headingStyle(v.Level)})
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph:
			if insideListItem(n) {
				return ast.WalkSkipChildren, nil
			}
			lines = append(lines, docLine{Text: stripInline(blockText(v, src)), Style: styleBody})
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			lines = append(lines, docLine{Text: stripInline(listItemText(v, src)), Style: styleBullet})
			// Walk on: nested lists under this item still produce lines.
			return ast.WalkContinue, nil
		case *ast.FencedCodeBlock:
			for i := 0; i < v.Lines().Len(); i++ {
				seg := v.Lines().At(i)
				lines = append(lines, docLine{Text: strings.TrimRight(string(seg.Value(src)), "\n"), Style: styleCode})
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	out := lines[:0]
	for _, l := range lines {
		if l.Text != "" || l.Style == styleCode {
			out = append(out, l)
		}
	}
	return out, nil
}

func headingStyle(level int) int {
	switch level {
	case 1:
		return styleH1
	case 2:
		return styleH2
	default:
		return styleH3
	}
}

func insideListItem(n ast.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if _, ok := p.(*ast.ListItem); ok {
			return true
		}
	}
	return false
}

// blockText joins a block node's source lines.
func blockText(n ast.Node, src []byte) string {
	var b strings.Builder
	for i := 0; i < n.Lines().Len(); i++ {
		seg := n.Lines().At(i)
		b.Write(seg.Value(src))
		b.WriteByte(' ')
	}
	return strings.TrimSpace(b.String())
}

// listItemText returns the item's own text, excluding nested lists.
func listItemText(n ast.Node, src []byte) string {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c.(type) {
		case *ast.TextBlock, *ast.Paragraph:
			return blockText(c, src)
		}
	}
	return ""
}

var (
	inlineLinkRe   = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	inlineMarkerRe = regexp.MustCompile("[*_`]+")
)

// stripInline removes inline markdown decoration, keeping the visible text.
func stripInline(s string) string {
	s = inlineLinkRe.ReplaceAllString(s, "$1")
	s = inlineMarkerRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
