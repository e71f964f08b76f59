package htmlscan

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	blankLines = regexp.MustCompile(`\n{3,}`)
	spaceRun   = regexp.MustCompile(`[ \t\r\n\f]+`)
)

// Parse reads an HTML document
func Parse(r io.Reader) (*html.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// ParseString parses an HTML document held in a string
func ParseString(s string) (*html.Node, error) {
	return Parse(strings.NewReader(s))
}

// RenderText converts a document or subtree to plain text. Subtrees for
// which hide returns true are left out, as are preformatted code and
// non-content elements.
func RenderText(doc *html.Node, hide func(*html.Node) bool) string {
	return BuildIndex(doc, IndexConfig{Hide: hide}).Text()
}

// visibleText returns the text of a subtree with <br> and block elements
// rendered as line breaks.
func visibleText(n *html.Node) string {
	return RenderText(n, nil)
}

func prevElement(n *html.Node) *html.Node {
	for p := n.PrevSibling; p != nil; p = p.PrevSibling {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

func cleanLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	out := strings.Join(lines, "\n")
	out = blankLines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

func isBlock(n *html.Node) bool {
	switch n.Data {
	case "p", "div", "li", "ul", "ol", "tr", "table", "h1", "h2", "h3", "h4", "h5", "h6",
		"section", "article", "blockquote", "pre", "hr", "dl", "dt", "dd", "figure",
		"figcaption", "header", "footer", "caption":
		return true
	}
	return false
}
