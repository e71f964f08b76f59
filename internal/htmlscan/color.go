package htmlscan

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/a3tai/mcp-exam-extractor/internal/extract"
	"github.com/a3tai/mcp-exam-extractor/internal/rules"
)

// ColorClass is the meaning of a colored span
type ColorClass int

const (
	ColorNone ColorClass = iota
	ColorAnswer
	ColorExplanation
)

// String returns the class name
func (c ColorClass) String() string {
	switch c {
	case ColorAnswer:
		return "answer"
	case ColorExplanation:
		return "explanation"
	default:
		return "none"
	}
}

// ColorResult holds the per-question answer and explanation streams
type ColorResult struct {
	Streams  map[string]extract.Streams `json:"streams"`
	Spans    int                        `json:"spans"`
	Orphaned int                        `json:"orphaned"`
	Warnings []string                   `json:"warnings,omitempty"`
}

// ColorExtractor classifies inline-styled text by its color
type ColorExtractor struct {
	answer      map[string]bool
	explanation map[string]bool
	maxHops     int
	minContent  int
}

// NewColorExtractor creates an extractor for the color sets in r
func NewColorExtractor(r *rules.Rules, maxHops int) *ColorExtractor {
	return &ColorExtractor{
		answer:      rules.ColorSet(r.Colors.Answer),
		explanation: rules.ColorSet(r.Colors.Explanation),
		maxHops:     maxHops,
		minContent:  extract.DefaultMinContentChars,
	}
}

// SetMinContent sets the question text length an anchor needs
func (e *ColorExtractor) SetMinContent(n int) {
	e.minContent = n
}

// Classify returns the class of an inline element from its style color or
// font color attribute.
func (e *ColorExtractor) Classify(n *html.Node) ColorClass {
	if n.Type != html.ElementNode || !isInline(n) {
		return ColorNone
	}
	color := ""
	if n.Data == "font" {
		color = rules.NormalizeColor(attr(n, "color"))
	}
	if c := styleColor(attr(n, "style")); c != "" {
		color = c
	}
	switch {
	case color == "":
		return ColorNone
	case e.answer[color]:
		return ColorAnswer
	case e.explanation[color]:
		return ColorExplanation
	}
	return ColorNone
}

// Skip reports whether n is a classified span. Classified spans never
// hold question anchors.
func (e *ColorExtractor) Skip(n *html.Node) bool {
	return e.Classify(n) != ColorNone
}

// Hide reports whether a classified span is left out of the rendered text.
// Explanation spans always are. Answer spans stay when they hold a whole
// choice line such as "② 엑셀", so a colored correct option remains one of
// the question's choices.
func (e *ColorExtractor) Hide(n *html.Node) bool {
	switch e.Classify(n) {
	case ColorExplanation:
		return true
	case ColorAnswer:
		return !extract.IsChoiceLine(visibleText(n))
	}
	return false
}

// IndexConfig returns the anchor settings matching this extractor
func (e *ColorExtractor) IndexConfig() IndexConfig {
	return IndexConfig{MaxHops: e.maxHops, MinContent: e.minContent, Skip: e.Skip, Hide: e.Hide}
}

// Extract builds an index for doc and collects the color streams
func (e *ColorExtractor) Extract(doc *html.Node) ColorResult {
	return e.ExtractIndexed(doc, BuildIndex(doc, e.IndexConfig()))
}

// ExtractIndexed collects color streams using an existing index. Spans are
// visited in document order; nested spans inside a classified span are part
// of its text and are not classified again.
func (e *ColorExtractor) ExtractIndexed(doc *html.Node, ix *Index) ColorResult {
	result := ColorResult{Streams: make(map[string]extract.Streams)}
	type parts struct{ answer, explanation []string }
	collected := make(map[string]*parts)
	var order []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if isOpaque(n) {
				return
			}
			if class := e.Classify(n); class != ColorNone {
				text := strings.TrimSpace(visibleText(n))
				if text == "" {
					return
				}
				result.Spans++
				qno, ok := ix.Locate(n)
				if !ok {
					result.Orphaned++
					result.Warnings = append(result.Warnings,
						fmt.Sprintf("orphaned %s text %q: no question anchor within %d hops", class, truncate(text, 40), ix.MaxHops()))
					return
				}
				p := collected[qno]
				if p == nil {
					p = &parts{}
					collected[qno] = p
					order = append(order, qno)
				}
				if class == ColorAnswer {
					p.answer = append(p.answer, text)
				} else {
					p.explanation = append(p.explanation, text)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, qno := range order {
		p := collected[qno]
		result.Streams[qno] = extract.Streams{
			Answer:      strings.Join(p.answer, "\n"),
			Explanation: strings.Join(p.explanation, "\n"),
		}
	}
	return result
}

// styleColor returns the normalized value of the color declaration in an
// inline style, ignoring background-color and similar properties.
func styleColor(style string) string {
	color := ""
	for _, decl := range strings.Split(style, ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "color") {
			color = rules.NormalizeColor(value)
		}
	}
	return color
}

func isInline(n *html.Node) bool {
	switch n.Data {
	case "span", "font", "b", "strong", "em", "i", "u", "mark":
		return true
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
