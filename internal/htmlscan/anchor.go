// Package htmlscan extracts color-coded answers and artifacts from rendered
// exam pages. A single document-order walk renders the text and builds an
// anchor index; question blocks and every extractor resolve through it.
package htmlscan

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
	"github.com/a3tai/mcp-exam-extractor/internal/extract"
)

// DefaultAnchorHops bounds the backward search from a node to its anchor
const DefaultAnchorHops = 10

var anchorPattern = regexp.MustCompile(`^\s*(\d{1,3})\.(?:\s|$)`)

// Anchor is a text node that starts a question
type Anchor struct {
	Number int
	QNo    string
	Node   *html.Node
	seq    int
	offset int // start of the node in the rendered text
}

// IndexConfig controls anchor detection and text rendering
type IndexConfig struct {
	// MaxHops bounds Locate; zero means DefaultAnchorHops
	MaxHops int
	// MinContent is the number of runes that must follow a question number,
	// on its line or on the next line when the number stands alone
	MinContent int
	// Skip marks subtrees that cannot hold anchors
	Skip func(*html.Node) bool
	// Hide marks subtrees left out of the rendered text
	Hide func(*html.Node) bool
}

// Index records document order, the rendered text and the anchor
// positions for one document
type Index struct {
	anchors []Anchor
	seq     map[*html.Node]int
	end     map[*html.Node]int
	raw     string
	maxHops int
}

// BuildIndex walks doc once in document order, rendering its text and
// collecting anchors. A numbered text node is an anchor only when at least
// cfg.MinContent runes of question text follow it. pre, code, script and
// style subtrees never hold anchors and are not rendered.
func BuildIndex(doc *html.Node, cfg IndexConfig) *Index {
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = DefaultAnchorHops
	}
	ix := &Index{
		seq:     make(map[*html.Node]int),
		end:     make(map[*html.Node]int),
		maxHops: cfg.MaxHops,
	}

	var (
		sb         strings.Builder
		candidates []Anchor
		next       int
	)
	var walk func(n *html.Node, skipped, muted bool)
	walk = func(n *html.Node, skipped, muted bool) {
		ix.seq[n] = next
		next++

		rendered := false
		switch n.Type {
		case html.ElementNode:
			opaque := isOpaque(n)
			if !skipped && (opaque || (cfg.Skip != nil && cfg.Skip(n))) {
				skipped = true
			}
			if muted {
				break
			}
			if opaque || (cfg.Hide != nil && cfg.Hide(n)) {
				if isBlock(n) {
					sb.WriteByte('\n')
				}
				muted = true
				break
			}
			switch n.Data {
			case "br":
				sb.WriteByte('\n')
			case "td", "th":
				if prevElement(n) != nil {
					sb.WriteString(" | ")
				}
			}
			if isBlock(n) {
				sb.WriteByte('\n')
			}
			rendered = true
		case html.TextNode:
			if muted {
				break
			}
			offset := sb.Len()
			sb.WriteString(spaceRun.ReplaceAllString(n.Data, " "))
			if skipped {
				break
			}
			if m := anchorPattern.FindStringSubmatch(n.Data); m != nil {
				if num, err := strconv.Atoi(m[1]); err == nil && num > 0 {
					candidates = append(candidates, Anchor{
						Number: num,
						QNo:    exam.FormatQNo(num),
						Node:   n,
						seq:    ix.seq[n],
						offset: offset,
					})
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skipped, muted)
		}
		if rendered && isBlock(n) {
			sb.WriteByte('\n')
		}
		ix.end[n] = next - 1
	}
	walk(doc, false, false)

	ix.raw = sb.String()
	for _, a := range candidates {
		if utf8.RuneCountInString(questionLead(ix.raw[a.offset:])) >= cfg.MinContent {
			ix.anchors = append(ix.anchors, a)
		}
	}
	return ix
}

// questionLead returns the text that follows the number at the start of
// rest: the remainder of its line, or the next non-blank line when the
// number stands alone. A following line that is itself numbered gives "".
func questionLead(rest string) string {
	line, after, _ := strings.Cut(rest, "\n")
	if loc := anchorPattern.FindStringIndex(line); loc != nil {
		line = line[loc[1]:]
	}
	if lead := strings.TrimSpace(line); lead != "" {
		return lead
	}
	for after != "" {
		line, after, _ = strings.Cut(after, "\n")
		lead := strings.TrimSpace(line)
		if lead == "" {
			continue
		}
		if anchorPattern.MatchString(lead) {
			return ""
		}
		return lead
	}
	return ""
}

// Text returns the rendered document text. Block elements and <br> become
// line breaks and table cells are separated by " | ".
func (ix *Index) Text() string {
	return cleanLines(ix.raw)
}

// Blocks cuts the rendered text at the anchors. Each block runs from its
// anchor to the next one; text before the first anchor belongs to none.
func (ix *Index) Blocks() []extract.Block {
	blocks := make([]extract.Block, 0, len(ix.anchors))
	for i, a := range ix.anchors {
		end := len(ix.raw)
		if i+1 < len(ix.anchors) {
			end = ix.anchors[i+1].offset
		}
		text := cleanLines(ix.raw[a.offset:end])
		blocks = append(blocks, extract.Block{
			Number:  a.Number,
			QNo:     a.QNo,
			Text:    text,
			Content: strings.TrimSpace(anchorPattern.ReplaceAllString(text, "")),
			Line:    ix.lineAt(a.offset),
		})
	}
	return blocks
}

// lineAt returns the 1-based line of offset in Text
func (ix *Index) lineAt(offset int) int {
	before := cleanLines(ix.raw[:offset])
	if before == "" {
		return 1
	}
	return strings.Count(before, "\n") + 2
}

// Anchors returns the anchors in document order
func (ix *Index) Anchors() []Anchor {
	return ix.anchors
}

// MaxHops returns the hop bound used by Locate
func (ix *Index) MaxHops() int {
	return ix.maxHops
}

// Locate searches backward from n through preceding siblings and ancestors
// for the nearest anchor. Each step to a sibling or parent is one hop; blank
// text and comments are not counted. ok is false when no anchor is found
// within the hop bound.
func (ix *Index) Locate(n *html.Node) (qno string, ok bool) {
	target, found := ix.seq[n]
	if !found {
		return "", false
	}

	cur := n
	for hops := 0; hops <= ix.maxHops; hops++ {
		if a, hit := ix.lastAnchorIn(cur, target); hit {
			return a.QNo, true
		}
		if prev := prevSignificant(cur); prev != nil {
			cur = prev
		} else if cur.Parent != nil {
			cur = cur.Parent
		} else {
			break
		}
	}
	return "", false
}

// lastAnchorIn returns the last anchor inside the subtree of n that does
// not come after target in document order.
func (ix *Index) lastAnchorIn(n *html.Node, target int) (Anchor, bool) {
	lo := ix.seq[n]
	hi := ix.end[n]
	if target < hi {
		hi = target
	}
	i := sort.Search(len(ix.anchors), func(i int) bool { return ix.anchors[i].seq > hi }) - 1
	if i < 0 || ix.anchors[i].seq < lo {
		return Anchor{}, false
	}
	return ix.anchors[i], true
}

// ContainsAnchor reports whether the subtree of n holds an anchor
func (ix *Index) ContainsAnchor(n *html.Node) bool {
	lo, ok := ix.seq[n]
	if !ok {
		return false
	}
	hi := ix.end[n]
	i := sort.Search(len(ix.anchors), func(i int) bool { return ix.anchors[i].seq >= lo })
	return i < len(ix.anchors) && ix.anchors[i].seq <= hi
}

func prevSignificant(n *html.Node) *html.Node {
	for p := n.PrevSibling; p != nil; p = p.PrevSibling {
		switch p.Type {
		case html.CommentNode, html.DoctypeNode:
			continue
		case html.TextNode:
			if strings.TrimSpace(p.Data) == "" {
				continue
			}
		}
		return p
	}
	return nil
}

// isOpaque reports elements whose text never holds a question number
func isOpaque(n *html.Node) bool {
	switch n.Data {
	case "pre", "code", "script", "style", "noscript", "textarea", "head":
		return true
	case "table":
		return isCodeTable(n)
	}
	return false
}

func isCodeTable(n *html.Node) bool {
	class := strings.ToLower(attr(n, "class"))
	for _, marker := range []string{"code", "hljs", "highlight", "syntax", "colorscripter"} {
		if strings.Contains(class, marker) {
			return true
		}
	}
	return false
}
