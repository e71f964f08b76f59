package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
)

const (
	// DefaultNumberingPattern matches a question-numbering line. Group 1 is the
	// number and group 2 the content that follows it on the same line.
	DefaultNumberingPattern = `^[ \t]*(\d{1,3})\.[ \t]+(.*)$`

	// DefaultMinContentChars is the minimum number of runes that must follow a
	// numbering prefix for the line to start a question. Lower values accept
	// short questions but also page numbers and numbered list items inside
	// explanations; higher values drop questions whose first line wraps early.
	DefaultMinContentChars = 10
)

var pageMarkerPattern = regexp.MustCompile(`(?i)^[ \t]*=+[ \t]*PAGE[ \t]+(\d+)[ \t]*=+[ \t]*$`)

// SegmenterConfig tunes question segmentation
type SegmenterConfig struct {
	NumberingPattern string
	MinContentChars  int
}

// DefaultSegmenterConfig returns the default segmentation settings
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		NumberingPattern: DefaultNumberingPattern,
		MinContentChars:  DefaultMinContentChars,
	}
}

// Block is the text of one question as it appears in the document
type Block struct {
	Number   int      `json:"number"`
	QNo      string   `json:"q_no"`
	Text     string   `json:"text"`    // starts at the numbering line
	Content  string   `json:"content"` // Text without the numbering prefix
	Line     int      `json:"line"`    // 1-based line of the numbering line
	Pages    []int    `json:"pages,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// SegmentResult is the ordered list of question blocks for a document
type SegmentResult struct {
	Blocks   []Block  `json:"blocks"`
	Warnings []string `json:"warnings,omitempty"`
	Fallback bool     `json:"fallback"`
}

// Segmenter splits document text into per-question blocks
type Segmenter struct {
	config    SegmenterConfig
	numbering *regexp.Regexp
}

// NewSegmenter creates a segmenter with the given configuration
func NewSegmenter(config SegmenterConfig) (*Segmenter, error) {
	if config.NumberingPattern == "" {
		config.NumberingPattern = DefaultNumberingPattern
	}
	if config.MinContentChars < 0 {
		return nil, errors.New("minimum content length cannot be negative")
	}
	re, err := regexp.Compile(config.NumberingPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid numbering pattern: %w", err)
	}
	if re.NumSubexp() < 2 {
		return nil, errors.New("numbering pattern needs a number group and a content group")
	}
	return &Segmenter{config: config, numbering: re}, nil
}

// Config returns the segmenter configuration
func (s *Segmenter) Config() SegmenterConfig {
	return s.config
}

// Segment splits text into question blocks in document order. Page marker
// lines are removed from block text and recorded in Block.Pages. If no
// numbering line qualifies, the whole document becomes a single block and a
// warning is recorded.
func (s *Segmenter) Segment(text string) SegmentResult {
	text = norm.NFC.String(strings.ReplaceAll(text, "\r\n", "\n"))
	lines := strings.Split(text, "\n")

	var (
		result  SegmentResult
		current *Block
		body    []string
		page    int
		all     []string
		allPage []int
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.TrimRight(strings.Join(body, "\n"), " \t\n")
		current.Content = s.stripNumbering(current.Text)
		result.Blocks = append(result.Blocks, *current)
		current = nil
		body = nil
	}

	for i, line := range lines {
		if m := pageMarkerPattern.FindStringSubmatch(line); m != nil {
			page, _ = strconv.Atoi(m[1])
			allPage = appendPage(allPage, page)
			if current != nil {
				current.Pages = appendPage(current.Pages, page)
			}
			continue
		}
		all = append(all, line)

		if n, ok := s.matchNumbering(line); ok {
			flush()
			current = &Block{Number: n, QNo: exam.FormatQNo(n), Line: i + 1}
			if page > 0 {
				current.Pages = []int{page}
			}
			body = []string{strings.TrimLeft(line, " \t")}
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()

	if len(result.Blocks) > 0 {
		return result
	}

	whole := strings.TrimSpace(strings.Join(all, "\n"))
	if whole == "" {
		result.Warnings = append(result.Warnings, "document is empty")
		return result
	}
	warning := "no question numbering found; whole document treated as one block"
	result.Fallback = true
	result.Warnings = append(result.Warnings, warning)
	result.Blocks = []Block{{
		Number:   1,
		QNo:      exam.FormatQNo(1),
		Text:     whole,
		Content:  whole,
		Line:     1,
		Pages:    allPage,
		Warnings: []string{warning},
	}}
	return result
}

// matchNumbering reports whether line starts a question and returns its number
func (s *Segmenter) matchNumbering(line string) (int, bool) {
	m := s.numbering.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	if utf8.RuneCountInString(strings.TrimSpace(m[2])) < s.config.MinContentChars {
		return 0, false
	}
	return n, true
}

// stripNumbering removes the numbering prefix from the first line of a block
func (s *Segmenter) stripNumbering(text string) string {
	first, rest, hasRest := strings.Cut(text, "\n")
	m := s.numbering.FindStringSubmatchIndex(first)
	if m == nil {
		return text
	}
	content := first[m[4]:m[5]]
	if hasRest {
		return strings.TrimSpace(content + "\n" + rest)
	}
	return strings.TrimSpace(content)
}

func appendPage(pages []int, page int) []int {
	for _, p := range pages {
		if p == page {
			return pages
		}
	}
	return append(pages, page)
}
