package htmlscan

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
	"github.com/a3tai/mcp-exam-extractor/internal/extract"
	"github.com/a3tai/mcp-exam-extractor/internal/rules"
)

// codeTableSelector matches syntax-highlighter tables that render one code
// line per row next to a line-number gutter.
const codeTableSelector = `table[class*="code"], table[class*="hljs"], table[class*="highlight"], ` +
	`table[class*="syntax"], table[class*="colorscripter"]`

var (
	gutterClasses  = []string{"gutter", "line-number", "linenums", "hljs-ln-n", "ln-num", "lineno"}
	digitsOnly     = regexp.MustCompile(`^\s*\d+\s*$`)
	numberedLine   = regexp.MustCompile(`^\s*(\d+)(?:[:.|]\s?|\s+)`)
	cssDimension   = regexp.MustCompile(`^(\d+)(?:px)?$`)
	leadingNumeric = regexp.MustCompile(`^\s*(\d+)`)
)

// KindStats counts what one artifact pass saw
type KindStats struct {
	Found    int `json:"found"`
	Attached int `json:"attached"`
	Orphaned int `json:"orphaned"`
	Rejected int `json:"rejected"`
}

// ArtifactResult holds the side-files produced by artifact passes. Only the
// side-files of the kinds that ran are non-nil.
type ArtifactResult struct {
	Code     exam.CodeSideFile               `json:"code,omitempty"`
	Images   exam.ImageSideFile              `json:"images,omitempty"`
	Tables   exam.TableSideFile              `json:"tables,omitempty"`
	Stats    map[exam.ArtifactKind]KindStats `json:"stats"`
	Warnings []string                        `json:"warnings,omitempty"`
}

// SideFiles returns the side-files in merge form
func (r ArtifactResult) SideFiles() exam.SideFiles {
	return exam.SideFiles{Code: r.Code, Images: r.Images, Tables: r.Tables}
}

// ArtifactExtractor finds code blocks, images and tables and attaches each
// to the question whose anchor precedes it.
type ArtifactExtractor struct {
	rules     *rules.Rules
	languages []rules.LanguageMatcher
	index     IndexConfig
}

// NewArtifactExtractor creates an extractor using the thresholds and
// language table in r.
func NewArtifactExtractor(r *rules.Rules, maxHops int) *ArtifactExtractor {
	return &ArtifactExtractor{
		rules:     r,
		languages: r.CompileLanguages(),
		index:     IndexConfig{MaxHops: maxHops, MinContent: extract.DefaultMinContentChars},
	}
}

// SetIndexConfig sets the anchor settings used by Extract and ExtractAll
func (e *ArtifactExtractor) SetIndexConfig(cfg IndexConfig) {
	e.index = cfg
}

// Extract runs one artifact pass over doc. Relative image sources are
// resolved against baseURL when it is set.
func (e *ArtifactExtractor) Extract(doc *html.Node, kind exam.ArtifactKind, baseURL string) ArtifactResult {
	return e.ExtractIndexed(doc, BuildIndex(doc, e.index), []exam.ArtifactKind{kind}, baseURL)
}

// ExtractAll runs every artifact pass over one shared index
func (e *ArtifactExtractor) ExtractAll(doc *html.Node, baseURL string) ArtifactResult {
	return e.ExtractIndexed(doc, BuildIndex(doc, e.index), exam.ArtifactKinds(), baseURL)
}

// ExtractIndexed runs the given passes using an existing index
func (e *ArtifactExtractor) ExtractIndexed(doc *html.Node, ix *Index, kinds []exam.ArtifactKind, baseURL string) ArtifactResult {
	result := ArtifactResult{Stats: make(map[exam.ArtifactKind]KindStats)}
	page := goquery.NewDocumentFromNode(doc)

	var base *url.URL
	if baseURL != "" {
		if u, err := url.Parse(baseURL); err == nil {
			base = u
		}
	}

	for _, kind := range kinds {
		result.Stats[kind] = KindStats{}
		switch kind {
		case exam.ArtifactCode:
			result.Code = make(exam.CodeSideFile)
			e.extractCode(page, ix, &result)
		case exam.ArtifactImage:
			result.Images = make(exam.ImageSideFile)
			e.extractImages(page, ix, base, &result)
		case exam.ArtifactTable:
			result.Tables = make(exam.TableSideFile)
			e.extractTables(page, ix, &result)
		}
	}
	return result
}

// locate attaches a node to its question or records it as orphaned
func (e *ArtifactExtractor) locate(ix *Index, n *html.Node, kind exam.ArtifactKind, result *ArtifactResult) (string, bool) {
	stats := result.Stats[kind]
	defer func() { result.Stats[kind] = stats }()

	qno, ok := ix.Locate(n)
	if !ok {
		stats.Orphaned++
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("orphaned %s artifact: no question anchor within %d hops", kind, ix.MaxHops()))
		return "", false
	}
	stats.Attached++
	return qno, true
}

func (e *ArtifactExtractor) reject(kind exam.ArtifactKind, result *ArtifactResult) {
	stats := result.Stats[kind]
	stats.Rejected++
	result.Stats[kind] = stats
}

func (e *ArtifactExtractor) found(kind exam.ArtifactKind, result *ArtifactResult) {
	stats := result.Stats[kind]
	stats.Found++
	result.Stats[kind] = stats
}

func (e *ArtifactExtractor) extractCode(page *goquery.Document, ix *Index, result *ArtifactResult) {
	page.Find("pre, code, " + codeTableSelector).Each(func(_ int, s *goquery.Selection) {
		n := s.Nodes[0]
		if s.ParentsFiltered(codeTableSelector).Length() > 0 {
			return
		}
		if n.Data == "code" && s.ParentsFiltered("pre").Length() > 0 {
			return
		}
		e.found(exam.ArtifactCode, result)

		code := StripGutter(codeText(n))
		if utf8.RuneCountInString(strings.TrimSpace(code)) < e.rules.Thresholds.MinCodeChars {
			e.reject(exam.ArtifactCode, result)
			return
		}
		qno, ok := e.locate(ix, n, exam.ArtifactCode, result)
		if !ok {
			return
		}
		result.Code[qno] = append(result.Code[qno], exam.CodeBlock{
			Language: e.DetectLanguage(code),
			Code:     code,
		})
	})
}

func (e *ArtifactExtractor) extractImages(page *goquery.Document, ix *Index, base *url.URL, result *ArtifactResult) {
	minPixels := e.rules.Thresholds.MinImagePixels
	page.Find("img").Each(func(_ int, s *goquery.Selection) {
		e.found(exam.ArtifactImage, result)

		src := imageSource(s)
		if src == "" || e.ignored(src) {
			e.reject(exam.ArtifactImage, result)
			return
		}
		width, height := imageDimensions(s)
		if (width > 0 && width < minPixels) || (height > 0 && height < minPixels) {
			e.reject(exam.ArtifactImage, result)
			return
		}
		qno, ok := e.locate(ix, s.Nodes[0], exam.ArtifactImage, result)
		if !ok {
			return
		}
		result.Images[qno] = append(result.Images[qno], exam.ImageRef{
			Src:    resolve(base, src),
			Alt:    strings.TrimSpace(s.AttrOr("alt", "")),
			Width:  width,
			Height: height,
		})
	})
}

func (e *ArtifactExtractor) extractTables(page *goquery.Document, ix *Index, result *ArtifactResult) {
	page.Find("table").Each(func(_ int, s *goquery.Selection) {
		if s.Is(codeTableSelector) || s.ParentsFiltered(codeTableSelector).Length() > 0 {
			return
		}
		e.found(exam.ArtifactTable, result)

		// layout tables wrap question anchors
		if ix.ContainsAnchor(s.Nodes[0]) {
			e.reject(exam.ArtifactTable, result)
			return
		}

		var rows [][]string
		s.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
			return tr.Closest("table").IsSelection(s)
		}).Each(func(_ int, tr *goquery.Selection) {
			var cells []string
			tr.ChildrenFiltered("td, th").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, collapseText(cell.Text()))
			})
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
		})
		if len(rows) < e.rules.Thresholds.MinTableRows {
			e.reject(exam.ArtifactTable, result)
			return
		}

		qno, ok := e.locate(ix, s.Nodes[0], exam.ArtifactTable, result)
		if !ok {
			return
		}
		result.Tables[qno] = append(result.Tables[qno], exam.TableRef{
			Caption: collapseText(s.ChildrenFiltered("caption").Text()),
			Rows:    rows,
		})
	})
}

// DetectLanguage labels code with the first matching language rule
func (e *ArtifactExtractor) DetectLanguage(code string) string {
	for _, m := range e.languages {
		if m.Match(code) {
			return m.Label
		}
	}
	return "unknown"
}

func (e *ArtifactExtractor) ignored(src string) bool {
	lower := strings.ToLower(src)
	for _, pattern := range e.rules.IgnoreImages {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// StripGutter removes line-number gutters from extracted code: lines that
// hold only a number are dropped, and a 1..n numbering prefix present on
// every line is removed.
func StripGutter(code string) string {
	code = strings.ReplaceAll(code, "\u00a0", " ")
	code = strings.ReplaceAll(code, "\r\n", "\n")

	var lines []string
	for _, line := range strings.Split(code, "\n") {
		if digitsOnly.MatchString(line) {
			continue
		}
		lines = append(lines, strings.TrimRight(line, " \t"))
	}

	if sequentiallyNumbered(lines) {
		for i, line := range lines {
			if loc := numberedLine.FindStringIndex(line); loc != nil {
				lines[i] = line[loc[1]:]
			}
		}
	}

	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

func sequentiallyNumbered(lines []string) bool {
	want := 1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := numberedLine.FindStringSubmatch(line)
		if m == nil {
			return false
		}
		if n, _ := strconv.Atoi(m[1]); n != want {
			return false
		}
		want++
	}
	return want > 2
}

// codeText returns the raw text of a code container, keeping whitespace
// and skipping gutter elements.
func codeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if n.Parent != nil && isTableStructure(n.Parent) && strings.TrimSpace(n.Data) == "" {
				return
			}
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			if isGutter(n) {
				return
			}
			if n.Data == "br" {
				sb.WriteByte('\n')
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "tr", "div", "p", "li":
				sb.WriteByte('\n')
			}
		}
	}
	walk(n)
	return sb.String()
}

func isTableStructure(n *html.Node) bool {
	switch n.Data {
	case "table", "thead", "tbody", "tfoot", "tr":
		return true
	}
	return false
}

func isGutter(n *html.Node) bool {
	class := strings.ToLower(attr(n, "class"))
	if class == "" {
		return false
	}
	for _, g := range gutterClasses {
		if strings.Contains(class, g) {
			return true
		}
	}
	return false
}

// imageSource prefers the real source of lazy-loaded images
func imageSource(s *goquery.Selection) string {
	src := strings.TrimSpace(s.AttrOr("src", ""))
	if src == "" || strings.HasPrefix(src, "data:") {
		for _, key := range []string{"data-src", "data-original", "data-lazy-src"} {
			if v := strings.TrimSpace(s.AttrOr(key, "")); v != "" {
				return v
			}
		}
	}
	return src
}

// imageDimensions reads width and height from attributes or inline style.
// Unknown dimensions are zero.
func imageDimensions(s *goquery.Selection) (width, height int) {
	width = leadingInt(s.AttrOr("width", ""))
	height = leadingInt(s.AttrOr("height", ""))
	for _, decl := range strings.Split(s.AttrOr("style", ""), ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		m := cssDimension.FindStringSubmatch(strings.ToLower(strings.TrimSpace(value)))
		if m == nil {
			continue
		}
		v, _ := strconv.Atoi(m[1])
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "width":
			if width == 0 {
				width = v
			}
		case "height":
			if height == 0 {
				height = v
			}
		}
	}
	return width, height
}

func leadingInt(s string) int {
	m := leadingNumeric.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func resolve(base *url.URL, src string) string {
	if base == nil || strings.HasPrefix(src, "data:") {
		return src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return src
	}
	return base.ResolveReference(ref).String()
}

func collapseText(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
