package htmlscan

import (
	"golang.org/x/net/html"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
	"github.com/a3tai/mcp-exam-extractor/internal/extract"
	"github.com/a3tai/mcp-exam-extractor/internal/rules"
)

// Page is everything extracted from one rendered document
type Page struct {
	Text      string          `json:"text"`
	Anchors   int             `json:"anchors"`
	Blocks    []extract.Block `json:"blocks"`
	Colors    ColorResult     `json:"colors"`
	Artifacts ArtifactResult  `json:"artifacts"`
}

// Scanner runs the color and artifact extractors over one shared index
type Scanner struct {
	colors    *ColorExtractor
	artifacts *ArtifactExtractor
}

// NewScanner creates a scanner for the given rule tables
func NewScanner(r *rules.Rules, maxHops int) *Scanner {
	if maxHops <= 0 {
		maxHops = DefaultAnchorHops
	}
	s := &Scanner{
		colors:    NewColorExtractor(r, maxHops),
		artifacts: NewArtifactExtractor(r, maxHops),
	}
	s.artifacts.SetIndexConfig(s.colors.IndexConfig())
	return s
}

// SetMinContent sets the question text length an anchor needs
func (s *Scanner) SetMinContent(n int) {
	s.colors.SetMinContent(n)
	s.artifacts.SetIndexConfig(s.colors.IndexConfig())
}

// Colors returns the color extractor
func (s *Scanner) Colors() *ColorExtractor {
	return s.colors
}

// Artifacts returns the artifact extractor
func (s *Scanner) Artifacts() *ArtifactExtractor {
	return s.artifacts
}

// Index builds the anchor index for doc
func (s *Scanner) Index(doc *html.Node) *Index {
	return BuildIndex(doc, s.colors.IndexConfig())
}

// Scan renders the document text, cuts it into question blocks, collects
// color streams and runs every artifact pass from a single anchor index.
func (s *Scanner) Scan(doc *html.Node, baseURL string) Page {
	ix := s.Index(doc)
	return Page{
		Text:      ix.Text(),
		Anchors:   len(ix.Anchors()),
		Blocks:    ix.Blocks(),
		Colors:    s.colors.ExtractIndexed(doc, ix),
		Artifacts: s.artifacts.ExtractIndexed(doc, ix, exam.ArtifactKinds(), baseURL),
	}
}
