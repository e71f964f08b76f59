package exam

import (
	"fmt"
	"regexp"
	"strconv"
)

// Question represents one exam item as persisted in a document's JSON Lines file
type Question struct {
	DocID        string      `json:"doc_id"`
	QNo          string      `json:"q_no"`
	QuestionText string      `json:"question_text"`
	Choices      []Choice    `json:"choices"`
	Answer       Answer      `json:"answer"`
	Explanation  string      `json:"explanation,omitempty"`
	CodeBlocks   []CodeBlock `json:"code_blocks"`
	ImageRefs    []ImageRef  `json:"image_refs"`
	TableRefs    []TableRef  `json:"table_refs"`
	Meta         Meta        `json:"meta"`
}

// Choice is one answer option. Key is canonical, RawKey is the glyph found in the source.
type Choice struct {
	Key    string `json:"key"`
	RawKey string `json:"raw_key"`
	Text   string `json:"text"`
}

// Answer holds the resolved answer keys and the unparsed source text
type Answer struct {
	Keys    []string `json:"keys"`
	RawText string   `json:"raw_text"`
}

// Meta carries extraction confidence and non-fatal warnings
type Meta struct {
	Confidence float64  `json:"confidence"`
	Warnings   []string `json:"warnings"`
	SourceURL  string   `json:"source_url,omitempty"`
}

// CodeBlock is a source-code artifact attached to a question
type CodeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// ImageRef is an image artifact. Path is relative to the document directory
// and is empty when the image bytes were not stored.
type ImageRef struct {
	Src    string `json:"src,omitempty"`
	Path   string `json:"path,omitempty"`
	Alt    string `json:"alt,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Page   int    `json:"page,omitempty"`
}

// TableRef is a table artifact with its cell text row by row
type TableRef struct {
	Caption string     `json:"caption,omitempty"`
	Rows    [][]string `json:"rows"`
}

// ArtifactKind names one of the independently-run artifact passes
type ArtifactKind string

const (
	ArtifactCode  ArtifactKind = "code"
	ArtifactImage ArtifactKind = "image"
	ArtifactTable ArtifactKind = "table"
)

// ArtifactKinds lists every artifact kind in a stable order
func ArtifactKinds() []ArtifactKind {
	return []ArtifactKind{ArtifactCode, ArtifactImage, ArtifactTable}
}

// ParseArtifactKind converts user input into an ArtifactKind
func ParseArtifactKind(s string) (ArtifactKind, error) {
	switch ArtifactKind(s) {
	case ArtifactCode, ArtifactImage, ArtifactTable:
		return ArtifactKind(s), nil
	case "images":
		return ArtifactImage, nil
	case "tables":
		return ArtifactTable, nil
	}
	return "", fmt.Errorf("unknown artifact kind: %q (must be one of: code, image, table)", s)
}

// Side-files group artifacts of one kind by question number
type (
	CodeSideFile  map[string][]CodeBlock
	ImageSideFile map[string][]ImageRef
	TableSideFile map[string][]TableRef
)

// SideFiles bundles whatever side-files exist for a document. A nil map
// means the side-file is absent.
type SideFiles struct {
	Code   CodeSideFile
	Images ImageSideFile
	Tables TableSideFile
}

var qnoPattern = regexp.MustCompile(`^Q(\d+)$`)

// FormatQNo returns the canonical question number for n, e.g. 3 -> "Q003"
func FormatQNo(n int) string {
	return fmt.Sprintf("Q%03d", n)
}

// ParseQNo extracts the integer from a canonical question number
func ParseQNo(qno string) (int, error) {
	m := qnoPattern.FindStringSubmatch(qno)
	if m == nil {
		return 0, fmt.Errorf("invalid question number: %q", qno)
	}
	return strconv.Atoi(m[1])
}

// Normalize replaces nil slices with empty ones so records always
// serialize artifact lists and keys as arrays.
func (q *Question) Normalize() {
	if q.Choices == nil {
		q.Choices = []Choice{}
	}
	if q.Answer.Keys == nil {
		q.Answer.Keys = []string{}
	}
	if q.CodeBlocks == nil {
		q.CodeBlocks = []CodeBlock{}
	}
	if q.ImageRefs == nil {
		q.ImageRefs = []ImageRef{}
	}
	if q.TableRefs == nil {
		q.TableRefs = []TableRef{}
	}
	if q.Meta.Warnings == nil {
		q.Meta.Warnings = []string{}
	}
}

// ChoiceKeys returns the set of canonical choice keys
func (q *Question) ChoiceKeys() map[string]bool {
	keys := make(map[string]bool, len(q.Choices))
	for _, c := range q.Choices {
		keys[c.Key] = true
	}
	return keys
}

// AddWarning appends a warning to the record's metadata
func (q *Question) AddWarning(format string, args ...any) {
	q.Meta.Warnings = append(q.Meta.Warnings, fmt.Sprintf(format, args...))
}
