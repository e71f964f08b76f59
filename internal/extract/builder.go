package extract

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
	"github.com/a3tai/mcp-exam-extractor/internal/rules"
)

// Confidence penalties applied per warning class
const (
	penaltyNoAnswer     = 0.3
	penaltyFallback     = 0.3
	penaltyFailure      = 0.9
	penaltyOtherWarning = 0.1
)

// Streams holds the color-derived answer and explanation text for a question
type Streams struct {
	Answer      string `json:"answer,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

// BuildResult holds the base records for one document
type BuildResult struct {
	Records  []exam.Question `json:"records"`
	Warnings []string        `json:"warnings,omitempty"`
	Fallback bool            `json:"fallback"`
}

// Builder turns document text into base question records
type Builder struct {
	segmenter *Segmenter
	choices   *ChoiceExtractor
	answers   *AnswerResolver
	logger    *log.Logger
}

// NewBuilder creates a record builder
func NewBuilder(segmenter *Segmenter) *Builder {
	return &Builder{
		segmenter: segmenter,
		choices:   NewChoiceExtractor(),
		answers:   NewAnswerResolver(),
		logger:    log.New(os.Stderr, "[Builder] ", log.LstdFlags),
	}
}

// NewDefaultBuilder creates a builder with default segmentation settings
func NewDefaultBuilder() *Builder {
	s, err := NewSegmenter(DefaultSegmenterConfig())
	if err != nil {
		panic(fmt.Sprintf("default segmenter config is invalid: %v", err))
	}
	return NewBuilder(s)
}

// SetLogger sets a custom logger
func (b *Builder) SetLogger(logger *log.Logger) {
	b.logger = logger
}

// Build segments text and produces one base record per question block.
// streams maps q_no to color-derived text and may be nil. A failure inside
// one block yields a low-confidence record for that block only.
func (b *Builder) Build(docID, text string, streams map[string]Streams, sourceURL string) BuildResult {
	return b.build(docID, b.segmenter.Segment(text), streams, sourceURL)
}

// BuildBlocks produces records from blocks whose boundaries were already
// decided, such as the anchors of an HTML page. Without blocks, text is
// segmented as in Build.
func (b *Builder) BuildBlocks(docID string, blocks []Block, text string, streams map[string]Streams, sourceURL string) BuildResult {
	if len(blocks) == 0 {
		return b.Build(docID, text, streams, sourceURL)
	}
	return b.build(docID, SegmentResult{Blocks: blocks}, streams, sourceURL)
}

func (b *Builder) build(docID string, seg SegmentResult, streams map[string]Streams, sourceURL string) BuildResult {
	result := BuildResult{
		Records:  make([]exam.Question, 0, len(seg.Blocks)),
		Warnings: seg.Warnings,
		Fallback: seg.Fallback,
	}

	used := make(map[string]bool, len(seg.Blocks))
	for _, block := range foldDuplicates(seg.Blocks) {
		used[block.QNo] = true
		q := b.buildSafe(docID, block, streams[block.QNo], sourceURL, seg.Fallback)
		result.Records = append(result.Records, q)
	}

	var unused []string
	for qno := range streams {
		if !used[qno] {
			unused = append(unused, qno)
		}
	}
	sort.Strings(unused)
	for _, qno := range unused {
		result.Warnings = append(result.Warnings, fmt.Sprintf("color text for %s has no question block", qno))
	}
	return result
}

func (b *Builder) buildSafe(docID string, block Block, streams Streams, sourceURL string, fallback bool) (q exam.Question) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("%s %s: extraction failed: %v", docID, block.QNo, r)
			q = exam.Question{
				DocID:        docID,
				QNo:          block.QNo,
				QuestionText: block.Content,
				Meta:         exam.Meta{SourceURL: sourceURL},
			}
			q.AddWarning("extraction failed: %v", r)
			q.Normalize()
			q.Meta.Confidence = clampConfidence(1 - penaltyFailure)
		}
	}()
	return b.buildRecord(docID, block, streams, sourceURL, fallback)
}

func (b *Builder) buildRecord(docID string, block Block, streams Streams, sourceURL string, fallback bool) exam.Question {
	q := exam.Question{
		DocID: docID,
		QNo:   block.QNo,
		Meta:  exam.Meta{SourceURL: sourceURL},
	}
	penalty := 0.0
	warn := func(p float64, msg string) {
		q.Meta.Warnings = append(q.Meta.Warnings, msg)
		penalty += p
	}

	for _, w := range block.Warnings {
		if fallback && strings.HasPrefix(w, "no question numbering") {
			warn(penaltyFallback, w)
			continue
		}
		warn(penaltyOtherWarning, w)
	}

	questionPart, trailer := SplitTrailer(block.Content)
	cr := b.choices.Extract(questionPart)
	q.QuestionText = cr.Body
	q.Choices = cr.Choices
	for _, w := range cr.Warnings {
		warn(penaltyOtherWarning, w)
	}

	ar := b.answers.Resolve(trailer, streams.Answer)
	q.Answer = ar.Answer
	for _, w := range ar.Warnings {
		warn(penaltyNoAnswer, w)
	}
	if len(q.Choices) > 0 {
		choiceKeys := q.ChoiceKeys()
		for _, k := range q.Answer.Keys {
			if _, ok := NormalizeKey(k); ok && !choiceKeys[k] {
				warn(penaltyOtherWarning, fmt.Sprintf("answer key %q is not among the choices", k))
			}
		}
	}

	q.Explanation = ExtractExplanation(trailer)
	if q.Explanation == "" && streams.Explanation != "" {
		q.Explanation = stripExplanationLabel(streams.Explanation)
	}

	q.Normalize()
	q.Meta.Confidence = clampConfidence(1 - penalty)
	return q
}

// foldDuplicates merges a block whose number was already seen into the
// block before it so q_no stays unique within a document.
func foldDuplicates(blocks []Block) []Block {
	seen := make(map[string]bool, len(blocks))
	out := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		if seen[b.QNo] && len(out) > 0 {
			prev := &out[len(out)-1]
			prev.Text += "\n" + b.Text
			prev.Content += "\n" + b.Text
			for _, p := range b.Pages {
				prev.Pages = appendPage(prev.Pages, p)
			}
			prev.Warnings = append(prev.Warnings,
				fmt.Sprintf("duplicate question number %d at line %d folded into %s", b.Number, b.Line, prev.QNo))
			continue
		}
		seen[b.QNo] = true
		out = append(out, b)
	}
	return out
}

func stripExplanationLabel(s string) string {
	if loc := explanationLabel.FindStringIndex(s); loc != nil {
		s = s[loc[1]:]
	}
	return strings.TrimSpace(s)
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// BlockPages returns the pages each question spans, keyed by q_no
func (b *Builder) BlockPages(text string) map[string][]int {
	pages := make(map[string][]int)
	for _, block := range foldDuplicates(b.segmenter.Segment(text).Blocks) {
		pages[block.QNo] = block.Pages
	}
	return pages
}

// ImageKeywordQuestions returns the q_nos whose question text mentions a
// figure, using the keyword table from r.
func ImageKeywordQuestions(records []exam.Question, r *rules.Rules) map[string]bool {
	out := make(map[string]bool)
	for _, q := range records {
		for _, kw := range r.ImageKeywords {
			if strings.Contains(q.QuestionText, kw) {
				out[q.QNo] = true
				break
			}
		}
	}
	return out
}
