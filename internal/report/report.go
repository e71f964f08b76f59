// Package report aggregates merged records and validator issues into a
// per-document and overall summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
)

// LowConfidenceThreshold marks records that need a human look
const LowConfidenceThreshold = 0.5

// DocumentSummary holds the counts for one document, or for all documents
// when DocID is empty.
type DocumentSummary struct {
	DocID            string         `json:"doc_id,omitempty"`
	Questions        int            `json:"questions"`
	WithAnswer       int            `json:"with_answer"`
	WithExplanation  int            `json:"with_explanation"`
	WithChoices      int            `json:"with_choices"`
	AnswerPct        float64        `json:"answer_pct"`
	ExplanationPct   float64        `json:"explanation_pct"`
	ChoicesPct       float64        `json:"choices_pct"`
	CodeBlocks       int            `json:"code_blocks"`
	Images           int            `json:"images"`
	Tables           int            `json:"tables"`
	LowConfidence    int            `json:"low_confidence"`
	MeanConfidence   float64        `json:"mean_confidence"`
	Issues           int            `json:"issues"`
	IssuesByPriority map[int]int    `json:"issues_by_priority"`
	IssuesByType     map[string]int `json:"issues_by_type"`
}

// Summary is the aggregate over a set of documents
type Summary struct {
	RunID       string            `json:"run_id,omitempty"`
	GeneratedAt *time.Time        `json:"generated_at,omitempty"`
	Documents   []DocumentSummary `json:"documents"`
	Total       DocumentSummary   `json:"total"`
}

// Report is a summary plus the issues sorted for presentation
type Report struct {
	Summary Summary      `json:"summary"`
	Issues  []exam.Issue `json:"issues"`
}

// Aggregate computes per-document and total counts. It does not modify its
// inputs and sets neither RunID nor GeneratedAt.
func Aggregate(records []exam.Question, issues []exam.Issue) Summary {
	byDoc := make(map[string]*docAcc)
	var order []string
	acc := func(docID string) *docAcc {
		a, ok := byDoc[docID]
		if !ok {
			a = newDocAcc(docID)
			byDoc[docID] = a
			order = append(order, docID)
		}
		return a
	}

	total := newDocAcc("")
	for i := range records {
		q := &records[i]
		acc(q.DocID).addRecord(q)
		total.addRecord(q)
	}
	for _, issue := range issues {
		acc(issue.DocID).addIssue(issue)
		total.addIssue(issue)
	}

	sort.Strings(order)
	summary := Summary{
		Documents: make([]DocumentSummary, 0, len(order)),
		Total:     total.summary(),
	}
	for _, docID := range order {
		summary.Documents = append(summary.Documents, byDoc[docID].summary())
	}
	return summary
}

// New aggregates records and issues and stamps the result with a run id
func New(records []exam.Question, issues []exam.Issue) Report {
	summary := Aggregate(records, issues)
	summary.RunID = uuid.New().String()
	now := time.Now().UTC()
	summary.GeneratedAt = &now
	return Report{Summary: summary, Issues: SortIssues(issues)}
}

// SortIssues returns a copy of issues ordered by priority, document,
// question and type.
func SortIssues(issues []exam.Issue) []exam.Issue {
	sorted := append([]exam.Issue{}, issues...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.DocID != b.DocID {
			return a.DocID < b.DocID
		}
		if a.QNo != b.QNo {
			return a.QNo < b.QNo
		}
		return a.Type < b.Type
	})
	return sorted
}

// WriteJSON writes the report as indented JSON
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

type docAcc struct {
	s          DocumentSummary
	confidence float64
}

func newDocAcc(docID string) *docAcc {
	return &docAcc{s: DocumentSummary{
		DocID:            docID,
		IssuesByPriority: make(map[int]int),
		IssuesByType:     make(map[string]int),
	}}
}

func (a *docAcc) addRecord(q *exam.Question) {
	a.s.Questions++
	if len(q.Answer.Keys) > 0 {
		a.s.WithAnswer++
	}
	if q.Explanation != "" {
		a.s.WithExplanation++
	}
	if len(q.Choices) > 0 {
		a.s.WithChoices++
	}
	a.s.CodeBlocks += len(q.CodeBlocks)
	a.s.Images += len(q.ImageRefs)
	a.s.Tables += len(q.TableRefs)
	if q.Meta.Confidence < LowConfidenceThreshold {
		a.s.LowConfidence++
	}
	a.confidence += q.Meta.Confidence
}

func (a *docAcc) addIssue(issue exam.Issue) {
	a.s.Issues++
	a.s.IssuesByPriority[issue.Priority]++
	a.s.IssuesByType[string(issue.Type)]++
}

func (a *docAcc) summary() DocumentSummary {
	s := a.s
	if s.Questions > 0 {
		s.AnswerPct = percent(s.WithAnswer, s.Questions)
		s.ExplanationPct = percent(s.WithExplanation, s.Questions)
		s.ChoicesPct = percent(s.WithChoices, s.Questions)
		s.MeanConfidence = math.Round(a.confidence/float64(s.Questions)*1000) / 1000
	}
	return s
}

func percent(n, total int) float64 {
	return math.Round(float64(n)*1000/float64(total)) / 10
}
