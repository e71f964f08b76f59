package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	issuesSheet  = "Issues"
)

var summaryHeaders = []string{
	"doc_id", "questions", "answer_pct", "explanation_pct", "choices_pct",
	"code_blocks", "images", "tables", "low_confidence", "mean_confidence",
	"issues", "p1", "p2", "p3", "issue_types",
}

var issueHeaders = []string{"priority", "doc_id", "q_no", "type", "message", "evidence"}

// WriteXLSX writes the report as a workbook with a summary sheet (one row
// per document plus a total row) and an issues sheet.
func WriteXLSX(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(issuesSheet); err != nil {
		return fmt.Errorf("create issues sheet: %w", err)
	}

	writeRow(f, summarySheet, 1, toAny(summaryHeaders))
	row := 2
	for _, d := range r.Summary.Documents {
		writeRow(f, summarySheet, row, summaryRow(d.DocID, d))
		row++
	}
	writeRow(f, summarySheet, row, summaryRow("TOTAL", r.Summary.Total))
	_ = f.SetColWidth(summarySheet, "A", "A", 24)
	_ = f.SetColWidth(summarySheet, "O", "O", 48)

	writeRow(f, issuesSheet, 1, toAny(issueHeaders))
	for i, issue := range r.Issues {
		writeRow(f, issuesSheet, i+2, []any{
			issue.Priority, issue.DocID, issue.QNo, string(issue.Type), issue.Message, issue.Evidence,
		})
	}
	_ = f.SetColWidth(issuesSheet, "E", "F", 48)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write excel: %w", err)
	}
	return nil
}

func summaryRow(label string, d DocumentSummary) []any {
	return []any{
		label, d.Questions, d.AnswerPct, d.ExplanationPct, d.ChoicesPct,
		d.CodeBlocks, d.Images, d.Tables, d.LowConfidence, d.MeanConfidence,
		d.Issues, d.IssuesByPriority[1], d.IssuesByPriority[2], d.IssuesByPriority[3],
		formatTypes(d.IssuesByType),
	}
}

func formatTypes(byType map[string]int) string {
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%s=%d", t, byType[t]))
	}
	return strings.Join(parts, ", ")
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
