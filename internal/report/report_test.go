package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
)

func fixtures() ([]exam.Question, []exam.Issue) {
	records := []exam.Question{
		{
			DocID: "exam-b", QNo: "Q001",
			Choices:     []exam.Choice{{Key: "1"}, {Key: "2"}},
			Answer:      exam.Answer{Keys: []string{"1"}},
			Explanation: "설명",
			ImageRefs:   []exam.ImageRef{{Path: "images/a.png"}},
			Meta:        exam.Meta{Confidence: 1},
		},
		{
			DocID: "exam-b", QNo: "Q002",
			Answer:     exam.Answer{Keys: []string{}},
			CodeBlocks: []exam.CodeBlock{{Language: "c"}, {Language: "java"}},
			Meta:       exam.Meta{Confidence: 0.4},
		},
		{
			DocID: "exam-a", QNo: "Q001",
			Choices:   []exam.Choice{{Key: "1"}},
			Answer:    exam.Answer{Keys: []string{"1"}},
			TableRefs: []exam.TableRef{{Rows: [][]string{{"a"}, {"b"}}}},
			Meta:      exam.Meta{Confidence: 0.9},
		},
	}
	issues := []exam.Issue{
		{DocID: "exam-b", QNo: "Q002", Type: exam.IssueAnswerMissing, Priority: 2},
		{DocID: "exam-b", QNo: "Q002", Type: exam.IssueQuestionTooShort, Priority: 3},
		{DocID: "exam-a", QNo: "Q001", Type: exam.IssueImageMissing, Priority: 1},
	}
	return records, issues
}

func TestAggregate(t *testing.T) {
	records, issues := fixtures()

	s := Aggregate(records, issues)

	require.Len(t, s.Documents, 2)
	a, b := s.Documents[0], s.Documents[1]
	assert.Equal(t, "exam-a", a.DocID)
	assert.Equal(t, "exam-b", b.DocID)

	assert.Equal(t, 2, b.Questions)
	assert.Equal(t, 1, b.WithAnswer)
	assert.Equal(t, 50.0, b.AnswerPct)
	assert.Equal(t, 50.0, b.ExplanationPct)
	assert.Equal(t, 2, b.CodeBlocks)
	assert.Equal(t, 1, b.Images)
	assert.Equal(t, 1, b.LowConfidence)
	assert.Equal(t, 0.7, b.MeanConfidence)
	assert.Equal(t, 2, b.Issues)
	assert.Equal(t, map[int]int{2: 1, 3: 1}, b.IssuesByPriority)

	assert.Equal(t, 1, a.Tables)
	assert.Equal(t, map[string]int{"image-missing": 1}, a.IssuesByType)

	assert.Equal(t, 3, s.Total.Questions)
	assert.Equal(t, 66.7, s.Total.AnswerPct)
	assert.Equal(t, 3, s.Total.Issues)
	assert.Empty(t, s.RunID)
}

func TestAggregate_DoesNotMutateInputs(t *testing.T) {
	records, issues := fixtures()
	recordsCopy := append([]exam.Question{}, records...)
	issuesCopy := append([]exam.Issue{}, issues...)

	Aggregate(records, issues)
	SortIssues(issues)

	assert.Equal(t, recordsCopy, records)
	assert.Equal(t, issuesCopy, issues)
}

func TestAggregate_Empty(t *testing.T) {
	s := Aggregate(nil, nil)
	assert.Empty(t, s.Documents)
	assert.NotNil(t, s.Documents)
	assert.Equal(t, 0, s.Total.Questions)
	assert.Equal(t, 0.0, s.Total.AnswerPct)
}

func TestAggregate_OmitsRunStamp(t *testing.T) {
	records, issues := fixtures()

	data, err := json.Marshal(Aggregate(records, issues))
	require.NoError(t, err)

	assert.NotContains(t, string(data), "generated_at")
	assert.NotContains(t, string(data), "run_id")
}

func TestSortIssues(t *testing.T) {
	_, issues := fixtures()

	sorted := SortIssues(issues)

	require.Len(t, sorted, 3)
	assert.Equal(t, exam.IssueImageMissing, sorted[0].Type)
	assert.Equal(t, exam.IssueAnswerMissing, sorted[1].Type)
	assert.Equal(t, exam.IssueQuestionTooShort, sorted[2].Type)
}

func TestNew_StampsRun(t *testing.T) {
	records, issues := fixtures()
	r := New(records, issues)
	assert.Len(t, r.Summary.RunID, 36)
	require.NotNil(t, r.Summary.GeneratedAt)
	assert.False(t, r.Summary.GeneratedAt.IsZero())
	assert.Equal(t, 1, r.Issues[0].Priority)
}

func TestWriteJSON(t *testing.T) {
	records, issues := fixtures()
	var buf bytes.Buffer

	require.NoError(t, WriteJSON(&buf, New(records, issues)))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 3, decoded.Summary.Total.Questions)
	assert.Len(t, decoded.Issues, 3)
}

func TestWriteXLSX(t *testing.T) {
	records, issues := fixtures()
	var buf bytes.Buffer

	require.NoError(t, WriteXLSX(&buf, New(records, issues)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{"Summary", "Issues"}, f.GetSheetList())

	rows, err := f.GetRows("Summary")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "doc_id", rows[0][0])
	assert.Equal(t, "exam-a", rows[1][0])
	assert.Equal(t, "TOTAL", rows[3][0])
	assert.Equal(t, "3", rows[3][1])

	issueRows, err := f.GetRows("Issues")
	require.NoError(t, err)
	require.Len(t, issueRows, 4)
	assert.Equal(t, "1", issueRows[1][0])
	assert.Equal(t, "image-missing", issueRows[1][3])
}
