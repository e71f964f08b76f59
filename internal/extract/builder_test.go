package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
	"github.com/a3tai/mcp-exam-extractor/internal/rules"
)

func TestBuilder_MultiChoiceScenario(t *testing.T) {
	result := NewDefaultBuilder().Build("doc-1", "1. What is X?\n① a\n② b\n③ c\n④ d\n정답: ②", nil, "")

	require.Len(t, result.Records, 1)
	q := result.Records[0]
	assert.Equal(t, "doc-1", q.DocID)
	assert.Equal(t, "Q001", q.QNo)
	assert.Equal(t, "What is X?", q.QuestionText)
	assert.Equal(t, []exam.Choice{
		{Key: "1", RawKey: "①", Text: "a"},
		{Key: "2", RawKey: "②", Text: "b"},
		{Key: "3", RawKey: "③", Text: "c"},
		{Key: "4", RawKey: "④", Text: "d"},
	}, q.Choices)
	assert.Equal(t, []string{"2"}, q.Answer.Keys)
	assert.Equal(t, "②", q.Answer.RawText)
	assert.Equal(t, 1.0, q.Meta.Confidence)
	assert.Empty(t, q.Meta.Warnings)
	assert.NotNil(t, q.CodeBlocks)
	assert.NotNil(t, q.ImageRefs)
	assert.NotNil(t, q.TableRefs)
}

func TestBuilder_UsesColorStreams(t *testing.T) {
	text := "1. 다음 프로그램의 실행 결과를 쓰시오.\n" +
		"2. 스택과 큐의 차이를 설명하시오 간단히.\n"
	streams := map[string]Streams{
		"Q001": {Answer: "42", Explanation: "해설: 반복문이 42번 실행된다"},
	}

	result := NewDefaultBuilder().Build("doc", text, streams, "https://example.com/post/1")

	require.Len(t, result.Records, 2)
	q1 := result.Records[0]
	assert.Equal(t, []string{"42"}, q1.Answer.Keys)
	assert.Equal(t, "반복문이 42번 실행된다", q1.Explanation)
	assert.Equal(t, "https://example.com/post/1", q1.Meta.SourceURL)
	assert.Equal(t, 1.0, q1.Meta.Confidence)

	q2 := result.Records[1]
	assert.Empty(t, q2.Answer.Keys)
	assert.Contains(t, q2.Meta.Warnings, "no answer found")
	assert.InDelta(t, 0.7, q2.Meta.Confidence, 1e-9)
}

func TestBuilder_LabelledExplanation(t *testing.T) {
	text := "1. 다음 중 TCP의 특징으로 옳은 것은?\n① 비연결형\n② 연결형\n정답: ②\n해설: TCP는 연결 지향 프로토콜이다."

	q := NewDefaultBuilder().Build("doc", text, nil, "").Records[0]

	assert.Equal(t, "TCP는 연결 지향 프로토콜이다.", q.Explanation)
	assert.Len(t, q.Choices, 2)
}

func TestBuilder_FallbackLowersConfidence(t *testing.T) {
	result := NewDefaultBuilder().Build("doc", "정답 없는 서술형 본문만 있는 문서", nil, "")

	require.Len(t, result.Records, 1)
	assert.True(t, result.Fallback)
	q := result.Records[0]
	// fallback and missing answer
	assert.InDelta(t, 0.4, q.Meta.Confidence, 1e-9)
	assert.Len(t, q.Meta.Warnings, 2)
}

func TestBuilder_DuplicateNumbersFolded(t *testing.T) {
	text := "1. 첫 번째 문제의 본문 내용입니다.\n정답: ①\n" +
		"1. 다시 등장한 같은 번호의 문제입니다.\n" +
		"2. 두 번째 문제의 본문 내용입니다.\n정답: ②\n"

	result := NewDefaultBuilder().Build("doc", text, nil, "")

	require.Len(t, result.Records, 2)
	assert.Equal(t, "Q001", result.Records[0].QNo)
	assert.Equal(t, "Q002", result.Records[1].QNo)
	assert.Len(t, result.Records[0].Meta.Warnings, 1)
	assert.Contains(t, result.Records[0].Meta.Warnings[0], "duplicate question number 1")
}

func TestBuilder_MismatchedAnswerWarns(t *testing.T) {
	text := "1. What is the default HTTP port?\n① 21\n② 80\n정답: ⑤"

	q := NewDefaultBuilder().Build("doc", text, nil, "").Records[0]

	assert.Equal(t, []string{"5"}, q.Answer.Keys)
	require.Len(t, q.Meta.Warnings, 1)
	assert.Contains(t, q.Meta.Warnings[0], "not among the choices")
	assert.InDelta(t, 0.9, q.Meta.Confidence, 1e-9)
}

func TestBuilder_BlockPages(t *testing.T) {
	text := "=== PAGE 3 ===\n1. 다음 그림과 같은 구조의 이름은 무엇인가?\n=== PAGE 4 ===\n2. 다음 중 해시 함수의 성질이 아닌 것은?"
	pages := NewDefaultBuilder().BlockPages(text)
	assert.Equal(t, []int{3, 4}, pages["Q001"])
	assert.Equal(t, []int{4}, pages["Q002"])
}

func TestImageKeywordQuestions(t *testing.T) {
	records := []exam.Question{
		{QNo: "Q001", QuestionText: "다음 그림을 보고 답하시오"},
		{QNo: "Q002", QuestionText: "정규화의 목적은?"},
	}
	got := ImageKeywordQuestions(records, rules.Default())
	assert.True(t, got["Q001"])
	assert.False(t, got["Q002"])
}

func TestBuilder_ReportsUnusedColorStreams(t *testing.T) {
	text := "1. 다음 중 운영체제가 아닌 것은 무엇인가?\n① 리눅스\n② 엑셀"
	streams := map[string]Streams{
		"Q001": {Answer: "②"},
		"Q003": {Explanation: "해설: 고아"},
		"Q002": {Answer: "③"},
	}

	result := NewDefaultBuilder().Build("doc", text, streams, "")

	require.Len(t, result.Records, 1)
	assert.Equal(t, []string{"2"}, result.Records[0].Answer.Keys)
	assert.Equal(t, []string{
		"color text for Q002 has no question block",
		"color text for Q003 has no question block",
	}, result.Warnings)
}

func TestBuilder_BuildBlocks(t *testing.T) {
	blocks := []Block{
		{Number: 1, QNo: "Q001", Text: "1.\n다음 중 운영체제의 역할이 아닌 것은?\n① 자원 관리\n② 문서 작성", Content: "다음 중 운영체제의 역할이 아닌 것은?\n① 자원 관리\n② 문서 작성", Line: 1},
		{Number: 2, QNo: "Q002", Text: "2. 짧음", Content: "짧음", Line: 5},
	}
	streams := map[string]Streams{"Q001": {Answer: "②"}, "Q002": {Answer: "정답: 4"}}

	result := NewDefaultBuilder().BuildBlocks("doc", blocks, "ignored", streams, "")

	require.Len(t, result.Records, 2)
	assert.False(t, result.Fallback)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, "다음 중 운영체제의 역할이 아닌 것은?", result.Records[0].QuestionText)
	assert.Len(t, result.Records[0].Choices, 2)
	assert.Equal(t, []string{"2"}, result.Records[0].Answer.Keys)
	assert.Equal(t, "짧음", result.Records[1].QuestionText)
	assert.Equal(t, []string{"4"}, result.Records[1].Answer.Keys)
}

func TestBuilder_BuildBlocksWithoutBlocksSegmentsText(t *testing.T) {
	result := NewDefaultBuilder().BuildBlocks("doc", nil, "공지 사항만 있는 페이지", map[string]Streams{"Q004": {Answer: "①"}}, "")

	require.Len(t, result.Records, 1)
	assert.True(t, result.Fallback)
	assert.Contains(t, result.Warnings, "color text for Q004 has no question block")
}
