package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSegmenter(t *testing.T) *Segmenter {
	t.Helper()
	s, err := NewSegmenter(DefaultSegmenterConfig())
	require.NoError(t, err)
	return s
}

func TestSegment_CountMatchesNumberingLines(t *testing.T) {
	const k = 7
	var sb strings.Builder
	sb.WriteString("2021년 제1회 정보처리기사 필기\n\n")
	for i := 1; i <= k; i++ {
		fmt.Fprintf(&sb, "%d. 다음 중 운영체제의 기능으로 옳지 않은 것은 몇 번인가요?\n", i)
		sb.WriteString("① 자원 관리\n② 프로세스 관리\n정답: ①\n\n")
	}

	result := newTestSegmenter(t).Segment(sb.String())

	require.Len(t, result.Blocks, k)
	assert.False(t, result.Fallback)
	for i, b := range result.Blocks {
		assert.Equal(t, i+1, b.Number)
		assert.Equal(t, fmt.Sprintf("Q%03d", i+1), b.QNo)
		assert.True(t, strings.HasPrefix(b.Text, fmt.Sprintf("%d. ", i+1)), b.Text)
		assert.True(t, strings.HasPrefix(b.Content, "다음 중"), b.Content)
	}
}

func TestSegment_RejectsShortNumberedLines(t *testing.T) {
	text := "1. 다음 설명에 해당하는 프로토콜은 무엇인가?\n" +
		"2. 참고\n" + // too short to be a question
		"3. 다음 중 관계 데이터베이스의 특징이 아닌 것은?\n"

	result := newTestSegmenter(t).Segment(text)

	require.Len(t, result.Blocks, 2)
	assert.Equal(t, "Q001", result.Blocks[0].QNo)
	assert.Contains(t, result.Blocks[0].Text, "2. 참고")
	assert.Equal(t, "Q003", result.Blocks[1].QNo)
}

func TestSegment_MinContentCharsIsTunable(t *testing.T) {
	cfg := DefaultSegmenterConfig()
	cfg.MinContentChars = 2
	s, err := NewSegmenter(cfg)
	require.NoError(t, err)

	result := s.Segment("1. 첫 번째 문제입니다 충분히 길게\n2. 참고\n")
	assert.Len(t, result.Blocks, 2)
}

func TestSegment_PageMarkers(t *testing.T) {
	text := "=== PAGE 1 ===\n" +
		"1. 다음 그림과 같은 트리의 차수는 얼마인가?\n" +
		"① 1\n② 2\n" +
		"=== PAGE 2 ===\n" +
		"③ 3\n④ 4\n" +
		"2. 다음 중 정렬 알고리즘이 아닌 것은 무엇인가?\n"

	result := newTestSegmenter(t).Segment(text)

	require.Len(t, result.Blocks, 2)
	assert.Equal(t, []int{1, 2}, result.Blocks[0].Pages)
	assert.Equal(t, []int{2}, result.Blocks[1].Pages)
	assert.NotContains(t, result.Blocks[0].Text, "PAGE")
}

func TestSegment_NoMatchesFallsBackToSingleBlock(t *testing.T) {
	text := "This document has no numbered questions.\nJust prose."

	result := newTestSegmenter(t).Segment(text)

	require.Len(t, result.Blocks, 1)
	assert.True(t, result.Fallback)
	assert.Equal(t, "Q001", result.Blocks[0].QNo)
	assert.Equal(t, text, result.Blocks[0].Text)
	assert.NotEmpty(t, result.Warnings)
	assert.NotEmpty(t, result.Blocks[0].Warnings)
}

func TestSegment_EmptyDocument(t *testing.T) {
	result := newTestSegmenter(t).Segment("  \n\n")
	assert.Empty(t, result.Blocks)
	assert.Equal(t, []string{"document is empty"}, result.Warnings)
}

func TestNewSegmenter_InvalidConfig(t *testing.T) {
	_, err := NewSegmenter(SegmenterConfig{NumberingPattern: "("})
	assert.Error(t, err)

	_, err = NewSegmenter(SegmenterConfig{NumberingPattern: `^(\d+)\.`})
	assert.Error(t, err)

	_, err = NewSegmenter(SegmenterConfig{MinContentChars: -1})
	assert.Error(t, err)
}
