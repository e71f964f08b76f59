package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitTrailer(t *testing.T) {
	question, trailer := SplitTrailer("What is X?\n① a\n② b\n정답: ②\n해설: because")
	assert.Equal(t, "What is X?\n① a\n② b", question)
	assert.Equal(t, "정답: ②\n해설: because", trailer)

	question, trailer = SplitTrailer("no trailer here")
	assert.Equal(t, "no trailer here", question)
	assert.Empty(t, trailer)
}

func TestParseKeys(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"②", []string{"2"}},
		{"②, ④", []string{"2", "4"}},
		{"②④", []string{"2", "4"}},
		{"3번", []string{"3"}},
		{"ㄱ, ㄷ", []string{"1", "3"}},
		{"BD", []string{"2", "4"}},
		{"(C)", []string{"3"}},
		{"42", []string{"42"}},
		{"  SELECT * FROM t  ", []string{"SELECT * FROM t"}},
		{"12 bytes", []string{"12 bytes"}},
		{"", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseKeys(tt.text))
		})
	}
}

func TestAnswerResolver_Priority(t *testing.T) {
	r := NewAnswerResolver()

	t.Run("label wins over color", func(t *testing.T) {
		result := r.Resolve("정답: ②", "④")
		assert.Equal(t, AnswerFromLabel, result.Source)
		assert.Equal(t, []string{"2"}, result.Answer.Keys)
		assert.Equal(t, "②", result.Answer.RawText)
		assert.Empty(t, result.Warnings)
	})

	t.Run("english label", func(t *testing.T) {
		result := r.Resolve("Answer: B", "")
		assert.Equal(t, []string{"2"}, result.Answer.Keys)
	})

	t.Run("label on its own line", func(t *testing.T) {
		result := r.Resolve("[정답]\n③", "")
		assert.Equal(t, []string{"3"}, result.Answer.Keys)
		assert.Equal(t, "③", result.Answer.RawText)
	})

	t.Run("color stream", func(t *testing.T) {
		result := r.Resolve("", "정답 : 42")
		assert.Equal(t, AnswerFromColor, result.Source)
		assert.Equal(t, []string{"42"}, result.Answer.Keys)
		assert.Equal(t, "정답 : 42", result.Answer.RawText)
	})

	t.Run("none", func(t *testing.T) {
		result := r.Resolve("해설: 설명만 있음", " ")
		assert.Equal(t, AnswerNone, result.Source)
		assert.Empty(t, result.Answer.Keys)
		assert.NotNil(t, result.Answer.Keys)
		assert.Equal(t, []string{"no answer found"}, result.Warnings)
	})
}

func TestExtractExplanation(t *testing.T) {
	assert.Equal(t, "because b is right", ExtractExplanation("정답: ②\n해설: because b is right"))
	assert.Equal(t, "line one\nline two", ExtractExplanation("풀이:\nline one\nline two\n정답: ①"))
	assert.Empty(t, ExtractExplanation("정답: ②"))
}
