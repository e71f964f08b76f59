package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
)

var (
	// trailerLabel starts the answer/explanation trailer of a block
	trailerLabel = regexp.MustCompile(`(?im)^[ \t]*(?:\[(?:정답|답|해설|풀이)\]|(?:정답|답|correct answer|answer|해설|풀이|explanation)[ \t]*[:：])`)

	answerLabel      = regexp.MustCompile(`(?i)^[ \t]*(?:\[(?:정답|답)\]|(?:정답|답|correct answer|answer)[ \t]*[:：])[ \t]*`)
	explanationLabel = regexp.MustCompile(`(?i)^[ \t]*(?:\[(?:해설|풀이)\]|(?:해설|풀이|explanation)[ \t]*[:：])[ \t]*`)

	keyTokenSplit = regexp.MustCompile(`[\s,，、/]+`)
	upperRun      = regexp.MustCompile(`^[A-H]{2,8}$`)
)

// AnswerSource records where an answer came from
type AnswerSource string

const (
	AnswerFromLabel AnswerSource = "label"
	AnswerFromColor AnswerSource = "color"
	AnswerNone      AnswerSource = "none"
)

// AnswerResult is the resolved answer for one block
type AnswerResult struct {
	Answer   exam.Answer  `json:"answer"`
	Source   AnswerSource `json:"source"`
	Warnings []string     `json:"warnings,omitempty"`
}

// SplitTrailer separates a block's question part from the trailer that
// begins at the first answer or explanation label line.
func SplitTrailer(content string) (question, trailer string) {
	loc := trailerLabel.FindStringIndex(content)
	if loc == nil {
		return content, ""
	}
	return strings.TrimRight(content[:loc[0]], " \t\n"), content[loc[0]:]
}

// AnswerResolver produces the final answer keys for a question
type AnswerResolver struct{}

// NewAnswerResolver creates an answer resolver
func NewAnswerResolver() *AnswerResolver {
	return &AnswerResolver{}
}

// Resolve picks the answer from labelled trailer text first and the color
// answer stream second. RawText keeps the matched text verbatim.
func (r *AnswerResolver) Resolve(trailer, colorAnswer string) AnswerResult {
	if raw, ok := labelledAnswer(trailer); ok {
		return AnswerResult{
			Answer: exam.Answer{Keys: ParseKeys(raw), RawText: raw},
			Source: AnswerFromLabel,
		}
	}

	if strings.TrimSpace(colorAnswer) != "" {
		text := colorAnswer
		if loc := answerLabel.FindStringIndex(text); loc != nil {
			text = text[loc[1]:]
		}
		return AnswerResult{
			Answer: exam.Answer{Keys: ParseKeys(text), RawText: colorAnswer},
			Source: AnswerFromColor,
		}
	}

	return AnswerResult{
		Answer:   exam.Answer{Keys: []string{}},
		Source:   AnswerNone,
		Warnings: []string{"no answer found"},
	}
}

// labelledAnswer returns the text after the first answer label in trailer.
// A label alone on its line takes the next non-empty line.
func labelledAnswer(trailer string) (string, bool) {
	lines := strings.Split(trailer, "\n")
	for i, line := range lines {
		loc := answerLabel.FindStringIndex(line)
		if loc == nil {
			continue
		}
		if rest := strings.TrimRight(line[loc[1]:], " \t"); rest != "" {
			return rest, true
		}
		for _, next := range lines[i+1:] {
			if strings.TrimSpace(next) == "" {
				continue
			}
			if trailerLabel.MatchString(next) {
				break
			}
			return strings.TrimSpace(next), true
		}
	}
	return "", false
}

// ParseKeys converts answer text into canonical keys. Marker glyphs are
// normalized one by one so "②, ④" yields ["2", "4"]; anything that is not
// a sequence of markers becomes a single free-text key.
func ParseKeys(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}

	var circled []string
	for _, r := range text {
		if isCircled(r) {
			if key, ok := NormalizeKey(string(r)); ok {
				circled = appendUnique(circled, key)
			}
		}
	}
	if len(circled) > 0 {
		return circled
	}

	var keys []string
	for _, tok := range keyTokenSplit.Split(text, -1) {
		tok = strings.TrimSuffix(strings.TrimSpace(tok), "번")
		tok = strings.TrimRightFunc(tok, func(r rune) bool {
			return unicode.IsPunct(r) && r != ')' && r != ']'
		})
		if tok == "" {
			continue
		}
		if upperRun.MatchString(tok) {
			for _, r := range tok {
				key, _ := NormalizeKey(string(r))
				keys = appendUnique(keys, key)
			}
			continue
		}
		key, ok := NormalizeKey(tok)
		if !ok || !looksLikeMarker(tok) {
			return []string{text}
		}
		keys = appendUnique(keys, key)
	}
	if len(keys) == 0 {
		return []string{text}
	}
	return keys
}

// looksLikeMarker rejects long numbers that NormalizeKey would accept,
// e.g. the free-text answer "42" is still a marker but "120" is not.
func looksLikeMarker(tok string) bool {
	return FamilyOf(tok) != FamilyNone && utf8.RuneCountInString(tok) <= 4
}

// ExtractExplanation returns the text after the explanation label in
// trailer, stopping at a following answer label.
func ExtractExplanation(trailer string) string {
	lines := strings.Split(trailer, "\n")
	var out []string
	capturing := false
	for _, line := range lines {
		if loc := explanationLabel.FindStringIndex(line); loc != nil && !capturing {
			capturing = true
			if rest := strings.TrimSpace(line[loc[1]:]); rest != "" {
				out = append(out, rest)
			}
			continue
		}
		if !capturing {
			continue
		}
		if answerLabel.MatchString(line) {
			break
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func appendUnique(keys []string, key string) []string {
	for _, k := range keys {
		if k == key {
			return keys
		}
	}
	return append(keys, key)
}
