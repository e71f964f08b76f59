package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
)

// familyPatterns lists the marker families in priority order. Each pattern
// captures the raw marker in group 1. Patterns do not consume the whitespace
// after a marker so adjacent inline markers are all found.
var familyPatterns = []struct {
	family   MarkerFamily
	patterns []*regexp.Regexp
}{
	{
		family: FamilyBracketLetter,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^[ \t]*(\[[A-Ha-h]\]|\([A-Ha-h]\)|[A-Ha-h][.)])[ \t]`),
			regexp.MustCompile(`[ \t](\[[A-H]\]|\([A-H]\))`),
		},
	},
	{
		family: FamilyCircledDigit,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`([①-⑳❶-❿])`),
		},
	},
	{
		family: FamilyJamo,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?m)(?:^|[ \t])(\([ㄱ-ㅇᄀ-ᄋ]\)|[ㄱ-ㅇᄀ-ᄋ][.)])`),
		},
	},
	{
		family: FamilyParenDigit,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^[ \t]*(\(?\d{1,2}\))`),
			regexp.MustCompile(`[ \t](\(\d{1,2}\))`),
			regexp.MustCompile(`([⑴-⒇])`),
		},
	},
}

// choiceLine matches text that opens with a choice marker of any family
// followed by choice text, as opposed to a bare key such as "②" or "②, ④".
var choiceLine = regexp.MustCompile(`^\s*(?:[①-⑳❶-❿⑴-⒇]|\(\d{1,2}\)|\d{1,2}\)|\[[A-Ha-h]\]|\([A-Ha-h]\)|[A-Ha-h][.)]|\([ㄱ-ㅇᄀ-ᄋ]\)|[ㄱ-ㅇᄀ-ᄋ][.)])\s*[\p{L}\p{Nd}]`)

// ChoiceResult is the outcome of choice extraction for one block
type ChoiceResult struct {
	Family   MarkerFamily  `json:"family"`
	Body     string        `json:"body"`
	Choices  []exam.Choice `json:"choices"`
	Warnings []string      `json:"warnings,omitempty"`
}

// ChoiceExtractor locates the run of answer choices in a question block
type ChoiceExtractor struct{}

// NewChoiceExtractor creates a choice extractor
func NewChoiceExtractor() *ChoiceExtractor {
	return &ChoiceExtractor{}
}

type markerMatch struct {
	start int // marker start
	end   int // first byte of the choice text
	raw   string
	key   string
	ord   int
}

// Extract finds choices in text, which should be the question content
// without its answer and explanation trailer. Families are tried in fixed
// priority order and the first one with at least two markers in sequence
// wins. Within that family the longest run restarting at the first ordinal
// is taken, so a reference to "①" in the question body does not start it.
// When no family qualifies the whole text is the body and choices is empty.
func (e *ChoiceExtractor) Extract(text string) ChoiceResult {
	result := ChoiceResult{Family: FamilyNone, Choices: []exam.Choice{}}
	stray := 0

	for _, fp := range familyPatterns {
		matches := findMarkers(text, fp.patterns)
		if len(matches) == 0 {
			continue
		}
		run := selectRun(matches)
		if len(run) < 2 {
			stray += len(matches)
			continue
		}

		result.Family = fp.family
		result.Body = strings.TrimSpace(text[:run[0].start])
		for i, m := range run {
			end := len(text)
			if i+1 < len(run) {
				end = run[i+1].start
			}
			result.Choices = append(result.Choices, exam.Choice{
				Key:    m.key,
				RawKey: m.raw,
				Text:   collapseSpace(text[m.end:end]),
			})
		}
		return result
	}

	result.Body = strings.TrimSpace(text)
	if stray > 0 {
		result.Warnings = append(result.Warnings,
			"choice markers found but no complete choice run; treated as free response")
	}
	return result
}

// findMarkers collects the markers of one family in document order
func findMarkers(text string, patterns []*regexp.Regexp) []markerMatch {
	seen := make(map[int]bool)
	var matches []markerMatch
	for _, re := range patterns {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2], loc[3]
			if seen[start] {
				continue
			}
			raw := text[start:end]
			key, ok := NormalizeKey(raw)
			if !ok {
				continue
			}
			ord, _ := strconv.Atoi(key)
			seen[start] = true
			matches = append(matches, markerMatch{
				start: start,
				end:   skipBlanks(text, end),
				raw:   raw,
				key:   key,
				ord:   ord,
			})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].start < matches[j].start })
	return matches
}

// selectRun picks the longest run that starts at ordinal 1, preferring the
// later run on ties, and follows it while ordinals increase by one. Markers
// out of sequence are left inside the preceding choice text; a repeated
// ordinal ends the run.
func selectRun(matches []markerMatch) []markerMatch {
	var best []markerMatch
	for i, m := range matches {
		if m.ord != 1 {
			continue
		}
		if run := runFrom(matches, i); len(run) >= len(best) {
			best = run
		}
	}
	return best
}

func runFrom(matches []markerMatch, first int) []markerMatch {
	run := []markerMatch{matches[first]}
	used := map[int]bool{1: true}
	next := 2
	for _, m := range matches[first+1:] {
		if m.ord == next {
			run = append(run, m)
			used[m.ord] = true
			next++
			continue
		}
		if used[m.ord] {
			break
		}
	}
	return run
}

func skipBlanks(text string, i int) int {
	for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
		i++
	}
	return i
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Families lists the marker families in extraction priority order
func Families() []MarkerFamily {
	out := make([]MarkerFamily, 0, len(familyPatterns))
	for _, fp := range familyPatterns {
		out = append(out, fp.family)
	}
	return out
}

// CountMarkers returns the number of choice markers of each family in text
func CountMarkers(text string) map[MarkerFamily]int {
	counts := make(map[MarkerFamily]int)
	for _, fp := range familyPatterns {
		if n := len(findMarkers(text, fp.patterns)); n > 0 {
			counts[fp.family] = n
		}
	}
	return counts
}

// IsChoiceLine reports whether text is a choice marker followed by choice
// text, e.g. "② 엑셀" but not "②" or "정답: ②".
func IsChoiceLine(text string) bool {
	return choiceLine.MatchString(text)
}
