// Package validate checks merged question records for consistency problems
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
	"github.com/a3tai/mcp-exam-extractor/internal/extract"
	"github.com/a3tai/mcp-exam-extractor/internal/rules"
)

// Rule priorities. 1 is the most actionable.
const (
	PriorityImageMissing  = 1
	PriorityAnswer        = 2
	PriorityChoices       = 2
	PriorityTooShortField = 3
)

// Rule evaluates one record and returns zero or more issues
type Rule struct {
	Type     exam.IssueType
	Priority int
	Check    func(q *exam.Question) []string
}

// Validator applies a fixed set of rules to each record
type Validator struct {
	rules []Rule
}

// New creates a validator whose thresholds and phrase lists come from r
func New(r *rules.Rules) *Validator {
	v := &Validator{}
	v.rules = []Rule{
		{Type: exam.IssueImageMissing, Priority: PriorityImageMissing, Check: imageMissing(r.ImageKeywords)},
		{Type: exam.IssueAnswerMissing, Priority: PriorityAnswer, Check: answerMissing},
		{Type: exam.IssueAnswerNone, Priority: PriorityAnswer, Check: answerNone(r.NoAnswerMarkers)},
		{Type: exam.IssueAnswerMismatch, Priority: PriorityAnswer, Check: answerMismatch(r.NoAnswerMarkers)},
		{Type: exam.IssueChoicesMissing, Priority: PriorityChoices, Check: choicesMissing},
		{Type: exam.IssueExplanationTooShort, Priority: PriorityTooShortField,
			Check: explanationTooShort(r.Thresholds.MinExplanationChars, r.PlaceholderExplanations)},
		{Type: exam.IssueQuestionTooShort, Priority: PriorityTooShortField,
			Check: questionTooShort(r.Thresholds.MinQuestionChars)},
	}
	return v
}

// Rules returns the rules in evaluation order
func (v *Validator) Rules() []Rule {
	return v.rules
}

// Validate evaluates every rule independently against q. The order of the
// returned issues carries no meaning.
func (v *Validator) Validate(q exam.Question) []exam.Issue {
	var issues []exam.Issue
	for _, rule := range v.rules {
		for _, evidence := range rule.Check(&q) {
			issues = append(issues, exam.Issue{
				DocID:    q.DocID,
				QNo:      q.QNo,
				Type:     rule.Type,
				Priority: rule.Priority,
				Message:  message(rule.Type),
				Evidence: evidence,
			})
		}
	}
	return issues
}

// ValidateAll validates a set of records
func (v *Validator) ValidateAll(records []exam.Question) []exam.Issue {
	issues := make([]exam.Issue, 0)
	for _, q := range records {
		issues = append(issues, v.Validate(q)...)
	}
	return issues
}

func message(t exam.IssueType) string {
	switch t {
	case exam.IssueImageMissing:
		return "question refers to a figure or code but has no image or code artifact"
	case exam.IssueAnswerMissing:
		return "question has no answer"
	case exam.IssueAnswerNone:
		return "answer text marks the question as having no valid answer"
	case exam.IssueAnswerMismatch:
		return "answer key is not one of the choices"
	case exam.IssueChoicesMissing:
		return "question text contains choice markers but no choices were extracted"
	case exam.IssueExplanationTooShort:
		return "explanation is too short or a placeholder"
	case exam.IssueQuestionTooShort:
		return "question text is too short"
	}
	return string(t)
}

func imageMissing(keywords []string) func(q *exam.Question) []string {
	return func(q *exam.Question) []string {
		if len(q.ImageRefs) > 0 || len(q.CodeBlocks) > 0 {
			return nil
		}
		for _, kw := range keywords {
			if kw != "" && strings.Contains(q.QuestionText, kw) {
				return []string{kw}
			}
		}
		return nil
	}
}

func answerMissing(q *exam.Question) []string {
	if len(q.Answer.Keys) == 0 {
		return []string{q.Answer.RawText}
	}
	return nil
}

func answerNone(markers []string) func(q *exam.Question) []string {
	return func(q *exam.Question) []string {
		if m := matchNoAnswer(q.Answer.RawText, markers); m != "" {
			return []string{q.Answer.RawText}
		}
		return nil
	}
}

func answerMismatch(markers []string) func(q *exam.Question) []string {
	return func(q *exam.Question) []string {
		if len(q.Choices) == 0 || matchNoAnswer(q.Answer.RawText, markers) != "" {
			return nil
		}
		valid := q.ChoiceKeys()
		var bad []string
		for _, k := range q.Answer.Keys {
			if !valid[k] {
				bad = append(bad, k)
			}
		}
		if len(bad) == 0 {
			return nil
		}
		return []string{fmt.Sprintf("keys %s not in choices", strings.Join(bad, ", "))}
	}
}

func choicesMissing(q *exam.Question) []string {
	if len(q.Choices) > 0 {
		return nil
	}
	counts := extract.CountMarkers(q.QuestionText)
	for _, family := range extract.Families() {
		if n := counts[family]; n >= 2 {
			return []string{fmt.Sprintf("%d %s markers", n, family)}
		}
	}
	return nil
}

func explanationTooShort(minChars int, placeholders []string) func(q *exam.Question) []string {
	return func(q *exam.Question) []string {
		text := strings.TrimSpace(q.Explanation)
		if text == "" {
			return nil
		}
		for _, p := range placeholders {
			if strings.EqualFold(text, p) {
				return []string{text}
			}
		}
		if utf8.RuneCountInString(text) < minChars {
			return []string{text}
		}
		return nil
	}
}

func questionTooShort(minChars int) func(q *exam.Question) []string {
	return func(q *exam.Question) []string {
		text := strings.TrimSpace(q.QuestionText)
		if utf8.RuneCountInString(text) < minChars {
			return []string{text}
		}
		return nil
	}
}

func matchNoAnswer(raw string, markers []string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return ""
	}
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return m
		}
	}
	return ""
}
