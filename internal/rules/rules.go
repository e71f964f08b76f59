// Package rules holds the mapping tables that drive extraction and
// validation heuristics. Tables are versioned YAML data so adding a color
// code, keyword, or language rule is a data change.
package rules

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// Rules is the full set of tables
type Rules struct {
	Version                 string         `yaml:"version"`
	Colors                  ColorRules     `yaml:"colors"`
	ImageKeywords           []string       `yaml:"image_keywords"`
	PlaceholderExplanations []string       `yaml:"placeholder_explanations"`
	NoAnswerMarkers         []string       `yaml:"no_answer_markers"`
	IgnoreImages            []string       `yaml:"ignore_images"`
	Languages               []LanguageRule `yaml:"languages"`
	Thresholds              Thresholds     `yaml:"thresholds"`
}

// ColorRules lists the hex codes that mark answer and explanation text
type ColorRules struct {
	Answer      []string `yaml:"answer"`
	Explanation []string `yaml:"explanation"`
}

// LanguageRule labels code that matches any of its patterns. Rules are
// evaluated in file order and the first match wins.
type LanguageRule struct {
	Label    string   `yaml:"label"`
	Patterns []string `yaml:"patterns"`
}

// Thresholds are the minimum sizes used by artifact filters and validators
type Thresholds struct {
	MinCodeChars        int `yaml:"min_code_chars"`
	MinImagePixels      int `yaml:"min_image_pixels"`
	MinTableRows        int `yaml:"min_table_rows"`
	MinExplanationChars int `yaml:"min_explanation_chars"`
	MinQuestionChars    int `yaml:"min_question_chars"`
}

// Default returns the embedded rule tables
func Default() *Rules {
	r, err := Parse(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded rules are invalid: %v", err))
	}
	return r
}

// Load reads rule tables from path. Sections missing from the file keep
// their default values. An empty path returns the defaults.
func Load(path string) (*Rules, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return parseOver(Default(), data)
}

// Parse decodes a complete rules document
func Parse(data []byte) (*Rules, error) {
	return parseOver(&Rules{}, data)
}

func parseOver(base *Rules, data []byte) (*Rules, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(base); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("parse rules: multiple YAML documents are not supported")
		}
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	base.normalize()
	if err := base.Validate(); err != nil {
		return nil, err
	}
	return base, nil
}

func (r *Rules) normalize() {
	for i, c := range r.Colors.Answer {
		r.Colors.Answer[i] = NormalizeColor(c)
	}
	for i, c := range r.Colors.Explanation {
		r.Colors.Explanation[i] = NormalizeColor(c)
	}
}

// Validate checks that the tables are usable
func (r *Rules) Validate() error {
	if r.Version == "" {
		return errors.New("rules: version is required")
	}
	answer := make(map[string]bool, len(r.Colors.Answer))
	for _, c := range r.Colors.Answer {
		answer[c] = true
	}
	for _, c := range r.Colors.Explanation {
		if answer[c] {
			return fmt.Errorf("rules: color %s is listed as both answer and explanation", c)
		}
	}
	for _, lr := range r.Languages {
		if lr.Label == "" {
			return errors.New("rules: language rule without label")
		}
		for _, p := range lr.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("rules: language %s: invalid pattern %q: %w", lr.Label, p, err)
			}
		}
	}
	t := r.Thresholds
	if t.MinCodeChars < 0 || t.MinImagePixels < 0 || t.MinTableRows < 0 ||
		t.MinExplanationChars < 0 || t.MinQuestionChars < 0 {
		return errors.New("rules: thresholds cannot be negative")
	}
	return nil
}

// LanguageMatcher is a compiled LanguageRule
type LanguageMatcher struct {
	Label    string
	patterns []*regexp.Regexp
}

// Match reports whether code satisfies any of the rule's patterns
func (m LanguageMatcher) Match(code string) bool {
	for _, p := range m.patterns {
		if p.MatchString(code) {
			return true
		}
	}
	return false
}

// CompileLanguages compiles the language table in evaluation order
func (r *Rules) CompileLanguages() []LanguageMatcher {
	matchers := make([]LanguageMatcher, 0, len(r.Languages))
	for _, lr := range r.Languages {
		m := LanguageMatcher{Label: lr.Label}
		for _, p := range lr.Patterns {
			// patterns were checked by Validate
			m.patterns = append(m.patterns, regexp.MustCompile(p))
		}
		matchers = append(matchers, m)
	}
	return matchers
}

// ColorSet returns a lookup for a color list
func ColorSet(colors []string) map[string]bool {
	set := make(map[string]bool, len(colors))
	for _, c := range colors {
		if c = NormalizeColor(c); c != "" {
			set[c] = true
		}
	}
	return set
}

// NormalizeColor converts #rgb, #rrggbb and rgb(r, g, b) to lower-case
// #rrggbb. Named colors are lower-cased; an out-of-range rgb() gives "".
func NormalizeColor(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.TrimSpace(strings.TrimSuffix(v, "!important"))

	if strings.HasPrefix(v, "rgb(") || strings.HasPrefix(v, "rgba(") {
		inner := v[strings.IndexByte(v, '(')+1:]
		inner = strings.TrimSuffix(inner, ")")
		parts := strings.Split(inner, ",")
		if len(parts) < 3 {
			return ""
		}
		var rgb [3]int
		for i := 0; i < 3; i++ {
			n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
			if err != nil || n < 0 || n > 255 {
				return ""
			}
			rgb[i] = n
		}
		return fmt.Sprintf("#%02x%02x%02x", rgb[0], rgb[1], rgb[2])
	}

	if strings.HasPrefix(v, "#") && len(v) == 4 {
		return "#" + strings.Repeat(v[1:2], 2) + strings.Repeat(v[2:3], 2) + strings.Repeat(v[3:4], 2)
	}
	return v
}
