package extract

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MarkerFamily identifies a family of choice-marker glyphs
type MarkerFamily int

const (
	FamilyNone MarkerFamily = iota
	FamilyBracketLetter
	FamilyCircledDigit
	FamilyJamo
	FamilyParenDigit
)

// String returns the family name used in warnings and reports
func (f MarkerFamily) String() string {
	switch f {
	case FamilyBracketLetter:
		return "bracket-letter"
	case FamilyCircledDigit:
		return "circled-digit"
	case FamilyJamo:
		return "jamo"
	case FamilyParenDigit:
		return "parenthesized-digit"
	default:
		return "none"
	}
}

// jamoOrder lists the consonants used as choice markers, in ordinal order.
// Both compatibility jamo (ㄱ, U+3131) and conjoining choseong (ᄀ, U+1100)
// appear in extracted PDF text.
var jamoOrder = [][2]rune{
	{'ㄱ', 'ᄀ'},
	{'ㄴ', 'ᄂ'},
	{'ㄷ', 'ᄃ'},
	{'ㄹ', 'ᄅ'},
	{'ㅁ', 'ᄆ'},
	{'ㅂ', 'ᄇ'},
	{'ㅅ', 'ᄉ'},
	{'ㅇ', 'ᄋ'},
}

const maxLatinOrdinal = 8

// NormalizeKey maps a raw choice marker to its canonical key: circled and
// parenthesized digits, jamo ㄱ..ㅇ and letters a..h/A..H all become
// ordinal digits ("1", "2", ...). Surrounding brackets and a trailing dot
// are ignored. Unknown glyphs are returned unchanged with ok=false.
func NormalizeKey(raw string) (key string, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return raw, false
	}

	if r, size := utf8.DecodeRuneInString(s); size == len(s) {
		if n := circledOrdinal(r); n > 0 {
			return strconv.Itoa(n), true
		}
	}

	s = strings.Trim(s, "()[]<>{}.):： ")
	if s == "" {
		return raw, false
	}

	if n, err := strconv.Atoi(s); err == nil && n > 0 && len(s) <= 2 {
		return strconv.Itoa(n), true
	}

	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) {
		return raw, false
	}
	if n := jamoOrdinal(r); n > 0 {
		return strconv.Itoa(n), true
	}
	if n := latinOrdinal(r); n > 0 {
		return strconv.Itoa(n), true
	}
	return raw, false
}

// FamilyOf reports which marker family a raw glyph belongs to
func FamilyOf(raw string) MarkerFamily {
	s := strings.TrimSpace(raw)
	if r, size := utf8.DecodeRuneInString(s); size == len(s) && size > 0 {
		switch {
		case r >= '①' && r <= '⑳', r >= '❶' && r <= '❿':
			return FamilyCircledDigit
		case r >= '⑴' && r <= '⒇':
			return FamilyParenDigit
		}
	}
	s = strings.Trim(s, "()[]<>{}.):： ")
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || size != len(s) {
		if _, err := strconv.Atoi(s); err == nil {
			return FamilyParenDigit
		}
		return FamilyNone
	}
	switch {
	case jamoOrdinal(r) > 0:
		return FamilyJamo
	case latinOrdinal(r) > 0:
		return FamilyBracketLetter
	case r >= '0' && r <= '9':
		return FamilyParenDigit
	}
	return FamilyNone
}

// circledOrdinal folds circled (①) and parenthesized (⑴) digits through
// NFKC; negative circled digits (❶) have no decomposition.
func circledOrdinal(r rune) int {
	switch {
	case r >= '❶' && r <= '❿':
		return int(r-'❶') + 1
	case r >= '①' && r <= '⒇':
		folded := strings.Trim(norm.NFKC.String(string(r)), "()")
		if n, err := strconv.Atoi(folded); err == nil {
			return n
		}
	}
	return 0
}

func jamoOrdinal(r rune) int {
	for i, pair := range jamoOrder {
		if r == pair[0] || r == pair[1] {
			return i + 1
		}
	}
	return 0
}

func latinOrdinal(r rune) int {
	switch {
	case r >= 'a' && r < 'a'+maxLatinOrdinal:
		return int(r-'a') + 1
	case r >= 'A' && r < 'A'+maxLatinOrdinal:
		return int(r-'A') + 1
	}
	return 0
}

// isCircled reports whether r is an unambiguous circled or parenthesized digit glyph
func isCircled(r rune) bool {
	return (r >= '①' && r <= '⒇') || (r >= '❶' && r <= '❿')
}
