package grading

import (
	"math"
	"strconv"
	"strings"
	"time"

	"quiz-grading-engine/internal/domain"
)

// CompareOptions carries the per-question knobs that change equality.
type CompareOptions struct {
	CaseInsensitive bool
	Tolerance       float64
}

// OptionsFor extracts comparison options from a question.
func OptionsFor(q domain.Question) CompareOptions {
	return CompareOptions{CaseInsensitive: q.CaseInsensitive, Tolerance: q.Tolerance}
}

// Gradable reports whether the comparator knows how to grade questions of type t.
func Gradable(t domain.QuestionType) bool {
	switch t {
	case domain.QuestionText, domain.QuestionNumber, domain.QuestionBoolean,
		domain.QuestionSingleSelect, domain.QuestionMultiSelect, domain.QuestionDate:
		return true
	default:
		return false
	}
}

// Compare reports whether submitted equals correct under the rules of question type t.
// It never panics; missing or malformed input compares unequal.
func Compare(t domain.QuestionType, submitted, correct domain.Value, opts CompareOptions) bool {
	if submitted.IsNone() || correct.IsNone() {
		return false
	}
	switch t {
	case domain.QuestionText, domain.QuestionSingleSelect:
		return equalText(scalarText(submitted), scalarText(correct), opts.CaseInsensitive)
	case domain.QuestionNumber:
		return equalNumber(submitted, correct, opts.Tolerance)
	case domain.QuestionBoolean:
		a, okA := toBool(submitted)
		b, okB := toBool(correct)
		return okA && okB && a == b
	case domain.QuestionDate:
		a, okA := toDate(submitted)
		b, okB := toDate(correct)
		return okA && okB && a.Equal(b)
	case domain.QuestionMultiSelect:
		return equalSets(toSet(submitted, opts.CaseInsensitive), toSet(correct, opts.CaseInsensitive))
	default:
		return false
	}
}

// Overlap counts how many of the correct options were selected and whether any selected option
// is not a correct one.
func Overlap(submitted, correct domain.Value, caseInsensitive bool) (hits int, falsePositive bool, size int) {
	want := toSet(correct, caseInsensitive)
	got := toSet(submitted, caseInsensitive)
	for k := range got {
		if _, ok := want[k]; ok {
			hits++
		} else {
			falsePositive = true
		}
	}
	return hits, falsePositive, len(want)
}

func scalarText(v domain.Value) string {
	if v.Kind == domain.KindList {
		// a one-element list is accepted as a scalar answer
		if len(v.List) == 1 {
			return v.List[0]
		}
		return "\x00" + v.Text()
	}
	return v.Text()
}

func equalText(a, b string, caseInsensitive bool) bool {
	return normalize(a, caseInsensitive) == normalize(b, caseInsensitive)
}

// normalize is the single text folding used by text, option and set comparisons.
func normalize(s string, caseInsensitive bool) string {
	if caseInsensitive {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return s
}

func equalNumber(a, b domain.Value, tolerance float64) bool {
	x, okA := toNumber(a)
	y, okB := toNumber(b)
	if !okA || !okB {
		return false
	}
	if tolerance > 0 {
		return math.Abs(x-y) <= tolerance
	}
	return x == y
}

func toNumber(v domain.Value) (float64, bool) {
	var n float64
	switch v.Kind {
	case domain.KindNumber:
		n = v.Num
	case domain.KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func toBool(v domain.Value) (bool, bool) {
	switch v.Kind {
	case domain.KindBool:
		return v.Bool, true
	case domain.KindString:
		b, err := strconv.ParseBool(strings.TrimSpace(v.Str))
		return b, err == nil
	default:
		return false, false
	}
}

var dateLayouts = []string{time.DateOnly, time.RFC3339, "2006-01-02T15:04", "2006-01-02T15:04:05"}

// toDate parses a date answer and truncates it to its calendar day.
func toDate(v domain.Value) (time.Time, bool) {
	if v.Kind != domain.KindString {
		return time.Time{}, false
	}
	raw := strings.TrimSpace(v.Str)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func toSet(v domain.Value, caseInsensitive bool) map[string]struct{} {
	items := v.Items()
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[normalize(item, caseInsensitive)] = struct{}{}
	}
	return set
}

func equalSets(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
