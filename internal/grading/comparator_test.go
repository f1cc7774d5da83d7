package grading

import (
	"math"
	"testing"

	"quiz-grading-engine/internal/domain"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name      string
		qType     domain.QuestionType
		submitted domain.Value
		correct   domain.Value
		opts      CompareOptions
		want      bool
	}{
		{name: "text exact", qType: domain.QuestionText, submitted: domain.StringValue("Paris"), correct: domain.StringValue("Paris"), want: true},
		{name: "text is case sensitive by default", qType: domain.QuestionText, submitted: domain.StringValue("paris"), correct: domain.StringValue("Paris"), want: false},
		{name: "text is not trimmed by default", qType: domain.QuestionText, submitted: domain.StringValue("Paris "), correct: domain.StringValue("Paris"), want: false},
		{name: "text case insensitive", qType: domain.QuestionText, submitted: domain.StringValue(" paris"), correct: domain.StringValue("Paris"), opts: CompareOptions{CaseInsensitive: true}, want: true},
		{name: "number coerces strings", qType: domain.QuestionNumber, submitted: domain.StringValue(" 4.0 "), correct: domain.NumberValue(4), want: true},
		{name: "number fails closed on text", qType: domain.QuestionNumber, submitted: domain.StringValue("four"), correct: domain.NumberValue(4), want: false},
		{name: "number fails closed on NaN", qType: domain.QuestionNumber, submitted: domain.NumberValue(math.NaN()), correct: domain.NumberValue(4), want: false},
		{name: "number tolerance", qType: domain.QuestionNumber, submitted: domain.NumberValue(3.14), correct: domain.NumberValue(3.14159), opts: CompareOptions{Tolerance: 0.01}, want: true},
		{name: "number outside tolerance", qType: domain.QuestionNumber, submitted: domain.NumberValue(3.1), correct: domain.NumberValue(3.14159), opts: CompareOptions{Tolerance: 0.01}, want: false},
		{name: "boolean", qType: domain.QuestionBoolean, submitted: domain.BoolValue(true), correct: domain.BoolValue(true), want: true},
		{name: "boolean from string", qType: domain.QuestionBoolean, submitted: domain.StringValue("false"), correct: domain.BoolValue(false), want: true},
		{name: "boolean malformed", qType: domain.QuestionBoolean, submitted: domain.StringValue("maybe"), correct: domain.BoolValue(false), want: false},
		{name: "date same day different layout", qType: domain.QuestionDate, submitted: domain.StringValue("2024-03-01T10:00:00Z"), correct: domain.StringValue("2024-03-01"), want: true},
		{name: "date different day", qType: domain.QuestionDate, submitted: domain.StringValue("2024-03-02"), correct: domain.StringValue("2024-03-01"), want: false},
		{name: "date unparseable", qType: domain.QuestionDate, submitted: domain.StringValue("yesterday"), correct: domain.StringValue("2024-03-01"), want: false},
		{name: "single select", qType: domain.QuestionSingleSelect, submitted: domain.StringValue("b"), correct: domain.StringValue("b"), want: true},
		{name: "single select numeric value", qType: domain.QuestionSingleSelect, submitted: domain.NumberValue(2), correct: domain.StringValue("2"), want: true},
		{name: "single select one-element list", qType: domain.QuestionSingleSelect, submitted: domain.ListValue("b"), correct: domain.StringValue("b"), want: true},
		{name: "single select two-element list", qType: domain.QuestionSingleSelect, submitted: domain.ListValue("b", "c"), correct: domain.StringValue("b,c"), want: false},
		{name: "multi select order independent", qType: domain.QuestionMultiSelect, submitted: domain.ListValue("c", "a"), correct: domain.ListValue("a", "c"), want: true},
		{name: "multi select subset", qType: domain.QuestionMultiSelect, submitted: domain.ListValue("a"), correct: domain.ListValue("a", "c"), want: false},
		{name: "multi select superset", qType: domain.QuestionMultiSelect, submitted: domain.ListValue("a", "b", "c"), correct: domain.ListValue("a", "c"), want: false},
		{name: "multi select scalar", qType: domain.QuestionMultiSelect, submitted: domain.StringValue("a"), correct: domain.ListValue("a"), want: true},
		{name: "missing answer", qType: domain.QuestionText, submitted: domain.Value{}, correct: domain.StringValue(""), want: false},
		{name: "unknown type", qType: "signature", submitted: domain.StringValue("x"), correct: domain.StringValue("x"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compare(tc.qType, tc.submitted, tc.correct, tc.opts); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestGradable(t *testing.T) {
	for _, qt := range []domain.QuestionType{domain.QuestionText, domain.QuestionNumber, domain.QuestionBoolean, domain.QuestionSingleSelect, domain.QuestionMultiSelect, domain.QuestionDate} {
		if !Gradable(qt) {
			t.Fatalf("expected %s to be gradable", qt)
		}
	}
	if Gradable("file-upload") {
		t.Fatalf("unknown types must not be gradable")
	}
}

func TestOverlap(t *testing.T) {
	hits, fp, size := Overlap(domain.ListValue("a", "x"), domain.ListValue("a", "b", "c"), false)
	if hits != 1 || !fp || size != 3 {
		t.Fatalf("unexpected overlap hits=%d fp=%v size=%d", hits, fp, size)
	}
}
