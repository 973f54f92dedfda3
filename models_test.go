package main

import (
	"strings"
	"testing"
)

func TestQualityStateThresholds(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{1.0, QualityExcellent},
		{0.8, QualityExcellent},
		{0.79, QualityGood},
		{0.6, QualityGood},
		{0.59, QualityRegular},
		{0.4, QualityRegular},
		{0.39, QualityDeficient},
		{0, QualityDeficient},
	}
	for _, tc := range cases {
		if got := QualityState(tc.score); got != tc.want {
			t.Fatalf("QualityState(%g) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestEvaluationRecordScoring(t *testing.T) {
	record := EvaluationRecord{Verdicts: allFalseVerdicts()}
	record.Verdicts[Independent] = true
	record.Verdicts[Valuable] = true
	record.Verdicts[Small] = true

	if record.PassedCount() != 3 {
		t.Fatalf("expected 3 passed, got %d", record.PassedCount())
	}
	if record.InvestScore() != 0.5 {
		t.Fatalf("expected score 0.5, got %g", record.InvestScore())
	}
	if record.FullyCompliant() {
		t.Fatalf("three of six must not be fully compliant")
	}

	for _, c := range CriteriaOrder {
		record.Verdicts[c] = true
	}
	if !record.FullyCompliant() || record.InvestScore() != 1.0 {
		t.Fatalf("expected full compliance, got %g", record.InvestScore())
	}
}

func TestFormatVerdicts(t *testing.T) {
	verdicts := allFalseVerdicts()
	verdicts[Independent] = true

	text := FormatVerdicts(verdicts)
	if !strings.HasPrefix(text, "✓ Independiente") {
		t.Fatalf("expected Independiente first, got %q", text)
	}
	if !strings.Contains(text, "✗ Testeable") {
		t.Fatalf("expected failed Testeable, got %q", text)
	}
	if got := strings.Count(text, "|"); got != 5 {
		t.Fatalf("expected 5 separators for 6 criteria, got %d", got)
	}
}
