package main

import (
	"fmt"
	"strings"
	"time"
)

// Criterion is one letter of the INVEST checklist. The values keep the
// Spanish labels the evaluated backlogs use.
type Criterion string

const (
	Independent Criterion = "Independiente"
	Negotiable  Criterion = "Negociable"
	Valuable    Criterion = "Valiosa"
	Estimable   Criterion = "Estimable"
	Small       Criterion = "Small"
	Testable    Criterion = "Testeable"
)

// CriteriaOrder is the fixed evaluation and reporting order.
var CriteriaOrder = []Criterion{Independent, Negotiable, Valuable, Estimable, Small, Testable}

// Evaluation modes.
const (
	ModeRules    = "rules"
	ModeExternal = "external"
)

// Estimate sources.
const (
	SourceExternal     = "external"
	SourceTrainedModel = "trained-model"
	SourceHeuristic    = "heuristic"
)

// Story is one backlog row before evaluation.
type Story struct {
	ID       string
	Text     string
	Sprint   string
	Priority string
}

// EvaluationRecord is the canonical result of evaluating one story.
// Verdicts always holds all six criteria. Suggestions keep criterion
// evaluation order; duplicates are allowed.
type EvaluationRecord struct {
	ID          string
	Text        string
	Verdicts    map[Criterion]bool
	Suggestions []string
	Mode        string
}

// PassedCount returns how many of the six criteria hold.
func (r EvaluationRecord) PassedCount() int {
	n := 0
	for _, c := range CriteriaOrder {
		if r.Verdicts[c] {
			n++
		}
	}
	return n
}

// InvestScore is PassedCount over six, always in [0, 1].
func (r EvaluationRecord) InvestScore() float64 {
	return float64(r.PassedCount()) / float64(len(CriteriaOrder))
}

// FullyCompliant reports whether every criterion passed.
func (r EvaluationRecord) FullyCompliant() bool {
	return r.PassedCount() == len(CriteriaOrder)
}

// Quality states derived from the invest score.
const (
	QualityExcellent = "Excelente"
	QualityGood      = "Buena"
	QualityRegular   = "Regular"
	QualityDeficient = "Deficiente"
	QualityError     = "Error"
)

// QualityState classifies an invest score with fixed thresholds.
func QualityState(score float64) string {
	switch {
	case score >= 0.8:
		return QualityExcellent
	case score >= 0.6:
		return QualityGood
	case score >= 0.4:
		return QualityRegular
	default:
		return QualityDeficient
	}
}

// Estimate is one hours figure plus where it came from.
type Estimate struct {
	Hours  float64
	Source string
}

// StoryResult is the pipeline output for one story.
type StoryResult struct {
	ID           string
	Text         string
	Sprint       string
	Priority     string
	Verdicts     map[Criterion]bool
	InvestScore  float64
	Quality      string
	External     Estimate // external-model estimate, or its heuristic fallback
	Regression   Estimate // trained-model estimate, or heuristic when untrained
	EstimateDiff float64
	Suggestions  []string
	Mode         string
}

// SprintSummary aggregates StoryResults grouped by sprint key. It is
// rebuilt fully per request, never mutated incrementally by callers.
type SprintSummary struct {
	Sprint          string
	Stories         int
	ExternalHours   float64
	RegressionHours float64
	Excellent       int
	Deficient       int
	MeanScore       float64
}

// HistoricalStory is one row of a labeled training dataset.
type HistoricalStory struct {
	Text       string
	Tokens     int // optional precomputed word count; 0 means derive from Text
	Hours      float64
	Criteria   int    // count of INVEST criteria satisfied, 0-6
	Complexity string // optional "Baja"/"Media"/"Alta"
}

// EvaluationSummary holds aggregate stats over a batch of records.
type EvaluationSummary struct {
	TotalStories       int
	FullyCompliant     int
	CompliantPercent   float64
	CriteriaPassCounts map[Criterion]int
	CriteriaPercents   map[Criterion]float64
	Mode               string
}

// PipelineRun records one processed batch for the run history table.
type PipelineRun struct {
	ID        int64
	StartedAt time.Time
	Mode      string
	Stories   int
	Backlog   string
}

// FormatVerdicts renders verdicts in fixed order, e.g. "✓ Independiente | ✗ Negociable | ...".
func FormatVerdicts(verdicts map[Criterion]bool) string {
	parts := make([]string, 0, len(CriteriaOrder))
	for _, c := range CriteriaOrder {
		mark := "✗"
		if verdicts[c] {
			mark = "✓"
		}
		parts = append(parts, fmt.Sprintf("%s %s", mark, c))
	}
	return strings.Join(parts, " | ")
}

// allFalseVerdicts returns a fresh map with every criterion failed.
func allFalseVerdicts() map[Criterion]bool {
	verdicts := make(map[Criterion]bool, len(CriteriaOrder))
	for _, c := range CriteriaOrder {
		verdicts[c] = false
	}
	return verdicts
}
