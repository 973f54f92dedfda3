package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
)

// Agent orchestrates story evaluation. It is configured with a mode and
// decides per call whether the external model or the rule evaluators
// produce the record.
//
// Mode state machine: an agent constructed in external mode checks the
// collaborator once; if that check fails it downgrades to rules for the
// lifetime of the instance. A per-call external failure does not change
// the instance mode — only that record is tagged as rule-evaluated.
type Agent struct {
	mode   string
	client ModelClient
}

const invalidFormatSuggestion = "Formato de historia de usuario inválido"

// NewAgent builds an agent in the requested mode. client may be nil in
// rules mode.
func NewAgent(mode string, client ModelClient) *Agent {
	agent := &Agent{mode: ModeRules, client: client}

	if mode == ModeExternal {
		if client == nil {
			log.Printf("agent external mode requested without a model client, using rules")
			return agent
		}
		if err := client.Connect(); err != nil {
			log.Printf("agent external model unavailable, using rules: %v", err)
			return agent
		}
		agent.mode = ModeExternal
	}
	return agent
}

// Mode returns the agent's current evaluation mode.
func (a *Agent) Mode() string {
	return a.mode
}

// ExternalAvailable reports whether the external collaborator can be
// called right now.
func (a *Agent) ExternalAvailable() bool {
	return a.mode == ModeExternal && a.client != nil && a.client.Available()
}

// Client exposes the model collaborator for downstream estimation calls.
func (a *Agent) Client() ModelClient {
	return a.client
}

// Evaluate produces the canonical record for one story. An empty id is
// replaced with a deterministic text-derived one.
func (a *Agent) Evaluate(ctx context.Context, story, id string) EvaluationRecord {
	if id == "" {
		id = autoStoryID(story)
	}

	if !ValidateStoryFormat(story) {
		return EvaluationRecord{
			ID:          id,
			Text:        story,
			Verdicts:    allFalseVerdicts(),
			Suggestions: []string{invalidFormatSuggestion},
			Mode:        a.mode,
		}
	}

	if a.ExternalAvailable() {
		evaluation, err := a.client.EvaluateStory(ctx, story)
		if err == nil {
			return EvaluationRecord{
				ID:          id,
				Text:        story,
				Verdicts:    evaluation.Verdicts,
				Suggestions: evaluation.Suggestions,
				Mode:        ModeExternal,
			}
		}
		// Per-call fallback only; the instance stays in external mode.
		log.Printf("agent external evaluation failed for %s, using rules: %v", id, err)
	}

	return a.evaluateWithRules(story, id)
}

func (a *Agent) evaluateWithRules(story, id string) EvaluationRecord {
	verdicts := make(map[Criterion]bool, len(CriteriaOrder))
	var suggestions []string
	for _, evaluator := range ruleEvaluators {
		passed, perCriterion := evaluator.Evaluate(story)
		verdicts[evaluator.Criterion] = passed
		suggestions = append(suggestions, perCriterion...)
	}
	return EvaluationRecord{
		ID:          id,
		Text:        story,
		Verdicts:    verdicts,
		Suggestions: suggestions,
		Mode:        ModeRules,
	}
}

// EvaluateBatch evaluates stories in order, assigning sequential ids.
func (a *Agent) EvaluateBatch(ctx context.Context, stories []string) []EvaluationRecord {
	records := make([]EvaluationRecord, 0, len(stories))
	for i, story := range stories {
		records = append(records, a.Evaluate(ctx, story, fmt.Sprintf("BATCH_%03d", i+1)))
	}
	return records
}

// Summarize aggregates a batch of records: per-criterion pass counts and
// percentages plus the fully-compliant share. The first record's mode is
// reported as representative.
func (a *Agent) Summarize(records []EvaluationRecord) (EvaluationSummary, error) {
	if len(records) == 0 {
		return EvaluationSummary{}, fmt.Errorf("no evaluation records to summarize")
	}

	summary := EvaluationSummary{
		TotalStories:       len(records),
		CriteriaPassCounts: make(map[Criterion]int, len(CriteriaOrder)),
		CriteriaPercents:   make(map[Criterion]float64, len(CriteriaOrder)),
		Mode:               records[0].Mode,
	}

	for _, record := range records {
		for _, c := range CriteriaOrder {
			if record.Verdicts[c] {
				summary.CriteriaPassCounts[c]++
			}
		}
		if record.FullyCompliant() {
			summary.FullyCompliant++
		}
	}

	total := float64(summary.TotalStories)
	for _, c := range CriteriaOrder {
		summary.CriteriaPercents[c] = round1(float64(summary.CriteriaPassCounts[c]) / total * 100)
	}
	summary.CompliantPercent = round1(float64(summary.FullyCompliant) / total * 100)
	return summary, nil
}

func autoStoryID(story string) string {
	h := fnv.New32a()
	h.Write([]byte(story))
	return fmt.Sprintf("STORY_%04d", h.Sum32()%10000)
}
