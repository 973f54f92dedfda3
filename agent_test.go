package main

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

type fakeModelClient struct {
	connectErr error
	evaluation *ModelEvaluation
	evalErr    error
	hours      float64
	hoursErr   error
	evalCalls  int
}

func (f *fakeModelClient) Connect() error { return f.connectErr }

func (f *fakeModelClient) Available() bool { return f.connectErr == nil }

func (f *fakeModelClient) EvaluateStory(ctx context.Context, story string) (*ModelEvaluation, error) {
	f.evalCalls++
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	return f.evaluation, nil
}

func (f *fakeModelClient) EstimateHours(ctx context.Context, story string, verdicts map[Criterion]bool) (float64, error) {
	if f.hoursErr != nil {
		return 0, f.hoursErr
	}
	return f.hours, nil
}

func allTrueEvaluation() *ModelEvaluation {
	verdicts := make(map[Criterion]bool, len(CriteriaOrder))
	for _, c := range CriteriaOrder {
		verdicts[c] = true
	}
	return &ModelEvaluation{Verdicts: verdicts}
}

func TestNewAgentDowngradesWhenModelUnreachable(t *testing.T) {
	agent := NewAgent(ModeExternal, &fakeModelClient{connectErr: fmt.Errorf("connection refused")})
	if agent.Mode() != ModeRules {
		t.Fatalf("expected permanent downgrade to rules, got %s", agent.Mode())
	}

	// Once downgraded, the instance never goes back to external.
	record := agent.Evaluate(context.Background(), loginStory, "US-1")
	if record.Mode != ModeRules {
		t.Fatalf("expected rules record after downgrade, got %s", record.Mode)
	}

	if NewAgent(ModeExternal, nil).Mode() != ModeRules {
		t.Fatalf("expected rules mode when no client is provided")
	}
}

func TestAgentExternalEvaluation(t *testing.T) {
	client := &fakeModelClient{evaluation: allTrueEvaluation()}
	agent := NewAgent(ModeExternal, client)
	if agent.Mode() != ModeExternal {
		t.Fatalf("expected external mode, got %s", agent.Mode())
	}

	record := agent.Evaluate(context.Background(), loginStory, "US-7")
	if record.Mode != ModeExternal {
		t.Fatalf("expected external record, got %s", record.Mode)
	}
	if record.PassedCount() != 6 {
		t.Fatalf("expected all six verdicts from the model, got %d", record.PassedCount())
	}
	if client.evalCalls != 1 {
		t.Fatalf("expected one model call, got %d", client.evalCalls)
	}
}

func TestAgentPerCallFallbackKeepsExternalMode(t *testing.T) {
	client := &fakeModelClient{evalErr: fmt.Errorf("model timeout")}
	agent := NewAgent(ModeExternal, client)

	record := agent.Evaluate(context.Background(), loginStory, "US-9")
	if record.Mode != ModeRules {
		t.Fatalf("expected the fallback record to be tagged rules, got %s", record.Mode)
	}
	if agent.Mode() != ModeExternal {
		t.Fatalf("a per-call failure must not downgrade the instance, got %s", agent.Mode())
	}
	// The rule evaluators produced real verdicts, not a degraded record.
	if !record.Verdicts[Independent] {
		t.Fatalf("expected rule verdicts on fallback")
	}
}

func TestAgentRejectsInvalidStoryFormat(t *testing.T) {
	agent := NewAgent(ModeRules, nil)
	record := agent.Evaluate(context.Background(), "esto no es una historia", "US-2")

	if record.PassedCount() != 0 {
		t.Fatalf("invalid format must fail every criterion, passed %d", record.PassedCount())
	}
	if len(record.Suggestions) != 1 || record.Suggestions[0] != invalidFormatSuggestion {
		t.Fatalf("expected the single format suggestion, got %v", record.Suggestions)
	}
}

func TestAgentAssignsDeterministicIDs(t *testing.T) {
	agent := NewAgent(ModeRules, nil)
	a := agent.Evaluate(context.Background(), loginStory, "")
	b := agent.Evaluate(context.Background(), loginStory, "")

	if !strings.HasPrefix(a.ID, "STORY_") || len(a.ID) != len("STORY_0000") {
		t.Fatalf("unexpected auto id %q", a.ID)
	}
	if a.ID != b.ID {
		t.Fatalf("auto ids must be text-derived and stable: %q vs %q", a.ID, b.ID)
	}
}

func TestEvaluateBatchOrderAndIDs(t *testing.T) {
	agent := NewAgent(ModeRules, nil)
	stories := []string{
		loginStory,
		"Como admin quiero exportar reportes para auditar ventas del mes",
	}
	records := agent.EvaluateBatch(context.Background(), stories)

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "BATCH_001" || records[1].ID != "BATCH_002" {
		t.Fatalf("unexpected batch ids %q, %q", records[0].ID, records[1].ID)
	}
	if records[0].Text != stories[0] || records[1].Text != stories[1] {
		t.Fatalf("batch records out of order")
	}
}

func TestSummarize(t *testing.T) {
	agent := NewAgent(ModeRules, nil)

	if _, err := agent.Summarize(nil); err == nil {
		t.Fatalf("expected error for empty record set")
	}

	full := EvaluationRecord{Verdicts: allTrueEvaluation().Verdicts, Mode: ModeRules}
	partial := EvaluationRecord{Verdicts: allFalseVerdicts(), Mode: ModeRules}
	partial.Verdicts[Independent] = true

	summary, err := agent.Summarize([]EvaluationRecord{full, partial})
	if err != nil {
		t.Fatalf("summarize failed: %v", err)
	}
	if summary.TotalStories != 2 || summary.FullyCompliant != 1 {
		t.Fatalf("unexpected totals %+v", summary)
	}
	if summary.CompliantPercent != 50.0 {
		t.Fatalf("expected 50%% compliant, got %g", summary.CompliantPercent)
	}
	if summary.CriteriaPassCounts[Independent] != 2 {
		t.Fatalf("expected 2 passes for Independiente, got %d", summary.CriteriaPassCounts[Independent])
	}
	if summary.CriteriaPercents[Testable] != 50.0 {
		t.Fatalf("expected 50%% for Testeable, got %g", summary.CriteriaPercents[Testable])
	}
	if summary.Mode != ModeRules {
		t.Fatalf("expected representative mode rules, got %s", summary.Mode)
	}
}
