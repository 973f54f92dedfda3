package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
)

// Pipeline runs the full evaluation and estimation flow over a backlog.
// Stories are processed synchronously, one at a time; the orchestrator
// mode and the trained model are fixed before a batch starts.
type Pipeline struct {
	agent     *Agent
	estimator *TimeEstimator
}

// Row defaults when the backlog omits the columns.
const (
	defaultSprint   = "1"
	defaultPriority = "Media"

	// degradedHours is the fixed figure both estimates get when a
	// story's processing fails outright.
	degradedHours = 8.0
)

func NewPipeline(agent *Agent, estimator *TimeEstimator) *Pipeline {
	return &Pipeline{agent: agent, estimator: estimator}
}

// ProcessStory evaluates and estimates one story. Failures never escape:
// a story that cannot be processed yields a degraded result so the rest
// of the batch is unaffected.
func (p *Pipeline) ProcessStory(ctx context.Context, story Story) (result StoryResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("pipeline story %s failed: %v", story.ID, r)
			result = p.degradedResult(story, fmt.Sprintf("Error procesando historia: %v", r))
		}
	}()

	if story.Sprint == "" {
		story.Sprint = defaultSprint
	}
	if story.Priority == "" {
		story.Priority = defaultPriority
	}

	record := p.agent.Evaluate(ctx, story.Text, story.ID)

	external := p.estimateExternal(ctx, story.Text, record.Verdicts)
	regression := p.estimator.Predict(story.Text, record.Verdicts)

	score := round2(record.InvestScore())
	return StoryResult{
		ID:           record.ID,
		Text:         story.Text,
		Sprint:       story.Sprint,
		Priority:     story.Priority,
		Verdicts:     record.Verdicts,
		InvestScore:  score,
		Quality:      QualityState(score),
		External:     external,
		Regression:   regression,
		EstimateDiff: round1(math.Abs(external.Hours - regression.Hours)),
		Suggestions:  record.Suggestions,
		Mode:         record.Mode,
	}
}

// estimateExternal is the external-first estimation path: the model's
// figure when the collaborator is available and answers in range, the
// heuristic otherwise. The Source tag records which branch was taken.
func (p *Pipeline) estimateExternal(ctx context.Context, story string, verdicts map[Criterion]bool) Estimate {
	if p.agent.ExternalAvailable() {
		hours, err := p.agent.Client().EstimateHours(ctx, story, verdicts)
		if err == nil {
			return Estimate{Hours: round1(hours), Source: SourceExternal}
		}
		log.Printf("pipeline external estimate failed, using heuristic: %v", err)
	}
	return Estimate{Hours: HeuristicEstimate(story, passedCriteria(verdicts)), Source: SourceHeuristic}
}

func (p *Pipeline) degradedResult(story Story, reason string) StoryResult {
	if story.Sprint == "" {
		story.Sprint = defaultSprint
	}
	if story.Priority == "" {
		story.Priority = defaultPriority
	}
	return StoryResult{
		ID:           story.ID,
		Text:         story.Text,
		Sprint:       story.Sprint,
		Priority:     story.Priority,
		Verdicts:     allFalseVerdicts(),
		InvestScore:  0,
		Quality:      QualityError,
		External:     Estimate{Hours: degradedHours, Source: SourceHeuristic},
		Regression:   Estimate{Hours: degradedHours, Source: SourceHeuristic},
		EstimateDiff: 0,
		Suggestions:  []string{reason},
		Mode:         p.agent.Mode(),
	}
}

// ProcessBacklog processes every story in order. Structural validation
// (mandatory id and text columns) happens when the backlog is loaded;
// here a malformed story only degrades its own result.
func (p *Pipeline) ProcessBacklog(ctx context.Context, stories []Story) []StoryResult {
	log.Printf("pipeline processing stories=%d mode=%s trained=%v", len(stories), p.agent.Mode(), p.estimator.Trained())
	results := make([]StoryResult, 0, len(stories))
	for i, story := range stories {
		log.Printf("pipeline story %d/%d id=%s", i+1, len(stories), story.ID)
		results = append(results, p.ProcessStory(ctx, story))
	}
	return results
}

// SummarizeSprints rebuilds per-sprint rollups from scratch. Sums are
// rounded to one decimal and the mean score to two, only after full
// accumulation.
func SummarizeSprints(results []StoryResult) []SprintSummary {
	type accumulator struct {
		stories    int
		external   float64
		regression float64
		excellent  int
		deficient  int
		scoreSum   float64
	}
	groups := make(map[string]*accumulator)
	for _, result := range results {
		acc := groups[result.Sprint]
		if acc == nil {
			acc = &accumulator{}
			groups[result.Sprint] = acc
		}
		acc.stories++
		acc.external += result.External.Hours
		acc.regression += result.Regression.Hours
		switch result.Quality {
		case QualityExcellent:
			acc.excellent++
		case QualityDeficient:
			acc.deficient++
		}
		acc.scoreSum += result.InvestScore
	}

	sprints := make([]string, 0, len(groups))
	for sprint := range groups {
		sprints = append(sprints, sprint)
	}
	sort.Strings(sprints)

	summaries := make([]SprintSummary, 0, len(sprints))
	for _, sprint := range sprints {
		acc := groups[sprint]
		summaries = append(summaries, SprintSummary{
			Sprint:          sprint,
			Stories:         acc.stories,
			ExternalHours:   round1(acc.external),
			RegressionHours: round1(acc.regression),
			Excellent:       acc.excellent,
			Deficient:       acc.deficient,
			MeanScore:       round2(acc.scoreSum / float64(acc.stories)),
		})
	}
	return summaries
}

// FormatSprintSummaries renders rollups for terminal output and the
// optional channel notification.
func FormatSprintSummaries(summaries []SprintSummary) string {
	if len(summaries) == 0 {
		return "Sin historias procesadas."
	}
	var out strings.Builder
	for _, s := range summaries {
		out.WriteString(fmt.Sprintf(
			"Sprint %s: %d historias | externa %.1fh | regresión %.1fh | excelentes %d | deficientes %d | score medio %.2f\n",
			s.Sprint, s.Stories, s.ExternalHours, s.RegressionHours, s.Excellent, s.Deficient, s.MeanScore))
	}
	return strings.TrimRight(out.String(), "\n")
}
