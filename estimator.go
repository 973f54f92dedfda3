package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
)

// TimeEstimator predicts development hours for a story. It prefers a
// trained linear model and falls back to a deterministic heuristic when
// untrained or when the model path fails.
type TimeEstimator struct {
	state *TrainedModelState
}

// TrainedModelState is the immutable output of one training run. The
// estimator swaps its current state reference atomically; callers never
// mutate a state in place.
type TrainedModelState struct {
	Coefficients []float64    `json:"coefficients"` // one per feature
	Intercept    float64      `json:"intercept"`
	FeatureMeans []float64    `json:"feature_means"`
	FeatureStds  []float64    `json:"feature_stds"`
	Trained      bool         `json:"trained"`
	Metrics      ModelMetrics `json:"metrics"`
}

// ModelMetrics are the evaluation figures recorded at training time.
type ModelMetrics struct {
	TrainMAE        float64            `json:"train_mae"`
	TestMAE         float64            `json:"test_mae"`
	TrainR2         float64            `json:"train_r2"`
	TestR2          float64            `json:"test_r2"`
	Coefficients    map[string]float64 `json:"feature_importance"`
	Intercept       float64            `json:"intercept"`
	TrainingSamples int                `json:"training_samples"`
}

var featureNames = []string{"longitud_tokens", "criterios_invest", "complejidad"}

const (
	minEstimateHours = 1.0
	maxEstimateHours = 100.0

	// Fixed shuffle seed keeps the train/test split reproducible.
	trainSplitSeed = 42
	testFraction   = 0.2
)

func NewTimeEstimator() *TimeEstimator {
	return &TimeEstimator{}
}

// Trained reports whether a fitted model is currently loaded.
func (e *TimeEstimator) Trained() bool {
	return e.state != nil && e.state.Trained
}

// Metrics returns the current model's training metrics, or false when
// the estimator is untrained.
func (e *TimeEstimator) Metrics() (ModelMetrics, bool) {
	if !e.Trained() {
		return ModelMetrics{}, false
	}
	return e.state.Metrics, true
}

// complexityLevel derives the 1-3 complexity feature from word count,
// adjusted by how many criteria the story satisfies.
func complexityLevel(words, criteria int) float64 {
	level := 3.0
	switch {
	case words <= 10:
		level = 1
	case words <= 15:
		level = 2
	}
	if criteria >= 5 {
		level += 0.5
	} else if criteria <= 3 {
		level -= 0.5
	}
	level = math.Round(level)
	if level < 1 {
		level = 1
	}
	if level > 3 {
		level = 3
	}
	return level
}

// extractFeatures builds the three model features for one story.
func extractFeatures(words, criteria int) []float64 {
	return []float64{float64(words), float64(criteria), complexityLevel(words, criteria)}
}

// trainingComplexityLevel derives the complexity feature for a training
// row without a label. The word brackets are wider than the ones used
// at prediction time.
func trainingComplexityLevel(words, criteria int) float64 {
	level := 3.0
	switch {
	case words <= 12:
		level = 1
	case words <= 15:
		level = 2
	}
	if criteria >= 5 {
		level += 0.5
	} else if criteria <= 3 {
		level -= 0.5
	}
	level = math.Round(level)
	if level < 1 {
		level = 1
	}
	if level > 3 {
		level = 3
	}
	return level
}

// historicalFeatures builds features for a training row, honoring an
// explicit complexity label when present. Labels other than
// Baja/Media/Alta fall back to the middle level.
func historicalFeatures(row HistoricalStory) []float64 {
	words := row.Tokens
	if words == 0 {
		words = CountWords(row.Text)
	}
	complexity := trainingComplexityLevel(words, row.Criteria)
	switch row.Complexity {
	case "":
	case "Baja":
		complexity = 1
	case "Media":
		complexity = 2
	case "Alta":
		complexity = 3
	default:
		complexity = 2
	}
	return []float64{float64(words), float64(row.Criteria), complexity}
}

// Train fits an ordinary-least-squares model on the historical dataset
// and swaps the estimator's state on success. The dataset must have at
// least five rows with positive hours.
func (e *TimeEstimator) Train(rows []HistoricalStory) (ModelMetrics, error) {
	if len(rows) == 0 {
		return ModelMetrics{}, fmt.Errorf("historical dataset is empty")
	}
	if len(rows) < 5 {
		return ModelMetrics{}, fmt.Errorf("historical dataset too small: %d rows, need at least 5", len(rows))
	}
	for i, row := range rows {
		if row.Text == "" && row.Tokens == 0 {
			return ModelMetrics{}, fmt.Errorf("row %d: missing story text and token count", i)
		}
		if row.Hours <= 0 {
			return ModelMetrics{}, fmt.Errorf("row %d: hours must be positive, got %g", i, row.Hours)
		}
	}

	features := make([][]float64, len(rows))
	targets := make([]float64, len(rows))
	for i, row := range rows {
		features[i] = historicalFeatures(row)
		targets[i] = row.Hours
	}

	trainIdx, testIdx := splitIndices(len(rows))
	log.Printf("estimator training samples=%d test=%d features=%v", len(trainIdx), len(testIdx), featureNames)

	means, stds := fitScaler(features, trainIdx)
	scaled := make([][]float64, len(features))
	for i, f := range features {
		scaled[i] = scaleFeatures(f, means, stds)
	}

	coefs, intercept, err := fitOLS(scaled, targets, trainIdx)
	if err != nil {
		return ModelMetrics{}, fmt.Errorf("fitting model: %w", err)
	}

	predict := func(idx []int) []float64 {
		preds := make([]float64, len(idx))
		for i, j := range idx {
			preds[i] = intercept + dot(coefs, scaled[j])
		}
		return preds
	}
	trainPred := predict(trainIdx)
	testPred := predict(testIdx)

	metrics := ModelMetrics{
		TrainMAE:        round2(meanAbsoluteError(targets, trainIdx, trainPred)),
		TestMAE:         round2(meanAbsoluteError(targets, testIdx, testPred)),
		TrainR2:         round3(r2Score(targets, trainIdx, trainPred)),
		TestR2:          round3(r2Score(targets, testIdx, testPred)),
		Coefficients:    map[string]float64{},
		Intercept:       round2(intercept),
		TrainingSamples: len(trainIdx),
	}
	for i, name := range featureNames {
		metrics.Coefficients[name] = round3(coefs[i])
	}

	e.state = &TrainedModelState{
		Coefficients: coefs,
		Intercept:    intercept,
		FeatureMeans: means,
		FeatureStds:  stds,
		Trained:      true,
		Metrics:      metrics,
	}

	log.Printf("estimator trained test_mae=%.2f test_r2=%.3f samples=%d", metrics.TestMAE, metrics.TestR2, metrics.TrainingSamples)
	return metrics, nil
}

// Predict estimates hours for a story. Untrained estimators and any
// model-path failure return the heuristic estimate; the Source tag on
// the result makes the chosen branch observable.
func (e *TimeEstimator) Predict(story string, verdicts map[Criterion]bool) Estimate {
	criteria := passedCriteria(verdicts)
	if !e.Trained() {
		return Estimate{Hours: HeuristicEstimate(story, criteria), Source: SourceHeuristic}
	}

	features := extractFeatures(CountWords(story), criteria)
	scaled, err := e.state.transform(features)
	if err != nil {
		log.Printf("estimator transform failed, using heuristic: %v", err)
		return Estimate{Hours: HeuristicEstimate(story, criteria), Source: SourceHeuristic}
	}

	hours := e.state.Intercept + dot(e.state.Coefficients, scaled)
	if math.IsNaN(hours) || math.IsInf(hours, 0) {
		log.Printf("estimator produced non-finite prediction, using heuristic")
		return Estimate{Hours: HeuristicEstimate(story, criteria), Source: SourceHeuristic}
	}
	hours = clampHours(hours)
	return Estimate{Hours: round1(hours), Source: SourceTrainedModel}
}

func (s *TrainedModelState) transform(features []float64) ([]float64, error) {
	if len(s.Coefficients) != len(features) || len(s.FeatureMeans) != len(features) || len(s.FeatureStds) != len(features) {
		return nil, fmt.Errorf("model state has %d coefficients, want %d", len(s.Coefficients), len(features))
	}
	scaled := scaleFeatures(features, s.FeatureMeans, s.FeatureStds)
	return scaled, nil
}

// HeuristicEstimate is the deterministic fallback formula: base hours by
// word-count bracket, scaled by how many criteria the story satisfies.
func HeuristicEstimate(story string, criteria int) float64 {
	words := CountWords(story)
	base := 16.0
	switch {
	case words <= 8:
		base = 4
	case words <= 15:
		base = 8
	case words <= 25:
		base = 12
	}

	switch {
	case criteria >= 5:
		base *= 0.8
	case criteria <= 3:
		base *= 1.5
	}
	return round1(base)
}

func passedCriteria(verdicts map[Criterion]bool) int {
	n := 0
	for _, ok := range verdicts {
		if ok {
			n++
		}
	}
	return n
}

// MarshalState serializes the trained state as an opaque blob.
func (e *TimeEstimator) MarshalState() ([]byte, error) {
	if !e.Trained() {
		return nil, fmt.Errorf("no trained model to serialize")
	}
	return json.Marshal(e.state)
}

// RestoreState replaces the current state from a serialized blob. On
// failure the prior state is kept and the error returned.
func (e *TimeEstimator) RestoreState(blob []byte) error {
	var state TrainedModelState
	if err := json.Unmarshal(blob, &state); err != nil {
		return fmt.Errorf("parsing model state: %w", err)
	}
	if !state.Trained {
		return fmt.Errorf("serialized model state is not trained")
	}
	if len(state.Coefficients) != len(featureNames) {
		return fmt.Errorf("serialized model has %d coefficients, want %d", len(state.Coefficients), len(featureNames))
	}
	e.state = &state
	return nil
}

// --- training internals ---

// splitIndices shuffles row indices with a fixed seed and carves off the
// test fraction (rounded up).
func splitIndices(n int) (train, test []int) {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewSource(trainSplitSeed))
	rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	testN := int(math.Ceil(float64(n) * testFraction))
	if testN >= n {
		testN = n - 1
	}
	return idx[testN:], idx[:testN]
}

// fitScaler computes per-feature mean and standard deviation over the
// training rows. Constant features get a unit scale so the transform
// stays defined.
func fitScaler(features [][]float64, trainIdx []int) (means, stds []float64) {
	dims := len(featureNames)
	means = make([]float64, dims)
	stds = make([]float64, dims)
	n := float64(len(trainIdx))

	for _, i := range trainIdx {
		for d := 0; d < dims; d++ {
			means[d] += features[i][d]
		}
	}
	for d := 0; d < dims; d++ {
		means[d] /= n
	}
	for _, i := range trainIdx {
		for d := 0; d < dims; d++ {
			diff := features[i][d] - means[d]
			stds[d] += diff * diff
		}
	}
	for d := 0; d < dims; d++ {
		stds[d] = math.Sqrt(stds[d] / n)
		if stds[d] == 0 {
			stds[d] = 1
		}
	}
	return means, stds
}

func scaleFeatures(features, means, stds []float64) []float64 {
	scaled := make([]float64, len(features))
	for d := range features {
		scaled[d] = (features[d] - means[d]) / stds[d]
	}
	return scaled
}

// fitOLS solves the normal equations for a linear model with intercept
// over the training rows.
func fitOLS(features [][]float64, targets []float64, trainIdx []int) (coefs []float64, intercept float64, err error) {
	dims := len(featureNames)
	size := dims + 1 // intercept term first

	// Build X'X and X'y with an implicit leading 1 column.
	xtx := make([][]float64, size)
	for i := range xtx {
		xtx[i] = make([]float64, size)
	}
	xty := make([]float64, size)

	row := make([]float64, size)
	for _, i := range trainIdx {
		row[0] = 1
		copy(row[1:], features[i])
		for a := 0; a < size; a++ {
			for b := 0; b < size; b++ {
				xtx[a][b] += row[a] * row[b]
			}
			xty[a] += row[a] * targets[i]
		}
	}

	solution, err := solveLinearSystem(xtx, xty)
	if err != nil {
		return nil, 0, err
	}
	return solution[1:], solution[0], nil
}

// solveLinearSystem solves Ax = b by Gaussian elimination with partial
// pivoting. A and b are modified in place.
func solveLinearSystem(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("singular design matrix")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			factor := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		sum := b[r]
		for c := r + 1; c < n; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, nil
}

func meanAbsoluteError(targets []float64, idx []int, preds []float64) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for i, j := range idx {
		sum += math.Abs(targets[j] - preds[i])
	}
	return sum / float64(len(idx))
}

func r2Score(targets []float64, idx []int, preds []float64) float64 {
	if len(idx) == 0 {
		return 0
	}
	mean := 0.0
	for _, j := range idx {
		mean += targets[j]
	}
	mean /= float64(len(idx))

	ssRes, ssTot := 0.0, 0.0
	for i, j := range idx {
		ssRes += (targets[j] - preds[i]) * (targets[j] - preds[i])
		ssTot += (targets[j] - mean) * (targets[j] - mean)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func clampHours(hours float64) float64 {
	if hours < minEstimateHours {
		return minEstimateHours
	}
	if hours > maxEstimateHours {
		return maxEstimateHours
	}
	return hours
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }
func round2(x float64) float64 { return math.Round(x*100) / 100 }
func round3(x float64) float64 { return math.Round(x*1000) / 1000 }
