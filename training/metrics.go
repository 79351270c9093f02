package training

import (
	"fmt"
	"math"
	"sort"
)

// AllLabels selects every label pooled together
const AllLabels = ""

// ScoreGold is one scored candidate: the predicted score and 1 if the label
// was a gold label of the example, 0 otherwise. A negative score marks a
// gold label the model did not predict.
type ScoreGold struct {
	Score float32 `json:"score"`
	Gold  float32 `json:"gold"`
}

// Metrics holds the counts of one label. The global metrics have an empty
// Label and no ScoreVsTrue entries.
type Metrics struct {
	Label         string      `json:"label,omitempty"`
	Gold          int64       `json:"gold"`
	Predicted     int64       `json:"predicted"`
	PredictedGold int64       `json:"predicted_gold"`
	ScoreVsTrue   []ScoreGold `json:"score_vs_true,omitempty"`
}

// Precision is NaN when nothing was predicted
func (m *Metrics) Precision() float64 {
	if m.Predicted == 0 {
		return math.NaN()
	}
	return float64(m.PredictedGold) / float64(m.Predicted)
}

// Recall is NaN when there were no gold labels
func (m *Metrics) Recall() float64 {
	if m.Gold == 0 {
		return math.NaN()
	}
	return float64(m.PredictedGold) / float64(m.Gold)
}

// F1 is NaN when both predicted and gold are zero
func (m *Metrics) F1() float64 {
	if m.Predicted+m.Gold == 0 {
		return math.NaN()
	}
	return 2 * float64(m.PredictedGold) / float64(m.Predicted+m.Gold)
}

// TestResult is the outcome of evaluating a model on a labeled file
type TestResult struct {
	Examples      int64               `json:"examples"`
	GlobalMetrics *Metrics            `json:"global"`
	LabelMetrics  map[string]*Metrics `json:"labels"`
}

// NewTestResult creates an empty result
func NewTestResult() *TestResult {
	return &TestResult{
		GlobalMetrics: &Metrics{},
		LabelMetrics:  make(map[string]*Metrics),
	}
}

// PositiveCount is the cumulative true/false positive count at one
// distinct score threshold
type PositiveCount struct {
	TruePositives  uint64
	FalsePositives uint64
}

// CurvePoint is one point of a precision-recall curve
type CurvePoint struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
}

// UnknownLabelError reports a label absent from the test result
type UnknownLabelError struct {
	Label string
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("label %q is not present in the test result", e.Label)
}

// ScoreVsTrue returns the score/gold pairs of label, or of every label for
// AllLabels, sorted by score and then gold, both ascending
func (r *TestResult) ScoreVsTrue(label string) ([]ScoreGold, error) {
	var pairs []ScoreGold
	if label == AllLabels {
		for _, m := range r.LabelMetrics {
			pairs = append(pairs, m.ScoreVsTrue...)
		}
	} else {
		m, ok := r.LabelMetrics[label]
		if !ok {
			return nil, &UnknownLabelError{Label: label}
		}
		pairs = append(pairs, m.ScoreVsTrue...)
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Score != pairs[j].Score {
			return pairs[i].Score < pairs[j].Score
		}
		return pairs[i].Gold < pairs[j].Gold
	})
	return pairs, nil
}

// PositiveCounts walks the sorted pairs from the highest score down and
// accumulates true and false positives. Negative scores are skipped. Runs
// of equal scores produce a single point holding the counts after the run.
func (r *TestResult) PositiveCounts(label string) ([]PositiveCount, error) {
	pairs, err := r.ScoreVsTrue(label)
	if err != nil {
		return nil, err
	}
	return positiveCounts(pairs), nil
}

func positiveCounts(pairs []ScoreGold) []PositiveCount {
	var (
		counts    []PositiveCount
		tp, fp    uint64
		lastScore = -2.0
	)

	for i := len(pairs) - 1; i >= 0; i-- {
		score := float64(pairs[i].Score)
		if score < 0 {
			continue
		}

		if pairs[i].Gold == 1 {
			tp++
		} else {
			fp++
		}

		point := PositiveCount{TruePositives: tp, FalsePositives: fp}
		if score == lastScore && len(counts) > 0 {
			counts[len(counts)-1] = point
		} else {
			counts = append(counts, point)
		}
		lastScore = score
	}
	return counts
}

// goldCount returns the gold total the recall of label is measured against
func (r *TestResult) goldCount(label string) int64 {
	if label == AllLabels {
		return r.GlobalMetrics.Gold
	}
	return r.LabelMetrics[label].Gold
}

// PrecisionRecallCurve returns the curve of label, or of all labels pooled
// for AllLabels. Points are emitted up to and including the first one that
// reaches every gold label; later points only add false positives at full
// recall. The curve then ends with the (1, 0) anchor. No scored pairs give
// an empty curve.
func (r *TestResult) PrecisionRecallCurve(label string) ([]CurvePoint, error) {
	counts, err := r.PositiveCounts(label)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return []CurvePoint{}, nil
	}

	golds := r.goldCount(label)
	curve := make([]CurvePoint, 0, len(counts)+1)
	for _, c := range counts {
		precision := 0.0
		if c.TruePositives+c.FalsePositives != 0 {
			precision = float64(c.TruePositives) / float64(c.TruePositives+c.FalsePositives)
		}
		recall := math.NaN()
		if golds != 0 {
			recall = float64(c.TruePositives) / float64(golds)
		}
		curve = append(curve, CurvePoint{Precision: precision, Recall: recall})

		if c.TruePositives >= uint64(golds) {
			break
		}
	}

	return append(curve, CurvePoint{Precision: 1, Recall: 0}), nil
}

// PrecisionAtRecall returns the best precision among points with recall of
// at least target, 0 if there is none
func PrecisionAtRecall(curve []CurvePoint, target float64) float64 {
	best := 0.0
	for _, p := range curve {
		if p.Recall >= target && p.Precision > best {
			best = p.Precision
		}
	}
	return best
}

// RecallAtPrecision returns the best recall among points with precision of
// at least target, 0 if there is none
func RecallAtPrecision(curve []CurvePoint, target float64) float64 {
	best := 0.0
	for _, p := range curve {
		if p.Precision >= target && p.Recall > best {
			best = p.Recall
		}
	}
	return best
}

// PrecisionAtRecall computes the curve of label and applies PrecisionAtRecall
func (r *TestResult) PrecisionAtRecall(recall float64, label string) (float64, error) {
	curve, err := r.PrecisionRecallCurve(label)
	if err != nil {
		return 0, err
	}
	return PrecisionAtRecall(curve, recall), nil
}

// RecallAtPrecision computes the curve of label and applies RecallAtPrecision
func (r *TestResult) RecallAtPrecision(precision float64, label string) (float64, error) {
	curve, err := r.PrecisionRecallCurve(label)
	if err != nil {
		return 0, err
	}
	return RecallAtPrecision(curve, precision), nil
}

// LabelStat is one row of the per-label summary
type LabelStat struct {
	Label     string
	Precision float64
	Recall    float64
	F1        float64
}

// LabelStats returns precision, recall and F1 for every label, sorted by label
func (r *TestResult) LabelStats() []LabelStat {
	stats := make([]LabelStat, 0, len(r.LabelMetrics))
	for label, m := range r.LabelMetrics {
		stats = append(stats, LabelStat{
			Label:     label,
			Precision: m.Precision(),
			Recall:    m.Recall(),
			F1:        m.F1(),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Label < stats[j].Label })
	return stats
}
