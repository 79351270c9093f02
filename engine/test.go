package engine

import (
	"fmt"
	"unsafe"

	"go.uber.org/zap"

	"github.com/tsawler/go-fasttext/native"
	"github.com/tsawler/go-fasttext/training"
	"github.com/tsawler/go-fasttext/wire"
)

// Test evaluates the model on a labeled file, predicting up to k labels per
// line with at least threshold probability
func (ft *FastText) Test(input string, k int, threshold float32) (*training.TestResult, error) {
	return ft.test(input, k, threshold, false)
}

// TestDebug runs Test with the native debug dump enabled. The native
// engine writes _debug.txt, which training.LoadDebugResultFile reads back
// for cross-checking.
func (ft *FastText) TestDebug(input string, k int, threshold float32) (*training.TestResult, error) {
	return ft.test(input, k, threshold, true)
}

func (ft *FastText) test(input string, k int, threshold float32, debug bool) (*training.TestResult, error) {
	h, err := ft.check("Test", true, true)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, reject("Test", &native.ArgumentError{Arg: "k", Reason: "must be positive"})
	}
	if err := checkInputFile("input", input); err != nil {
		return nil, reject("Test", err)
	}

	scope := ft.newScope()
	defer scope.Release()

	meter, err := invoke(ft, "Test", func() (unsafe.Pointer, bool) {
		s, p := ft.api.Test(h, input, int32(k), threshold, debug)
		scope.AddMeter(p)
		return p, s >= 0
	})
	if err != nil {
		return nil, err
	}

	result, err := decodeMeter(meter, ft.labels)
	if err != nil {
		return nil, fmt.Errorf("failed to decode test meter: %w", err)
	}

	ft.log.Debug("tested model",
		zap.String("input", input),
		zap.Int64("examples", result.Examples),
		zap.Int("labels", len(result.LabelMetrics)),
	)
	return result, nil
}

// decodeMeter copies a native meter into a TestResult. Label indices refer
// to labels.
func decodeMeter(p unsafe.Pointer, labels []string) (*training.TestResult, error) {
	rec, err := wire.ReadMeter(p)
	if err != nil {
		return nil, err
	}
	global, err := wire.ReadMetrics(rec.Metrics)
	if err != nil {
		return nil, err
	}

	result := training.NewTestResult()
	result.Examples = rec.Examples
	result.GlobalMetrics = decodeMetrics(global, training.AllLabels)

	for _, a := range rec.LabelMetricsAddrs() {
		m, err := wire.ReadMetrics(a)
		if err != nil {
			return nil, err
		}
		if m.Label < 0 || int(m.Label) >= len(labels) {
			return nil, fmt.Errorf("label index %d out of range for %d labels", m.Label, len(labels))
		}
		label := labels[m.Label]
		result.LabelMetrics[label] = decodeMetrics(m, label)
	}
	return result, nil
}

func decodeMetrics(rec wire.MetricsRecord, label string) *training.Metrics {
	m := &training.Metrics{
		Label:         label,
		Gold:          rec.Gold,
		Predicted:     rec.Predicted,
		PredictedGold: rec.PredictedGold,
	}

	predicted, gold := rec.Scores()
	if len(predicted) > 0 {
		m.ScoreVsTrue = make([]training.ScoreGold, len(predicted))
		for i := range predicted {
			m.ScoreVsTrue[i] = training.ScoreGold{Score: predicted[i], Gold: gold[i]}
		}
	}
	return m
}
