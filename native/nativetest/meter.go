package nativetest

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
)

// falseNegativeScore marks a gold label the model did not predict
const falseNegativeScore = -1.0

type scoreGold struct {
	score float32
	gold  float32
}

type labelStats struct {
	gold          int64
	predicted     int64
	predictedGold int64
	scores        []scoreGold
}

// meter accumulates test results the way the fastText meter does
type meter struct {
	examples int64
	global   labelStats
	labels   map[int32]*labelStats
}

func newMeter() *meter {
	return &meter{labels: make(map[int32]*labelStats)}
}

func (m *meter) label(idx int32) *labelStats {
	s, ok := m.labels[idx]
	if !ok {
		s = &labelStats{}
		m.labels[idx] = s
	}
	return s
}

func (m *meter) log(gold []int32, predictions []int32, probs []float32) {
	m.examples++
	m.global.gold += int64(len(gold))
	m.global.predicted += int64(len(predictions))

	contains := func(list []int32, v int32) bool {
		for _, x := range list {
			if x == v {
				return true
			}
		}
		return false
	}

	for i, p := range predictions {
		s := m.label(p)
		s.predicted++

		score := float32(math.Min(float64(probs[i]), 1))
		var g float32
		if contains(gold, p) {
			s.predictedGold++
			m.global.predictedGold++
			g = 1
		}
		s.scores = append(s.scores, scoreGold{score: score, gold: g})
	}

	for _, l := range gold {
		s := m.label(l)
		s.gold++
		if !contains(predictions, l) {
			s.scores = append(s.scores, scoreGold{score: falseNegativeScore, gold: 1})
		}
	}
}

// indices returns the observed label indices in ascending order
func (m *meter) indices() []int32 {
	idx := make([]int32, 0, len(m.labels))
	for i := range m.labels {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool { return idx[a] < idx[b] })
	return idx
}

func (m *meter) entries() []meterLabel {
	var out []meterLabel
	for _, i := range m.indices() {
		out = append(out, meterLabel{index: i, stats: *m.labels[i]})
	}
	return out
}

// pooledCurve is the reference precision-recall curve over all labels,
// computed independently of the host implementation
func (m *meter) pooledCurve() [][2]float64 {
	var v []scoreGold
	for _, s := range m.labels {
		v = append(v, s.scores...)
	}
	sort.Slice(v, func(i, j int) bool {
		if v[i].score != v[j].score {
			return v[i].score < v[j].score
		}
		return v[i].gold < v[j].gold
	})

	type counts struct{ tp, fp uint64 }
	var positive []counts
	var tp, fp uint64
	lastScore := falseNegativeScore - 1.0
	for i := len(v) - 1; i >= 0; i-- {
		score := float64(v[i].score)
		if score < 0 {
			break
		}
		if v[i].gold == 1 {
			tp++
		} else {
			fp++
		}
		if score == lastScore && len(positive) > 0 {
			positive[len(positive)-1] = counts{tp, fp}
		} else {
			positive = append(positive, counts{tp, fp})
		}
		lastScore = score
	}

	if len(positive) == 0 {
		return nil
	}

	golds := uint64(m.global.gold)
	end := sort.Search(len(positive), func(i int) bool { return positive[i].tp >= golds })
	if end < len(positive) {
		end++
	}

	var curve [][2]float64
	for _, c := range positive[:end] {
		precision := 0.0
		if c.tp+c.fp != 0 {
			precision = float64(c.tp) / float64(c.tp+c.fp)
		}
		recall := math.NaN()
		if golds != 0 {
			recall = float64(c.tp) / float64(golds)
		}
		curve = append(curve, [2]float64{precision, recall})
	}
	return append(curve, [2]float64{1, 0})
}

// writeDebug writes the _debug.txt cross-check dump
func (m *meter) writeDebug(w io.Writer) error {
	bw := bufio.NewWriter(w)
	f32 := func(v float32) string { return strconv.FormatFloat(float64(v), 'g', -1, 32) }
	f64 := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

	fmt.Fprintf(bw, "examples %d\n", m.examples)
	fmt.Fprintf(bw, "global %d %d %d %d\n", m.global.gold, m.global.predicted, m.global.predictedGold, len(m.global.scores))
	for _, i := range m.indices() {
		s := m.labels[i]
		fmt.Fprintf(bw, "label %d %d %d %d %d\n", i, s.gold, s.predicted, s.predictedGold, len(s.scores))
		for _, sg := range s.scores {
			fmt.Fprintf(bw, "%s %s\n", f32(sg.score), f32(sg.gold))
		}
	}

	curve := m.pooledCurve()
	fmt.Fprintf(bw, "curve %d\n", len(curve))
	for _, p := range curve {
		fmt.Fprintf(bw, "%s %s\n", f64(p[0]), f64(p[1]))
	}
	return bw.Flush()
}
