package training

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// The debug dump is written by the native engine when a test runs with the
// debug flag. It is line oriented:
//
//	examples N
//	global gold predicted predictedGold scoresLen
//	<scoresLen lines: score gold>
//	label index gold predicted predictedGold scoresLen
//	<scoresLen lines: score gold>
//	...
//	curve N
//	<N lines: precision recall>
//
// where index refers to the model labels. The curve is the native
// reference for all labels pooled.

// LoadDebugResultFile reads a debug dump from path
func LoadDebugResultFile(path string, labels []string) (*TestResult, []CurvePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open debug dump: %w", err)
	}
	defer f.Close()

	return LoadDebugResult(f, labels)
}

// LoadDebugResult rebuilds the test result and the reference curve from a
// debug dump
func LoadDebugResult(r io.Reader, labels []string) (*TestResult, []CurvePoint, error) {
	d := &debugReader{scanner: bufio.NewScanner(r)}
	result := NewTestResult()

	examples := d.fields("examples", 1)
	if d.err != nil {
		return nil, nil, d.err
	}
	result.Examples = d.int(examples[0])

	global := d.fields("global", 4)
	if d.err != nil {
		return nil, nil, d.err
	}
	result.GlobalMetrics = d.metrics(global)

	var curve []CurvePoint
	for d.err == nil {
		name, rest, ok := d.next()
		if !ok {
			if d.err == nil {
				d.err = fmt.Errorf("debug dump: missing curve section")
			}
			break
		}

		switch name {
		case "label":
			if len(rest) != 5 {
				d.fail("label line needs 5 values, got %d", len(rest))
				break
			}
			idx := d.int(rest[0])
			if d.err == nil && (idx < 0 || int(idx) >= len(labels)) {
				d.fail("label index %d out of range for %d labels", idx, len(labels))
				break
			}
			m := d.metrics(rest[1:])
			if d.err != nil {
				break
			}
			m.Label = labels[idx]
			result.LabelMetrics[m.Label] = m

		case "curve":
			if len(rest) != 1 {
				d.fail("curve line needs 1 value, got %d", len(rest))
				break
			}
			curve = d.curve(d.int(rest[0]))
			if d.err == nil {
				return result, curve, nil
			}

		default:
			d.fail("unexpected section %q", name)
		}
	}
	return nil, nil, d.err
}

type debugReader struct {
	scanner *bufio.Scanner
	line    int
	err     error
}

func (d *debugReader) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("debug dump line %d: %s", d.line, fmt.Sprintf(format, args...))
	}
}

func (d *debugReader) next() (string, []string, bool) {
	for d.scanner.Scan() {
		d.line++
		fields := strings.Fields(d.scanner.Text())
		if len(fields) == 0 {
			continue
		}
		return fields[0], fields[1:], true
	}
	if err := d.scanner.Err(); err != nil && d.err == nil {
		d.err = fmt.Errorf("failed to read debug dump: %w", err)
	}
	return "", nil, false
}

// fields reads a line that must start with name and carry n values
func (d *debugReader) fields(name string, n int) []string {
	got, rest, ok := d.next()
	if !ok {
		d.fail("missing %s line", name)
		return nil
	}
	if got != name || len(rest) != n {
		d.fail("expected %s with %d values", name, n)
		return nil
	}
	return rest
}

func (d *debugReader) int(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		d.fail("invalid integer %q", s)
	}
	return v
}

func (d *debugReader) float(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		d.fail("invalid number %q", s)
	}
	return v
}

// metrics parses "gold predicted predictedGold scoresLen" and the score
// lines that follow
func (d *debugReader) metrics(values []string) *Metrics {
	m := &Metrics{
		Gold:          d.int(values[0]),
		Predicted:     d.int(values[1]),
		PredictedGold: d.int(values[2]),
	}
	n := d.int(values[3])
	if d.err != nil {
		return m
	}

	if n > 0 {
		m.ScoreVsTrue = make([]ScoreGold, 0, n)
	}
	for i := int64(0); i < n; i++ {
		p, ok := d.pair()
		if !ok {
			break
		}
		m.ScoreVsTrue = append(m.ScoreVsTrue, ScoreGold{Score: float32(p[0]), Gold: float32(p[1])})
	}
	return m
}

// pair reads a line of exactly two numbers
func (d *debugReader) pair() ([2]float64, bool) {
	name, rest, ok := d.next()
	if !ok {
		d.fail("unexpected end of dump")
		return [2]float64{}, false
	}
	if len(rest) != 1 {
		d.fail("expected 2 values, got %d", len(rest)+1)
		return [2]float64{}, false
	}
	p := [2]float64{d.float(name), d.float(rest[0])}
	return p, d.err == nil
}

func (d *debugReader) curve(n int64) []CurvePoint {
	curve := make([]CurvePoint, 0, max(n, 0))
	for i := int64(0); i < n; i++ {
		p, ok := d.pair()
		if !ok {
			break
		}
		curve = append(curve, CurvePoint{Precision: p[0], Recall: p[1]})
	}
	return curve
}

// WriteDebugResult writes result in the debug dump format with the pooled
// curve. labels gives the index of every label in the result.
func WriteDebugResult(w io.Writer, result *TestResult, labels []string) error {
	index := make(map[string]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}

	bw := bufio.NewWriter(w)
	writeMetrics := func(prefix string, m *Metrics) {
		fmt.Fprintf(bw, "%s %d %d %d %d\n", prefix, m.Gold, m.Predicted, m.PredictedGold, len(m.ScoreVsTrue))
		for _, sg := range m.ScoreVsTrue {
			fmt.Fprintf(bw, "%s %s\n", formatFloat32(sg.Score), formatFloat32(sg.Gold))
		}
	}

	fmt.Fprintf(bw, "examples %d\n", result.Examples)
	writeMetrics("global", result.GlobalMetrics)

	for i, l := range labels {
		m, ok := result.LabelMetrics[l]
		if !ok {
			continue
		}
		writeMetrics("label "+strconv.Itoa(i), m)
	}
	for l := range result.LabelMetrics {
		if _, ok := index[l]; !ok {
			return &UnknownLabelError{Label: l}
		}
	}

	curve, err := result.PrecisionRecallCurve(AllLabels)
	if err != nil {
		return err
	}
	fmt.Fprintf(bw, "curve %d\n", len(curve))
	for _, p := range curve {
		fmt.Fprintf(bw, "%s %s\n", strconv.FormatFloat(p.Precision, 'g', -1, 64), strconv.FormatFloat(p.Recall, 'g', -1, 64))
	}
	return bw.Flush()
}

func formatFloat32(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}
