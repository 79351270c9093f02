package training

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var debugLabels = []string{"__label__baking", "__label__equipment", "__label__bread"}

func sampleResult() *TestResult {
	r := NewTestResult()
	r.Examples = 4
	r.GlobalMetrics = &Metrics{Gold: 5, Predicted: 4, PredictedGold: 3}
	r.LabelMetrics["__label__baking"] = &Metrics{
		Label: "__label__baking", Gold: 3, Predicted: 2, PredictedGold: 2,
		ScoreVsTrue: []ScoreGold{{0.91, 1}, {0.62, 1}, {-1, 1}},
	}
	r.LabelMetrics["__label__bread"] = &Metrics{
		Label: "__label__bread", Gold: 2, Predicted: 2, PredictedGold: 1,
		ScoreVsTrue: []ScoreGold{{0.55, 0}, {0.41, 1}, {-1, 1}},
	}
	return r
}

func TestDebugResultRoundTrip(t *testing.T) {
	r := sampleResult()

	var buf bytes.Buffer
	require.NoError(t, WriteDebugResult(&buf, r, debugLabels))
	assert.True(t, strings.HasPrefix(buf.String(), "examples 4\nglobal 5 4 3 0\nlabel 0 3 2 2 3\n0.91 1\n"))
	assert.Contains(t, buf.String(), "\nlabel 2 2 2 1 3\n")

	loaded, curve, err := LoadDebugResult(&buf, debugLabels)
	require.NoError(t, err)
	assert.Equal(t, r, loaded)

	want, err := r.PrecisionRecallCurve(AllLabels)
	require.NoError(t, err)
	assert.Equal(t, want, curve)
}

func TestDebugResultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "_debug.txt")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteDebugResult(f, sampleResult(), debugLabels))
	require.NoError(t, f.Close())

	loaded, _, err := LoadDebugResultFile(path, debugLabels)
	require.NoError(t, err)
	assert.Len(t, loaded.LabelMetrics, 2)
	assert.Equal(t, int64(4), loaded.Examples)

	_, _, err = LoadDebugResultFile(filepath.Join(t.TempDir(), "missing.txt"), debugLabels)
	assert.Error(t, err)
}

func TestWriteDebugResultUnknownLabel(t *testing.T) {
	var buf bytes.Buffer
	err := WriteDebugResult(&buf, sampleResult(), debugLabels[:1])

	var unknown *UnknownLabelError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "__label__bread", unknown.Label)
}

func TestLoadDebugResultErrors(t *testing.T) {
	tests := []struct {
		name string
		dump string
		want string
	}{
		{"empty", "", "missing examples line"},
		{"bad examples", "examples x\n", `invalid integer "x"`},
		{"missing global", "examples 1\nlabel 0 1 1 1 0\n", "expected global with 4 values"},
		{"missing curve", "examples 1\nglobal 1 1 1 0\n", "missing curve section"},
		{"label out of range", "examples 1\nglobal 1 1 1 0\nlabel 7 1 1 1 0\ncurve 0\n", "label index 7 out of range"},
		{"malformed score", "examples 1\nglobal 1 1 1 0\nlabel 0 1 1 1 2\n0.5 1\n0.3\n", "expected 2 values"},
		{"truncated scores", "examples 1\nglobal 1 1 1 0\nlabel 0 1 1 1 2\n0.5 1\n", "unexpected end of dump"},
		{"unknown section", "examples 1\nglobal 1 1 1 0\nmeter 3\n", `unexpected section "meter"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := LoadDebugResult(strings.NewReader(tt.dump), debugLabels)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
