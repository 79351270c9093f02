package checkpoints

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tsawler/go-fasttext/training"
)

func testResult() *training.TestResult {
	r := training.NewTestResult()
	r.Examples = 3
	r.GlobalMetrics = &training.Metrics{Gold: 3, Predicted: 3, PredictedGold: 2}
	r.LabelMetrics["__label__baking"] = &training.Metrics{
		Label: "__label__baking", Gold: 2, Predicted: 2, PredictedGold: 2,
		ScoreVsTrue: []training.ScoreGold{{Score: 0.9, Gold: 1}, {Score: 0.7, Gold: 1}},
	}
	r.LabelMetrics["__label__bread"] = &training.Metrics{
		Label: "__label__bread", Gold: 1, Predicted: 1, PredictedGold: 0,
		ScoreVsTrue: []training.ScoreGold{{Score: 0.6, Gold: 0}, {Score: -1, Gold: 1}},
	}
	return r
}

func testMetadata() CheckpointMetadata {
	return CheckpointMetadata{
		Version:   "1.0.0",
		Framework: "go-fasttext",
		CreatedAt: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
		ModelPath: "cooking.bin",
		TestFile:  "cooking.valid",
		K:         1,
		Threshold: 0.25,
		Tags:      []string{"cooking"},
	}
}

func TestNewReport(t *testing.T) {
	report, err := NewReport(testResult(), testMetadata())
	require.NoError(t, err)

	assert.Equal(t, int64(3), report.Examples)
	assert.Equal(t, Ratio(2.0/3), report.Global.Precision)
	require.Len(t, report.Labels, 2)
	assert.Equal(t, "__label__baking", report.Labels[0].Label)
	assert.Equal(t, Ratio(1), report.Labels[0].F1)
	assert.Equal(t, "__label__bread", report.Labels[1].Label)
	assert.Equal(t, Ratio(0), report.Labels[1].Recall)

	require.Len(t, report.Curve, 4)
	assert.Equal(t, CurvePoint{Precision: 1, Recall: 0}, report.Curve[3])
	assert.Equal(t, training.CurvePoint{Precision: 2.0 / 3, Recall: 2.0 / 3}, report.TrainingCurve()[2])
}

func TestReportRoundTrip(t *testing.T) {
	for _, format := range []CheckpointFormat{FormatJSON, FormatProto} {
		t.Run(format.String(), func(t *testing.T) {
			report, err := NewReport(testResult(), testMetadata())
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "report")
			saver := NewCheckpointSaver(format)
			require.NoError(t, saver.SaveReport(report, path))

			loaded, err := saver.LoadReport(path)
			require.NoError(t, err)

			_, err = uuid.Parse(loaded.Metadata.RunID)
			assert.NoError(t, err, "SaveReport assigns a run id")
			assert.True(t, report.Metadata.CreatedAt.Equal(loaded.Metadata.CreatedAt))
			loaded.Metadata.CreatedAt = report.Metadata.CreatedAt
			assert.Equal(t, report, loaded)
		})
	}
}

func TestUndefinedRatiosSurvive(t *testing.T) {
	result := testResult()
	result.LabelMetrics["__label__equipment"] = &training.Metrics{Label: "__label__equipment"}
	report, err := NewReport(result, CheckpointMetadata{})
	require.NoError(t, err)

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "report.json")
	require.NoError(t, NewCheckpointSaver(FormatJSON).SaveReport(report, jsonPath))

	raw, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"recall": null`)
	assert.Contains(t, string(raw), `"framework": "go-fasttext"`)

	fromJSON, err := NewCheckpointSaver(FormatJSON).LoadReport(jsonPath)
	require.NoError(t, err)

	data, err := MarshalProto(report)
	require.NoError(t, err)
	fromProto, err := UnmarshalProto(data)
	require.NoError(t, err)

	for _, loaded := range []*Report{fromJSON, fromProto} {
		require.Len(t, loaded.Labels, 3)
		equipment := loaded.Labels[2]
		assert.Equal(t, "__label__equipment", equipment.Label)
		assert.True(t, math.IsNaN(float64(equipment.Precision)))
		assert.True(t, math.IsNaN(float64(equipment.Recall)))
		assert.True(t, math.IsNaN(float64(equipment.F1)))
	}
}

func TestUnmarshalProtoSkipsUnknownFields(t *testing.T) {
	report, err := NewReport(testResult(), testMetadata())
	require.NoError(t, err)

	data, err := MarshalProto(report)
	require.NoError(t, err)
	data = protowire.AppendTag(data, 15, protowire.VarintType)
	data = protowire.AppendVarint(data, 99)

	loaded, err := UnmarshalProto(data)
	require.NoError(t, err)
	assert.Equal(t, report.Labels, loaded.Labels)
	assert.Equal(t, report.Curve, loaded.Curve)
}

func TestUnmarshalProtoTruncated(t *testing.T) {
	_, err := UnmarshalProto([]byte{0x0a, 0x05, 0x01})
	assert.ErrorContains(t, err, "failed to decode report")
}

func TestFormats(t *testing.T) {
	f, err := ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("proto")
	require.NoError(t, err)
	assert.Equal(t, FormatProto, f)

	_, err = ParseFormat("onnx")
	assert.Error(t, err)

	err = NewCheckpointSaver(CheckpointFormat(9)).SaveReport(&Report{}, filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Unknown"))

	_, err = NewCheckpointSaver(FormatProto).LoadReport(filepath.Join(t.TempDir(), "missing.pb"))
	assert.ErrorContains(t, err, "failed to read checkpoint file")
}
