package training

import (
	"encoding/json"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrecisionRecallPlot(t *testing.T) {
	vc := NewVisualizationCollector("cooking")
	vc.RecordPRCurve("all labels", []CurvePoint{{Precision: 1, Recall: 0.5}, {Precision: 0.75, Recall: 1}, {Precision: 1, Recall: 0}})
	vc.RecordPRCurve("__label__bread", []CurvePoint{{Precision: 0, Recall: math.NaN()}, {Precision: 1, Recall: 0}})

	plot := vc.GeneratePrecisionRecallPlot()
	assert.Equal(t, PrecisionRecall, plot.PlotType)
	assert.Equal(t, "cooking", plot.ModelName)
	require.Len(t, plot.Series, 2)
	assert.Equal(t, "all labels", plot.Series[0].Name)
	assert.Len(t, plot.Series[0].Data, 3)
	assert.Equal(t, DataPoint{X: 1.0, Y: 0.75}, plot.Series[0].Data[1])
	assert.Len(t, plot.Series[1].Data, 1)

	js, err := plot.ToJSON()
	require.NoError(t, err)

	var decoded PlotData
	require.NoError(t, json.Unmarshal([]byte(js), &decoded))
	assert.Equal(t, "Recall", decoded.Config.XAxisLabel)
	assert.Len(t, decoded.Series, 2)
}

func TestTrainingCurvesPlot(t *testing.T) {
	vc := NewVisualizationCollector("cooking")

	var forwarded int
	cb := vc.TrainProgress(func(progress, loss float32, wst, lr float64, eta int64) {
		forwarded++
	})
	cb(0.5, 2, 100, 0.1, 10)
	cb(1, 1, 100, 0.0, 0)

	assert.Equal(t, 2, forwarded)
	plot := vc.GenerateTrainingCurvesPlot()
	require.Len(t, plot.Series, 2)
	assert.Equal(t, DataPoint{X: 0.5, Y: 2.0}, plot.Series[0].Data[0])
	assert.Equal(t, DataPoint{X: 1.0, Y: 0.0}, plot.Series[1].Data[1])

	vc.TrainProgress(nil)(0.25, 3, 1, 0.2, 5)
	assert.Len(t, vc.GenerateTrainingCurvesPlot().Series[0].Data, 3)

	vc.Clear()
	assert.Empty(t, vc.GenerateTrainingCurvesPlot().Series[0].Data)
	assert.Empty(t, vc.GeneratePrecisionRecallPlot().Series)
}

func TestCollectorRecordsConcurrentSteps(t *testing.T) {
	vc := NewVisualizationCollector("cooking")
	record := vc.TrainProgress(nil)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 25 {
				record(float32(i)/25, 1, 0, 0.1, 0)
			}
		}()
	}
	wg.Wait()

	plot := vc.GenerateTrainingCurvesPlot()
	require.Len(t, plot.Series, 2)
	assert.Len(t, plot.Series[0].Data, 100)
	assert.Len(t, plot.Series[1].Data, 100)
}
