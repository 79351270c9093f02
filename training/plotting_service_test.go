package training

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(url string) *PlottingService {
	return NewPlottingService(PlottingServiceConfig{
		BaseURL:       url,
		Timeout:       5 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	})
}

func samplePlot() PlotData {
	vc := NewVisualizationCollector("cooking")
	vc.RecordPRCurve("cooking.valid", []CurvePoint{{Precision: 1, Recall: 0.5}, {Precision: 1, Recall: 0}})
	return vc.GeneratePrecisionRecallPlot()
}

func TestDefaultPlottingServiceConfig(t *testing.T) {
	config := DefaultPlottingServiceConfig()
	assert.Equal(t, "http://localhost:8080", config.BaseURL)
	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.Equal(t, 3, config.RetryAttempts)
	assert.Equal(t, time.Second, config.RetryDelay)
}

func TestSendPlotData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/plot", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "go-fasttext", r.Header.Get("User-Agent"))

		var plot PlotData
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&plot))
		assert.Equal(t, PrecisionRecall, plot.PlotType)
		assert.Equal(t, "cooking", plot.ModelName)

		json.NewEncoder(w).Encode(PlottingResponse{Success: true, PlotID: "p1", ViewURL: "/view/p1"})
	}))
	defer server.Close()

	resp, err := testService(server.URL).SendPlotData(context.Background(), samplePlot())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "p1", resp.PlotID)
}

func TestSendPlotDataDisabled(t *testing.T) {
	ps := testService("http://127.0.0.1:1")
	ps.Disable()
	assert.False(t, ps.IsEnabled())

	resp, err := ps.SendPlotData(context.Background(), samplePlot())
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Plotting service is disabled", resp.Message)
	assert.Error(t, ps.CheckHealth(context.Background()))

	ps.Enable()
	assert.True(t, ps.IsEnabled())
}

func TestSendPlotDataHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(PlottingResponse{Message: "bad series", ErrorCode: "E_SERIES"})
	}))
	defer server.Close()

	resp, err := testService(server.URL).SendPlotData(context.Background(), samplePlot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400: bad series")
	assert.Equal(t, "E_SERIES", resp.ErrorCode)
}

func TestSendPlotDataWithRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(PlottingResponse{Message: "starting"})
			return
		}
		json.NewEncoder(w).Encode(PlottingResponse{Success: true})
	}))
	defer server.Close()

	resp, err := testService(server.URL).SendPlotDataWithRetry(context.Background(), samplePlot())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendPlotDataWithRetryGivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(PlottingResponse{Message: "down"})
	}))
	defer server.Close()

	_, err := testService(server.URL).SendPlotDataWithRetry(context.Background(), samplePlot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestCheckHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	assert.NoError(t, testService(server.URL).CheckHealth(context.Background()))
	assert.Error(t, testService(server.URL+"/missing").CheckHealth(context.Background()))
}

func TestSendCollected(t *testing.T) {
	var got struct {
		Plots []PlotData `json:"plots"`
		Batch bool       `json:"batch"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/batch-plot", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(BatchPlottingResponse{
			Success: true,
			BatchID: "b1",
			Summary: BatchSummary{TotalPlots: len(got.Plots), Successful: len(got.Plots)},
		})
	}))
	defer server.Close()

	ps := testService(server.URL)
	vc := NewVisualizationCollector("cooking")

	resp, err := ps.SendCollected(context.Background(), vc)
	require.NoError(t, err)
	assert.False(t, resp.Success, "nothing collected")

	vc.RecordTrainingStep(0.5, 1.2, 0.05)
	vc.RecordPRCurve("cooking.valid", []CurvePoint{{Precision: 1, Recall: 0}})
	resp, err = ps.SendCollected(context.Background(), vc)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Summary.TotalPlots)
	assert.True(t, got.Batch)
	require.Len(t, got.Plots, 2)
	assert.Equal(t, TrainingCurves, got.Plots[0].PlotType)
	assert.Equal(t, PrecisionRecall, got.Plots[1].PlotType)
}
