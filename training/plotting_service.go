package training

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PlottingService posts plot data to a plotting sidecar over HTTP
type PlottingService struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	retryDelay time.Duration
	enabled    bool
}

// PlottingServiceConfig contains configuration for the plotting service
type PlottingServiceConfig struct {
	BaseURL       string        `json:"base_url"`
	Timeout       time.Duration `json:"timeout"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

// PlottingResponse represents the response from the plotting service
type PlottingResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	PlotURL      string `json:"plot_url,omitempty"`
	ViewURL      string `json:"view_url,omitempty"`
	PlotID       string `json:"plot_id,omitempty"`
	BatchID      string `json:"batch_id,omitempty"`
	DashboardURL string `json:"dashboard_url,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
}

// BatchPlottingResponse represents the response from the batch plotting endpoint
type BatchPlottingResponse struct {
	Success      bool              `json:"success"`
	Message      string            `json:"message"`
	BatchID      string            `json:"batch_id,omitempty"`
	Results      []BatchPlotResult `json:"results,omitempty"`
	DashboardURL string            `json:"dashboard_url,omitempty"`
	Summary      BatchSummary      `json:"summary,omitempty"`
}

// BatchPlotResult represents a single plot result within a batch response
type BatchPlotResult struct {
	Success   bool   `json:"success"`
	PlotID    string `json:"plot_id,omitempty"`
	PlotURL   string `json:"plot_url,omitempty"`
	ViewURL   string `json:"view_url,omitempty"`
	PlotType  string `json:"plot_type,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// BatchSummary represents the summary of a batch operation
type BatchSummary struct {
	TotalPlots int `json:"total_plots"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// DefaultPlottingServiceConfig returns default configuration for the plotting service
func DefaultPlottingServiceConfig() PlottingServiceConfig {
	return PlottingServiceConfig{
		BaseURL:       "http://localhost:8080",
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
	}
}

// NewPlottingService creates an enabled plotting service client
func NewPlottingService(config PlottingServiceConfig) *PlottingService {
	return &PlottingService{
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		retries:    max(config.RetryAttempts, 1),
		retryDelay: config.RetryDelay,
		enabled:    true,
	}
}

// Enable enables the plotting service
func (ps *PlottingService) Enable() {
	ps.enabled = true
}

// Disable makes every send a no-op
func (ps *PlottingService) Disable() {
	ps.enabled = false
}

// IsEnabled returns whether the plotting service is enabled
func (ps *PlottingService) IsEnabled() bool {
	return ps.enabled
}

const plottingDisabled = "Plotting service is disabled"

// post sends payload as JSON and decodes the reply into out. A non-200
// status is an error even when the body decodes.
func (ps *PlottingService) post(ctx context.Context, path string, payload, out any) (int, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal plot data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ps.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "go-fasttext")

	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return resp.StatusCode, nil
}

// SendPlotData sends one plot to the sidecar
func (ps *PlottingService) SendPlotData(ctx context.Context, plotData PlotData) (*PlottingResponse, error) {
	if !ps.enabled {
		return &PlottingResponse{Message: plottingDisabled}, nil
	}

	var plotResponse PlottingResponse
	status, err := ps.post(ctx, "/api/plot", plotData, &plotResponse)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return &plotResponse, fmt.Errorf("HTTP request failed with status %d: %s", status, plotResponse.Message)
	}
	return &plotResponse, nil
}

// SendPlotDataWithRetry retries SendPlotData up to the configured number
// of attempts, waiting RetryDelay between them
func (ps *PlottingService) SendPlotDataWithRetry(ctx context.Context, plotData PlotData) (*PlottingResponse, error) {
	var lastErr error
	for attempt := 0; attempt < ps.retries; attempt++ {
		resp, err := ps.SendPlotData(ctx, plotData)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt < ps.retries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(ps.retryDelay):
			}
		}
	}
	return nil, fmt.Errorf("failed to send plot data after %d attempts: %w", ps.retries, lastErr)
}

// CheckHealth checks if the plotting service is available
func (ps *PlottingService) CheckHealth(ctx context.Context) error {
	if !ps.enabled {
		return fmt.Errorf("plotting service is disabled")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ps.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send health check request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

// BatchSendPlots sends multiple plots in a single request
func (ps *PlottingService) BatchSendPlots(ctx context.Context, plotDataList []PlotData) (*BatchPlottingResponse, error) {
	if !ps.enabled {
		return &BatchPlottingResponse{Message: plottingDisabled}, nil
	}

	payload := map[string]interface{}{
		"plots": plotDataList,
		"batch": true,
	}

	var batchResponse BatchPlottingResponse
	status, err := ps.post(ctx, "/api/batch-plot", payload, &batchResponse)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return &batchResponse, fmt.Errorf("batch HTTP request failed with status %d: %s", status, batchResponse.Message)
	}
	return &batchResponse, nil
}

// SendCollected sends every plot the collector has data for: training
// curves when training steps were recorded and precision-recall curves
// when test curves were recorded
func (ps *PlottingService) SendCollected(ctx context.Context, collector *VisualizationCollector) (*BatchPlottingResponse, error) {
	var plots []PlotData
	steps, curves := collector.collected()
	if steps {
		plots = append(plots, collector.GenerateTrainingCurvesPlot())
	}
	if curves {
		plots = append(plots, collector.GeneratePrecisionRecallPlot())
	}
	if len(plots) == 0 {
		return &BatchPlottingResponse{Message: "No plot data collected"}, nil
	}
	return ps.BatchSendPlots(ctx, plots)
}
