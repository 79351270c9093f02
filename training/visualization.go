package training

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"
)

// PlotType represents different types of plots that can be generated
type PlotType string

const (
	TrainingCurves  PlotType = "training_curves"
	PrecisionRecall PlotType = "precision_recall"
)

// PlotData represents the universal JSON format for the plotting service
type PlotData struct {
	// Metadata
	PlotType  PlotType  `json:"plot_type"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	ModelName string    `json:"model_name"`

	// Data series - flexible structure for different plot types
	Series []SeriesData `json:"series"`

	// Plot configuration
	Config PlotConfig `json:"config"`

	// Metrics metadata
	Metrics map[string]interface{} `json:"metrics,omitempty"`
}

// SeriesData represents a single data series in a plot
type SeriesData struct {
	Name  string                 `json:"name"`
	Type  string                 `json:"type"` // "line", "scatter"
	Data  []DataPoint            `json:"data"`
	Style map[string]interface{} `json:"style,omitempty"`
}

// DataPoint represents a single data point
type DataPoint struct {
	X     interface{} `json:"x"`
	Y     interface{} `json:"y"`
	Label string      `json:"label,omitempty"`
}

// PlotConfig contains plot-specific configuration
type PlotConfig struct {
	XAxisLabel  string `json:"x_axis_label"`
	YAxisLabel  string `json:"y_axis_label"`
	XAxisScale  string `json:"x_axis_scale"` // "linear", "log"
	YAxisScale  string `json:"y_axis_scale"` // "linear", "log"
	ShowLegend  bool   `json:"show_legend"`
	ShowGrid    bool   `json:"show_grid"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Interactive bool   `json:"interactive"`
}

// PRPoint represents a point on the Precision-Recall curve
type PRPoint struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
}

type prSeries struct {
	name   string
	points []PRPoint
}

// VisualizationCollector gathers training progress and evaluation curves
// for plotting. It is safe for concurrent use.
type VisualizationCollector struct {
	mu        sync.Mutex
	modelName string

	progress []float64
	loss     []float64
	lr       []float64

	prCurves []prSeries
}

var seriesColors = []string{"#4ECDC4", "#FF6B6B", "#45B7D1", "#96CEB4", "#FFEAA7"}

// NewVisualizationCollector creates a new collector
func NewVisualizationCollector(modelName string) *VisualizationCollector {
	return &VisualizationCollector{modelName: modelName}
}

// RecordTrainingStep stores one training progress notification
func (vc *VisualizationCollector) RecordTrainingStep(progress, loss, learningRate float64) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.progress = append(vc.progress, progress)
	vc.loss = append(vc.loss, loss)
	vc.lr = append(vc.lr, learningRate)
}

// TrainProgress wraps next so every notification is also recorded
func (vc *VisualizationCollector) TrainProgress(next func(progress, loss float32, wst, lr float64, eta int64)) func(progress, loss float32, wst, lr float64, eta int64) {
	return func(progress, loss float32, wst, lr float64, eta int64) {
		vc.RecordTrainingStep(float64(progress), float64(loss), lr)
		if next != nil {
			next(progress, loss, wst, lr, eta)
		}
	}
}

// RecordPRCurve stores a named precision-recall curve
func (vc *VisualizationCollector) RecordPRCurve(name string, curve []CurvePoint) {
	points := make([]PRPoint, len(curve))
	for i, p := range curve {
		points[i] = PRPoint{Precision: p.Precision, Recall: p.Recall}
	}
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.prCurves = append(vc.prCurves, prSeries{name: name, points: points})
}

// GenerateTrainingCurvesPlot generates loss and learning rate over progress
func (vc *VisualizationCollector) GenerateTrainingCurvesPlot() PlotData {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	lossSeries := SeriesData{
		Name: "Training Loss",
		Type: "line",
		Data: make([]DataPoint, len(vc.progress)),
		Style: map[string]interface{}{
			"color":      "#FF6B6B",
			"line_width": 2,
		},
	}
	lrSeries := SeriesData{
		Name: "Learning Rate",
		Type: "line",
		Data: make([]DataPoint, len(vc.progress)),
		Style: map[string]interface{}{
			"color":      "#45B7D1",
			"line_width": 2,
			"y_axis":     "right",
		},
	}
	for i, p := range vc.progress {
		lossSeries.Data[i] = DataPoint{X: p, Y: vc.loss[i]}
		lrSeries.Data[i] = DataPoint{X: p, Y: vc.lr[i]}
	}

	return PlotData{
		PlotType:  TrainingCurves,
		Title:     fmt.Sprintf("Training Progress - %s", vc.modelName),
		Timestamp: time.Now(),
		ModelName: vc.modelName,
		Series:    []SeriesData{lossSeries, lrSeries},
		Config: PlotConfig{
			XAxisLabel:  "Progress",
			YAxisLabel:  "Loss",
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			ShowLegend:  true,
			ShowGrid:    true,
			Width:       800,
			Height:      400,
			Interactive: true,
		},
	}
}

// GeneratePrecisionRecallPlot generates one line per recorded curve. Points
// with an undefined recall are left out since JSON cannot carry NaN.
func (vc *VisualizationCollector) GeneratePrecisionRecallPlot() PlotData {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	series := make([]SeriesData, 0, len(vc.prCurves))
	for i, c := range vc.prCurves {
		s := SeriesData{
			Name: c.name,
			Type: "line",
			Data: make([]DataPoint, 0, len(c.points)),
			Style: map[string]interface{}{
				"color":      seriesColors[i%len(seriesColors)],
				"line_width": 2,
			},
		}
		for _, p := range c.points {
			if math.IsNaN(p.Recall) || math.IsNaN(p.Precision) {
				continue
			}
			s.Data = append(s.Data, DataPoint{X: p.Recall, Y: p.Precision})
		}
		series = append(series, s)
	}

	return PlotData{
		PlotType:  PrecisionRecall,
		Title:     fmt.Sprintf("Precision-Recall Curve - %s", vc.modelName),
		Timestamp: time.Now(),
		ModelName: vc.modelName,
		Series:    series,
		Config: PlotConfig{
			XAxisLabel:  "Recall",
			YAxisLabel:  "Precision",
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			ShowLegend:  true,
			ShowGrid:    true,
			Width:       600,
			Height:      600,
			Interactive: true,
		},
	}
}

// collected reports whether training steps and precision-recall curves
// were recorded
func (vc *VisualizationCollector) collected() (steps, curves bool) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return len(vc.progress) > 0, len(vc.prCurves) > 0
}

// ToJSON converts plot data to JSON string
func (pd PlotData) ToJSON() (string, error) {
	jsonData, err := json.MarshalIndent(pd, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal plot data to JSON: %w", err)
	}
	return string(jsonData), nil
}

// Clear resets all collected data
func (vc *VisualizationCollector) Clear() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.progress = vc.progress[:0]
	vc.loss = vc.loss[:0]
	vc.lr = vc.lr[:0]
	vc.prCurves = nil
}
