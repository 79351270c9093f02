package checkpoints

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tsawler/go-fasttext/training"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatProto
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatProto:
		return "Proto"
	default:
		return "Unknown"
	}
}

// ParseFormat maps "json" and "proto" to a format
func ParseFormat(name string) (CheckpointFormat, error) {
	switch name {
	case "json":
		return FormatJSON, nil
	case "proto", "pb":
		return FormatProto, nil
	default:
		return 0, fmt.Errorf("unsupported checkpoint format: %s", name)
	}
}

// Ratio is a precision, recall or F1 value. Undefined ratios are NaN and
// are written as null in JSON.
type Ratio float64

// MarshalJSON writes NaN and infinities as null
func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// UnmarshalJSON reads null back as NaN
func (r *Ratio) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Ratio(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

// Summary holds the counts and ratios of one label, or of all labels for
// the global entry
type Summary struct {
	Label         string `json:"label,omitempty"`
	Gold          int64  `json:"gold"`
	Predicted     int64  `json:"predicted"`
	PredictedGold int64  `json:"predicted_gold"`
	Precision     Ratio  `json:"precision"`
	Recall        Ratio  `json:"recall"`
	F1            Ratio  `json:"f1"`
}

func summarize(m *training.Metrics) Summary {
	return Summary{
		Label:         m.Label,
		Gold:          m.Gold,
		Predicted:     m.Predicted,
		PredictedGold: m.PredictedGold,
		Precision:     Ratio(m.Precision()),
		Recall:        Ratio(m.Recall()),
		F1:            Ratio(m.F1()),
	}
}

// CurvePoint is one stored point of the pooled precision-recall curve
type CurvePoint struct {
	Precision Ratio `json:"precision"`
	Recall    Ratio `json:"recall"`
}

// CheckpointMetadata describes where a report came from
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	ModelPath   string    `json:"model_path,omitempty"`
	TestFile    string    `json:"test_file,omitempty"`
	K           int32     `json:"k"`
	Threshold   float32   `json:"threshold"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	RunID       string    `json:"run_id,omitempty"`
}

// Report is a persisted evaluation of a model on one test file
type Report struct {
	Metadata CheckpointMetadata `json:"metadata"`
	Examples int64              `json:"examples"`
	Global   Summary            `json:"global"`
	Labels   []Summary          `json:"labels"`
	Curve    []CurvePoint       `json:"curve"`
}

// NewReport summarizes result. Labels are sorted by name and the curve
// pools every label.
func NewReport(result *training.TestResult, metadata CheckpointMetadata) (*Report, error) {
	curve, err := result.PrecisionRecallCurve(training.AllLabels)
	if err != nil {
		return nil, fmt.Errorf("failed to compute precision-recall curve: %w", err)
	}

	report := &Report{
		Metadata: metadata,
		Examples: result.Examples,
		Global:   summarize(result.GlobalMetrics),
		Labels:   make([]Summary, 0, len(result.LabelMetrics)),
		Curve:    make([]CurvePoint, len(curve)),
	}
	for _, stat := range result.LabelStats() {
		report.Labels = append(report.Labels, summarize(result.LabelMetrics[stat.Label]))
	}
	for i, p := range curve {
		report.Curve[i] = CurvePoint{Precision: Ratio(p.Precision), Recall: Ratio(p.Recall)}
	}
	return report, nil
}

// TrainingCurve converts the stored curve back for plotting
func (r *Report) TrainingCurve() []training.CurvePoint {
	curve := make([]training.CurvePoint, len(r.Curve))
	for i, p := range r.Curve {
		curve[i] = training.CurvePoint{Precision: float64(p.Precision), Recall: float64(p.Recall)}
	}
	return curve
}

// CheckpointSaver handles saving evaluation reports in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{
		format: format,
	}
}

// SaveReport writes report to path
func (cs *CheckpointSaver) SaveReport(report *Report, path string) error {
	// Ensure metadata is set
	if report.Metadata.Framework == "" {
		report.Metadata.Framework = "go-fasttext"
		report.Metadata.Version = "1.0.0"
		report.Metadata.CreatedAt = time.Now()
	}
	if report.Metadata.RunID == "" {
		report.Metadata.RunID = uuid.NewString()
	}

	switch cs.format {
	case FormatJSON:
		return cs.saveJSON(report, path)
	case FormatProto:
		return cs.saveProto(report, path)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// LoadReport reads a report from path
func (cs *CheckpointSaver) LoadReport(path string) (*Report, error) {
	switch cs.format {
	case FormatJSON:
		return cs.loadJSON(path)
	case FormatProto:
		return cs.loadProto(path)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// saveJSON saves the report in JSON format
func (cs *CheckpointSaver) saveJSON(report *Report, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ") // Pretty print JSON

	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	return file.Close()
}

// loadJSON loads the report from JSON format
func (cs *CheckpointSaver) loadJSON(path string) (*Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var report Report
	decoder := json.NewDecoder(file)

	if err := decoder.Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	return &report, nil
}

func (cs *CheckpointSaver) saveProto(report *Report, path string) error {
	data, err := MarshalProto(report)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	return nil
}

func (cs *CheckpointSaver) loadProto(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	return UnmarshalProto(data)
}
