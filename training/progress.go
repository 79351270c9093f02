package training

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tsawler/go-fasttext/native"
)

// ProgressBar provides tqdm-style progress visualization for training and
// autotune runs. It is safe for concurrent use since native callbacks can
// arrive from engine worker threads.
type ProgressBar struct {
	mu          sync.Mutex
	description string
	total       int
	current     int
	startTime   time.Time
	width       int
	showRate    bool
	showETA     bool
	unit        string
	metrics     map[string]float64
	out         io.Writer
}

// NewProgressBar creates a new progress bar writing to stdout
func NewProgressBar(description string, total int) *ProgressBar {
	return &ProgressBar{
		description: description,
		total:       total,
		current:     0,
		startTime:   time.Now(),
		width:       50, // Character width of progress bar
		showRate:    true,
		showETA:     true,
		unit:        "it",
		metrics:     make(map[string]float64),
		out:         os.Stdout,
	}
}

// SetOutput redirects rendering, e.g. to stderr
func (pb *ProgressBar) SetOutput(w io.Writer) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.out = w
}

// SetUnit names the rate unit
func (pb *ProgressBar) SetUnit(unit string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.unit = unit
}

// Update advances the progress bar
func (pb *ProgressBar) Update(step int, metrics map[string]float64) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.update(step, metrics)
}

func (pb *ProgressBar) update(step int, metrics map[string]float64) {
	pb.current = step
	pb.metrics = make(map[string]float64, len(metrics))
	for k, v := range metrics {
		pb.metrics[k] = v
	}
	pb.render()
}

// UpdateFraction advances the bar to a fraction of its total
func (pb *ProgressBar) UpdateFraction(fraction float64, metrics map[string]float64) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.update(int(fraction*float64(pb.total)+0.5), metrics)
}

// UpdateMetrics updates metrics without advancing progress
func (pb *ProgressBar) UpdateMetrics(metrics map[string]float64) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	for k, v := range metrics {
		pb.metrics[k] = v
	}
	pb.render()
}

// Finish completes the progress bar
func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.out) // New line after completion
}

// render draws the progress bar; callers hold pb.mu
func (pb *ProgressBar) render() {
	percentage := 0.0
	if pb.total > 0 {
		percentage = float64(pb.current) / float64(pb.total)
	}
	if percentage > 1.0 {
		percentage = 1.0
	}

	filled := int(percentage * float64(pb.width))
	if filled > pb.width {
		filled = pb.width
	}

	bar := strings.Repeat("█", filled) + strings.Repeat(" ", pb.width-filled)

	elapsed := time.Since(pb.startTime)
	var eta time.Duration
	var rate float64

	if pb.current > 0 {
		rate = float64(pb.current) / elapsed.Seconds()
		if percentage > 0 {
			totalTime := time.Duration(float64(elapsed) / percentage)
			eta = totalTime - elapsed
		}
	}

	line := fmt.Sprintf("\r%s: %3.0f%%|%s| %d/%d",
		pb.description,
		percentage*100,
		bar,
		pb.current,
		pb.total,
	)

	if pb.showETA && eta > 0 {
		line += fmt.Sprintf(" [%s<%s",
			formatDuration(elapsed),
			formatDuration(eta),
		)
	} else {
		line += fmt.Sprintf(" [%s<00:00",
			formatDuration(elapsed),
		)
	}

	if pb.showRate && rate > 0 {
		line += fmt.Sprintf(", %.2f%s/s", rate, pb.unit)
	}

	// Stable metric order keeps redraws from jumping around
	keys := make([]string, 0, len(pb.metrics))
	for k := range pb.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := pb.metrics[key]
		switch {
		case key == "lr":
			line += fmt.Sprintf(", %s=%.6f", key, value)
		case key == "wst" || key == "trials":
			line += fmt.Sprintf(", %s=%.0f", key, value)
		default:
			line += fmt.Sprintf(", %s=%.4f", key, value)
		}
	}

	line += "]"

	fmt.Fprint(pb.out, line)
}

// formatDuration formats duration as MM:SS
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// TrainProgress returns a training callback that drives pb in percent.
// The native ETA is ignored in favour of the bar's own estimate.
func TrainProgress(pb *ProgressBar) native.TrainProgressFunc {
	return func(progress, loss float32, wst, lr float64, eta int64) {
		pb.UpdateFraction(float64(progress), map[string]float64{
			"loss": float64(loss),
			"lr":   lr,
			"wst":  wst,
		})
	}
}

// AutotuneProgress returns an autotune callback that drives pb in percent
func AutotuneProgress(pb *ProgressBar) native.AutotuneProgressFunc {
	return func(progress float64, trials int32, bestScore, eta float64) {
		pb.UpdateFraction(progress, map[string]float64{
			"trials": float64(trials),
			"best":   bestScore,
		})
	}
}
