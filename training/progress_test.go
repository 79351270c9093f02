package training

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressBarRender(t *testing.T) {
	var buf bytes.Buffer
	pb := NewProgressBar("Training", 100)
	pb.SetOutput(&buf)

	pb.Update(25, map[string]float64{"loss": 1.5})
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\rTraining:  25%|"))
	assert.Contains(t, out, "25/100")
	assert.Contains(t, out, "loss=1.5000")

	buf.Reset()
	pb.Finish()
	assert.Contains(t, buf.String(), "100%|")
	assert.True(t, strings.HasSuffix(buf.String(), "]\n"))
}

func TestProgressBarMetricOrder(t *testing.T) {
	var buf bytes.Buffer
	pb := NewProgressBar("Run", 10)
	pb.SetOutput(&buf)

	pb.Update(1, map[string]float64{"zeta": 1, "alpha": 2})
	out := buf.String()
	assert.Less(t, strings.Index(out, "alpha="), strings.Index(out, "zeta="))

	buf.Reset()
	pb.UpdateMetrics(map[string]float64{"beta": 3})
	assert.Contains(t, buf.String(), "beta=3.0000")
	assert.Contains(t, buf.String(), "zeta=1.0000")
}

func TestTrainProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	pb := NewProgressBar("Training", 100)
	pb.SetOutput(&buf)

	cb := TrainProgress(pb)
	cb(0.5, 0.25, 1200, 0.05, 30)

	out := buf.String()
	assert.Contains(t, out, " 50%|")
	assert.Contains(t, out, "loss=0.2500")
	assert.Contains(t, out, "lr=0.050000")
	assert.Contains(t, out, "wst=1200")
}

func TestAutotuneProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	pb := NewProgressBar("Autotune", 100)
	pb.SetOutput(&buf)
	pb.SetUnit("%")

	AutotuneProgress(pb)(0.75, 3, 0.81, 12)

	out := buf.String()
	assert.Contains(t, out, " 75%|")
	assert.Contains(t, out, "trials=3")
	assert.Contains(t, out, "best=0.8100")
}

// Native engines report progress from their own worker threads.
func TestTrainProgressFromManyThreads(t *testing.T) {
	var buf bytes.Buffer
	pb := NewProgressBar("Training", 100)
	pb.SetOutput(&buf)
	cb := TrainProgress(pb)

	var wg sync.WaitGroup
	for worker := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				cb(float32(i)/50, 0.5, float64(worker), 0.1, 0)
			}
		}()
	}
	wg.Wait()
	pb.Finish()

	out := buf.String()
	assert.Equal(t, 8*50+1, strings.Count(out, "\rTraining:"), "every redraw is written whole")
	assert.True(t, strings.HasSuffix(out, "]\n"))
}
