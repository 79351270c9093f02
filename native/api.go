// Package native describes the flat function table of the fastText engine
// and the conventions every implementation of it follows.
//
// Blocks returned as unsafe.Pointer are owned by the native side until they
// are passed to the matching destroy call of memory.Releaser. Text goes in
// as UTF-8 bytes.
package native

import (
	"unsafe"

	"github.com/tsawler/go-fasttext/memory"
	"github.com/tsawler/go-fasttext/wire"
)

// Handle is an opaque reference to native model state. Zero means none.
type Handle uintptr

// TrainProgressFunc receives training progress: fractional completion,
// current loss, words per second per thread, learning rate and ETA seconds.
//
// It is called only while Train is in flight, but from the engine's own
// training threads rather than the caller's, so it must be safe for
// concurrent use. It must not panic: a panic cannot unwind through native
// frames and takes the process down.
type TrainProgressFunc func(progress, loss float32, wst, lr float64, eta int64)

// Call invokes f when set
func (f TrainProgressFunc) Call(progress, loss float32, wst, lr float64, eta int64) {
	if f != nil {
		f(progress, loss, wst, lr, eta)
	}
}

// AutotuneProgressFunc receives autotune progress: fractional completion,
// trials run so far, best score so far and ETA seconds. The same rules as
// for TrainProgressFunc apply.
type AutotuneProgressFunc func(progress float64, trials int32, bestScore, eta float64)

// Call invokes f when set
func (f AutotuneProgressFunc) Call(progress float64, trials int32, bestScore, eta float64) {
	if f != nil {
		f(progress, trials, bestScore, eta)
	}
}

// TrainRequest carries everything one Train call sends across
type TrainRequest struct {
	Input             string
	Output            string
	Args              wire.ArgsRecord
	Autotune          wire.AutotuneParams
	TrainProgress     TrainProgressFunc
	AutotuneProgress  AutotuneProgressFunc
	LabelPrefix       string
	PretrainedVectors string
	Debug             bool
}

// QuantizeRequest carries everything one Quantize call sends across
type QuantizeRequest struct {
	Output      string
	Args        wire.ArgsRecord
	LabelPrefix string
}

// API is the native function table. Status-returning calls report failure
// with a negative value; PredictSingle reports it with a negative
// probability. After a failure the next call on the same thread must be
// GetLastErrorText.
type API interface {
	memory.Releaser

	CreateHandle() Handle
	DestroyHandle(h Handle)

	LoadModel(h Handle, path string) int32
	LoadModelData(h Handle, data []byte) int32
	Train(h Handle, req TrainRequest) int32
	Quantize(h Handle, req QuantizeRequest) int32

	IsModelReady(h Handle) bool
	GetModelDimension(h Handle) int32

	// GetLabels writes a string array block and returns its length
	GetLabels(h Handle) (int32, unsafe.Pointer)

	// PredictSingle returns the probability and a label string block
	PredictSingle(h Handle, text []byte) (float32, unsafe.Pointer)

	// PredictMultiple returns the count, a label array block and the
	// probabilities for up to k labels
	PredictMultiple(h Handle, text []byte, k int32) (int32, unsafe.Pointer, []float32)

	// GetNN returns the count, a word array block and the similarities
	GetNN(h Handle, word []byte, k int32) (int32, unsafe.Pointer, []float32)

	// GetSentenceVector and GetWordVector return the dimension and a vector block
	GetSentenceVector(h Handle, text []byte) (int32, unsafe.Pointer)
	GetWordVector(h Handle, word []byte) (int32, unsafe.Pointer)

	// Test returns a status and a meter block laid out as wire.MeterRecord
	Test(h Handle, input string, k int32, threshold float32, debug bool) (int32, unsafe.Pointer)

	// GetLastErrorText returns the error string block of the most recent
	// failure on the calling thread
	GetLastErrorText() unsafe.Pointer
}
