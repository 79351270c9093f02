package cgo_bridge

/*
#cgo LDFLAGS: -lfasttext
#include <stdlib.h>
#include "fasttext_api.h"
*/
import "C"
import (
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/tsawler/go-fasttext/native"
	"github.com/tsawler/go-fasttext/wire"
)

// Bridge implements native.API on top of libfasttext
type Bridge struct {
	log *zap.Logger
}

var _ native.API = (*Bridge)(nil)

// trainMu serializes Train: the C shim keeps the callback handles of the
// call in flight in process-wide slots read by the engine's worker threads
var trainMu sync.Mutex

// NewBridge creates the cgo function table. A nil logger disables logging.
func NewBridge(log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{log: log.Named("cgo_bridge")}
}

// handlePtr turns a handle back into the pointer CreateFastText returned.
// It points into C memory, so the address is reinterpreted.
func handlePtr(h native.Handle) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&h))
}

// cText copies UTF-8 text into a zero-terminated C buffer
func cText(text []byte) *C.char {
	buf := C.malloc(C.size_t(len(text) + 1))
	dst := unsafe.Slice((*byte)(buf), len(text)+1)
	copy(dst, text)
	dst[len(text)] = 0
	return (*C.char)(buf)
}

// cStringOrNil maps "" to NULL
func cStringOrNil(s string) *C.char {
	if s == "" {
		return nil
	}
	return C.CString(s)
}

func free(p unsafe.Pointer) {
	if p != nil {
		C.free(p)
	}
}

// CreateHandle creates a native fastText instance
func (b *Bridge) CreateHandle() native.Handle {
	return native.Handle(uintptr(C.CreateFastText()))
}

// DestroyHandle destroys a native fastText instance
func (b *Bridge) DestroyHandle(h native.Handle) {
	if h != 0 {
		C.DestroyFastText(handlePtr(h))
	}
}

// LoadModel loads a model file
func (b *Bridge) LoadModel(h native.Handle, path string) int32 {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	return int32(C.LoadModel(handlePtr(h), cPath))
}

// LoadModelData loads a model from memory
func (b *Bridge) LoadModelData(h native.Handle, data []byte) int32 {
	if len(data) == 0 {
		return int32(C.LoadModelData(handlePtr(h), nil, 0))
	}
	cData := C.CBytes(data)
	defer C.free(cData)

	return int32(C.LoadModelData(handlePtr(h), (*C.char)(cData), C.long(len(data))))
}

// Train runs training. Callbacks stay registered until the call returns and
// are invoked from the engine's training threads. Concurrent Train calls
// wait for each other.
func (b *Bridge) Train(h native.Handle, req native.TrainRequest) int32 {
	cInput := C.CString(req.Input)
	defer C.free(unsafe.Pointer(cInput))
	cOutput := C.CString(req.Output)
	defer C.free(unsafe.Pointer(cOutput))
	cPrefix := C.CString(req.LabelPrefix)
	defer C.free(unsafe.Pointer(cPrefix))
	cPretrained := cStringOrNil(req.PretrainedVectors)
	defer free(unsafe.Pointer(cPretrained))

	cArgs := C.CBytes(req.Args.Bytes())
	defer C.free(cArgs)

	var autotuneStrings []unsafe.Pointer
	defer func() {
		for _, p := range autotuneStrings {
			free(p)
		}
	}()
	autotune := req.Autotune.Record(func(s string) uintptr {
		p := unsafe.Pointer(cStringOrNil(s))
		autotuneStrings = append(autotuneStrings, p)
		return uintptr(p)
	})
	cAutotune := C.CBytes(autotune.Bytes())
	defer C.free(cAutotune)

	trainHandle, releaseTrain := trainCallbackHandle(req.TrainProgress)
	defer releaseTrain()
	autotuneHandle, releaseAutotune := autotuneCallbackHandle(req.AutotuneProgress)
	defer releaseAutotune()

	trainMu.Lock()
	defer trainMu.Unlock()

	b.log.Debug("native train",
		zap.String("input", req.Input),
		zap.String("output", req.Output),
		zap.Stringer("model", req.Args.Model),
		zap.Bool("autotune", req.Autotune.Enabled()),
		zap.Bool("debug", req.Debug))

	return int32(C.go_fasttext_train(
		handlePtr(h),
		cInput,
		cOutput,
		(*C.FastTextArgs)(cArgs),
		(*C.AutotuneArgs)(cAutotune),
		trainHandle,
		autotuneHandle,
		cPrefix,
		cPretrained,
		C.bool(req.Debug),
	))
}

// Quantize quantizes the loaded supervised model
func (b *Bridge) Quantize(h native.Handle, req native.QuantizeRequest) int32 {
	cOutput := C.CString(req.Output)
	defer C.free(unsafe.Pointer(cOutput))
	cPrefix := C.CString(req.LabelPrefix)
	defer C.free(unsafe.Pointer(cPrefix))
	cArgs := C.CBytes(req.Args.Bytes())
	defer C.free(cArgs)

	return int32(C.Quantize(handlePtr(h), cOutput, (*C.FastTextArgs)(cArgs), cPrefix))
}

// IsModelReady reports whether a model is trained or loaded
func (b *Bridge) IsModelReady(h native.Handle) bool {
	return bool(C.IsModelReady(handlePtr(h)))
}

// GetModelDimension returns the vector dimension of the model
func (b *Bridge) GetModelDimension(h native.Handle) int32 {
	return int32(C.GetModelDimension(handlePtr(h)))
}

// GetLabels returns the label count and the native label array
func (b *Bridge) GetLabels(h native.Handle) (int32, unsafe.Pointer) {
	var labels **C.char
	n := C.GetLabels(handlePtr(h), &labels)
	return int32(n), unsafe.Pointer(labels)
}

// PredictSingle returns the best label probability and the native label string
func (b *Bridge) PredictSingle(h native.Handle, text []byte) (float32, unsafe.Pointer) {
	cInput := cText(text)
	defer C.free(unsafe.Pointer(cInput))

	var label *C.char
	prob := C.PredictSingle(handlePtr(h), cInput, &label)
	return float32(prob), unsafe.Pointer(label)
}

// PredictMultiple returns up to k labels with their probabilities
func (b *Bridge) PredictMultiple(h native.Handle, text []byte, k int32) (int32, unsafe.Pointer, []float32) {
	cInput := cText(text)
	defer C.free(unsafe.Pointer(cInput))

	probs := make([]float32, max(k, 1))
	var labels **C.char
	n := C.PredictMultiple(handlePtr(h), cInput, &labels, (*C.float)(unsafe.Pointer(&probs[0])), C.int(k))
	return int32(n), unsafe.Pointer(labels), probs[:max(int(n), 0)]
}

// GetNN returns up to k nearest neighbours of a word
func (b *Bridge) GetNN(h native.Handle, word []byte, k int32) (int32, unsafe.Pointer, []float32) {
	cInput := cText(word)
	defer C.free(unsafe.Pointer(cInput))

	sims := make([]float32, max(k, 1))
	var words **C.char
	n := C.GetNN(handlePtr(h), cInput, &words, (*C.float)(unsafe.Pointer(&sims[0])), C.int(k))
	return int32(n), unsafe.Pointer(words), sims[:max(int(n), 0)]
}

// GetSentenceVector returns the dimension and the native sentence vector
func (b *Bridge) GetSentenceVector(h native.Handle, text []byte) (int32, unsafe.Pointer) {
	cInput := cText(text)
	defer C.free(unsafe.Pointer(cInput))

	var vec *C.float
	n := C.GetSentenceVector(handlePtr(h), cInput, &vec)
	return int32(n), unsafe.Pointer(vec)
}

// GetWordVector returns the dimension and the native word vector
func (b *Bridge) GetWordVector(h native.Handle, word []byte) (int32, unsafe.Pointer) {
	cInput := cText(word)
	defer C.free(unsafe.Pointer(cInput))

	var vec *C.float
	n := C.GetWordVector(handlePtr(h), cInput, &vec)
	return int32(n), unsafe.Pointer(vec)
}

// Test evaluates the model on a labeled file and returns the native meter
func (b *Bridge) Test(h native.Handle, input string, k int32, threshold float32, debug bool) (int32, unsafe.Pointer) {
	cInput := C.CString(input)
	defer C.free(unsafe.Pointer(cInput))

	var meter *C.TestMeter
	status := C.Test(handlePtr(h), cInput, C.int(k), C.float(threshold), &meter, C.bool(debug))
	return int32(status), unsafe.Pointer(meter)
}

// GetLastErrorText returns the native error string of the last failure
func (b *Bridge) GetLastErrorText() unsafe.Pointer {
	var text *C.char
	C.GetLastErrorText(&text)
	return unsafe.Pointer(text)
}

// DestroyString frees a native string
func (b *Bridge) DestroyString(p unsafe.Pointer) {
	if p != nil {
		C.DestroyString((*C.char)(p))
	}
}

// DestroyStrings frees a native string array and its strings
func (b *Bridge) DestroyStrings(p unsafe.Pointer, count int) {
	if p != nil {
		C.DestroyStrings((**C.char)(p), C.int(count))
	}
}

// DestroyVector frees a native float vector
func (b *Bridge) DestroyVector(p unsafe.Pointer) {
	if p != nil {
		C.DestroyVector((*C.float)(p))
	}
}

// DestroyMeter frees a native test meter with its nested records
func (b *Bridge) DestroyMeter(p unsafe.Pointer) {
	if p != nil {
		C.DestroyMeter(p)
	}
}

// RecordSizes reports the C sizes of the wire records
type RecordSizes struct {
	Args     int
	Autotune int
	Metrics  int
	Meter    int
}

// NativeRecordSizes returns sizeof of each packed C struct
func NativeRecordSizes() RecordSizes {
	return RecordSizes{
		Args:     int(C.sizeof_FastTextArgs),
		Autotune: int(C.sizeof_AutotuneArgs),
		Metrics:  int(C.sizeof_TestMetrics),
		Meter:    int(C.sizeof_TestMeter),
	}
}

// WireRecordSizes returns the sizes the wire package encodes
func WireRecordSizes() RecordSizes {
	return RecordSizes{
		Args:     wire.ArgsRecordSize,
		Autotune: wire.AutotuneRecordSize,
		Metrics:  wire.MetricsRecordSize,
		Meter:    wire.MeterRecordSize,
	}
}
