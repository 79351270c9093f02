// Package nativetest provides an in-memory implementation of the native
// function table for tests. It follows the same ownership and error
// conventions as the real library: every returned block must be destroyed
// exactly once, failures return sentinels and leave their text for
// GetLastErrorText on the failing OS thread.
package nativetest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	"github.com/tsawler/go-fasttext/memory"
	"github.com/tsawler/go-fasttext/native"
	"github.com/tsawler/go-fasttext/wire"
)

// Debug dump file names written when a call runs with the debug flag
const (
	TrainDumpFile = "_train.txt"
	TestDumpFile  = "_debug.txt"
)

type handleState struct {
	model *model
}

// Engine is a fake native engine. The zero value is not usable; call New.
type Engine struct {
	// DumpDir receives debug dumps; the working directory when empty
	DumpDir string

	heap *heap

	mu             sync.Mutex
	next           native.Handle
	handles        map[native.Handle]*handleState
	doubleDestroys int
	lastErrors     map[int]string
	failures       map[string]string
	calls          []string
}

var _ native.API = (*Engine)(nil)

// New creates an empty fake engine
func New() *Engine {
	return &Engine{
		heap:     newHeap(),
		handles:    make(map[native.Handle]*handleState),
		lastErrors: make(map[int]string),
		failures:   make(map[string]string),
	}
}

// FailNext makes the next call of op fail with message
func (e *Engine) FailNext(op, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[op] = message
}

// Outstanding returns the number of blocks not yet destroyed
func (e *Engine) Outstanding() int {
	return e.heap.outstanding()
}

// DoubleFrees returns destroy calls for blocks that were not live
func (e *Engine) DoubleFrees() int {
	e.heap.mu.Lock()
	defer e.heap.mu.Unlock()
	return e.heap.doubleFrees
}

// KindErrors returns destroy calls that used the wrong destroy function
func (e *Engine) KindErrors() int {
	e.heap.mu.Lock()
	defer e.heap.mu.Unlock()
	return e.heap.kindErrors
}

// DoubleDestroys returns DestroyHandle calls on handles that were not live
func (e *Engine) DoubleDestroys() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doubleDestroys
}

// LiveHandles returns the number of handles not yet destroyed
func (e *Engine) LiveHandles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

// Calls returns the names of the table functions called so far, in order
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *Engine) record(op string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, op)
}

// begin records the call and reports an injected failure for op
func (e *Engine) begin(op string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, op)
	msg, ok := e.failures[op]
	if ok {
		delete(e.failures, op)
	}
	return msg, ok
}

// setError stores the failure text in the calling OS thread's slot
func (e *Engine) setError(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErrors[threadID()] = fmt.Sprintf(format, args...)
}

func (e *Engine) state(h native.Handle) (*handleState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.handles[h]
	return s, ok
}

func (e *Engine) setModel(h native.Handle, m *model) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.handles[h]; ok {
		s.model = m
	}
}

// ready returns the model behind h, or records the error and returns nil
func (e *Engine) ready(h native.Handle) *model {
	s, ok := e.state(h)
	if !ok {
		e.setError("Invalid handle")
		return nil
	}
	if s.model == nil {
		e.setError("Model is not loaded")
		return nil
	}
	return s.model
}

func (e *Engine) dumpPath(name string) string {
	if e.DumpDir == "" {
		return name
	}
	return filepath.Join(e.DumpDir, name)
}

// CreateHandle implements native.API
func (e *Engine) CreateHandle() native.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "CreateFastText")
	e.next++
	e.handles[e.next] = &handleState{}
	return e.next
}

// DestroyHandle implements native.API
func (e *Engine) DestroyHandle(h native.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "DestroyFastText")
	if _, ok := e.handles[h]; !ok {
		e.doubleDestroys++
		return
	}
	delete(e.handles, h)
}

// LoadModel implements native.API
func (e *Engine) LoadModel(h native.Handle, path string) int32 {
	if msg, fail := e.begin("LoadModel"); fail {
		e.setError("%s", msg)
		return -1
	}
	if _, ok := e.state(h); !ok {
		e.setError("Invalid handle")
		return -1
	}

	data, err := os.ReadFile(path)
	if err != nil {
		e.setError("%s cannot be opened for loading!", path)
		return -1
	}
	m, err := parseModel(data, path)
	if err != nil {
		e.setError("%v", err)
		return -1
	}
	e.setModel(h, m)
	return 0
}

// LoadModelData implements native.API
func (e *Engine) LoadModelData(h native.Handle, data []byte) int32 {
	if msg, fail := e.begin("LoadModelData"); fail {
		e.setError("%s", msg)
		return -1
	}
	if _, ok := e.state(h); !ok {
		e.setError("Invalid handle")
		return -1
	}

	m, err := parseModel(data, "model data")
	if err != nil {
		e.setError("%v", err)
		return -1
	}
	e.setModel(h, m)
	return 0
}

// Train implements native.API
func (e *Engine) Train(h native.Handle, req native.TrainRequest) int32 {
	if msg, fail := e.begin("Train"); fail {
		e.setError("%s", msg)
		return -1
	}
	if _, ok := e.state(h); !ok {
		e.setError("Invalid handle")
		return -1
	}

	if req.Debug {
		var buf bytes.Buffer
		if err := wire.WriteArgsDump(&buf, req.Args, req.Autotune); err == nil {
			_ = os.WriteFile(e.dumpPath(TrainDumpFile), buf.Bytes(), 0o644)
		}
	}

	examples, err := readExamples(req.Input, req.LabelPrefix)
	if err != nil {
		e.setError("%s cannot be opened for training!", req.Input)
		return -1
	}

	if req.PretrainedVectors != "" {
		dim, err := pretrainedDimension(req.PretrainedVectors)
		if err != nil {
			e.setError("%s cannot be opened for loading!", req.PretrainedVectors)
			return -1
		}
		if dim != int(req.Args.Dim) {
			e.setError("Dimension of pretrained vectors (%d) does not match dimension (%d)!", dim, req.Args.Dim)
			return -1
		}
	}

	if req.Autotune.Enabled() {
		if _, err := os.Stat(req.Autotune.ValidationFile); err != nil {
			e.setError("Validation file cannot be opened!")
			return -1
		}
		const trials = 3
		for i := int32(1); i <= trials; i++ {
			progress := float64(i) / trials
			req.AutotuneProgress.Call(progress, i, 0.5+0.1*float64(i), float64(req.Autotune.Duration)*(1-progress))
		}
	}

	m, err := buildModel(examples, req.Args, req.LabelPrefix)
	if err != nil {
		e.setError("%v", err)
		return -1
	}

	epochs := max(req.Args.Epoch, 1)
	for i := int32(1); i <= epochs; i++ {
		progress := float32(i) / float32(epochs)
		lr := req.Args.LR * float64(1-progress)
		req.TrainProgress.Call(progress, 1/float32(i+1), 1000, lr, int64(epochs-i))
	}

	if err := m.save(req.Output); err != nil {
		e.setError("%s cannot be opened for saving!", req.Output)
		return -1
	}
	e.setModel(h, m)
	return 0
}

// Quantize implements native.API
func (e *Engine) Quantize(h native.Handle, req native.QuantizeRequest) int32 {
	if msg, fail := e.begin("Quantize"); fail {
		e.setError("%s", msg)
		return -1
	}
	m := e.ready(h)
	if m == nil {
		return -1
	}
	if !m.Supervised {
		e.setError("For now we only support quantization of supervised models")
		return -1
	}

	q := *m
	q.Quantized = true
	if err := q.save(req.Output); err != nil {
		e.setError("%s cannot be opened for saving!", req.Output)
		return -1
	}
	e.setModel(h, &q)
	return 0
}

// IsModelReady implements native.API
func (e *Engine) IsModelReady(h native.Handle) bool {
	e.record("IsModelReady")
	s, ok := e.state(h)
	return ok && s.model != nil
}

// GetModelDimension implements native.API
func (e *Engine) GetModelDimension(h native.Handle) int32 {
	e.record("GetModelDimension")
	m := e.ready(h)
	if m == nil {
		return -1
	}
	return int32(m.Dim)
}

// GetLabels implements native.API
func (e *Engine) GetLabels(h native.Handle) (int32, unsafe.Pointer) {
	if msg, fail := e.begin("GetLabels"); fail {
		e.setError("%s", msg)
		return -1, nil
	}
	m := e.ready(h)
	if m == nil {
		return -1, nil
	}
	return int32(len(m.Labels)), e.heap.allocStrings(m.Labels)
}

// PredictSingle implements native.API
func (e *Engine) PredictSingle(h native.Handle, text []byte) (float32, unsafe.Pointer) {
	if msg, fail := e.begin("PredictSingle"); fail {
		e.setError("%s", msg)
		return -1, nil
	}
	m := e.ready(h)
	if m == nil {
		return -1, nil
	}
	preds := m.predict(string(text))
	if len(preds) == 0 {
		e.setError("Model has no labels")
		return -1, nil
	}
	return preds[0].prob, e.heap.allocString(preds[0].label)
}

// PredictMultiple implements native.API
func (e *Engine) PredictMultiple(h native.Handle, text []byte, k int32) (int32, unsafe.Pointer, []float32) {
	if msg, fail := e.begin("PredictMultiple"); fail {
		e.setError("%s", msg)
		return -1, nil, nil
	}
	m := e.ready(h)
	if m == nil {
		return -1, nil, nil
	}

	preds := m.predict(string(text))
	if len(preds) > int(k) {
		preds = preds[:k]
	}
	labels := make([]string, len(preds))
	probs := make([]float32, len(preds))
	for i, p := range preds {
		labels[i], probs[i] = p.label, p.prob
	}
	return int32(len(preds)), e.heap.allocStrings(labels), probs
}

// GetNN implements native.API
func (e *Engine) GetNN(h native.Handle, word []byte, k int32) (int32, unsafe.Pointer, []float32) {
	if msg, fail := e.begin("GetNN"); fail {
		e.setError("%s", msg)
		return -1, nil, nil
	}
	m := e.ready(h)
	if m == nil {
		return -1, nil, nil
	}

	nn := m.nearest(string(word), int(k))
	words := make([]string, len(nn))
	sims := make([]float32, len(nn))
	for i, n := range nn {
		words[i], sims[i] = n.word, n.similarity
	}
	return int32(len(nn)), e.heap.allocStrings(words), sims
}

// GetSentenceVector implements native.API
func (e *Engine) GetSentenceVector(h native.Handle, text []byte) (int32, unsafe.Pointer) {
	if msg, fail := e.begin("GetSentenceVector"); fail {
		e.setError("%s", msg)
		return -1, nil
	}
	m := e.ready(h)
	if m == nil {
		return -1, nil
	}
	return int32(m.Dim), e.heap.allocVector(m.sentenceVector(string(text)))
}

// GetWordVector implements native.API
func (e *Engine) GetWordVector(h native.Handle, word []byte) (int32, unsafe.Pointer) {
	if msg, fail := e.begin("GetWordVector"); fail {
		e.setError("%s", msg)
		return -1, nil
	}
	m := e.ready(h)
	if m == nil {
		return -1, nil
	}
	return int32(m.Dim), e.heap.allocVector(m.wordVector(string(word)))
}

// Test implements native.API
func (e *Engine) Test(h native.Handle, input string, k int32, threshold float32, debug bool) (int32, unsafe.Pointer) {
	if msg, fail := e.begin("Test"); fail {
		e.setError("%s", msg)
		return -1, nil
	}
	m := e.ready(h)
	if m == nil {
		return -1, nil
	}

	examples, err := readExamples(input, m.LabelPrefix)
	if err != nil {
		e.setError("Test file cannot be opened!")
		return -1, nil
	}

	mt := newMeter()
	for _, ex := range examples {
		var gold []int32
		for _, l := range ex.labels {
			if idx := m.labelIndex(l); idx >= 0 {
				gold = append(gold, idx)
			}
		}

		var predicted []int32
		var probs []float32
		for _, p := range m.predict(strings.Join(ex.words, " ")) {
			if len(predicted) == int(k) || p.prob < threshold {
				break
			}
			predicted = append(predicted, m.labelIndex(p.label))
			probs = append(probs, p.prob)
		}
		mt.log(gold, predicted, probs)
	}

	if debug {
		if f, err := os.Create(e.dumpPath(TestDumpFile)); err == nil {
			_ = mt.writeDebug(f)
			_ = f.Close()
		}
	}

	return 0, e.heap.allocMeter(mt.examples, mt.global, mt.entries())
}

// GetLastErrorText implements native.API. Like the real library it reads
// and clears the slot of the calling OS thread only.
func (e *Engine) GetLastErrorText() unsafe.Pointer {
	tid := threadID()
	e.mu.Lock()
	e.calls = append(e.calls, "GetLastErrorText")
	text := e.lastErrors[tid]
	delete(e.lastErrors, tid)
	e.mu.Unlock()

	return e.heap.allocString(text)
}

// DestroyString implements memory.Releaser
func (e *Engine) DestroyString(p unsafe.Pointer) {
	e.heap.free(p, memory.StringBlock)
}

// DestroyStrings implements memory.Releaser
func (e *Engine) DestroyStrings(p unsafe.Pointer, count int) {
	e.heap.free(p, memory.StringArrayBlock)
}

// DestroyVector implements memory.Releaser
func (e *Engine) DestroyVector(p unsafe.Pointer) {
	e.heap.free(p, memory.VectorBlock)
}

// DestroyMeter implements memory.Releaser
func (e *Engine) DestroyMeter(p unsafe.Pointer) {
	e.heap.free(p, memory.MeterBlock)
}
