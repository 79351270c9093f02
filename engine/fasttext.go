// Package engine owns a native fastText model handle and exposes every
// model operation on top of it. Local preconditions are checked before a
// call crosses into native code, native failures come back as
// *native.BoundaryError, and every block the native side hands over is
// released before an operation returns.
//
// A FastText is not safe for concurrent use; callers serialize access.
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/tsawler/go-fasttext/memory"
	"github.com/tsawler/go-fasttext/native"
	"github.com/tsawler/go-fasttext/training"
	"github.com/tsawler/go-fasttext/wire"
)

// Prediction is a label with its probability, or a neighbour word with its
// similarity
type Prediction struct {
	Probability float32 `json:"probability"`
	Label       string  `json:"label"`
}

// Option configures a FastText
type Option func(*FastText)

// WithLogger sets the logger of one handle
func WithLogger(l *zap.Logger) Option {
	return func(ft *FastText) {
		if l != nil {
			ft.log = l
		}
	}
}

// WithDebug makes training write the native args dump
func WithDebug() Option {
	return func(ft *FastText) {
		ft.debug = true
	}
}

// FastText owns one native model handle
type FastText struct {
	api   native.API
	log   *zap.Logger
	debug bool

	mu     sync.Mutex
	handle native.Handle
	closed bool

	ready      bool
	supervised bool
	labels     []string
	modelPath  string
}

// New creates a native handle. Close releases it; a finalizer releases it
// if Close is never called.
func New(api native.API, opts ...Option) (*FastText, error) {
	if api == nil {
		return nil, &native.ArgumentError{Arg: "api", Reason: "must not be nil"}
	}

	ft := &FastText{api: api, log: Logger()}
	for _, opt := range opts {
		opt(ft)
	}

	h := api.CreateHandle()
	if h == 0 {
		return nil, errors.New("fasttext: failed to create native handle")
	}
	ft.handle = h
	liveHandles.Inc()
	runtime.SetFinalizer(ft, (*FastText).Close)

	ft.log.Debug("created fasttext handle", zap.Uintptr("handle", uintptr(h)))
	return ft, nil
}

// Close destroys the native handle. Calling it again is a no-op.
func (ft *FastText) Close() error {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	if ft.closed {
		return nil
	}
	ft.closed = true
	ft.ready = false

	ft.api.DestroyHandle(ft.handle)
	ft.log.Debug("destroyed fasttext handle", zap.Uintptr("handle", uintptr(ft.handle)))
	ft.handle = 0
	liveHandles.Dec()
	runtime.SetFinalizer(ft, nil)
	return nil
}

// check returns the live handle or the local precondition that op violates
func (ft *FastText) check(op string, needReady, needSupervised bool) (native.Handle, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	switch {
	case ft.closed:
		return 0, reject(op, native.ErrHandleClosed)
	case needReady && !ft.ready:
		return 0, reject(op, native.ErrModelNotReady)
	case needSupervised && !ft.supervised:
		return 0, reject(op, native.ErrNotSupervised)
	}
	return ft.handle, nil
}

func (ft *FastText) setReady(ready bool) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.ready = ready
	if !ready {
		ft.supervised = false
		ft.labels = nil
	}
}

func (ft *FastText) newScope() *memory.Scope {
	return memory.NewScope(countingReleaser{ft.api})
}

// checkInputFile rejects paths that do not name a readable regular file
func checkInputFile(arg, path string) error {
	if path == "" {
		return &native.ArgumentError{Arg: arg, Reason: "path is empty"}
	}
	info, err := os.Stat(path)
	if err != nil {
		return &native.ArgumentError{Arg: arg, Reason: fmt.Sprintf("file %s does not exist", path)}
	}
	if info.IsDir() {
		return &native.ArgumentError{Arg: arg, Reason: fmt.Sprintf("%s is a directory", path)}
	}
	return nil
}

// outputStub checks that the directory of output exists and strips a
// .bin or .ftz extension; the native side appends its own.
func outputStub(output string) (string, error) {
	if output == "" {
		return "", &native.ArgumentError{Arg: "output", Reason: "path is empty"}
	}
	dir := filepath.Dir(output)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", &native.ArgumentError{Arg: "output", Reason: fmt.Sprintf("directory %s does not exist", dir)}
	}

	switch filepath.Ext(output) {
	case ".bin", ".ftz":
		return output[:len(output)-4], nil
	}
	return output, nil
}

// ModelPath returns the model file written by the last training or
// quantization, or the path of the last loaded model
func (ft *FastText) ModelPath() string {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.modelPath
}

// IsModelReady reports whether a train or load call has succeeded since
// the handle was created or last reset
func (ft *FastText) IsModelReady() bool {
	h, err := ft.check("IsModelReady", true, false)
	if err != nil {
		return false
	}
	return ft.api.IsModelReady(h)
}

// Supervised trains a classifier on input. The model is written to
// output.bin and the word vectors to output.vec.
func (ft *FastText) Supervised(input, output string, args training.SupervisedArgs) error {
	if err := args.Validate(); err != nil {
		return reject("Train", &native.ArgumentError{Arg: "args", Reason: err.Error()})
	}
	if args.Model != wire.ModelSupervised {
		return reject("Train", &native.ArgumentError{Arg: "model", Reason: fmt.Sprintf("supervised training cannot use model %s", args.Model)})
	}

	return ft.train(native.TrainRequest{
		Input:             input,
		Args:              args.Record(),
		Autotune:          args.Autotune.Params(),
		TrainProgress:     args.TrainProgress,
		AutotuneProgress:  args.Autotune.Progress,
		LabelPrefix:       args.LabelPrefix,
		PretrainedVectors: args.PretrainedVectors,
	}, output)
}

// Unsupervised learns word vectors with cbow or skipgram
func (ft *FastText) Unsupervised(model wire.ModelName, input, output string, args training.Args) error {
	if model != wire.ModelCBow && model != wire.ModelSkipGram {
		return reject("Train", &native.ArgumentError{Arg: "model", Reason: fmt.Sprintf("unsupervised training cannot use model %s", model)})
	}
	args.Model = model
	if err := args.Validate(); err != nil {
		return reject("Train", &native.ArgumentError{Arg: "args", Reason: err.Error()})
	}

	return ft.train(native.TrainRequest{
		Input:             input,
		Args:              args.Record(),
		TrainProgress:     args.TrainProgress,
		LabelPrefix:       args.LabelPrefix,
		PretrainedVectors: args.PretrainedVectors,
	}, output)
}

func (ft *FastText) train(req native.TrainRequest, output string) error {
	h, err := ft.check("Train", false, false)
	if err != nil {
		return err
	}
	if err := checkInputFile("input", req.Input); err != nil {
		return reject("Train", err)
	}
	if req.PretrainedVectors != "" {
		if err := checkInputFile("pretrainedVectors", req.PretrainedVectors); err != nil {
			return reject("Train", err)
		}
	}
	if req.Autotune.Enabled() {
		if err := checkInputFile("autotuneValidationFile", req.Autotune.ValidationFile); err != nil {
			return reject("Train", err)
		}
	}
	stub, err := outputStub(output)
	if err != nil {
		return reject("Train", err)
	}
	req.Output = stub
	req.Debug = ft.debug

	ft.log.Info("training model",
		zap.String("input", req.Input),
		zap.String("output", stub),
		zap.Stringer("model", req.Args.Model),
		zap.Stringer("loss", req.Args.Loss),
		zap.Int32("dim", req.Args.Dim),
		zap.Int32("epoch", req.Args.Epoch),
		zap.Bool("autotune", req.Autotune.Enabled()),
	)

	ft.setReady(false)
	if _, err := status(ft, "Train", func() int32 {
		return ft.api.Train(h, req)
	}); err != nil {
		return err
	}

	return ft.loaded(h, stub+".bin")
}

// Quantize compresses the current supervised model and writes output.ftz
func (ft *FastText) Quantize(output string, args training.QuantizedSupervisedArgs) error {
	h, err := ft.check("Quantize", true, true)
	if err != nil {
		return err
	}
	if err := args.Validate(); err != nil {
		return reject("Quantize", &native.ArgumentError{Arg: "args", Reason: err.Error()})
	}
	stub, err := outputStub(output)
	if err != nil {
		return reject("Quantize", err)
	}

	ft.log.Info("quantizing model",
		zap.String("output", stub),
		zap.Uint64("cutoff", args.Quantize.Cutoff),
		zap.Uint64("dsub", args.Quantize.Dsub),
		zap.Bool("retrain", args.Quantize.Retrain),
	)

	if _, err := status(ft, "Quantize", func() int32 {
		return ft.api.Quantize(h, native.QuantizeRequest{
			Output:      stub,
			Args:        args.Record(),
			LabelPrefix: args.LabelPrefix,
		})
	}); err != nil {
		return err
	}

	ft.mu.Lock()
	ft.modelPath = stub + ".ftz"
	ft.mu.Unlock()
	return nil
}

// LoadModel reads a .bin or .ftz model file
func (ft *FastText) LoadModel(path string) error {
	h, err := ft.check("LoadModel", false, false)
	if err != nil {
		return err
	}
	if err := checkInputFile("path", path); err != nil {
		return reject("LoadModel", err)
	}

	ft.setReady(false)
	if _, err := status(ft, "LoadModel", func() int32 {
		return ft.api.LoadModel(h, path)
	}); err != nil {
		return err
	}

	ft.log.Debug("loaded model", zap.String("path", path))
	return ft.loaded(h, path)
}

// LoadModelData reads a model from the bytes of a model file
func (ft *FastText) LoadModelData(data []byte) error {
	h, err := ft.check("LoadModelData", false, false)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return reject("LoadModelData", &native.ArgumentError{Arg: "data", Reason: "model data is empty"})
	}

	ft.setReady(false)
	if _, err := status(ft, "LoadModelData", func() int32 {
		return ft.api.LoadModelData(h, data)
	}); err != nil {
		return err
	}

	return ft.loaded(h, "")
}

// loaded marks the handle ready, records where the model lives and caches
// its labels. A model without labels is unsupervised.
func (ft *FastText) loaded(h native.Handle, path string) error {
	labels, err := ft.fetchLabels(h)
	if err != nil {
		return fmt.Errorf("failed to read model labels: %w", err)
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.ready = true
	ft.modelPath = path
	ft.labels = labels
	ft.supervised = len(labels) > 0
	return nil
}

func (ft *FastText) fetchLabels(h native.Handle) ([]string, error) {
	scope := ft.newScope()
	defer scope.Release()

	return invoke(ft, "GetLabels", func() ([]string, bool) {
		n, p := ft.api.GetLabels(h)
		scope.AddStrings(p, int(n))
		if n < 0 {
			return nil, false
		}
		return memory.CopyStrings(p, int(n)), true
	})
}

// GetModelDimension returns the vector dimension of the model
func (ft *FastText) GetModelDimension() (int, error) {
	h, err := ft.check("GetModelDimension", true, false)
	if err != nil {
		return 0, err
	}

	dim, err := status(ft, "GetModelDimension", func() int32 {
		return ft.api.GetModelDimension(h)
	})
	return int(dim), err
}

// GetLabels returns the labels of a supervised model
func (ft *FastText) GetLabels() ([]string, error) {
	h, err := ft.check("GetLabels", true, true)
	if err != nil {
		return nil, err
	}
	return ft.fetchLabels(h)
}

// PredictSingle returns the most probable label of text
func (ft *FastText) PredictSingle(text string) (Prediction, error) {
	h, err := ft.check("PredictSingle", true, true)
	if err != nil {
		return Prediction{}, err
	}

	scope := ft.newScope()
	defer scope.Release()

	return invoke(ft, "PredictSingle", func() (Prediction, bool) {
		prob, label := ft.api.PredictSingle(h, []byte(text))
		scope.AddString(label)
		if prob < 0 {
			return Prediction{}, false
		}
		return Prediction{Probability: prob, Label: memory.CopyString(label)}, true
	})
}

// PredictMultiple returns up to k labels of text, most probable first
func (ft *FastText) PredictMultiple(text string, k int) ([]Prediction, error) {
	h, err := ft.check("PredictMultiple", true, true)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, reject("PredictMultiple", &native.ArgumentError{Arg: "k", Reason: "must be positive"})
	}

	return ft.ranked("PredictMultiple", func() (int32, unsafe.Pointer, []float32) {
		return ft.api.PredictMultiple(h, []byte(text), int32(k))
	})
}

// GetNearestNeighbours returns the k words closest to word
func (ft *FastText) GetNearestNeighbours(word string, k int) ([]Prediction, error) {
	h, err := ft.check("GetNN", true, false)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, reject("GetNN", &native.ArgumentError{Arg: "k", Reason: "must be positive"})
	}

	return ft.ranked("GetNN", func() (int32, unsafe.Pointer, []float32) {
		return ft.api.GetNN(h, []byte(word), int32(k))
	})
}

// ranked copies a string array and its parallel scores into predictions
func (ft *FastText) ranked(op string, call func() (int32, unsafe.Pointer, []float32)) ([]Prediction, error) {
	scope := ft.newScope()
	defer scope.Release()

	return invoke(ft, op, func() ([]Prediction, bool) {
		n, labels, scores := call()
		scope.AddStrings(labels, int(n))
		if n < 0 {
			return nil, false
		}

		names := memory.CopyStrings(labels, int(n))
		preds := make([]Prediction, 0, n)
		for i, name := range names {
			if i >= len(scores) {
				break
			}
			preds = append(preds, Prediction{Probability: scores[i], Label: name})
		}
		return preds, true
	})
}

// GetSentenceVector returns the vector of a line of text
func (ft *FastText) GetSentenceVector(text string) ([]float32, error) {
	h, err := ft.check("GetSentenceVector", true, false)
	if err != nil {
		return nil, err
	}
	return ft.vector("GetSentenceVector", func() (int32, unsafe.Pointer) {
		return ft.api.GetSentenceVector(h, []byte(text))
	})
}

// GetWordVector returns the vector of one word
func (ft *FastText) GetWordVector(word string) ([]float32, error) {
	h, err := ft.check("GetWordVector", true, false)
	if err != nil {
		return nil, err
	}
	return ft.vector("GetWordVector", func() (int32, unsafe.Pointer) {
		return ft.api.GetWordVector(h, []byte(word))
	})
}

func (ft *FastText) vector(op string, call func() (int32, unsafe.Pointer)) ([]float32, error) {
	scope := ft.newScope()
	defer scope.Release()

	return invoke(ft, op, func() ([]float32, bool) {
		dim, p := call()
		scope.AddVector(p)
		if dim < 0 {
			return nil, false
		}
		return memory.CopyFloats(p, int(dim)), true
	})
}
