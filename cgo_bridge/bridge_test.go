//go:build fasttext_native

package cgo_bridge

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-fasttext/memory"
	"github.com/tsawler/go-fasttext/native"
	"github.com/tsawler/go-fasttext/wire"
)

func TestNativeRecordSizesMatchWire(t *testing.T) {
	assert.Equal(t, WireRecordSizes(), NativeRecordSizes())
}

func TestHandleLifecycle(t *testing.T) {
	b := NewBridge(nil)
	h := b.CreateHandle()
	require.NotZero(t, h)
	assert.False(t, b.IsModelReady(h))
	b.DestroyHandle(h)

	// zero handle is ignored
	b.DestroyHandle(0)
}

func TestLoadMissingModelReportsNativeError(t *testing.T) {
	b := NewBridge(nil)
	h := b.CreateHandle()
	defer b.DestroyHandle(h)

	path := filepath.Join(t.TempDir(), "missing.bin")
	_, err := native.Status(b, "load model", func() int32 {
		return b.LoadModel(h, path)
	})
	require.Error(t, err)

	var be *native.BoundaryError
	require.True(t, errors.As(err, &be))
	assert.NotEmpty(t, be.Message)
}

func cookingRequest(t *testing.T, dir string, threads int32, calls *atomic.Int32) native.TrainRequest {
	t.Helper()
	input := filepath.Join(dir, "train.txt")
	require.NoError(t, os.WriteFile(input, []byte(
		"__label__baking how to bake bread\n__label__equipment which knife to buy\n"), 0o644))

	return native.TrainRequest{
		Input:  input,
		Output: filepath.Join(dir, "model"),
		Args: wire.ArgsRecord{
			LR:       0.1,
			Dim:      10,
			Epoch:    5,
			MinCount: 1,
			Loss:     wire.LossSoftmax,
			Model:    wire.ModelSupervised,
			Bucket:   0,
			Thread:   threads,
			T:        1e-4,
		},
		TrainProgress: func(progress, loss float32, wst, lr float64, eta int64) {
			calls.Add(1)
		},
		LabelPrefix: "__label__",
	}
}

// fastText reports progress from its training threads, never the caller's
func TestTrainInvokesProgressCallbackFromWorkerThreads(t *testing.T) {
	b := NewBridge(nil)
	h := b.CreateHandle()
	defer b.DestroyHandle(h)

	var calls atomic.Int32
	status := b.Train(h, cookingRequest(t, t.TempDir(), 4, &calls))
	require.Equal(t, int32(0), status)
	assert.Positive(t, calls.Load())

	scope := memory.NewScope(b)
	defer scope.Release()
	n, labels := b.GetLabels(h)
	assert.ElementsMatch(t, []string{"__label__baking", "__label__equipment"}, scope.TakeStrings(labels, int(n)))
}

func TestConcurrentTrainKeepsCallbacksApart(t *testing.T) {
	b := NewBridge(nil)

	var calls [2]atomic.Int32
	var wg sync.WaitGroup
	for i := range calls {
		h := b.CreateHandle()
		defer b.DestroyHandle(h)
		req := cookingRequest(t, t.TempDir(), 2, &calls[i])

		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, int32(0), b.Train(h, req))
		}()
	}
	wg.Wait()

	assert.Positive(t, calls[0].Load())
	assert.Positive(t, calls[1].Load())
}
