package cgo_bridge

/*
#include "fasttext_api.h"
*/
import "C"

import (
	"runtime/cgo"

	"github.com/tsawler/go-fasttext/native"
)

// trainCallbackHandle pins f for the duration of one native call. A nil
// function yields the zero handle, which the C shim turns into NULL.
func trainCallbackHandle(f native.TrainProgressFunc) (C.uintptr_t, func()) {
	if f == nil {
		return 0, func() {}
	}
	h := cgo.NewHandle(f)
	return C.uintptr_t(h), h.Delete
}

func autotuneCallbackHandle(f native.AutotuneProgressFunc) (C.uintptr_t, func()) {
	if f == nil {
		return 0, func() {}
	}
	h := cgo.NewHandle(f)
	return C.uintptr_t(h), h.Delete
}

//export goTrainProgress
func goTrainProgress(h C.uintptr_t, progress, loss C.float, wst, lr C.double, eta C.int64_t) {
	f, ok := cgo.Handle(h).Value().(native.TrainProgressFunc)
	if !ok {
		return
	}
	f(float32(progress), float32(loss), float64(wst), float64(lr), int64(eta))
}

//export goAutotuneProgress
func goAutotuneProgress(h C.uintptr_t, progress C.double, trials C.int32_t, bestScore, eta C.double) {
	f, ok := cgo.Handle(h).Value().(native.AutotuneProgressFunc)
	if !ok {
		return
	}
	f(float64(progress), int32(trials), float64(bestScore), float64(eta))
}
