package native

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/tsawler/go-fasttext/memory"
)

// Sentinel errors for conditions detected before any native call
var (
	ErrModelNotReady   = errors.New("model is not trained or loaded")
	ErrNotSupervised   = errors.New("operation requires a supervised model")
	ErrHandleClosed    = errors.New("fasttext handle is closed")
	ErrInvalidArgument = errors.New("invalid argument")
)

// BoundaryError reports a native call that returned its failure sentinel.
// Message is the native diagnostic text, verbatim.
type BoundaryError struct {
	Op      string
	Message string
}

func (e *BoundaryError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("fasttext: %s failed", e.Op)
	}
	return fmt.Sprintf("fasttext: %s failed: %s", e.Op, e.Message)
}

// ArgumentError reports an argument rejected locally
type ArgumentError struct {
	Arg    string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Arg, e.Reason)
}

// Unwrap makes errors.Is(err, ErrInvalidArgument) hold
func (e *ArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

// IsBoundaryError reports whether err came from the native side
func IsBoundaryError(err error) bool {
	var be *BoundaryError
	return errors.As(err, &be)
}

// LastError fetches the most recent native error text, copies it and frees
// the block. It must directly follow the failing call on the same thread.
func LastError(api API, op string) *BoundaryError {
	scope := memory.NewScope(api)
	defer scope.Release()

	return &BoundaryError{
		Op:      op,
		Message: scope.TakeString(api.GetLastErrorText()),
	}
}

// Invoke runs one native call and converts its failure sentinel into a
// *BoundaryError. call reports ok=false when it saw the sentinel. The OS
// thread stays locked from the call through the error text fetch so both
// observe the same thread-local error slot. Failures are never retried.
func Invoke[T any](api API, op string, call func() (T, bool)) (T, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	result, ok := call()
	if !ok {
		var zero T
		return zero, LastError(api, op)
	}
	return result, nil
}

// Status runs a status-returning native call through Invoke
func Status(api API, op string, call func() int32) (int32, error) {
	return Invoke(api, op, func() (int32, bool) {
		status := call()
		return status, status >= 0
	})
}
