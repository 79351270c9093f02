package nativetest

import (
	"errors"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tsawler/go-fasttext/memory"
	"github.com/tsawler/go-fasttext/native"
)

func TestErrorTextStaysWithFailingThread(t *testing.T) {
	e := New()
	h, _ := train(t, e)

	missing := []string{
		filepath.Join(t.TempDir(), "first.bin"),
		filepath.Join(t.TempDir(), "second.bin"),
	}
	got := make([]string, len(missing))
	var wg sync.WaitGroup
	for i, path := range missing {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := native.Status(e, "LoadModel", func() int32 {
				return e.LoadModel(h, path)
			})
			var be *native.BoundaryError
			if errors.As(err, &be) {
				got[i] = be.Message
			}
		}()
	}
	wg.Wait()

	for i, path := range missing {
		assert.Equal(t, path+" cannot be opened for loading!", got[i])
	}
	assert.Zero(t, e.Outstanding())
}

func TestErrorTextIsPerThread(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e := New()
	assert.Equal(t, int32(-1), e.LoadModel(native.Handle(99), "x.bin"))

	done := make(chan string)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		text := e.GetLastErrorText()
		done <- memory.CopyString(text)
		e.DestroyString(text)
	}()
	assert.Empty(t, <-done)

	text := e.GetLastErrorText()
	assert.Equal(t, "Invalid handle", memory.CopyString(text))
	e.DestroyString(text)
}
