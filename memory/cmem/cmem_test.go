//go:build unix

package cmem

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocIsZeroed(t *testing.T) {
	b := Alloc(16)
	defer Free(b)

	require.GreaterOrEqual(t, len(b), 16)
	assert.Equal(t, make([]byte, 16), []byte(b[:16]))

	empty := Alloc(0)
	defer Free(empty)
	assert.NotEmpty(t, empty)
}

func TestStringIsZeroTerminated(t *testing.T) {
	b := String("bœuf")
	defer Free(b)

	assert.Equal(t, "bœuf", string(b[:len("bœuf")]))
	assert.Zero(t, b[len("bœuf")])
}

func TestFloatsAndAddrs(t *testing.T) {
	v := Floats([]float32{0.5, -1})
	defer Free(v)
	assert.Equal(t, []float32{0.5, -1}, unsafe.Slice((*float32)(v.Ptr()), 2))

	a := Addrs([]uintptr{v.Addr(), 0})
	defer Free(a)
	assert.Equal(t, []uintptr{v.Addr(), 0}, unsafe.Slice((*uintptr)(a.Ptr()), 2))
}
