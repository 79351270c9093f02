//go:build unix

// Package cmem allocates memory outside the Go heap, the way a native
// library hands blocks to its host. The collector never moves or frees
// these blocks, so their addresses may be stored as uintptr inside other
// blocks and turned back into pointers.
package cmem

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Block is one anonymous mapping. It stays valid until Free.
type Block []byte

// Alloc maps a zeroed block of at least one byte
func Alloc(n int) Block {
	b, err := unix.Mmap(-1, 0, max(n, 1), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		panic(fmt.Sprintf("cmem: mmap %d bytes: %v", n, err))
	}
	return b
}

// Free unmaps b. Any pointer into it is invalid afterwards.
func Free(b Block) {
	if len(b) == 0 {
		return
	}
	if err := unix.Munmap(b); err != nil {
		panic(fmt.Sprintf("cmem: munmap: %v", err))
	}
}

// Ptr returns the start of b
func (b Block) Ptr() unsafe.Pointer {
	return unsafe.Pointer(&b[0])
}

// Addr returns the address of the start of b
func (b Block) Addr() uintptr {
	return uintptr(b.Ptr())
}

// String copies s into a zero-terminated block
func String(s string) Block {
	b := Alloc(len(s) + 1)
	copy(b, s)
	return b
}

// Bytes copies data into a block
func Bytes(data []byte) Block {
	b := Alloc(len(data))
	copy(b, data)
	return b
}

// Floats copies v into a dense float32 block
func Floats(v []float32) Block {
	b := Alloc(4 * len(v))
	copy(unsafe.Slice((*float32)(b.Ptr()), len(v)), v)
	return b
}

// Addrs lays out addrs as a native array of 8-byte little-endian pointers
func Addrs(addrs []uintptr) Block {
	b := Alloc(8 * len(addrs))
	for i, a := range addrs {
		binary.LittleEndian.PutUint64(b[8*i:], uint64(a))
	}
	return b
}
