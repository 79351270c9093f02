package memory

import (
	"unsafe"
)

// CopyString copies a zero-terminated native string into a Go string.
// The length is found first, then the bytes are copied in one go, so
// multi-byte UTF-8 sequences are preserved as-is. A nil pointer or an
// empty native string yields "".
func CopyString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}

	n := cStringLength(p)
	if n == 0 {
		return ""
	}

	return string(unsafe.Slice((*byte)(p), n))
}

// cStringLength scans for the terminating zero byte
func cStringLength(p unsafe.Pointer) int {
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return n
}

// CopyStrings materializes a native array of count string pointers into a
// Go slice. The result never aliases native memory, so the array can be
// destroyed right after the call.
func CopyStrings(p unsafe.Pointer, count int) []string {
	if p == nil || count <= 0 {
		return []string{}
	}

	ptrs := unsafe.Slice((*unsafe.Pointer)(p), count)
	result := make([]string, count)
	for i, s := range ptrs {
		result[i] = CopyString(s)
	}

	return result
}

// CopyFloats copies a dense native float vector of n elements
func CopyFloats(p unsafe.Pointer, n int) []float32 {
	if p == nil || n <= 0 {
		return []float32{}
	}

	result := make([]float32, n)
	copy(result, unsafe.Slice((*float32)(p), n))
	return result
}

// CopyBytes copies n raw bytes starting at p
func CopyBytes(p unsafe.Pointer, n int) []byte {
	if p == nil || n <= 0 {
		return []byte{}
	}

	result := make([]byte, n)
	copy(result, unsafe.Slice((*byte)(p), n))
	return result
}

// CopyPointers copies a native array of n pointers as addresses
func CopyPointers(p unsafe.Pointer, n int) []uintptr {
	if p == nil || n <= 0 {
		return []uintptr{}
	}

	result := make([]uintptr, n)
	copy(result, unsafe.Slice((*uintptr)(p), n))
	return result
}
