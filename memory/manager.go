package memory

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// BlockKind identifies which destroy call a native block needs
type BlockKind int

const (
	StringBlock BlockKind = iota
	StringArrayBlock
	VectorBlock
	MeterBlock

	numBlockKinds
)

func (k BlockKind) String() string {
	switch k {
	case StringBlock:
		return "string"
	case StringArrayBlock:
		return "string_array"
	case VectorBlock:
		return "vector"
	case MeterBlock:
		return "meter"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Releaser frees memory blocks that the native engine allocated and handed
// over. Every block must be passed to exactly one of these calls.
type Releaser interface {
	DestroyString(p unsafe.Pointer)
	DestroyStrings(p unsafe.Pointer, count int)
	DestroyVector(p unsafe.Pointer)
	DestroyMeter(p unsafe.Pointer)
}

type block struct {
	ptr   unsafe.Pointer
	kind  BlockKind
	count int
}

// Scope collects the native blocks obtained while serving one operation and
// frees all of them in Release. Create it, defer Release, then register each
// block as soon as the native call returns it:
//
//	scope := memory.NewScope(api)
//	defer scope.Release()
//	label := scope.TakeString(ptr)
//
// Release is idempotent. A Scope is not safe for concurrent use.
type Scope struct {
	releaser Releaser
	blocks   []block
	released bool
}

// NewScope creates a release scope bound to the given releaser
func NewScope(releaser Releaser) *Scope {
	return &Scope{
		releaser: releaser,
		blocks:   make([]block, 0, 4),
	}
}

func (s *Scope) add(p unsafe.Pointer, kind BlockKind, count int) {
	if p == nil {
		return
	}
	stats.acquired[kind].Add(1)

	b := block{ptr: p, kind: kind, count: count}
	if s.released {
		// Late registration after Release: free right away.
		s.free(b)
		return
	}
	s.blocks = append(s.blocks, b)
}

// AddString registers a native string block
func (s *Scope) AddString(p unsafe.Pointer) {
	s.add(p, StringBlock, 0)
}

// AddStrings registers a native string array of count entries. A negative
// count is treated as zero.
func (s *Scope) AddStrings(p unsafe.Pointer, count int) {
	if count < 0 {
		count = 0
	}
	s.add(p, StringArrayBlock, count)
}

// AddVector registers a native float vector
func (s *Scope) AddVector(p unsafe.Pointer) {
	s.add(p, VectorBlock, 0)
}

// AddMeter registers a native test meter record
func (s *Scope) AddMeter(p unsafe.Pointer) {
	s.add(p, MeterBlock, 0)
}

// TakeString registers p and returns a copy of its contents
func (s *Scope) TakeString(p unsafe.Pointer) string {
	s.AddString(p)
	return CopyString(p)
}

// TakeStrings registers the array and returns a copy of its count strings
func (s *Scope) TakeStrings(p unsafe.Pointer, count int) []string {
	s.AddStrings(p, count)
	return CopyStrings(p, count)
}

// TakeVector registers the vector and returns a copy of its n elements
func (s *Scope) TakeVector(p unsafe.Pointer, n int) []float32 {
	s.AddVector(p)
	return CopyFloats(p, n)
}

// Len returns the number of blocks still waiting for release
func (s *Scope) Len() int {
	return len(s.blocks)
}

// Release frees every registered block, most recent first. Calling it more
// than once is a no-op.
func (s *Scope) Release() {
	if s.released {
		return
	}
	s.released = true

	for i := len(s.blocks) - 1; i >= 0; i-- {
		s.free(s.blocks[i])
	}
	s.blocks = s.blocks[:0]
}

func (s *Scope) free(b block) {
	if s.releaser == nil {
		return
	}

	switch b.kind {
	case StringBlock:
		s.releaser.DestroyString(b.ptr)
	case StringArrayBlock:
		s.releaser.DestroyStrings(b.ptr, b.count)
	case VectorBlock:
		s.releaser.DestroyVector(b.ptr)
	case MeterBlock:
		s.releaser.DestroyMeter(b.ptr)
	}
	stats.released[b.kind].Add(1)
}

// Stats reports process-wide native block counters
type Stats struct {
	Acquired [numBlockKinds]int64
	Released [numBlockKinds]int64
}

// Outstanding returns blocks acquired but not yet released
func (s Stats) Outstanding() int64 {
	var n int64
	for i := range s.Acquired {
		n += s.Acquired[i] - s.Released[i]
	}
	return n
}

type counters struct {
	acquired [numBlockKinds]atomic.Int64
	released [numBlockKinds]atomic.Int64
}

var stats counters

// Snapshot returns the current block counters
func Snapshot() Stats {
	var s Stats
	for i := range s.Acquired {
		s.Acquired[i] = stats.acquired[i].Load()
		s.Released[i] = stats.released[i].Load()
	}
	return s
}
