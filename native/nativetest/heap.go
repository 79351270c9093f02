package nativetest

import (
	"sync"
	"unsafe"

	"github.com/tsawler/go-fasttext/memory"
	"github.com/tsawler/go-fasttext/memory/cmem"
	"github.com/tsawler/go-fasttext/wire"
)

// allocation is one block handed to the host. regions holds the block and
// every nested mapping it points to; all of them are unmapped on destroy.
type allocation struct {
	kind    memory.BlockKind
	regions []cmem.Block
}

// heap simulates native ownership: blocks live outside the Go heap and stay
// mapped until exactly one matching destroy call arrives
type heap struct {
	mu          sync.Mutex
	live        map[uintptr]*allocation
	doubleFrees int
	kindErrors  int
}

func newHeap() *heap {
	return &heap{live: make(map[uintptr]*allocation)}
}

// register hands out the first region as the block
func (h *heap) register(kind memory.BlockKind, regions ...cmem.Block) unsafe.Pointer {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live[regions[0].Addr()] = &allocation{kind: kind, regions: regions}
	return regions[0].Ptr()
}

func (h *heap) free(p unsafe.Pointer, kind memory.BlockKind) {
	if p == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.live[uintptr(p)]
	if !ok {
		h.doubleFrees++
		return
	}
	if a.kind != kind {
		h.kindErrors++
	}
	delete(h.live, uintptr(p))
	for _, r := range a.regions {
		cmem.Free(r)
	}
}

func (h *heap) outstanding() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

func (h *heap) allocString(s string) unsafe.Pointer {
	return h.register(memory.StringBlock, cmem.String(s))
}

func (h *heap) allocStrings(values []string) unsafe.Pointer {
	strs := make([]cmem.Block, len(values))
	addrs := make([]uintptr, len(values))
	for i, s := range values {
		strs[i] = cmem.String(s)
		addrs[i] = strs[i].Addr()
	}
	// a zero-length result still gets a block of its own
	return h.register(memory.StringArrayBlock, append([]cmem.Block{cmem.Addrs(addrs)}, strs...)...)
}

func (h *heap) allocVector(v []float32) unsafe.Pointer {
	return h.register(memory.VectorBlock, cmem.Floats(v))
}

// meterLabel is one per-label entry of a meter under construction
type meterLabel struct {
	index int32
	stats labelStats
}

// allocMeter lays out a wire.MeterRecord with its nested metrics records and
// score arrays, all owned by the single meter block
func (h *heap) allocMeter(examples int64, global labelStats, labels []meterLabel) unsafe.Pointer {
	var nested []cmem.Block
	keep := func(b cmem.Block) uintptr {
		nested = append(nested, b)
		return b.Addr()
	}

	metrics := func(label int32, s labelStats) uintptr {
		predicted := make([]float32, len(s.scores))
		gold := make([]float32, len(s.scores))
		for i, sg := range s.scores {
			predicted[i] = sg.score
			gold[i] = sg.gold
		}
		rec := wire.MetricsRecord{
			Gold:            s.gold,
			Predicted:       s.predicted,
			PredictedGold:   s.predictedGold,
			ScoresLen:       int32(len(s.scores)),
			Label:           label,
			PredictedScores: keep(cmem.Floats(predicted)),
			GoldScores:      keep(cmem.Floats(gold)),
		}
		return keep(cmem.Bytes(rec.Bytes()))
	}

	globalAddr := metrics(-1, global)
	addrs := make([]uintptr, len(labels))
	for i, l := range labels {
		addrs[i] = metrics(l.index, l.stats)
	}

	rec := wire.MeterRecord{
		Examples:     examples,
		Labels:       int64(len(labels)),
		SourceMeter:  keep(cmem.Alloc(1)),
		Metrics:      globalAddr,
		LabelMetrics: keep(cmem.Addrs(addrs)),
	}
	return h.register(memory.MeterBlock, append([]cmem.Block{cmem.Bytes(rec.Bytes())}, nested...)...)
}
