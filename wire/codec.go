package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// writer appends packed little-endian fields to a fixed-size buffer
type writer struct {
	buf []byte
}

func newWriter(size int) *writer {
	return &writer{buf: make([]byte, 0, size)}
}

func (w *writer) f64(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *writer) i32(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

func (w *writer) i64(v int64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v))
}

func (w *writer) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *writer) ptr(v uintptr) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v))
}

// boolean is a single byte, never a machine word
func (w *writer) boolean(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// reader consumes packed fields; the first failure sticks in err
type reader struct {
	buf    []byte
	off    int
	record string
	err    error
}

func newReader(record string, data []byte, size int) *reader {
	r := &reader{buf: data, record: record}
	if len(data) != size {
		r.err = fmt.Errorf("%s record: expected %d bytes, got %d", record, size, len(data))
	}
	return r
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) f64() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(r.next(8)))
}

func (r *reader) i32() int32 {
	return int32(binary.LittleEndian.Uint32(r.next(4)))
}

func (r *reader) i64() int64 {
	return int64(binary.LittleEndian.Uint64(r.next(8)))
}

func (r *reader) u64() uint64 {
	return binary.LittleEndian.Uint64(r.next(8))
}

func (r *reader) ptr() uintptr {
	return uintptr(binary.LittleEndian.Uint64(r.next(8)))
}

func (r *reader) boolean(field string) bool {
	b := r.next(1)[0]
	if b > 1 && r.err == nil {
		r.err = fmt.Errorf("%s record: field %s has invalid boolean byte 0x%02x at offset %d", r.record, field, b, r.off-1)
	}
	return b == 1
}
