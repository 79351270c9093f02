// Package wire defines the byte-exact records exchanged with the native
// fastText engine.
//
// Every record is packed (no padding), little endian, with one-byte booleans
// and 8-byte pointers. Field order is the protocol: a field added, removed or
// resized on one side silently corrupts the fields after it on the other, so
// each record carries its size as a constant that tests pin against the C
// definitions.
package wire

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/tsawler/go-fasttext/memory"
)

// Record sizes in bytes
const (
	ArgsRecordSize      = 100
	PlainArgsPrefixSize = 81 // lr .. seed, shared by every argument variant
	AutotuneRecordSize  = 36
	MetricsRecordSize   = 48
	MeterRecordSize     = 40
	PointerSize         = 8
)

// ModelName selects the fastText model
type ModelName int32

const (
	ModelCBow       ModelName = 1
	ModelSkipGram   ModelName = 2
	ModelSupervised ModelName = 3
)

var modelNames = map[ModelName]string{
	ModelCBow:       "cbow",
	ModelSkipGram:   "skipgram",
	ModelSupervised: "supervised",
}

func (m ModelName) String() string {
	if s, ok := modelNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Unknown(%d)", int32(m))
}

// MarshalText implements encoding.TextMarshaler
func (m ModelName) MarshalText() ([]byte, error) {
	if _, ok := modelNames[m]; !ok {
		return nil, fmt.Errorf("unknown model name %d", int32(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText accepts the names used by the fastText command line
func (m *ModelName) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "cbow":
		*m = ModelCBow
	case "skipgram", "sg":
		*m = ModelSkipGram
	case "supervised", "sup":
		*m = ModelSupervised
	default:
		return fmt.Errorf("unknown model name %q", text)
	}
	return nil
}

// LossName selects the training loss
type LossName int32

const (
	LossHierarchicalSoftmax LossName = 1
	LossNegativeSampling    LossName = 2
	LossSoftmax             LossName = 3
	LossOneVsAll            LossName = 4
)

var lossNames = map[LossName]string{
	LossHierarchicalSoftmax: "hs",
	LossNegativeSampling:    "ns",
	LossSoftmax:             "softmax",
	LossOneVsAll:            "ova",
}

func (l LossName) String() string {
	if s, ok := lossNames[l]; ok {
		return s
	}
	return fmt.Sprintf("Unknown(%d)", int32(l))
}

// MarshalText implements encoding.TextMarshaler
func (l LossName) MarshalText() ([]byte, error) {
	if _, ok := lossNames[l]; !ok {
		return nil, fmt.Errorf("unknown loss name %d", int32(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText accepts the names used by the fastText command line
func (l *LossName) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "hs":
		*l = LossHierarchicalSoftmax
	case "ns":
		*l = LossNegativeSampling
	case "softmax":
		*l = LossSoftmax
	case "ova", "one-vs-all":
		*l = LossOneVsAll
	default:
		return fmt.Errorf("unknown loss name %q", text)
	}
	return nil
}

// ArgsRecord is the combined training/quantization hyperparameter record.
// The quantization fields (Qout onwards) follow the plain prefix and stay
// zero for ordinary training.
type ArgsRecord struct {
	LR            float64
	LRUpdateRate  int32
	Dim           int32
	WS            int32
	Epoch         int32
	MinCount      int32
	MinCountLabel int32
	Neg           int32
	WordNgrams    int32
	Loss          LossName
	Model         ModelName
	Bucket        int32
	Minn          int32
	Maxn          int32
	Thread        int32
	T             float64
	Verbose       int32
	SaveOutput    bool
	Seed          int32

	Qout    bool
	Retrain bool
	Qnorm   bool
	Cutoff  uint64
	Dsub    uint64
}

// Bytes encodes the record into its wire layout
func (a ArgsRecord) Bytes() []byte {
	w := newWriter(ArgsRecordSize)
	w.f64(a.LR)
	w.i32(a.LRUpdateRate)
	w.i32(a.Dim)
	w.i32(a.WS)
	w.i32(a.Epoch)
	w.i32(a.MinCount)
	w.i32(a.MinCountLabel)
	w.i32(a.Neg)
	w.i32(a.WordNgrams)
	w.i32(int32(a.Loss))
	w.i32(int32(a.Model))
	w.i32(a.Bucket)
	w.i32(a.Minn)
	w.i32(a.Maxn)
	w.i32(a.Thread)
	w.f64(a.T)
	w.i32(a.Verbose)
	w.boolean(a.SaveOutput)
	w.i32(a.Seed)
	w.boolean(a.Qout)
	w.boolean(a.Retrain)
	w.boolean(a.Qnorm)
	w.u64(a.Cutoff)
	w.u64(a.Dsub)
	return w.buf
}

// MarshalBinary implements encoding.BinaryMarshaler
func (a ArgsRecord) MarshalBinary() ([]byte, error) {
	return a.Bytes(), nil
}

// UnmarshalBinary decodes exactly ArgsRecordSize bytes
func (a *ArgsRecord) UnmarshalBinary(data []byte) error {
	r := newReader("args", data, ArgsRecordSize)
	var rec ArgsRecord
	rec.LR = r.f64()
	rec.LRUpdateRate = r.i32()
	rec.Dim = r.i32()
	rec.WS = r.i32()
	rec.Epoch = r.i32()
	rec.MinCount = r.i32()
	rec.MinCountLabel = r.i32()
	rec.Neg = r.i32()
	rec.WordNgrams = r.i32()
	rec.Loss = LossName(r.i32())
	rec.Model = ModelName(r.i32())
	rec.Bucket = r.i32()
	rec.Minn = r.i32()
	rec.Maxn = r.i32()
	rec.Thread = r.i32()
	rec.T = r.f64()
	rec.Verbose = r.i32()
	rec.SaveOutput = r.boolean("saveOutput")
	rec.Seed = r.i32()
	rec.Qout = r.boolean("qout")
	rec.Retrain = r.boolean("retrain")
	rec.Qnorm = r.boolean("qnorm")
	rec.Cutoff = r.u64()
	rec.Dsub = r.u64()
	if r.err != nil {
		return r.err
	}
	*a = rec
	return nil
}

// AutotuneParams is the host form of the autotune record: strings instead of
// native string pointers. An empty ValidationFile disables autotuning.
type AutotuneParams struct {
	ValidationFile string
	Metric         string
	Predictions    int32
	Duration       int32
	ModelSize      string
	Verbose        int32
}

// Enabled reports whether the native engine will run an autotune search
func (p AutotuneParams) Enabled() bool {
	return p.ValidationFile != ""
}

// Record lays the parameters out with string pointers produced by alloc.
// The caller owns whatever alloc allocates.
func (p AutotuneParams) Record(alloc func(string) uintptr) AutotuneRecord {
	return AutotuneRecord{
		ValidationFile: alloc(p.ValidationFile),
		Metric:         alloc(p.Metric),
		Predictions:    p.Predictions,
		Duration:       p.Duration,
		ModelSize:      alloc(p.ModelSize),
		Verbose:        p.Verbose,
	}
}

// AutotuneRecord is the wire form of the autotune parameters
type AutotuneRecord struct {
	ValidationFile uintptr
	Metric         uintptr
	Predictions    int32
	Duration       int32
	ModelSize      uintptr
	Verbose        int32
}

// Bytes encodes the record into its wire layout
func (a AutotuneRecord) Bytes() []byte {
	w := newWriter(AutotuneRecordSize)
	w.ptr(a.ValidationFile)
	w.ptr(a.Metric)
	w.i32(a.Predictions)
	w.i32(a.Duration)
	w.ptr(a.ModelSize)
	w.i32(a.Verbose)
	return w.buf
}

// MarshalBinary implements encoding.BinaryMarshaler
func (a AutotuneRecord) MarshalBinary() ([]byte, error) {
	return a.Bytes(), nil
}

// UnmarshalBinary decodes exactly AutotuneRecordSize bytes
func (a *AutotuneRecord) UnmarshalBinary(data []byte) error {
	r := newReader("autotune", data, AutotuneRecordSize)
	var rec AutotuneRecord
	rec.ValidationFile = r.ptr()
	rec.Metric = r.ptr()
	rec.Predictions = r.i32()
	rec.Duration = r.i32()
	rec.ModelSize = r.ptr()
	rec.Verbose = r.i32()
	if r.err != nil {
		return r.err
	}
	*a = rec
	return nil
}

// Params resolves the string pointers of the record
func (a AutotuneRecord) Params() AutotuneParams {
	return AutotuneParams{
		ValidationFile: memory.CopyString(addr(a.ValidationFile)),
		Metric:         memory.CopyString(addr(a.Metric)),
		Predictions:    a.Predictions,
		Duration:       a.Duration,
		ModelSize:      memory.CopyString(addr(a.ModelSize)),
		Verbose:        a.Verbose,
	}
}

// MetricsRecord is one per-label (or the global) metrics record of a test
// meter. Label indexes the model labels and is -1 for the global record.
type MetricsRecord struct {
	Gold            int64
	Predicted       int64
	PredictedGold   int64
	ScoresLen       int32
	Label           int32
	PredictedScores uintptr
	GoldScores      uintptr
}

// Bytes encodes the record into its wire layout
func (m MetricsRecord) Bytes() []byte {
	w := newWriter(MetricsRecordSize)
	w.i64(m.Gold)
	w.i64(m.Predicted)
	w.i64(m.PredictedGold)
	w.i32(m.ScoresLen)
	w.i32(m.Label)
	w.ptr(m.PredictedScores)
	w.ptr(m.GoldScores)
	return w.buf
}

// MarshalBinary implements encoding.BinaryMarshaler
func (m MetricsRecord) MarshalBinary() ([]byte, error) {
	return m.Bytes(), nil
}

// UnmarshalBinary decodes exactly MetricsRecordSize bytes
func (m *MetricsRecord) UnmarshalBinary(data []byte) error {
	r := newReader("metrics", data, MetricsRecordSize)
	var rec MetricsRecord
	rec.Gold = r.i64()
	rec.Predicted = r.i64()
	rec.PredictedGold = r.i64()
	rec.ScoresLen = r.i32()
	rec.Label = r.i32()
	rec.PredictedScores = r.ptr()
	rec.GoldScores = r.ptr()
	if r.err != nil {
		return r.err
	}
	if rec.ScoresLen < 0 {
		return fmt.Errorf("metrics record: negative scores length %d", rec.ScoresLen)
	}
	*m = rec
	return nil
}

// Scores copies the parallel predicted-score and gold arrays
func (m MetricsRecord) Scores() (predicted, gold []float32) {
	n := int(m.ScoresLen)
	return memory.CopyFloats(addr(m.PredictedScores), n), memory.CopyFloats(addr(m.GoldScores), n)
}

// MeterRecord is the aggregate test meter. LabelMetrics points at an array
// of Labels pointers to MetricsRecord. SourceMeter is native bookkeeping and
// is never dereferenced on the host.
type MeterRecord struct {
	Examples     int64
	Labels       int64
	SourceMeter  uintptr
	Metrics      uintptr
	LabelMetrics uintptr
}

// Bytes encodes the record into its wire layout
func (m MeterRecord) Bytes() []byte {
	w := newWriter(MeterRecordSize)
	w.i64(m.Examples)
	w.i64(m.Labels)
	w.ptr(m.SourceMeter)
	w.ptr(m.Metrics)
	w.ptr(m.LabelMetrics)
	return w.buf
}

// MarshalBinary implements encoding.BinaryMarshaler
func (m MeterRecord) MarshalBinary() ([]byte, error) {
	return m.Bytes(), nil
}

// UnmarshalBinary decodes exactly MeterRecordSize bytes
func (m *MeterRecord) UnmarshalBinary(data []byte) error {
	r := newReader("meter", data, MeterRecordSize)
	var rec MeterRecord
	rec.Examples = r.i64()
	rec.Labels = r.i64()
	rec.SourceMeter = r.ptr()
	rec.Metrics = r.ptr()
	rec.LabelMetrics = r.ptr()
	if r.err != nil {
		return r.err
	}
	if rec.Labels < 0 {
		return fmt.Errorf("meter record: negative label count %d", rec.Labels)
	}
	*m = rec
	return nil
}

// ReadMeter decodes the meter record at p
func ReadMeter(p unsafe.Pointer) (MeterRecord, error) {
	var rec MeterRecord
	if p == nil {
		return rec, fmt.Errorf("meter record: nil pointer")
	}
	err := rec.UnmarshalBinary(memory.CopyBytes(p, MeterRecordSize))
	return rec, err
}

// ReadMetrics decodes the metrics record at address a
func ReadMetrics(a uintptr) (MetricsRecord, error) {
	var rec MetricsRecord
	if a == 0 {
		return rec, fmt.Errorf("metrics record: nil pointer")
	}
	err := rec.UnmarshalBinary(memory.CopyBytes(addr(a), MetricsRecordSize))
	return rec, err
}

// LabelMetricsAddrs returns the addresses of the per-label metrics records
func (m MeterRecord) LabelMetricsAddrs() []uintptr {
	return memory.CopyPointers(addr(m.LabelMetrics), int(m.Labels))
}

// addr turns an address read from native memory back into a pointer. The
// memory it points at is owned by the native side and outside the Go heap,
// so the collector neither moves nor frees it; the address is reinterpreted
// rather than converted.
func addr(a uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&a))
}
