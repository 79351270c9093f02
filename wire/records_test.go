package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-fasttext/memory/cmem"
)

func sampleArgs() ArgsRecord {
	return ArgsRecord{
		LR:            0.1,
		LRUpdateRate:  100,
		Dim:           300,
		WS:            5,
		Epoch:         25,
		MinCount:      1,
		MinCountLabel: 2,
		Neg:           5,
		WordNgrams:    2,
		Loss:          LossOneVsAll,
		Model:         ModelSupervised,
		Bucket:        2000000,
		Minn:          3,
		Maxn:          6,
		Thread:        4,
		T:             1e-4,
		Verbose:       2,
		SaveOutput:    true,
		Seed:          42,
		Qout:          true,
		Retrain:       false,
		Qnorm:         true,
		Cutoff:        100000,
		Dsub:          2,
	}
}

func TestRecordSizes(t *testing.T) {
	tests := []struct {
		name string
		got  int
		want int
	}{
		{"args", len(ArgsRecord{}.Bytes()), ArgsRecordSize},
		{"autotune", len(AutotuneRecord{}.Bytes()), AutotuneRecordSize},
		{"metrics", len(MetricsRecord{}.Bytes()), MetricsRecordSize},
		{"meter", len(MeterRecord{}.Bytes()), MeterRecordSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestArgsRecordRoundTrip(t *testing.T) {
	rec := sampleArgs()
	data, err := rec.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, ArgsRecordSize)

	var decoded ArgsRecord
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, rec, decoded)
}

func TestArgsRecordLayout(t *testing.T) {
	data := sampleArgs().Bytes()

	assert.Equal(t, 0.1, math.Float64frombits(binary.LittleEndian.Uint64(data[0:8])))
	assert.Equal(t, uint32(300), binary.LittleEndian.Uint32(data[12:16]))
	assert.Equal(t, uint32(LossOneVsAll), binary.LittleEndian.Uint32(data[40:44]))
	assert.Equal(t, uint32(ModelSupervised), binary.LittleEndian.Uint32(data[44:48]))
	assert.Equal(t, 1e-4, math.Float64frombits(binary.LittleEndian.Uint64(data[64:72])))

	// saveOutput is one byte, seed follows immediately
	assert.Equal(t, byte(1), data[76])
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(data[77:81]))

	// quantization fields start after the plain prefix
	assert.Equal(t, []byte{1, 0, 1}, data[PlainArgsPrefixSize:PlainArgsPrefixSize+3])
	assert.Equal(t, uint64(100000), binary.LittleEndian.Uint64(data[84:92]))
	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(data[92:100]))
}

func TestPlainArgsPrefixIsShared(t *testing.T) {
	plain := sampleArgs()
	plain.Qout, plain.Retrain, plain.Qnorm, plain.Cutoff, plain.Dsub = false, false, false, 0, 0

	assert.Equal(t, plain.Bytes()[:PlainArgsPrefixSize], sampleArgs().Bytes()[:PlainArgsPrefixSize])
}

func TestArgsRecordRejectsWrongSize(t *testing.T) {
	var rec ArgsRecord
	err := rec.UnmarshalBinary(make([]byte, ArgsRecordSize-1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 100 bytes, got 99")
}

func TestArgsRecordRejectsInvalidBoolean(t *testing.T) {
	data := sampleArgs().Bytes()
	data[76] = 7

	var rec ArgsRecord
	err := rec.UnmarshalBinary(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saveOutput")
	assert.Equal(t, ArgsRecord{}, rec)
}

func TestAutotuneRecordRoundTrip(t *testing.T) {
	rec := AutotuneRecord{
		ValidationFile: 0x1000,
		Metric:         0x2000,
		Predictions:    3,
		Duration:       60,
		ModelSize:      0x3000,
		Verbose:        1,
	}

	var decoded AutotuneRecord
	require.NoError(t, decoded.UnmarshalBinary(rec.Bytes()))
	assert.Equal(t, rec, decoded)
}

// offHeap keeps b mapped for the duration of the test
func offHeap(t *testing.T, b cmem.Block) cmem.Block {
	t.Helper()
	t.Cleanup(func() { cmem.Free(b) })
	return b
}

func TestAutotuneParamsRecord(t *testing.T) {
	alloc := func(s string) uintptr {
		if s == "" {
			return 0
		}
		return offHeap(t, cmem.String(s)).Addr()
	}

	params := AutotuneParams{
		ValidationFile: "cooking.valid.txt",
		Metric:         "f1:__label__baking",
		Predictions:    2,
		Duration:       120,
		ModelSize:      "2M",
		Verbose:        3,
	}
	assert.True(t, params.Enabled())
	assert.False(t, AutotuneParams{}.Enabled())

	rec := params.Record(alloc)
	assert.Equal(t, params, rec.Params())
}

func TestMetricsRecordScores(t *testing.T) {
	predicted := []float32{0.9, 0.8, -1}
	gold := []float32{1, 0, 1}

	rec := MetricsRecord{
		Gold:            2,
		Predicted:       2,
		PredictedGold:   1,
		ScoresLen:       3,
		Label:           -1,
		PredictedScores: offHeap(t, cmem.Floats(predicted)).Addr(),
		GoldScores:      offHeap(t, cmem.Floats(gold)).Addr(),
	}

	decoded, err := ReadMetrics(offHeap(t, cmem.Bytes(rec.Bytes())).Addr())
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)

	p, g := decoded.Scores()
	assert.Equal(t, predicted, p)
	assert.Equal(t, gold, g)
}

func TestMetricsRecordRejectsNegativeLength(t *testing.T) {
	data := MetricsRecord{ScoresLen: -1}.Bytes()
	var rec MetricsRecord
	assert.Error(t, rec.UnmarshalBinary(data))
}

func TestReadMeter(t *testing.T) {
	first := offHeap(t, cmem.Bytes(MetricsRecord{Gold: 3, Label: 0}.Bytes()))
	second := offHeap(t, cmem.Bytes(MetricsRecord{Gold: 1, Label: 1}.Bytes()))
	global := offHeap(t, cmem.Bytes(MetricsRecord{Gold: 4, Label: -1}.Bytes()))
	labels := offHeap(t, cmem.Addrs([]uintptr{first.Addr(), second.Addr()}))

	meter := offHeap(t, cmem.Bytes(MeterRecord{
		Examples:     4,
		Labels:       2,
		Metrics:      global.Addr(),
		LabelMetrics: labels.Addr(),
	}.Bytes()))

	rec, err := ReadMeter(meter.Ptr())
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.Examples)
	assert.Equal(t, int64(2), rec.Labels)

	g, err := ReadMetrics(rec.Metrics)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), g.Label)
	assert.Equal(t, int64(4), g.Gold)

	addrs := rec.LabelMetricsAddrs()
	require.Len(t, addrs, 2)
	m, err := ReadMetrics(addrs[1])
	require.NoError(t, err)
	assert.Equal(t, int32(1), m.Label)
}

func TestReadNilRecords(t *testing.T) {
	_, err := ReadMeter(nil)
	assert.Error(t, err)
	_, err = ReadMetrics(0)
	assert.Error(t, err)
}

func TestEnumText(t *testing.T) {
	var m ModelName
	require.NoError(t, m.UnmarshalText([]byte("sup")))
	assert.Equal(t, ModelSupervised, m)
	text, err := ModelSkipGram.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "skipgram", string(text))
	assert.Error(t, m.UnmarshalText([]byte("transformer")))
	assert.Equal(t, "Unknown(9)", ModelName(9).String())

	var l LossName
	require.NoError(t, l.UnmarshalText([]byte("OVA")))
	assert.Equal(t, LossOneVsAll, l)
	_, err = LossName(0).MarshalText()
	assert.Error(t, err)
}

func TestArgsDumpRoundTrip(t *testing.T) {
	rec := sampleArgs()
	params := AutotuneParams{
		ValidationFile: "cooking.valid.txt",
		Metric:         "f1",
		Predictions:    1,
		Duration:       300,
		Verbose:        2,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteArgsDump(&buf, rec, params))
	assert.Contains(t, buf.String(), "loss ova\n")
	assert.Contains(t, buf.String(), "autotuneModelSize \n")

	gotRec, gotParams, err := ParseArgsDump(&buf)
	require.NoError(t, err)
	assert.Equal(t, rec, gotRec)
	assert.Equal(t, params, gotParams)
}

func TestParseArgsDumpErrors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteArgsDump(&buf, sampleArgs(), AutotuneParams{}))
	full := buf.String()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"out of order", "dim 100\n", "expected field lr, got dim"},
		{"truncated", "lr 0.1\nlrUpdateRate 100\n", "missing field dim"},
		{"bad float", "lr fast\n" + full[len("lr 0.1\n"):], "invalid lr value"},
		{"trailing", full + "extra 1\n", "unexpected trailing field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseArgsDump(bytes.NewBufferString(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
