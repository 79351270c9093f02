package training

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-fasttext/wire"
)

func TestDefaultArgs(t *testing.T) {
	args := DefaultArgs()
	require.NoError(t, args.Validate())
	assert.Equal(t, wire.ModelSkipGram, args.Model)
	assert.Equal(t, wire.LossNegativeSampling, args.Loss)
	assert.Equal(t, DefaultLabelPrefix, args.LabelPrefix)

	sup := DefaultSupervisedArgs()
	require.NoError(t, sup.Validate())
	assert.Equal(t, wire.ModelSupervised, sup.Model)
	assert.Equal(t, wire.LossSoftmax, sup.Loss)
	assert.Equal(t, int32(1), sup.MinCount)
	assert.Zero(t, sup.Minn)
	assert.Zero(t, sup.Maxn)
	assert.Equal(t, 0.1, sup.LR)
	assert.False(t, sup.Autotune.Params().Enabled())

	q := DefaultQuantizedSupervisedArgs()
	require.NoError(t, q.Validate())
	assert.Equal(t, uint64(2), q.Quantize.Dsub)
}

func TestRecordCopiesEveryOption(t *testing.T) {
	args := DefaultArgs()
	args.Seed = 7
	args.SaveOutput = true

	rec := args.Record()
	assert.Equal(t, args.LR, rec.LR)
	assert.Equal(t, args.Bucket, rec.Bucket)
	assert.Equal(t, args.T, rec.T)
	assert.Equal(t, int32(7), rec.Seed)
	assert.True(t, rec.SaveOutput)
	assert.False(t, rec.Qout)
	assert.Zero(t, rec.Dsub)

	q := DefaultQuantizedSupervisedArgs()
	q.Quantize.Qnorm = true
	q.Quantize.Cutoff = 1000
	qrec := q.Record()
	assert.True(t, qrec.Qnorm)
	assert.Equal(t, uint64(1000), qrec.Cutoff)
	assert.Equal(t, uint64(2), qrec.Dsub)
	assert.Equal(t, wire.ModelSupervised, qrec.Model)
}

func TestArgsValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SupervisedArgs)
		field  string
	}{
		{"zero learning rate", func(a *SupervisedArgs) { a.LR = 0 }, "LR"},
		{"unknown loss", func(a *SupervisedArgs) { a.Loss = 9 }, "Loss"},
		{"unknown model", func(a *SupervisedArgs) { a.Model = 0 }, "Model"},
		{"maxn below minn", func(a *SupervisedArgs) { a.Minn, a.Maxn = 4, 2 }, "Maxn"},
		{"empty label prefix", func(a *SupervisedArgs) { a.LabelPrefix = "" }, "LabelPrefix"},
		{"no autotune metric", func(a *SupervisedArgs) { a.Autotune.Metric = "" }, "Metric"},
		{"zero autotune duration", func(a *SupervisedArgs) { a.Autotune.Duration = 0 }, "Duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := DefaultSupervisedArgs()
			tt.mutate(&args)

			err := args.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid training arguments")
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoadArgsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	config := `lr: 0.25
dim: 20
loss: ova
wordNgrams: 2
autotune:
  validationFile: valid.txt
  duration: 30
quantize:
  qnorm: true
`
	require.NoError(t, os.WriteFile(path, []byte(config), 0o644))

	args, err := LoadArgsFile(path, DefaultQuantizedSupervisedArgs())
	require.NoError(t, err)
	require.NoError(t, args.Validate())

	assert.Equal(t, 0.25, args.LR)
	assert.Equal(t, int32(20), args.Dim)
	assert.Equal(t, wire.LossOneVsAll, args.Loss)
	assert.Equal(t, int32(2), args.WordNgrams)
	assert.Equal(t, wire.ModelSupervised, args.Model)
	assert.Equal(t, "valid.txt", args.Autotune.ValidationFile)
	assert.Equal(t, int32(30), args.Autotune.Duration)
	assert.Equal(t, "f1", args.Autotune.Metric)
	assert.True(t, args.Quantize.Qnorm)
	assert.Equal(t, uint64(2), args.Quantize.Dsub)
}

func TestLoadArgsFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadArgsFile(filepath.Join(dir, "missing.yaml"), DefaultArgs())
	assert.ErrorContains(t, err, "failed to read args file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("loss: triangle\n"), 0o644))
	defaults := DefaultArgs()
	got, err := LoadArgsFile(bad, defaults)
	assert.ErrorContains(t, err, "failed to parse args file")
	assert.Equal(t, defaults.Loss, got.Loss)
}

// testdata/train_args.dump is a hand-written _train.txt for the arguments
// below. It uses the one-vs-all loss alias, which ParseArgsDump accepts.
func TestArgsDumpFixtureReproducesRecord(t *testing.T) {
	args := DefaultQuantizedSupervisedArgs()
	args.LR = 0.5
	args.Dim = 50
	args.Epoch = 25
	args.WordNgrams = 2
	args.Loss = wire.LossOneVsAll
	args.Bucket = 200000
	args.Thread = 4
	args.SaveOutput = true
	args.Seed = 42
	args.Quantize = QuantizeArgs{Retrain: true, Qnorm: true, Cutoff: 100000, Dsub: 4}
	args.Autotune.ValidationFile = "cooking.valid"
	args.Autotune.Metric = "f1:__label__baking"
	args.Autotune.Predictions = 2
	args.Autotune.Duration = 600
	args.Autotune.ModelSize = "2M"
	args.Autotune.Verbose = 3
	require.NoError(t, args.Validate())

	f, err := os.Open(filepath.Join("testdata", "train_args.dump"))
	require.NoError(t, err)
	defer f.Close()

	rec, params, err := wire.ParseArgsDump(f)
	require.NoError(t, err)
	assert.Equal(t, args.Record(), rec)
	assert.Equal(t, args.Autotune.Params(), params)

	want, err := args.Record().MarshalBinary()
	require.NoError(t, err)
	got, err := rec.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, got, wire.ArgsRecordSize)
	assert.Equal(t, want, got)

	var decoded wire.ArgsRecord
	require.NoError(t, decoded.UnmarshalBinary(got))
	assert.Equal(t, rec, decoded)
}
