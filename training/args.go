package training

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tsawler/go-fasttext/native"
	"github.com/tsawler/go-fasttext/wire"
)

// DefaultLabelPrefix marks label tokens in training and test files
const DefaultLabelPrefix = "__label__"

var validate = validator.New()

// Args holds the hyperparameters shared by every training mode.
// Defaults mirror the fastText command line for unsupervised training.
type Args struct {
	LR            float64        `yaml:"lr" validate:"gt=0"`
	LRUpdateRate  int32          `yaml:"lrUpdateRate" validate:"gt=0"`
	Dim           int32          `yaml:"dim" validate:"gt=0"`
	WS            int32          `yaml:"ws" validate:"gt=0"`
	Epoch         int32          `yaml:"epoch" validate:"gt=0"`
	MinCount      int32          `yaml:"minCount" validate:"gte=0"`
	MinCountLabel int32          `yaml:"minCountLabel" validate:"gte=0"`
	Neg           int32          `yaml:"neg" validate:"gte=0"`
	WordNgrams    int32          `yaml:"wordNgrams" validate:"gt=0"`
	Loss          wire.LossName  `yaml:"loss" validate:"oneof=1 2 3 4"`
	Model         wire.ModelName `yaml:"model" validate:"oneof=1 2 3"`
	Bucket        int32          `yaml:"bucket" validate:"gte=0"`
	Minn          int32          `yaml:"minn" validate:"gte=0"`
	Maxn          int32          `yaml:"maxn" validate:"gte=0,gtefield=Minn"`
	Thread        int32          `yaml:"thread" validate:"gt=0"`
	T             float64        `yaml:"t" validate:"gt=0"`
	Verbose       int32          `yaml:"verbose" validate:"gte=0"`
	SaveOutput    bool           `yaml:"saveOutput"`
	Seed          int32          `yaml:"seed"`

	LabelPrefix       string `yaml:"labelPrefix" validate:"required"`
	PretrainedVectors string `yaml:"pretrainedVectors"`

	// TrainProgress is called during training; nil disables it
	TrainProgress native.TrainProgressFunc `yaml:"-"`
}

// DefaultArgs returns skipgram defaults
func DefaultArgs() Args {
	return Args{
		LR:            0.05,
		LRUpdateRate:  100,
		Dim:           100,
		WS:            5,
		Epoch:         5,
		MinCount:      5,
		MinCountLabel: 0,
		Neg:           5,
		WordNgrams:    1,
		Loss:          wire.LossNegativeSampling,
		Model:         wire.ModelSkipGram,
		Bucket:        2000000,
		Minn:          3,
		Maxn:          6,
		Thread:        12,
		T:             1e-4,
		Verbose:       2,
		LabelPrefix:   DefaultLabelPrefix,
	}
}

// Record copies every option into the wire record. Fields that do not
// apply to the model kind pass through unchanged.
func (a Args) Record() wire.ArgsRecord {
	return wire.ArgsRecord{
		LR:            a.LR,
		LRUpdateRate:  a.LRUpdateRate,
		Dim:           a.Dim,
		WS:            a.WS,
		Epoch:         a.Epoch,
		MinCount:      a.MinCount,
		MinCountLabel: a.MinCountLabel,
		Neg:           a.Neg,
		WordNgrams:    a.WordNgrams,
		Loss:          a.Loss,
		Model:         a.Model,
		Bucket:        a.Bucket,
		Minn:          a.Minn,
		Maxn:          a.Maxn,
		Thread:        a.Thread,
		T:             a.T,
		Verbose:       a.Verbose,
		SaveOutput:    a.SaveOutput,
		Seed:          a.Seed,
	}
}

// Validate checks value ranges
func (a Args) Validate() error {
	return validateStruct(a)
}

// AutotuneArgs configures the native hyperparameter search. It is disabled
// unless ValidationFile is set.
type AutotuneArgs struct {
	ValidationFile string `yaml:"validationFile"`
	Metric         string `yaml:"metric" validate:"required"`
	Predictions    int32  `yaml:"predictions" validate:"gt=0"`
	Duration       int32  `yaml:"duration" validate:"gt=0"`
	ModelSize      string `yaml:"modelSize"`
	Verbose        int32  `yaml:"verbose" validate:"gte=0"`

	// Progress is called during the search; nil disables it
	Progress native.AutotuneProgressFunc `yaml:"-"`
}

// DefaultAutotuneArgs returns the fastText autotune defaults
func DefaultAutotuneArgs() AutotuneArgs {
	return AutotuneArgs{
		Metric:      "f1",
		Predictions: 1,
		Duration:    60 * 5,
		Verbose:     2,
	}
}

// Params returns the wire form of the autotune settings
func (a AutotuneArgs) Params() wire.AutotuneParams {
	return wire.AutotuneParams{
		ValidationFile: a.ValidationFile,
		Metric:         a.Metric,
		Predictions:    a.Predictions,
		Duration:       a.Duration,
		ModelSize:      a.ModelSize,
		Verbose:        a.Verbose,
	}
}

// SupervisedArgs holds the options for supervised training
type SupervisedArgs struct {
	Args     `yaml:",inline"`
	Autotune AutotuneArgs `yaml:"autotune"`
}

// DefaultSupervisedArgs returns supervised defaults
func DefaultSupervisedArgs() SupervisedArgs {
	args := DefaultArgs()
	args.Model = wire.ModelSupervised
	args.Loss = wire.LossSoftmax
	args.MinCount = 1
	args.Minn = 0
	args.Maxn = 0
	args.LR = 0.1

	return SupervisedArgs{
		Args:     args,
		Autotune: DefaultAutotuneArgs(),
	}
}

// Validate checks value ranges
func (a SupervisedArgs) Validate() error {
	return validateStruct(a)
}

// QuantizeArgs holds the product quantization options
type QuantizeArgs struct {
	Qout    bool   `yaml:"qout"`
	Retrain bool   `yaml:"retrain"`
	Qnorm   bool   `yaml:"qnorm"`
	Cutoff  uint64 `yaml:"cutoff"`
	Dsub    uint64 `yaml:"dsub" validate:"gt=0"`
}

// QuantizedSupervisedArgs holds supervised options plus quantization
type QuantizedSupervisedArgs struct {
	SupervisedArgs `yaml:",inline"`
	Quantize       QuantizeArgs `yaml:"quantize"`
}

// DefaultQuantizedSupervisedArgs returns supervised defaults with dsub 2
func DefaultQuantizedSupervisedArgs() QuantizedSupervisedArgs {
	return QuantizedSupervisedArgs{
		SupervisedArgs: DefaultSupervisedArgs(),
		Quantize:       QuantizeArgs{Dsub: 2},
	}
}

// Record adds the quantization fields to the plain record
func (a QuantizedSupervisedArgs) Record() wire.ArgsRecord {
	rec := a.Args.Record()
	rec.Qout = a.Quantize.Qout
	rec.Retrain = a.Quantize.Retrain
	rec.Qnorm = a.Quantize.Qnorm
	rec.Cutoff = a.Quantize.Cutoff
	rec.Dsub = a.Quantize.Dsub
	return rec
}

// Validate checks value ranges
func (a QuantizedSupervisedArgs) Validate() error {
	return validateStruct(a)
}

func validateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid training arguments: %w", err)
	}
	return nil
}

// LoadArgsFile overlays a YAML file on defaults. Keys missing from the
// file keep their default values.
func LoadArgsFile[T any](path string, defaults T) (T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return defaults, fmt.Errorf("failed to read args file: %w", err)
	}

	args := defaults
	if err := yaml.Unmarshal(data, &args); err != nil {
		return defaults, fmt.Errorf("failed to parse args file %s: %w", path, err)
	}
	return args, nil
}
