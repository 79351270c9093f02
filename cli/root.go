// Package cli implements the fasttext-util command line. Commands run
// against any native.API so they can be exercised without libfasttext.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tsawler/go-fasttext/engine"
	"github.com/tsawler/go-fasttext/native"
)

// APIFactory creates the native function table used by every command
type APIFactory func(log *zap.Logger) native.API

type app struct {
	newAPI  APIFactory
	verbose bool

	log *zap.Logger
	api native.API
}

// NewRootCommand builds the fasttext-util command tree
func NewRootCommand(newAPI APIFactory) *cobra.Command {
	a := &app{newAPI: newAPI, log: zap.NewNop()}

	root := &cobra.Command{
		Use:           "fasttext-util",
		Short:         "Train, quantize, evaluate and query fastText models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log native calls and training details")

	root.AddCommand(
		a.supervisedCommand(),
		a.unsupervisedCommand(),
		a.quantizeCommand(),
		a.testCommand(),
		a.predictCommand(),
		a.nnCommand(),
		a.vectorCommand(),
		a.labelsCommand(),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure
func Execute(newAPI APIFactory) {
	if err := NewRootCommand(newAPI).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) setup() error {
	var (
		log *zap.Logger
		err error
	)
	if a.verbose {
		log, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		log, err = cfg.Build()
	}
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	a.log = log
	engine.SetLogger(log)
	a.api = a.newAPI(log)
	return nil
}

// open creates a handle with no model
func (a *app) open(opts ...engine.Option) (*engine.FastText, error) {
	return engine.New(a.api, append([]engine.Option{engine.WithLogger(a.log)}, opts...)...)
}

// load creates a handle and loads the model at path into it
func (a *app) load(path string) (*engine.FastText, error) {
	ft, err := a.open()
	if err != nil {
		return nil, err
	}
	if err := ft.LoadModel(path); err != nil {
		ft.Close()
		return nil, err
	}
	return ft, nil
}
