package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tsawler/go-fasttext/checkpoints"
	"github.com/tsawler/go-fasttext/training"
)

type testOptions struct {
	k           int
	threshold   float32
	debug       bool
	perLabel    bool
	jobs        int
	reportDir   string
	format      string
	plot        string
	plotURL     string
	atRecall    float64
	atPrecision float64
}

func (a *app) testCommand() *cobra.Command {
	var opts testOptions
	cmd := &cobra.Command{
		Use:   "test <model> <test-file>...",
		Short: "Evaluate a supervised model on one or more labeled files",
		Long: `Evaluate a supervised model on one or more labeled files. Every file is
tested on its own handle; up to --jobs files run at once.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			return a.runTest(cmd, argv[0], argv[1:], opts)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.k, "k", 1, "number of labels predicted per line")
	f.Float32Var(&opts.threshold, "threshold", 0, "minimal probability of a predicted label")
	f.BoolVar(&opts.debug, "debug", false, "have the native engine write its _debug.txt dump")
	f.BoolVar(&opts.perLabel, "per-label", false, "print precision, recall and F1 for every label")
	f.IntVar(&opts.jobs, "jobs", 4, "test files evaluated concurrently")
	f.StringVar(&opts.reportDir, "report-dir", "", "write one report per test file into this directory")
	f.StringVar(&opts.format, "format", "json", "report format {json, proto}")
	f.StringVar(&opts.plot, "plot", "", "write the precision-recall curves as plot JSON to this file")
	f.StringVar(&opts.plotURL, "plot-url", "", "send the precision-recall curves to the plotting sidecar at this URL")
	f.Float64Var(&opts.atRecall, "precision-at-recall", -1, "print the best precision reached at this recall")
	f.Float64Var(&opts.atPrecision, "recall-at-precision", -1, "print the best recall reached at this precision")
	return cmd
}

func (a *app) runTest(cmd *cobra.Command, model string, files []string, opts testOptions) error {
	var saver *checkpoints.CheckpointSaver
	if opts.reportDir != "" {
		format, err := checkpoints.ParseFormat(opts.format)
		if err != nil {
			return err
		}
		saver = checkpoints.NewCheckpointSaver(format)
	}

	results := make([]*training.TestResult, len(files))
	g, ctx := errgroup.WithContext(cmd.Context())
	// the debug dump has a fixed file name
	if opts.debug {
		g.SetLimit(1)
	} else {
		g.SetLimit(max(opts.jobs, 1))
	}

	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := a.testFile(model, file, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	viz := training.NewVisualizationCollector(filepath.Base(model))
	for i, file := range files {
		res := results[i]
		if len(files) > 1 {
			fmt.Fprintf(out, "Test file: %s\n", file)
		}
		if err := printResult(out, res, opts); err != nil {
			return err
		}

		if saver != nil {
			if err := a.saveReport(saver, model, file, res, opts); err != nil {
				return err
			}
		}
		if opts.plot != "" || opts.plotURL != "" {
			curve, err := res.PrecisionRecallCurve(training.AllLabels)
			if err != nil {
				return err
			}
			viz.RecordPRCurve(filepath.Base(file), curve)
		}
	}

	if opts.plot != "" {
		if err := writePlot(opts.plot, viz.GeneratePrecisionRecallPlot()); err != nil {
			return err
		}
	}
	if opts.plotURL != "" {
		return sendPlots(cmd.Context(), opts.plotURL, viz)
	}
	return nil
}

func (a *app) testFile(model, file string, opts testOptions) (*training.TestResult, error) {
	ft, err := a.load(model)
	if err != nil {
		return nil, err
	}
	defer ft.Close()

	test := ft.Test
	if opts.debug {
		test = ft.TestDebug
	}
	return test(file, opts.k, opts.threshold)
}

func printResult(out io.Writer, res *training.TestResult, opts testOptions) error {
	g := res.GlobalMetrics
	fmt.Fprintf(out, "N\t%d\n", res.Examples)
	fmt.Fprintf(out, "P@%d\t%.3f\n", opts.k, g.Precision())
	fmt.Fprintf(out, "R@%d\t%.3f\n", opts.k, g.Recall())

	if opts.perLabel {
		for _, s := range res.LabelStats() {
			fmt.Fprintf(out, "F1-Score : %f  Precision : %f  Recall : %f   %s\n", s.F1, s.Precision, s.Recall, s.Label)
		}
	}

	if opts.atRecall < 0 && opts.atPrecision < 0 {
		return nil
	}
	curve, err := res.PrecisionRecallCurve(training.AllLabels)
	if err != nil {
		return err
	}
	if opts.atRecall >= 0 {
		fmt.Fprintf(out, "P@R%g\t%.3f\n", opts.atRecall, training.PrecisionAtRecall(curve, opts.atRecall))
	}
	if opts.atPrecision >= 0 {
		fmt.Fprintf(out, "R@P%g\t%.3f\n", opts.atPrecision, training.RecallAtPrecision(curve, opts.atPrecision))
	}
	return nil
}

func (a *app) saveReport(saver *checkpoints.CheckpointSaver, model, file string, res *training.TestResult, opts testOptions) error {
	report, err := checkpoints.NewReport(res, checkpoints.CheckpointMetadata{
		ModelPath: model,
		TestFile:  file,
		K:         int32(opts.k),
		Threshold: opts.threshold,
	})
	if err != nil {
		return err
	}

	ext := ".json"
	if opts.format != "json" {
		ext = ".pb"
	}
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file)) + ext
	path := filepath.Join(opts.reportDir, name)

	if err := saver.SaveReport(report, path); err != nil {
		return err
	}
	a.log.Info("saved test report",
		zap.String("path", path),
		zap.String("format", opts.format),
		zap.String("run_id", report.Metadata.RunID))
	return nil
}
