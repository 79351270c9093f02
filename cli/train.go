package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tsawler/go-fasttext/engine"
	"github.com/tsawler/go-fasttext/training"
	"github.com/tsawler/go-fasttext/wire"
)

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// addArgFlags registers the hyperparameter flags shared by every training
// command, showing d as the defaults
func addArgFlags(cmd *cobra.Command, d training.Args) {
	f := cmd.Flags()
	f.String("config", "", "YAML file with training arguments; flags override it")
	f.Float64("lr", d.LR, "learning rate")
	f.Int32("lrUpdateRate", d.LRUpdateRate, "change the rate of updates for the learning rate")
	f.Int32("dim", d.Dim, "size of word vectors")
	f.Int32("ws", d.WS, "size of the context window")
	f.Int32("epoch", d.Epoch, "number of epochs")
	f.Int32("minCount", d.MinCount, "minimal number of word occurrences")
	f.Int32("minCountLabel", d.MinCountLabel, "minimal number of label occurrences")
	f.Int32("neg", d.Neg, "number of negatives sampled")
	f.Int32("wordNgrams", d.WordNgrams, "max length of word ngram")
	f.String("loss", d.Loss.String(), "loss function {ns, hs, softmax, ova}")
	f.Int32("bucket", d.Bucket, "number of buckets")
	f.Int32("minn", d.Minn, "min length of char ngram")
	f.Int32("maxn", d.Maxn, "max length of char ngram")
	f.Int32("thread", d.Thread, "number of threads")
	f.Float64("t", d.T, "sampling threshold")
	f.Int32("seed", d.Seed, "random generator seed")
	f.Bool("saveOutput", d.SaveOutput, "whether output params should be saved")
	f.String("label", d.LabelPrefix, "labels prefix")
	f.String("pretrainedVectors", d.PretrainedVectors, "pretrained word vectors for supervised learning")

	f.Bool("progress", stderrIsTerminal(), "draw a progress bar on stderr (default when stderr is a terminal)")
	f.Bool("debug", false, "write the native arguments dump")
	f.String("plot", "", "write training curves as plot JSON to this file")
	f.String("plot-url", "", "send training curves to the plotting sidecar at this URL")
}

// applyArgFlags copies explicitly set flags into args
func applyArgFlags(cmd *cobra.Command, args *training.Args) error {
	f := cmd.Flags()

	ints := map[string]*int32{
		"lrUpdateRate":  &args.LRUpdateRate,
		"dim":           &args.Dim,
		"ws":            &args.WS,
		"epoch":         &args.Epoch,
		"minCount":      &args.MinCount,
		"minCountLabel": &args.MinCountLabel,
		"neg":           &args.Neg,
		"wordNgrams":    &args.WordNgrams,
		"bucket":        &args.Bucket,
		"minn":          &args.Minn,
		"maxn":          &args.Maxn,
		"thread":        &args.Thread,
		"seed":          &args.Seed,
	}
	for name, dst := range ints {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetInt32(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	floats := map[string]*float64{"lr": &args.LR, "t": &args.T}
	for name, dst := range floats {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetFloat64(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	strs := map[string]*string{"label": &args.LabelPrefix, "pretrainedVectors": &args.PretrainedVectors}
	for name, dst := range strs {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if f.Changed("saveOutput") {
		v, err := f.GetBool("saveOutput")
		if err != nil {
			return err
		}
		args.SaveOutput = v
	}
	if f.Changed("loss") {
		v, err := f.GetString("loss")
		if err != nil {
			return err
		}
		if err := args.Loss.UnmarshalText([]byte(v)); err != nil {
			return err
		}
	}
	return nil
}

func addAutotuneFlags(cmd *cobra.Command, d training.AutotuneArgs) {
	f := cmd.Flags()
	f.String("autotune-validation", d.ValidationFile, "validation file to enable hyperparameter search")
	f.String("autotune-metric", d.Metric, "metric objective {f1, f1:labelname}")
	f.Int32("autotune-predictions", d.Predictions, "number of predictions used for evaluation")
	f.Int32("autotune-duration", d.Duration, "maximum duration in seconds")
	f.String("autotune-modelsize", d.ModelSize, "constraint model file size, e.g. 2M; empty means no quantization")
}

func applyAutotuneFlags(cmd *cobra.Command, args *training.AutotuneArgs) error {
	f := cmd.Flags()
	var err error
	if f.Changed("autotune-validation") {
		args.ValidationFile, err = f.GetString("autotune-validation")
	}
	if err == nil && f.Changed("autotune-metric") {
		args.Metric, err = f.GetString("autotune-metric")
	}
	if err == nil && f.Changed("autotune-predictions") {
		args.Predictions, err = f.GetInt32("autotune-predictions")
	}
	if err == nil && f.Changed("autotune-duration") {
		args.Duration, err = f.GetInt32("autotune-duration")
	}
	if err == nil && f.Changed("autotune-modelsize") {
		args.ModelSize, err = f.GetString("autotune-modelsize")
	}
	return err
}

// loadArgs reads --config over defaults
func loadArgs[T any](cmd *cobra.Command, defaults T) (T, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil || path == "" {
		return defaults, err
	}
	return training.LoadArgsFile(path, defaults)
}

// trainRun holds the per-run extras of a training command
type trainRun struct {
	train    *training.ProgressBar
	autotune *training.ProgressBar
	viz      *training.VisualizationCollector
	plotPath string
	plotURL  string
	opts     []engine.Option
}

func (a *app) newTrainRun(cmd *cobra.Command, name string) (*trainRun, error) {
	f := cmd.Flags()
	run := &trainRun{}

	progress, err := f.GetBool("progress")
	if err != nil {
		return nil, err
	}
	if progress {
		run.train = training.NewProgressBar("Training", 100)
		run.train.SetUnit("%")
		run.train.SetOutput(cmd.ErrOrStderr())
		run.autotune = training.NewProgressBar("Autotune", 100)
		run.autotune.SetUnit("%")
		run.autotune.SetOutput(cmd.ErrOrStderr())
	}

	if debug, _ := f.GetBool("debug"); debug {
		run.opts = append(run.opts, engine.WithDebug())
	}
	run.plotPath, _ = f.GetString("plot")
	run.plotURL, _ = f.GetString("plot-url")
	if run.plotPath != "" || run.plotURL != "" {
		run.viz = training.NewVisualizationCollector(name)
	}
	return run, nil
}

func (r *trainRun) trainProgress() func(progress, loss float32, wst, lr float64, eta int64) {
	var next func(progress, loss float32, wst, lr float64, eta int64)
	if r.train != nil {
		next = training.TrainProgress(r.train)
	}
	if r.viz != nil {
		return r.viz.TrainProgress(next)
	}
	return next
}

// finish closes the progress bars, writes the plot and sends it to the
// plotting sidecar
func (r *trainRun) finish(ctx context.Context) error {
	if r.train != nil {
		r.train.Finish()
	}
	if r.plotPath != "" {
		if err := writePlot(r.plotPath, r.viz.GenerateTrainingCurvesPlot()); err != nil {
			return err
		}
	}
	if r.plotURL != "" {
		return sendPlots(ctx, r.plotURL, r.viz)
	}
	return nil
}

// sendPlots posts everything viz collected to the plotting sidecar
func sendPlots(ctx context.Context, url string, viz *training.VisualizationCollector) error {
	cfg := training.DefaultPlottingServiceConfig()
	cfg.BaseURL = url
	resp, err := training.NewPlottingService(cfg).SendCollected(ctx, viz)
	if err != nil {
		return fmt.Errorf("failed to send plots: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("plotting service rejected plots: %s", resp.Message)
	}
	return nil
}

func writePlot(path string, plot training.PlotData) error {
	data, err := plot.ToJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("failed to write plot: %w", err)
	}
	return nil
}

func (a *app) supervisedCommand() *cobra.Command {
	defaults := training.DefaultSupervisedArgs()
	cmd := &cobra.Command{
		Use:   "supervised <input> <output>",
		Short: "Train a supervised classifier",
		Long: `Train a supervised classifier on a labeled file. The model is written
to <output>.bin and the word vectors to <output>.vec.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			input, output := argv[0], argv[1]

			args, err := loadArgs(cmd, defaults)
			if err != nil {
				return err
			}
			if err := applyArgFlags(cmd, &args.Args); err != nil {
				return err
			}
			if err := applyAutotuneFlags(cmd, &args.Autotune); err != nil {
				return err
			}

			run, err := a.newTrainRun(cmd, filepath.Base(output))
			if err != nil {
				return err
			}
			args.TrainProgress = run.trainProgress()
			if run.autotune != nil {
				args.Autotune.Progress = training.AutotuneProgress(run.autotune)
			}

			ft, err := a.open(run.opts...)
			if err != nil {
				return err
			}
			defer ft.Close()

			if err := ft.Supervised(input, output, args); err != nil {
				return err
			}
			if err := run.finish(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model written to %s\n", ft.ModelPath())
			return nil
		},
	}
	addArgFlags(cmd, defaults.Args)
	addAutotuneFlags(cmd, defaults.Autotune)
	return cmd
}

func (a *app) unsupervisedCommand() *cobra.Command {
	defaults := training.DefaultArgs()
	cmd := &cobra.Command{
		Use:   "unsupervised <cbow|skipgram> <input> <output>",
		Short: "Learn word vectors",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, argv []string) error {
			var model wire.ModelName
			if err := model.UnmarshalText([]byte(argv[0])); err != nil {
				return err
			}
			input, output := argv[1], argv[2]

			args, err := loadArgs(cmd, defaults)
			if err != nil {
				return err
			}
			if err := applyArgFlags(cmd, &args); err != nil {
				return err
			}

			run, err := a.newTrainRun(cmd, filepath.Base(output))
			if err != nil {
				return err
			}
			args.TrainProgress = run.trainProgress()

			ft, err := a.open(run.opts...)
			if err != nil {
				return err
			}
			defer ft.Close()

			if err := ft.Unsupervised(model, input, output, args); err != nil {
				return err
			}
			if err := run.finish(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model written to %s\n", ft.ModelPath())
			return nil
		},
	}
	addArgFlags(cmd, defaults)
	return cmd
}

func (a *app) quantizeCommand() *cobra.Command {
	defaults := training.DefaultQuantizedSupervisedArgs()
	cmd := &cobra.Command{
		Use:   "quantize <model> <output>",
		Short: "Quantize a supervised model into <output>.ftz",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			args, err := loadArgs(cmd, defaults)
			if err != nil {
				return err
			}

			f := cmd.Flags()
			if f.Changed("cutoff") {
				args.Quantize.Cutoff, _ = f.GetUint64("cutoff")
			}
			if f.Changed("dsub") {
				args.Quantize.Dsub, _ = f.GetUint64("dsub")
			}
			if f.Changed("qnorm") {
				args.Quantize.Qnorm, _ = f.GetBool("qnorm")
			}
			if f.Changed("qout") {
				args.Quantize.Qout, _ = f.GetBool("qout")
			}
			if f.Changed("retrain") {
				args.Quantize.Retrain, _ = f.GetBool("retrain")
			}

			ft, err := a.load(argv[0])
			if err != nil {
				return err
			}
			defer ft.Close()

			if err := ft.Quantize(argv[1], args); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model written to %s\n", ft.ModelPath())
			return nil
		},
	}

	f := cmd.Flags()
	f.String("config", "", "YAML file with quantization arguments; flags override it")
	f.Uint64("cutoff", defaults.Quantize.Cutoff, "number of words and ngrams to retain")
	f.Uint64("dsub", defaults.Quantize.Dsub, "size of each sub-vector")
	f.Bool("qnorm", defaults.Quantize.Qnorm, "quantize the norm separately")
	f.Bool("qout", defaults.Quantize.Qout, "quantize the classifier")
	f.Bool("retrain", defaults.Quantize.Retrain, "finetune embeddings if a cutoff is applied")
	return cmd
}
