package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tsawler/go-fasttext/engine"
)

const maxLineSize = 1 << 20

// forEachLine calls fn for every line of the file named by argv[0], or of
// stdin when argv is empty or "-"
func forEachLine(cmd *cobra.Command, argv []string, fn func(line string) error) error {
	var in io.Reader = cmd.InOrStdin()
	if len(argv) > 0 && argv[0] != "-" {
		f, err := os.Open(argv[0])
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}

// formatVector writes name followed by the vector values on one line. An
// empty name writes the values only.
func formatVector(w io.Writer, name string, vec []float32) {
	fields := make([]string, 0, len(vec)+1)
	if name != "" {
		fields = append(fields, name)
	}
	for _, v := range vec {
		fields = append(fields, strconv.FormatFloat(float64(v), 'g', 5, 32))
	}
	io.WriteString(w, strings.Join(fields, " ")+"\n")
}

func (a *app) predictCommand() *cobra.Command {
	var (
		k         int
		withProb  bool
		threshold float32
	)
	cmd := &cobra.Command{
		Use:   "predict <model> [file|-]",
		Short: "Predict the most likely labels of every input line",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			ft, err := a.load(argv[0])
			if err != nil {
				return err
			}
			defer ft.Close()

			out := bufio.NewWriter(cmd.OutOrStdout())
			defer out.Flush()

			return forEachLine(cmd, argv[1:], func(line string) error {
				preds, err := predictLine(ft, line, k)
				if err != nil {
					return err
				}

				var fields []string
				for _, p := range preds {
					if p.Probability < threshold {
						continue
					}
					fields = append(fields, p.Label)
					if withProb {
						fields = append(fields, strconv.FormatFloat(float64(p.Probability), 'g', 5, 32))
					}
				}
				_, err = fmt.Fprintln(out, strings.Join(fields, " "))
				return err
			})
		},
	}

	f := cmd.Flags()
	f.IntVar(&k, "k", 1, "number of labels to predict")
	f.BoolVar(&withProb, "prob", false, "print the probability after every label")
	f.Float32Var(&threshold, "threshold", 0, "minimal probability of a printed label")
	return cmd
}

func predictLine(ft *engine.FastText, line string, k int) ([]engine.Prediction, error) {
	if k == 1 {
		p, err := ft.PredictSingle(line)
		if err != nil {
			return nil, err
		}
		return []engine.Prediction{p}, nil
	}
	return ft.PredictMultiple(line, k)
}

func (a *app) nnCommand() *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "nn <model> <word>...",
		Short: "Print the nearest neighbours of words",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			ft, err := a.load(argv[0])
			if err != nil {
				return err
			}
			defer ft.Close()

			out := cmd.OutOrStdout()
			for _, word := range argv[1:] {
				nn, err := ft.GetNearestNeighbours(word, k)
				if err != nil {
					return err
				}
				if len(argv) > 2 {
					fmt.Fprintf(out, "Query word: %s\n", word)
				}
				for _, n := range nn {
					fmt.Fprintf(out, "%s %s\n", n.Label, strconv.FormatFloat(float64(n.Probability), 'g', 5, 32))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&k, "k", 10, "number of neighbours")
	return cmd
}

func (a *app) vectorCommand() *cobra.Command {
	var sentence bool
	cmd := &cobra.Command{
		Use:   "vector <model> [file|-]",
		Short: "Print word vectors, or one vector per line with --sentence",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			ft, err := a.load(argv[0])
			if err != nil {
				return err
			}
			defer ft.Close()

			out := bufio.NewWriter(cmd.OutOrStdout())
			defer out.Flush()

			return forEachLine(cmd, argv[1:], func(line string) error {
				if sentence {
					vec, err := ft.GetSentenceVector(line)
					if err != nil {
						return err
					}
					formatVector(out, "", vec)
					return nil
				}
				for _, word := range strings.Fields(line) {
					vec, err := ft.GetWordVector(word)
					if err != nil {
						return err
					}
					formatVector(out, word, vec)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&sentence, "sentence", false, "print one sentence vector per input line")
	return cmd
}

func (a *app) labelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "labels <model>",
		Short: "Print the labels of a supervised model and its dimension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			ft, err := a.load(argv[0])
			if err != nil {
				return err
			}
			defer ft.Close()

			dim, err := ft.GetModelDimension()
			if err != nil {
				return err
			}
			labels, err := ft.GetLabels()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dimension\t%d\n", dim)
			for _, l := range labels {
				fmt.Fprintln(out, l)
			}
			return nil
		},
	}
}
