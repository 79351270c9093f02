package wire

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Args dump field names, in record order. The native engine writes the same
// names when training runs with the debug flag set.
var argsDumpFields = []string{
	"lr", "lrUpdateRate", "dim", "ws", "epoch", "minCount", "minCountLabel",
	"neg", "wordNgrams", "loss", "model", "bucket", "minn", "maxn", "thread",
	"t", "verbose", "saveOutput", "seed", "qout", "retrain", "qnorm", "cutoff",
	"dsub",
	"autotuneValidationFile", "autotuneMetric", "autotunePredictions",
	"autotuneDuration", "autotuneModelSize", "autotuneVerbose",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func argsDumpValues(rec ArgsRecord, params AutotuneParams) []string {
	i32 := func(v int32) string { return strconv.FormatInt(int64(v), 10) }
	u64 := func(v uint64) string { return strconv.FormatUint(v, 10) }

	return []string{
		formatFloat(rec.LR), i32(rec.LRUpdateRate), i32(rec.Dim), i32(rec.WS),
		i32(rec.Epoch), i32(rec.MinCount), i32(rec.MinCountLabel), i32(rec.Neg),
		i32(rec.WordNgrams), rec.Loss.String(), rec.Model.String(), i32(rec.Bucket),
		i32(rec.Minn), i32(rec.Maxn), i32(rec.Thread), formatFloat(rec.T),
		i32(rec.Verbose), formatBool(rec.SaveOutput), i32(rec.Seed),
		formatBool(rec.Qout), formatBool(rec.Retrain), formatBool(rec.Qnorm),
		u64(rec.Cutoff), u64(rec.Dsub),
		params.ValidationFile, params.Metric, i32(params.Predictions),
		i32(params.Duration), params.ModelSize, i32(params.Verbose),
	}
}

// WriteArgsDump writes the textual args dump, one "name value" line per field
func WriteArgsDump(w io.Writer, rec ArgsRecord, params AutotuneParams) error {
	bw := bufio.NewWriter(w)
	for i, v := range argsDumpValues(rec, params) {
		if _, err := fmt.Fprintf(bw, "%s %s\n", argsDumpFields[i], v); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ParseArgsDump reads a dump produced by WriteArgsDump or by the native
// engine. Fields must appear in record order; string values may be empty.
func ParseArgsDump(r io.Reader) (ArgsRecord, AutotuneParams, error) {
	var (
		rec    ArgsRecord
		params AutotuneParams
	)

	values := make([]string, 0, len(argsDumpFields))
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		if len(values) == len(argsDumpFields) {
			return rec, params, fmt.Errorf("args dump line %d: unexpected trailing field %q", line, text)
		}

		name, value, _ := strings.Cut(text, " ")
		want := argsDumpFields[len(values)]
		if name != want {
			return rec, params, fmt.Errorf("args dump line %d: expected field %s, got %s", line, want, name)
		}
		values = append(values, value)
	}
	if err := scanner.Err(); err != nil {
		return rec, params, fmt.Errorf("failed to read args dump: %w", err)
	}
	if len(values) != len(argsDumpFields) {
		return rec, params, fmt.Errorf("args dump: missing field %s", argsDumpFields[len(values)])
	}

	p := dumpParser{values: values}
	rec.LR = p.f64()
	rec.LRUpdateRate = p.i32()
	rec.Dim = p.i32()
	rec.WS = p.i32()
	rec.Epoch = p.i32()
	rec.MinCount = p.i32()
	rec.MinCountLabel = p.i32()
	rec.Neg = p.i32()
	rec.WordNgrams = p.i32()
	rec.Loss = p.loss()
	rec.Model = p.model()
	rec.Bucket = p.i32()
	rec.Minn = p.i32()
	rec.Maxn = p.i32()
	rec.Thread = p.i32()
	rec.T = p.f64()
	rec.Verbose = p.i32()
	rec.SaveOutput = p.boolean()
	rec.Seed = p.i32()
	rec.Qout = p.boolean()
	rec.Retrain = p.boolean()
	rec.Qnorm = p.boolean()
	rec.Cutoff = p.u64()
	rec.Dsub = p.u64()
	params.ValidationFile = p.str()
	params.Metric = p.str()
	params.Predictions = p.i32()
	params.Duration = p.i32()
	params.ModelSize = p.str()
	params.Verbose = p.i32()

	if p.err != nil {
		return ArgsRecord{}, AutotuneParams{}, p.err
	}
	return rec, params, nil
}

// dumpParser converts dump values in field order; the first failure sticks
type dumpParser struct {
	values []string
	idx    int
	err    error
}

func (p *dumpParser) next() (string, string) {
	name, v := argsDumpFields[p.idx], p.values[p.idx]
	p.idx++
	return name, v
}

func (p *dumpParser) fail(name, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("args dump: invalid %s value %q: %w", name, value, err)
	}
}

func (p *dumpParser) f64() float64 {
	name, v := p.next()
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(name, v, err)
	}
	return f
}

func (p *dumpParser) i32() int32 {
	name, v := p.next()
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		p.fail(name, v, err)
	}
	return int32(n)
}

func (p *dumpParser) u64() uint64 {
	name, v := p.next()
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		p.fail(name, v, err)
	}
	return n
}

func (p *dumpParser) boolean() bool {
	name, v := p.next()
	switch v {
	case "0", "false":
		return false
	case "1", "true":
		return true
	}
	p.fail(name, v, fmt.Errorf("not a boolean"))
	return false
}

func (p *dumpParser) str() string {
	_, v := p.next()
	return v
}

// loss accepts either the name or the numeric value
func (p *dumpParser) loss() LossName {
	name, v := p.next()
	if n, err := strconv.ParseInt(v, 10, 32); err == nil {
		return LossName(n)
	}
	var l LossName
	if err := l.UnmarshalText([]byte(v)); err != nil {
		p.fail(name, v, err)
	}
	return l
}

// model accepts either the name or the numeric value
func (p *dumpParser) model() ModelName {
	name, v := p.next()
	if n, err := strconv.ParseInt(v, 10, 32); err == nil {
		return ModelName(n)
	}
	var m ModelName
	if err := m.UnmarshalText([]byte(v)); err != nil {
		p.fail(name, v, err)
	}
	return m
}
