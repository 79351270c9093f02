package nativetest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/tsawler/go-fasttext/wire"
)

const modelFormat = "nativetest-fasttext-1"

var errEmptyVocabulary = errors.New("Empty vocabulary. Try a smaller -minCount value.")

// model is the engine state behind one handle. Supervised models are a
// naive Bayes classifier over word/label co-occurrence; word vectors are
// derived from a hash of the word so they are stable across runs.
type model struct {
	Format      string                        `json:"format"`
	Dim         int                           `json:"dim"`
	Seed        int32                         `json:"seed"`
	Supervised  bool                          `json:"supervised"`
	Quantized   bool                          `json:"quantized"`
	LabelPrefix string                        `json:"labelPrefix"`
	Labels      []string                      `json:"labels"`
	LabelCounts map[string]int                `json:"labelCounts"`
	Words       []string                      `json:"words"`
	Cooccur     map[string]map[string]float64 `json:"cooccur"`
}

type example struct {
	labels []string
	words  []string
}

func readExamples(path, labelPrefix string) ([]example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var examples []example
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ex example
		for _, tok := range strings.Fields(scanner.Text()) {
			if labelPrefix != "" && strings.HasPrefix(tok, labelPrefix) {
				ex.labels = append(ex.labels, tok)
			} else {
				ex.words = append(ex.words, tok)
			}
		}
		if len(ex.labels) > 0 || len(ex.words) > 0 {
			examples = append(examples, ex)
		}
	}
	return examples, scanner.Err()
}

// pretrainedDimension reads the "count dim" header of a .vec file
func pretrainedDimension(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, fmt.Errorf("%s is empty", path)
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) != 2 {
		return 0, fmt.Errorf("%s has no vector header", path)
	}
	return strconv.Atoi(fields[1])
}

func buildModel(examples []example, args wire.ArgsRecord, labelPrefix string) (*model, error) {
	m := &model{
		Format:      modelFormat,
		Dim:         int(args.Dim),
		Seed:        args.Seed,
		Supervised:  args.Model == wire.ModelSupervised,
		LabelPrefix: labelPrefix,
		LabelCounts: make(map[string]int),
		Cooccur:     make(map[string]map[string]float64),
	}

	wordCounts := make(map[string]int)
	for _, ex := range examples {
		for _, w := range ex.words {
			wordCounts[w]++
		}
	}
	for w, n := range wordCounts {
		if n >= int(args.MinCount) {
			m.Words = append(m.Words, w)
		}
	}
	sort.Strings(m.Words)

	if !m.Supervised {
		if len(m.Words) == 0 {
			return nil, errEmptyVocabulary
		}
		return m, nil
	}

	for _, ex := range examples {
		for _, l := range ex.labels {
			m.LabelCounts[l]++
			for _, w := range ex.words {
				if m.Cooccur[w] == nil {
					m.Cooccur[w] = make(map[string]float64)
				}
				m.Cooccur[w][l]++
			}
		}
	}
	for l, n := range m.LabelCounts {
		if n >= int(args.MinCountLabel) {
			m.Labels = append(m.Labels, l)
		}
	}
	if len(m.Labels) == 0 {
		return nil, errEmptyVocabulary
	}

	// most frequent label first, like the fastText dictionary
	sort.Slice(m.Labels, func(i, j int) bool {
		ci, cj := m.LabelCounts[m.Labels[i]], m.LabelCounts[m.Labels[j]]
		if ci != cj {
			return ci > cj
		}
		return m.Labels[i] < m.Labels[j]
	})
	return m, nil
}

func (m *model) labelIndex(label string) int32 {
	for i, l := range m.Labels {
		if l == label {
			return int32(i)
		}
	}
	return -1
}

type prediction struct {
	label string
	prob  float32
}

// predict returns every label with its probability, most likely first
func (m *model) predict(text string) []prediction {
	if len(m.Labels) == 0 {
		return nil
	}

	total := 0
	for _, n := range m.LabelCounts {
		total += n
	}
	vocab := float64(len(m.Words) + 1)

	logits := make([]float64, len(m.Labels))
	for i, l := range m.Labels {
		logits[i] = math.Log(float64(m.LabelCounts[l]) / float64(total))
	}
	for _, w := range strings.Fields(text) {
		co, ok := m.Cooccur[w]
		if !ok {
			continue
		}
		for i, l := range m.Labels {
			logits[i] += math.Log((co[l] + 1) / (float64(m.LabelCounts[l]) + vocab))
		}
	}

	maxLogit := math.Inf(-1)
	for _, v := range logits {
		maxLogit = math.Max(maxLogit, v)
	}
	sum := 0.0
	for i := range logits {
		logits[i] = math.Exp(logits[i] - maxLogit)
		sum += logits[i]
	}

	preds := make([]prediction, len(m.Labels))
	for i, l := range m.Labels {
		preds[i] = prediction{label: l, prob: float32(logits[i] / sum)}
	}
	sort.SliceStable(preds, func(i, j int) bool { return preds[i].prob > preds[j].prob })
	return preds
}

func (m *model) hasWord(word string) bool {
	i := sort.SearchStrings(m.Words, word)
	return i < len(m.Words) && m.Words[i] == word
}

// wordVector is zero for words outside the vocabulary
func (m *model) wordVector(word string) []float32 {
	vec := make([]float32, m.Dim)
	if !m.hasWord(word) {
		return vec
	}

	h := fnv.New64a()
	h.Write([]byte(word))
	rng := rand.New(rand.NewSource(int64(h.Sum64()) ^ int64(m.Seed)))

	var norm float64
	for i := range vec {
		vec[i] = float32(rng.NormFloat64())
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func (m *model) sentenceVector(text string) []float32 {
	vec := make([]float32, m.Dim)
	words := strings.Fields(text)
	if len(words) == 0 {
		return vec
	}
	for _, w := range words {
		for i, v := range m.wordVector(w) {
			vec[i] += v
		}
	}
	for i := range vec {
		vec[i] /= float32(len(words))
	}
	return vec
}

type neighbour struct {
	word       string
	similarity float32
}

func (m *model) nearest(word string, k int) []neighbour {
	query := m.wordVector(word)
	var result []neighbour
	for _, w := range m.Words {
		if w == word {
			continue
		}
		var dot float32
		for i, v := range m.wordVector(w) {
			dot += v * query[i]
		}
		result = append(result, neighbour{word: w, similarity: dot})
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].similarity > result[j].similarity })
	if len(result) > k {
		result = result[:k]
	}
	return result
}

func (m *model) save(stub string) error {
	ext := ".bin"
	if m.Quantized {
		ext = ".ftz"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(stub+ext, data, 0o644); err != nil {
		return err
	}
	if m.Quantized {
		return nil
	}
	return m.saveVectors(stub + ".vec")
}

func (m *model) saveVectors(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%d %d\n", len(m.Words), m.Dim)
	for _, word := range m.Words {
		w.WriteString(word)
		for _, v := range m.wordVector(word) {
			w.WriteString(" ")
			w.WriteString(strconv.FormatFloat(float64(v), 'g', 5, 32))
		}
		w.WriteString("\n")
	}
	return w.Flush()
}

func parseModel(data []byte, source string) (*model, error) {
	var m model
	if err := json.Unmarshal(data, &m); err != nil || m.Format != modelFormat {
		return nil, fmt.Errorf("%s has wrong file format!", source)
	}
	return &m, nil
}
