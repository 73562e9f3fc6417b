package preparer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// OneHotIndex maps vocabulary token ids onto dense column indices, leaving out
// "[" tokens.
type OneHotIndex struct {
	columns    map[int]int
	Vocabulary patientdata.Vocabulary
}

// NewOneHotIndex builds the column mapping from vocab. Ids are assigned in
// ascending token-id order. Vocabulary maps each kept token string to its
// column.
func NewOneHotIndex(vocab patientdata.Vocabulary) *OneHotIndex {
	ids := make([]int, 0, len(vocab))
	seen := make(map[int]struct{}, len(vocab))
	for token, id := range vocab {
		if strings.HasPrefix(token, "[") {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	idx := &OneHotIndex{columns: make(map[int]int, len(ids)), Vocabulary: make(patientdata.Vocabulary, len(ids))}
	for col, id := range ids {
		idx.columns[id] = col
	}
	for token, id := range vocab {
		if col, ok := idx.columns[id]; ok {
			idx.Vocabulary[token] = col
		}
	}
	return idx
}

func (x *OneHotIndex) Width() int { return len(x.columns) + 1 }

// EncodeOneHot turns d into a patient × (1 + tokens) matrix. Column 0 holds the
// patient's last age; column 1+k is 1 when token column k occurs in the
// patient's history. Labels are 1 for patients with an outcome.
func EncodeOneHot(d *patientdata.Dataset, index *OneHotIndex) (*mat.Dense, []float64, error) {
	if d.Len() == 0 {
		return nil, nil, patientdata.InvariantError("cannot encode an empty %s dataset", d.Mode)
	}
	ages, ok := d.Features[patientdata.AgeKey]
	if !ok {
		return nil, nil, patientdata.ConfigError("one-hot encoding needs the %q feature", patientdata.AgeKey)
	}

	x := mat.NewDense(d.Len(), index.Width(), nil)
	y := make([]float64, d.Len())
	for i, concepts := range d.Concepts() {
		if d.Outcomes != nil && d.Outcomes[i].IsPresent() {
			y[i] = 1
		}
		if n := len(ages[i]); n > 0 {
			x.Set(i, 0, ages[i][n-1])
		}
		for _, c := range concepts {
			if col, ok := index.columns[int(c)]; ok {
				x.Set(i, col+1, 1)
			}
		}
	}
	return x, y, nil
}

// OneHotSplit is one encoded split as written to onehot_<split>.json.
type OneHotSplit struct {
	PIDs   []string    `json:"pids"`
	Labels []float64   `json:"labels"`
	Rows   [][]float64 `json:"rows"`
}

// OneHotResult holds the encoded train and validation splits. Vocabulary maps
// each token to its token column; the matrix column is one higher.
type OneHotResult struct {
	Train      *mat.Dense
	TrainY     []float64
	Val        *mat.Dense
	ValY       []float64
	Vocabulary patientdata.Vocabulary
	RunFolder  string
}

// PrepareOneHot encodes already prepared fine-tuning splits found in
// paths.finetune_features_path. The directory holds per-split files
// (features_<split>.json, pids_<split>.json, outcomes_<split>.json) and a
// vocabulary.json, the layout of a fine-tuning run that was split into train
// and val downstream. PrepareFinetune writes a single unsuffixed dataset and
// does not produce this input on its own. The column mapping comes from the
// train split's vocabulary and is applied to both splits.
func (p *DatasetPreparer) PrepareOneHot(ctx context.Context) (*OneHotResult, error) {
	dir := p.cfg.Paths.FinetuneFeaturesPath
	if dir == "" {
		return nil, patientdata.ConfigError("one-hot encoding needs paths.finetune_features_path")
	}
	vocab, err := p.store.LoadVocabulary(ctx, filepath.Join(dir, vocabularyFile))
	if err != nil {
		return nil, err
	}
	index := NewOneHotIndex(vocab)
	result := &OneHotResult{Vocabulary: index.Vocabulary, RunFolder: p.cfg.RunFolder()}

	for _, split := range []string{splitTrain, splitValidation} {
		d, err := p.loadPreparedSplit(dir, split, vocab)
		if err != nil {
			return nil, err
		}
		x, y, err := EncodeOneHot(d, index)
		if err != nil {
			return nil, err
		}
		rows, cols := x.Dims()
		p.log.WithFields(logrus.Fields{"split": split, "patients": rows, "columns": cols, "positive": floats.Sum(y)}).Info("one-hot encoded")

		encoded := OneHotSplit{PIDs: d.PIDs, Labels: y, Rows: make([][]float64, rows)}
		for i := 0; i < rows; i++ {
			encoded.Rows[i] = mat.Row(nil, i, x)
		}
		if err := p.store.SaveJSON(filepath.Join(result.RunFolder, fmt.Sprintf("onehot_%s.json", split)), encoded); err != nil {
			return nil, err
		}
		if split == splitTrain {
			result.Train, result.TrainY = x, y
		} else {
			result.Val, result.ValY = x, y
		}
	}
	if err := p.store.SaveJSON(filepath.Join(result.RunFolder, "onehot_vocabulary.json"), index.Vocabulary); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *DatasetPreparer) loadPreparedSplit(dir, split string, vocab patientdata.Vocabulary) (*patientdata.Dataset, error) {
	features, err := p.store.LoadFeatures(filepath.Join(dir, fmt.Sprintf("features_%s.json", split)))
	if err != nil {
		return nil, err
	}
	pids, err := p.store.LoadPIDs(filepath.Join(dir, fmt.Sprintf("pids_%s.json", split)))
	if err != nil {
		return nil, err
	}
	outcomes, err := p.store.LoadOutcomes(filepath.Join(dir, fmt.Sprintf("outcomes_%s.json", split)))
	if err != nil {
		return nil, err
	}
	d := patientdata.New(features, pids, vocab, split).WithOutcomes(outcomes, nil)
	if err := d.CheckLengths(); err != nil {
		return nil, fmt.Errorf("prepared %s split: %w", split, err)
	}
	return d, nil
}
