package datafix

import (
	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
)

// Truncator bounds every sequence to MaxLen events, keeping the leading
// [CLS]/background block and the most recent events.
type Truncator struct {
	MaxLen     int
	Vocabulary patientdata.Vocabulary
}

func NewTruncator(maxLen int, vocabulary patientdata.Vocabulary) *Truncator {
	return &Truncator{MaxLen: maxLen, Vocabulary: vocabulary}
}

func (t *Truncator) Truncate(features patientdata.Features) (patientdata.Features, error) {
	if t.MaxLen <= 0 {
		return nil, patientdata.ConfigError("truncation length must be positive, got %d", t.MaxLen)
	}
	concepts, ok := features[patientdata.ConceptKey]
	if !ok {
		return nil, patientdata.ConfigError("truncation needs the %q feature", patientdata.ConceptKey)
	}

	out := make(patientdata.Features, len(features))
	for name, seqs := range features {
		out[name] = make([][]float64, len(seqs))
		copy(out[name], seqs)
	}
	for i, seq := range concepts {
		positions := t.positions(seq)
		if positions == nil {
			continue
		}
		for name, seqs := range features {
			out[name][i] = patientdata.SelectPositions(seqs[i], positions)
		}
	}
	return out, nil
}

// positions returns the event positions to keep, or nil when the sequence
// already fits.
func (t *Truncator) positions(seq []float64) []int {
	n := len(seq)
	if n <= t.MaxLen {
		return nil
	}

	prefix := t.prefixLen(seq)
	if prefix >= t.MaxLen {
		prefix = 0
	}
	start := n - (t.MaxLen - prefix)
	if sep, ok := t.Vocabulary[patientdata.SepToken]; ok && int(seq[start]) == sep {
		start++
	}

	positions := make([]int, 0, t.MaxLen)
	for j := 0; j < prefix; j++ {
		positions = append(positions, j)
	}
	for j := start; j < n; j++ {
		positions = append(positions, j)
	}
	return positions
}

// prefixLen is the length of the leading [CLS], background tokens and the
// [SEP] closing the background block.
func (t *Truncator) prefixLen(seq []float64) int {
	background := t.Vocabulary.BackgroundIDs()
	j := 0
	if cls, ok := t.Vocabulary[patientdata.ClsToken]; ok && len(seq) > 0 && int(seq[0]) == cls {
		j++
	}
	bgStart := j
	for j < len(seq) && background.Contains(int(seq[j])) {
		j++
	}
	if j > bgStart && j < len(seq) {
		if sep, ok := t.Vocabulary[patientdata.SepToken]; ok && int(seq[j]) == sep {
			j++
		}
	}
	return j
}
