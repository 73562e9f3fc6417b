package datafix

import (
	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
)

// Excluder drops patients with too little content. Special tokens
// ([PAD], [SEP], background) do not count towards the length.
type Excluder struct {
	MinLen     int
	Vocabulary patientdata.Vocabulary
}

func NewExcluder(minLen int, vocabulary patientdata.Vocabulary) *Excluder {
	return &Excluder{MinLen: minLen, Vocabulary: vocabulary}
}

// Exclude returns the indices of patients whose non-special token count is at
// least MinLen.
func (e *Excluder) Exclude(features patientdata.Features) []int {
	special := e.Vocabulary.SpecialIDs()
	concepts := features[patientdata.ConceptKey]
	kept := make([]int, 0, len(concepts))
	for i, seq := range concepts {
		if countContent(seq, special) >= e.MinLen {
			kept = append(kept, i)
		}
	}
	return kept
}

func countContent(seq []float64, special patientdata.TokenSet) int {
	n := 0
	for _, token := range seq {
		if !special.Contains(int(token)) {
			n++
		}
	}
	return n
}
