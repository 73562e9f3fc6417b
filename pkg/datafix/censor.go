package datafix

import (
	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
)

// Censorer cuts each patient's history at censor time + NHours. NHours is
// signed: negative censors before the censoring event.
type Censorer struct {
	NHours     float64
	Vocabulary patientdata.Vocabulary
}

func NewCensorer(nHours float64, vocabulary patientdata.Vocabulary) *Censorer {
	return &Censorer{NHours: nHours, Vocabulary: vocabulary}
}

// Censor keeps events whose abspos is at or before the censoring boundary.
// Background tokens carry no event time and are always kept; a patient with a
// missing censor time keeps the whole record. With exclude set, patients left
// without any non-special event are not part of the returned indices.
func (c *Censorer) Censor(features patientdata.Features, censorOutcomes []patientdata.Outcome, exclude bool) (patientdata.Features, []int, error) {
	abspos, ok := features[patientdata.AbsposKey]
	if !ok {
		return nil, nil, patientdata.ConfigError("censoring needs the %q feature", patientdata.AbsposKey)
	}
	concepts := features[patientdata.ConceptKey]
	if len(censorOutcomes) != len(abspos) {
		return nil, nil, patientdata.InvariantError("%d censor outcomes for %d patients", len(censorOutcomes), len(abspos))
	}

	background := c.Vocabulary.BackgroundIDs()
	special := c.Vocabulary.SpecialIDs()
	out := make(patientdata.Features, len(features))
	for name := range features {
		out[name] = make([][]float64, len(abspos))
	}
	kept := make([]int, 0, len(abspos))

	for i, times := range abspos {
		censorTime, present := censorOutcomes[i].Value()
		if !present {
			for name, seqs := range features {
				out[name][i] = seqs[i]
			}
			if !exclude || countContent(concepts[i], special) > 0 {
				kept = append(kept, i)
			}
			continue
		}

		boundary := censorTime + c.NHours
		positions := make([]int, 0, len(times))
		for j, t := range times {
			if background.Contains(int(concepts[i][j])) || t <= boundary {
				positions = append(positions, j)
			}
		}
		for name, seqs := range features {
			out[name][i] = patientdata.SelectPositions(seqs[i], positions)
		}
		if !exclude || countContent(out[patientdata.ConceptKey][i], special) > 0 {
			kept = append(kept, i)
		}
	}
	return out, kept, nil
}
