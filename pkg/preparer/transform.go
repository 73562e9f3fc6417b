package preparer

import (
	"github.com/synaptica-ai/ehrprep/pkg/datafix"
	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
)

// Event-level stages. These rewrite the events inside each patient, applying
// one position mask to every channel.

// CensorData cuts each patient's record at censor time + nHours. Patients left
// empty are kept; ExcludeShortSequences removes them later.
func CensorData(nHours float64) StageFunc {
	return func(d *patientdata.Dataset) (*patientdata.Dataset, error) {
		if d.CensorOutcomes == nil {
			return nil, patientdata.ConfigError("censor outcomes not assigned")
		}
		censorer := datafix.NewCensorer(nHours, d.Vocabulary)
		features, _, err := censorer.Censor(d.Features, d.CensorOutcomes, false)
		if err != nil {
			return nil, err
		}
		return d.WithFeatures(features), nil
	}
}

// FilterCodeTypes keeps only events whose concept starts with one of codeTypes
// (special tokens always stay), then keeps patients with more than minLen
// distinct non-special concepts left.
func FilterCodeTypes(codeTypes []string, minLen int) StageFunc {
	prefixes := append(append([]string{}, patientdata.SpecialPrefixes...), codeTypes...)
	return func(d *patientdata.Dataset) (*patientdata.Dataset, error) {
		keepTokens := d.Vocabulary.IDsWithPrefix(prefixes...)
		special := d.Vocabulary.SpecialIDs()

		concepts := d.Concepts()
		features := make(patientdata.Features, len(d.Features))
		for name := range d.Features {
			features[name] = make([][]float64, len(concepts))
		}
		kept := make([]int, 0, len(concepts))

		for i, seq := range concepts {
			positions := make([]int, 0, len(seq))
			distinct := make(map[int]struct{})
			for j, c := range seq {
				token := int(c)
				if !keepTokens.Contains(token) {
					continue
				}
				positions = append(positions, j)
				if !special.Contains(token) {
					distinct[token] = struct{}{}
				}
			}
			for name, seqs := range d.Features {
				features[name][i] = patientdata.SelectPositions(seqs[i], positions)
			}
			if len(distinct) > minLen {
				kept = append(kept, i)
			}
		}
		return d.WithFeatures(features).SelectEntries(kept)
	}
}

// RemoveBackground excises the background block (and the [SEP] closing it)
// from every patient. The block's span is read from the first patient and
// every other patient must carry the same layout.
func RemoveBackground() StageFunc {
	return func(d *patientdata.Dataset) (*patientdata.Dataset, error) {
		concepts := d.Concepts()
		if len(concepts) == 0 {
			return d, nil
		}
		first, last, ok := backgroundSpan(concepts[0], d.Vocabulary)
		if !ok {
			return d, nil
		}

		background := d.Vocabulary.BackgroundIDs()
		sep, hasSep := d.Vocabulary[patientdata.SepToken]
		for i, seq := range concepts {
			if len(seq) <= last {
				return nil, patientdata.InvariantError("patient %s has %d events, background block spans %d..%d", d.PIDs[i], len(seq), first, last)
			}
			for j := first; j <= last; j++ {
				token := int(seq[j])
				if background.Contains(token) || (hasSep && j == last && token == sep) {
					continue
				}
				return nil, patientdata.InvariantError("patient %s: position %d inside background block holds token %d", d.PIDs[i], j, token)
			}
		}

		features := make(patientdata.Features, len(d.Features))
		for name, seqs := range d.Features {
			out := make([][]float64, len(seqs))
			for i, seq := range seqs {
				trimmed := make([]float64, 0, len(seq)-(last-first+1))
				trimmed = append(trimmed, seq[:first]...)
				trimmed = append(trimmed, seq[last+1:]...)
				out[i] = trimmed
			}
			features[name] = out
		}
		return d.WithFeatures(features), nil
	}
}

// backgroundSpan returns the first and last position of background tokens in
// concepts, extended by one when a [SEP] directly follows the block.
func backgroundSpan(concepts []float64, vocab patientdata.Vocabulary) (first, last int, ok bool) {
	background := vocab.BackgroundIDs()
	first, last = -1, -1
	for j, c := range concepts {
		if background.Contains(int(c)) {
			if first < 0 {
				first = j
			}
			last = j
		}
	}
	if first < 0 {
		return 0, 0, false
	}
	if sep, hasSep := vocab[patientdata.SepToken]; hasSep && last+1 < len(concepts) && int(concepts[last+1]) == sep {
		last++
	}
	return first, last, true
}

// Truncate bounds every patient to maxLen events.
func Truncate(maxLen int) StageFunc {
	return func(d *patientdata.Dataset) (*patientdata.Dataset, error) {
		features, err := datafix.NewTruncator(maxLen, d.Vocabulary).Truncate(d.Features)
		if err != nil {
			return nil, err
		}
		return d.WithFeatures(features), nil
	}
}

// NormalizeSegments renumbers segments (or position ids when present) to start
// at 1. It must run after Truncate.
func NormalizeSegments() StageFunc {
	return func(d *patientdata.Dataset) (*patientdata.Dataset, error) {
		key := patientdata.SegmentKey
		if _, ok := d.Features[patientdata.PositionKey]; ok {
			key = patientdata.PositionKey
		}
		segments, ok := d.Features[key]
		if !ok {
			return nil, patientdata.ConfigError("no %q or %q feature to normalize", patientdata.SegmentKey, patientdata.PositionKey)
		}

		normalized := make([][]float64, len(segments))
		for i, seq := range segments {
			normalized[i] = datafix.NormalizeSegments(seq)
		}
		features := make(patientdata.Features, len(d.Features))
		for name, seqs := range d.Features {
			features[name] = seqs
		}
		features[key] = normalized
		return d.WithFeatures(features), nil
	}
}
