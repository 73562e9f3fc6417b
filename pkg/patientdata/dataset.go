package patientdata

import (
	"sort"
)

const (
	ConceptKey  = "concept"
	AgeKey      = "age"
	AbsposKey   = "abspos"
	SegmentKey  = "segment"
	PositionKey = "position_ids"
)

// Features maps a channel name to one sequence per patient. All channels are
// parallel: entry i of every channel describes the same patient, and the j-th
// value of each describes the same event.
type Features map[string][][]float64

// Names returns channel names in a stable order.
func (f Features) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Patient returns every channel for patient i.
func (f Features) Patient(i int) map[string][]float64 {
	out := make(map[string][]float64, len(f))
	for name, seqs := range f {
		out[name] = seqs[i]
	}
	return out
}

// SelectPositions keeps the given event positions of seq, in order.
func SelectPositions(seq []float64, positions []int) []float64 {
	out := make([]float64, len(positions))
	for k, p := range positions {
		out[k] = seq[p]
	}
	return out
}

// Dataset holds the parallel per-patient arrays of one split.
type Dataset struct {
	Features       Features
	PIDs           []string
	Outcomes       []Outcome
	CensorOutcomes []Outcome
	Vocabulary     Vocabulary
	Mode           string
}

func New(features Features, pids []string, vocabulary Vocabulary, mode string) *Dataset {
	return &Dataset{
		Features:   features,
		PIDs:       pids,
		Vocabulary: vocabulary,
		Mode:       mode,
	}
}

func (d *Dataset) Len() int { return len(d.PIDs) }

func (d *Dataset) Concepts() [][]float64 { return d.Features[ConceptKey] }

// HasOutcomes reports whether outcomes have been assigned.
func (d *Dataset) HasOutcomes() bool { return d.Outcomes != nil }

func (d *Dataset) PositiveCount() int { return CountPresent(d.Outcomes) }

// WithFeatures returns a copy of d carrying new features. Every channel is
// replaced at once.
func (d *Dataset) WithFeatures(features Features) *Dataset {
	next := *d
	next.Features = features
	return &next
}

// WithOutcomes returns a copy of d carrying new outcome and censor arrays.
func (d *Dataset) WithOutcomes(outcomes, censorOutcomes []Outcome) *Dataset {
	next := *d
	next.Outcomes = outcomes
	next.CensorOutcomes = censorOutcomes
	return &next
}

// SelectEntries keeps the patients at indices in the order given. Repeated
// indices are kept once, at their first occurrence. Every aligned array is
// filtered together; this is the only way stages drop patients.
func (d *Dataset) SelectEntries(indices []int) (*Dataset, error) {
	n := d.Len()
	seen := make(map[int]struct{}, len(indices))
	order := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			return nil, InvariantError("index %d out of range for %d patients", idx, n)
		}
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		order = append(order, idx)
	}

	next := *d
	next.Features = make(Features, len(d.Features))
	for name, seqs := range d.Features {
		if len(seqs) != n {
			return nil, InvariantError("feature %q has %d entries, expected %d", name, len(seqs), n)
		}
		selected := make([][]float64, len(order))
		for k, idx := range order {
			selected[k] = seqs[idx]
		}
		next.Features[name] = selected
	}

	next.PIDs = make([]string, len(order))
	for k, idx := range order {
		next.PIDs[k] = d.PIDs[idx]
	}
	if d.Outcomes != nil {
		outcomes, err := selectOutcomes(d.Outcomes, order, n, "outcomes")
		if err != nil {
			return nil, err
		}
		next.Outcomes = outcomes
	}
	if d.CensorOutcomes != nil {
		censor, err := selectOutcomes(d.CensorOutcomes, order, n, "censor outcomes")
		if err != nil {
			return nil, err
		}
		next.CensorOutcomes = censor
	}
	return &next, nil
}

func selectOutcomes(outcomes []Outcome, order []int, n int, name string) ([]Outcome, error) {
	if len(outcomes) != n {
		return nil, InvariantError("%s has %d entries, expected %d", name, len(outcomes), n)
	}
	out := make([]Outcome, len(order))
	for k, idx := range order {
		out[k] = outcomes[idx]
	}
	return out, nil
}

// CheckLengths verifies that every aligned array has one entry per patient and
// that all channels of a patient have the same number of events.
func (d *Dataset) CheckLengths() error {
	n := d.Len()
	names := d.Features.Names()
	for _, name := range names {
		if got := len(d.Features[name]); got != n {
			return InvariantError("feature %q has %d entries, expected %d (mode %s)", name, got, n, d.Mode)
		}
	}
	if d.Outcomes != nil && len(d.Outcomes) != n {
		return InvariantError("outcomes has %d entries, expected %d (mode %s)", len(d.Outcomes), n, d.Mode)
	}
	if d.CensorOutcomes != nil && len(d.CensorOutcomes) != n {
		return InvariantError("censor outcomes has %d entries, expected %d (mode %s)", len(d.CensorOutcomes), n, d.Mode)
	}
	if len(names) == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		want := len(d.Features[names[0]][i])
		for _, name := range names[1:] {
			if got := len(d.Features[name][i]); got != want {
				return InvariantError("patient %s: %q has %d events, %q has %d", d.PIDs[i], name, got, names[0], want)
			}
		}
	}
	return nil
}

// CheckVocabulary verifies that every concept id is known to the vocabulary.
func (d *Dataset) CheckVocabulary() error {
	ids := d.Vocabulary.IDs()
	for i, concepts := range d.Concepts() {
		for _, c := range concepts {
			if !ids.Contains(int(c)) {
				return InvariantError("patient %s: token id %d not in vocabulary", d.PIDs[i], int(c))
			}
		}
	}
	return nil
}
