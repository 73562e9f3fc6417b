package preparer

import (
	"math/rand"
	"sort"

	"github.com/synaptica-ai/ehrprep/pkg/datafix"
	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
)

// Patient-level stages. Each computes the indices to keep and reindexes
// through SelectEntries.

// ExcludeShortSequences drops patients with fewer than minLen non-special
// tokens.
func ExcludeShortSequences(minLen int) StageFunc {
	return func(d *patientdata.Dataset) (*patientdata.Dataset, error) {
		excluder := datafix.NewExcluder(minLen, d.Vocabulary)
		return d.SelectEntries(excluder.Exclude(d.Features))
	}
}

// FilterOutcomeBeforeCensor drops patients whose outcome happened before the
// censoring boundary, and patients with an outcome but no censor time.
func FilterOutcomeBeforeCensor(nHours float64) StageFunc {
	return func(d *patientdata.Dataset) (*patientdata.Dataset, error) {
		if d.Outcomes == nil || d.CensorOutcomes == nil {
			return nil, patientdata.ConfigError("outcomes must be assigned before filtering on censor time")
		}
		kept := make([]int, 0, d.Len())
		for i, outcome := range d.Outcomes {
			censorTime, censored := d.CensorOutcomes[i].Value()
			outcomeTime, positive := outcome.Value()
			if !censored {
				if !positive {
					kept = append(kept, i)
				}
				continue
			}
			if !positive || outcomeTime >= censorTime+nHours {
				kept = append(kept, i)
			}
		}
		return d.SelectEntries(kept)
	}
}

// SelectByAge keeps patients whose most recent age lies in [minAge, maxAge].
func SelectByAge(minAge, maxAge float64) StageFunc {
	return func(d *patientdata.Dataset) (*patientdata.Dataset, error) {
		ages, ok := d.Features[patientdata.AgeKey]
		if !ok {
			return nil, patientdata.ConfigError("age selection needs the %q feature", patientdata.AgeKey)
		}
		kept := make([]int, 0, d.Len())
		for i, seq := range ages {
			if len(seq) == 0 {
				continue
			}
			if last := seq[len(seq)-1]; minAge <= last && last <= maxAge {
				kept = append(kept, i)
			}
		}
		return d.SelectEntries(kept)
	}
}

// SelectByGender keeps patients carrying the background gender token that key
// resolves to.
func SelectByGender(key string) StageFunc {
	return func(d *patientdata.Dataset) (*patientdata.Dataset, error) {
		token, err := patientdata.GenderToken(d.Vocabulary, key)
		if err != nil {
			return nil, err
		}
		kept := make([]int, 0, d.Len())
		for i, concepts := range d.Concepts() {
			for _, c := range concepts {
				if int(c) == token {
					kept = append(kept, i)
					break
				}
			}
		}
		return d.SelectEntries(kept)
	}
}

// SelectCensored keeps patients with a censor time.
func SelectCensored() StageFunc {
	return func(d *patientdata.Dataset) (*patientdata.Dataset, error) {
		if d.CensorOutcomes == nil {
			return nil, patientdata.ConfigError("censor outcomes not assigned")
		}
		return d.SelectEntries(presentIndices(d.CensorOutcomes))
	}
}

// SelectPositives keeps patients with an outcome.
func SelectPositives() StageFunc {
	return func(d *patientdata.Dataset) (*patientdata.Dataset, error) {
		if d.Outcomes == nil {
			return nil, patientdata.ConfigError("outcomes not assigned")
		}
		return d.SelectEntries(presentIndices(d.Outcomes))
	}
}

// SelectRandomSubset keeps numPatients patients drawn with a seeded shuffle.
// The survivors keep their original relative order. numPatients <= 0 keeps
// everyone.
func SelectRandomSubset(numPatients int, seed int64) StageFunc {
	return func(d *patientdata.Dataset) (*patientdata.Dataset, error) {
		if numPatients <= 0 || numPatients >= d.Len() {
			return d, nil
		}
		rng := rand.New(rand.NewSource(seed))
		indices := rng.Perm(d.Len())[:numPatients]
		sort.Ints(indices)
		return d.SelectEntries(indices)
	}
}

// ExcludePIDs drops the given patients, e.g. those seen during pretraining.
func ExcludePIDs(pids []string) StageFunc {
	excluded := make(map[string]struct{}, len(pids))
	for _, pid := range pids {
		excluded[pid] = struct{}{}
	}
	return func(d *patientdata.Dataset) (*patientdata.Dataset, error) {
		kept := make([]int, 0, d.Len())
		for i, pid := range d.PIDs {
			if _, ok := excluded[pid]; !ok {
				kept = append(kept, i)
			}
		}
		return d.SelectEntries(kept)
	}
}

func presentIndices(outcomes []patientdata.Outcome) []int {
	kept := make([]int, 0, len(outcomes))
	for i, o := range outcomes {
		if o.IsPresent() {
			kept = append(kept, i)
		}
	}
	return kept
}
