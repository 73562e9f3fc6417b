package patientdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() *Dataset {
	features := Features{
		ConceptKey: {{1, 2, 3}, {4, 5}, {6}, {7, 8}},
		AgeKey:     {{10, 11, 12}, {20, 21}, {30}, {40, 41}},
	}
	d := New(features, []string{"p0", "p1", "p2", "p3"}, Vocabulary{"[SEP]": 1}, "val")
	return d.WithOutcomes(
		[]Outcome{Present(5), Missing, Present(7), Missing},
		[]Outcome{Present(1), Present(2), Missing, Missing},
	)
}

func TestSelectEntriesKeepsArraysAligned(t *testing.T) {
	d := sampleDataset()

	out, err := d.SelectEntries([]int{3, 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"p3", "p1"}, out.PIDs)
	assert.Equal(t, [][]float64{{7, 8}, {4, 5}}, out.Features[ConceptKey])
	assert.Equal(t, [][]float64{{40, 41}, {20, 21}}, out.Features[AgeKey])
	assert.Equal(t, []Outcome{Missing, Missing}, out.Outcomes)
	assert.Equal(t, []Outcome{Missing, Present(2)}, out.CensorOutcomes)
	require.NoError(t, out.CheckLengths())

	// the source dataset is untouched
	assert.Len(t, d.PIDs, 4)
}

func TestSelectEntriesDeduplicates(t *testing.T) {
	out, err := sampleDataset().SelectEntries([]int{2, 0, 2, 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p0"}, out.PIDs)
	assert.Equal(t, 2, out.PositiveCount())
}

func TestSelectEntriesIsSubset(t *testing.T) {
	d := sampleDataset()
	out, err := d.SelectEntries([]int{0, 2})
	require.NoError(t, err)

	original := make(map[string]bool, d.Len())
	for _, pid := range d.PIDs {
		original[pid] = true
	}
	for _, pid := range out.PIDs {
		assert.True(t, original[pid], "pid %s not in source", pid)
	}
}

func TestSelectEntriesEmpty(t *testing.T) {
	out, err := sampleDataset().SelectEntries(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Empty(t, out.Features[ConceptKey])
	require.NoError(t, out.CheckLengths())
}

func TestSelectEntriesOutOfRange(t *testing.T) {
	_, err := sampleDataset().SelectEntries([]int{0, 4})
	require.Error(t, err)
	assert.True(t, IsInvariantError(err))

	_, err = sampleDataset().SelectEntries([]int{-1})
	assert.True(t, IsInvariantError(err))
}

func TestCheckLengths(t *testing.T) {
	d := sampleDataset()
	require.NoError(t, d.CheckLengths())

	short := d.WithOutcomes(d.Outcomes[:3], d.CensorOutcomes)
	assert.True(t, IsInvariantError(short.CheckLengths()))

	ragged := d.WithFeatures(Features{
		ConceptKey: d.Features[ConceptKey],
		AgeKey:     {{10, 11, 12}, {20}, {30}, {40, 41}},
	})
	err := ragged.CheckLengths()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p1")
}

func TestCheckVocabulary(t *testing.T) {
	d := New(Features{ConceptKey: {{0, 1}, {2}}}, []string{"a", "b"}, Vocabulary{"[PAD]": 0, "[SEP]": 1, "DIAG_A": 2}, "val")
	require.NoError(t, d.CheckVocabulary())

	d.Features[ConceptKey][1] = []float64{9}
	assert.True(t, IsInvariantError(d.CheckVocabulary()))
}

func TestFeaturesPatient(t *testing.T) {
	p := sampleDataset().Features.Patient(1)
	assert.Equal(t, []float64{4, 5}, p[ConceptKey])
	assert.Equal(t, []float64{20, 21}, p[AgeKey])
	assert.Equal(t, []string{AgeKey, ConceptKey}, sampleDataset().Features.Names())
}
