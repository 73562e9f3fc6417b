package preparer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
)

func TestOneHotIndexSkipsBracketTokens(t *testing.T) {
	index := NewOneHotIndex(stageVocab)

	// BG_GENDER_M(2) DIAG_A(3) DIAG_B(4) BG_GENDER_F(5) MED_C(6)
	assert.Equal(t, 6, index.Width())
	assert.Equal(t, patientdata.Vocabulary{
		"BG_GENDER_M": 0,
		"DIAG_A":      1,
		"DIAG_B":      2,
		"BG_GENDER_F": 3,
		"MED_C":       4,
	}, index.Vocabulary)
}

func TestEncodeOneHot(t *testing.T) {
	d := dataset([][]float64{{7, 2, 1, 3, 3}, {7, 5, 1, 6}}, patientdata.Features{
		patientdata.AgeKey: {{0, 0, 0, 40, 41}, {0, 0, 0, 70}},
	}).WithOutcomes(outcomes(-1, 12), nil)

	x, y, err := EncodeOneHot(d, NewOneHotIndex(stageVocab))
	require.NoError(t, err)

	rows, cols := x.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 6, cols)
	assert.Equal(t, []float64{41, 1, 1, 0, 0, 0}, x.RawRowView(0))
	assert.Equal(t, []float64{70, 0, 0, 0, 1, 1}, x.RawRowView(1))
	assert.Equal(t, []float64{0, 1}, y)
}

func TestEncodeOneHotEmpty(t *testing.T) {
	_, _, err := EncodeOneHot(dataset(nil, nil), NewOneHotIndex(stageVocab))
	assert.True(t, patientdata.IsInvariantError(err))
}
