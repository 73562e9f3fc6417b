package patientdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testVocab = Vocabulary{
	"[PAD]":            0,
	"[CLS]":            1,
	"[SEP]":            2,
	"BG_GENDER_Mand":   3,
	"BG_GENDER_Kvinde": 4,
	"DIAG_A":           5,
	"MED_B":            6,
}

func TestSpecialAndBackgroundIDs(t *testing.T) {
	special := testVocab.SpecialIDs()
	for _, id := range []int{0, 1, 2, 3, 4} {
		assert.True(t, special.Contains(id), "id %d", id)
	}
	assert.False(t, special.Contains(5))

	background := testVocab.BackgroundIDs()
	assert.Len(t, background, 2)
	assert.False(t, background.Contains(2))
}

func TestTokensOrderedByID(t *testing.T) {
	tokens := testVocab.Tokens()
	require.Len(t, tokens, len(testVocab))
	assert.Equal(t, "[PAD]", tokens[0])
	assert.Equal(t, "MED_B", tokens[len(tokens)-1])
}

func TestGenderToken(t *testing.T) {
	id, err := GenderToken(testVocab, "M")
	require.NoError(t, err)
	assert.Equal(t, 3, id)

	id, err = GenderToken(testVocab, "female")
	require.NoError(t, err)
	assert.Equal(t, 4, id)

	_, err = GenderToken(testVocab, "X")
	assert.True(t, IsConfigurationError(err))

	_, err = GenderToken(Vocabulary{"[PAD]": 0}, "M")
	assert.True(t, IsConfigurationError(err))
}

func TestResolveGender(t *testing.T) {
	category, ok := ResolveGender("Kvinde")
	require.True(t, ok)
	assert.Equal(t, "female", category)

	category, ok = ResolveGender("1")
	require.True(t, ok)
	assert.Equal(t, "male", category)

	_, ok = ResolveGender("")
	assert.False(t, ok)
}
