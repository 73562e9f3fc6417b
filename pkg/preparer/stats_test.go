package preparer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/synaptica-ai/ehrprep/pkg/storage"
)

func TestSummarizeLengths(t *testing.T) {
	d := dataset([][]float64{{3}, {3, 4, 6}, {3, 4}}, nil)

	summary := SummarizeLengths(d)
	assert.Equal(t, 3, summary.Count)
	assert.InDelta(t, 2.0, summary.Mean, 1e-9)
	assert.InDelta(t, 2.0, summary.Median, 1e-9)
	assert.Equal(t, 1.0, summary.Min)
	assert.Equal(t, 3.0, summary.Max)
	assert.InDelta(t, 1.0, summary.StdDev, 1e-9)

	assert.Equal(t, LengthSummary{}, SummarizeLengths(dataset(nil, nil)))
}

func TestSequenceLengthRowsAndCounts(t *testing.T) {
	val := dataset([][]float64{{3}, {3, 4}}, nil).WithOutcomes(outcomes(-1, 2), nil)
	train := dataset([][]float64{{3}}, nil)

	assert.Equal(t, []storage.SequenceLengthRow{
		{PID: "a", Length: 1, Positive: false},
		{PID: "b", Length: 2, Positive: true},
	}, SequenceLengthRows(val))

	assert.Equal(t, []storage.PatientCount{
		{Split: "train", Total: 1, Positive: 0},
		{Split: "val", Total: 2, Positive: 1},
	}, PatientCounts(Splits{"val": val, "train": train}))
}
