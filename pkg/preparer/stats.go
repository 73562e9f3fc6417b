package preparer

import (
	"sort"

	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
	"github.com/synaptica-ai/ehrprep/pkg/storage"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type LengthSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// SummarizeLengths describes the distribution of sequence lengths in d.
func SummarizeLengths(d *patientdata.Dataset) LengthSummary {
	lengths := make([]float64, 0, d.Len())
	for _, seq := range d.Concepts() {
		lengths = append(lengths, float64(len(seq)))
	}
	if len(lengths) == 0 {
		return LengthSummary{}
	}
	sort.Float64s(lengths)
	summary := LengthSummary{
		Count:  len(lengths),
		Mean:   stat.Mean(lengths, nil),
		Median: stat.Quantile(0.5, stat.Empirical, lengths, nil),
		Min:    floats.Min(lengths),
		Max:    floats.Max(lengths),
	}
	if len(lengths) > 1 {
		summary.StdDev = stat.StdDev(lengths, nil)
	}
	return summary
}

// SequenceLengthRows lists every patient's sequence length and outcome status.
func SequenceLengthRows(d *patientdata.Dataset) []storage.SequenceLengthRow {
	rows := make([]storage.SequenceLengthRow, d.Len())
	for i, seq := range d.Concepts() {
		rows[i] = storage.SequenceLengthRow{
			PID:    d.PIDs[i],
			Length: int64(len(seq)),
		}
		if d.Outcomes != nil {
			rows[i].Positive = d.Outcomes[i].IsPresent()
		}
	}
	return rows
}

// PatientCounts returns total and positive patients per split.
func PatientCounts(splits Splits) []storage.PatientCount {
	counts := make([]storage.PatientCount, 0, len(splits))
	for _, name := range splits.Names() {
		d := splits[name]
		counts = append(counts, storage.PatientCount{
			Split:    name,
			Total:    d.Len(),
			Positive: d.PositiveCount(),
		})
	}
	return counts
}
