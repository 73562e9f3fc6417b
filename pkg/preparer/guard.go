package preparer

import (
	"math"
	"strings"

	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
)

// Smallest number of outcome-positive patients a split may hold after a stage
// that changes outcome composition.
const (
	MinTrainPositives = 10
	MinValPositives   = 5
)

func minPositivesFor(split string) int {
	if strings.HasPrefix(split, "train") {
		return MinTrainPositives
	}
	return MinValPositives
}

// CheckMinPositives fails when split has too few patients with an outcome.
func CheckMinPositives(split string, d *patientdata.Dataset) error {
	positives := d.PositiveCount()
	if threshold := minPositivesFor(split); positives < threshold {
		return patientdata.InvariantError("%d positive %s patients, need at least %d", positives, split, threshold)
	}
	return nil
}

// CheckMaxSegment fails when a segment id does not fit the model's segment
// embedding. capacity <= 0 disables the check.
func CheckMaxSegment(d *patientdata.Dataset, capacity int) error {
	if capacity <= 0 {
		return nil
	}
	maxSegment := math.Inf(-1)
	for _, seq := range d.Features[patientdata.SegmentKey] {
		for _, s := range seq {
			if s > maxSegment {
				maxSegment = s
			}
		}
	}
	if maxSegment >= float64(capacity) {
		return patientdata.InvariantError("max segment %v is not below type_vocab_size %d in %s, adjust type_vocab_size", maxSegment, capacity, d.Mode)
	}
	return nil
}
