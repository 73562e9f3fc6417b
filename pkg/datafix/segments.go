package datafix

import "sort"

// NormalizeSegments renumbers segment ids so the smallest becomes 1 and each
// following distinct id increases by one. Event order is untouched.
func NormalizeSegments(segments []float64) []float64 {
	distinct := make([]float64, 0, len(segments))
	seen := make(map[float64]struct{}, len(segments))
	for _, s := range segments {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		distinct = append(distinct, s)
	}
	sort.Float64s(distinct)

	rank := make(map[float64]float64, len(distinct))
	for i, s := range distinct {
		rank[s] = float64(i + 1)
	}
	out := make([]float64, len(segments))
	for i, s := range segments {
		out[i] = rank[s]
	}
	return out
}
