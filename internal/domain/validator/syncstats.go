package validator

import (
	"math"
	"sort"

	"github.com/ShagaDAO/gap/internal/domain/model"
)

const syncToleranceMS = 8.0

// ComputeSyncStats measures how far each control timestamp sits from the
// nearest frame boundary of a fps-rate clock that started at t0 (µs).
// It returns nil when there is nothing to measure.
func ComputeSyncStats(ts []int64, fps float64, t0 int64) *model.SyncStats {
	if len(ts) == 0 || fps <= 0 {
		return nil
	}
	interval := 1e6 / fps
	deltas := make([]float64, len(ts))
	var sum float64
	within := 0
	for i, t := range ts {
		rel := float64(t - t0)
		frame := float64(t0) + math.RoundToEven(rel/interval)*interval
		d := math.Abs(float64(t)-frame) / 1000
		deltas[i] = d
		sum += d
		if d <= syncToleranceMS {
			within++
		}
	}
	sort.Float64s(deltas)
	return &model.SyncStats{
		MeanDeltaMS:   sum / float64(len(deltas)),
		MedianDeltaMS: quantile(deltas, 0.5),
		MaxDeltaMS:    deltas[len(deltas)-1],
		P95DeltaMS:    quantile(deltas, 0.95),
		Within8msPct:  float64(within) / float64(len(deltas)) * 100,
		Samples:       len(deltas),
	}
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
