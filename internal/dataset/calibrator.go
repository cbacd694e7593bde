package dataset

import (
	"math"
	"time"

	"neuroscreen-go/internal/model"
)

// maxWeight caps the effect-size weight to bound its influence on downstream
// scoring.
const maxWeight = 5.0

// Calibrator derives a decision threshold and an importance weight from the
// two finalized per-class distributions of a metric.
type Calibrator struct{}

// NewCalibrator creates a Calibrator.
func NewCalibrator() *Calibrator {
	return &Calibrator{}
}

// Calibrate returns the threshold row for a metric, or ok=false when both
// class snapshots are empty. A metric observed in only one class still
// produces a row, with the empty class reported as zero mean/std and n=0.
func (c *Calibrator) Calibrate(datasetType, metric string, pos, neg Snapshot) (*model.ComputedThreshold, bool) {
	if pos.N == 0 && neg.N == 0 {
		return nil, false
	}

	total := float64(pos.N + neg.N)
	posShare, negShare := 0.5, 0.5
	if total > 0 {
		posShare = float64(pos.N) / total
		negShare = float64(neg.N) / total
	}

	// Cross-weighting by the opposite class's share pulls the cutoff toward
	// the less-represented class's mean, correcting for class imbalance.
	optimal := pos.Mean*negShare + neg.Mean*posShare

	// Cohen's d against the pooled standard deviation, zero when the pooled
	// std is zero, capped at maxWeight.
	weight := 0.0
	pooled := math.Sqrt((pos.Std*pos.Std + neg.Std*neg.Std) / 2)
	if pooled > 0 {
		weight = math.Abs(pos.Mean-neg.Mean) / pooled
		if weight > maxWeight {
			weight = maxWeight
		}
	}

	return &model.ComputedThreshold{
		DatasetType:        datasetType,
		MetricName:         metric,
		PositiveMean:       pos.Mean,
		PositiveStd:        pos.Std,
		NegativeMean:       neg.Mean,
		NegativeStd:        neg.Std,
		OptimalThreshold:   optimal,
		Weight:             weight,
		SampleSizePositive: pos.N,
		SampleSizeNegative: neg.N,
		ComputedAt:         time.Now(),
	}, true
}
