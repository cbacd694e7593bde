package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrateBalancedClasses(t *testing.T) {
	c := NewCalibrator()
	pos := Snapshot{Mean: 310, Std: 20, N: 10}
	neg := Snapshot{Mean: 190, Std: 20, N: 10}

	row, ok := c.Calibrate("dyscalculia", "response_time_avg", pos, neg)
	require.True(t, ok)

	// Equal shares reduce the cross-weighting to the midpoint.
	assert.InDelta(t, 250, row.OptimalThreshold, 1e-9)
	assert.InDelta(t, 310, row.PositiveMean, 1e-9)
	assert.InDelta(t, 190, row.NegativeMean, 1e-9)
	assert.Equal(t, 10, row.SampleSizePositive)
	assert.Equal(t, 10, row.SampleSizeNegative)
	// d = |310-190| / 20 = 6, capped at 5.
	assert.InDelta(t, 5, row.Weight, 1e-9)
}

func TestCalibrateImbalancePullsTowardMinorityMean(t *testing.T) {
	c := NewCalibrator()
	pos := Snapshot{Mean: 300, Std: 10, N: 5}
	neg := Snapshot{Mean: 200, Std: 10, N: 95}

	row, ok := c.Calibrate("dyslexia", "m", pos, neg)
	require.True(t, ok)

	midpoint := 250.0
	// The positive class is the minority here, so the cutoff must sit closer
	// to its mean than the midpoint does.
	assert.Greater(t, row.OptimalThreshold, midpoint)
	assert.Less(t, row.OptimalThreshold, pos.Mean)
	// pos.Mean*(95/100) + neg.Mean*(5/100)
	assert.InDelta(t, 295, row.OptimalThreshold, 1e-9)
}

func TestCalibrateEqualMeansInvariantUnderImbalance(t *testing.T) {
	c := NewCalibrator()
	for _, negN := range []int{1, 10, 100, 1000} {
		pos := Snapshot{Mean: 50, Std: 5, N: 10}
		neg := Snapshot{Mean: 50, Std: 8, N: negN}
		row, ok := c.Calibrate("dyslexia", "m", pos, neg)
		require.True(t, ok)
		assert.InDelta(t, 50, row.OptimalThreshold, 1e-9, "negN=%d", negN)
	}
}

func TestCalibrateWeightRange(t *testing.T) {
	c := NewCalibrator()
	cases := []struct {
		pos, neg Snapshot
	}{
		{Snapshot{Mean: 1, Std: 1, N: 5}, Snapshot{Mean: 2, Std: 1, N: 5}},
		{Snapshot{Mean: 0, Std: 0.001, N: 5}, Snapshot{Mean: 1000, Std: 0.001, N: 5}},
		{Snapshot{Mean: 5, Std: 3, N: 5}, Snapshot{Mean: 5, Std: 3, N: 5}},
	}
	for _, tc := range cases {
		row, ok := c.Calibrate("dyslexia", "m", tc.pos, tc.neg)
		require.True(t, ok)
		assert.GreaterOrEqual(t, row.Weight, 0.0)
		assert.LessOrEqual(t, row.Weight, 5.0)
	}
}

func TestCalibrateZeroPooledStd(t *testing.T) {
	c := NewCalibrator()
	pos := Snapshot{Mean: 10, Std: 0, N: 3}
	neg := Snapshot{Mean: 20, Std: 0, N: 3}

	row, ok := c.Calibrate("dyslexia", "m", pos, neg)
	require.True(t, ok)
	assert.Zero(t, row.Weight)
	assert.False(t, math.IsNaN(row.Weight))
	assert.InDelta(t, 15, row.OptimalThreshold, 1e-9)
}

func TestCalibrateOneSidedMetric(t *testing.T) {
	c := NewCalibrator()
	pos := Snapshot{Mean: 12.5, Std: 2, N: 4}
	neg := Snapshot{} // metric never observed for negatives

	row, ok := c.Calibrate("dysgraphia", "tremor_index", pos, neg)
	require.True(t, ok)
	assert.Zero(t, row.NegativeMean)
	assert.Zero(t, row.SampleSizeNegative)
	// All observations are positive, so negShare is 0 and the cutoff
	// collapses onto the negative (empty) side's contribution.
	assert.InDelta(t, 0, row.OptimalThreshold, 1e-9)
	assert.False(t, math.IsNaN(row.OptimalThreshold))
}

func TestCalibrateBothEmpty(t *testing.T) {
	c := NewCalibrator()
	row, ok := c.Calibrate("dyslexia", "m", Snapshot{}, Snapshot{})
	assert.False(t, ok)
	assert.Nil(t, row)
}
