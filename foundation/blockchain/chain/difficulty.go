package chain

import "math"

// Difficulty retargeting parameters.
const (
	// TargetBlockTimeSeconds is the block interval the retarget steers to.
	TargetBlockTimeSeconds int64 = 60

	// DifficultyAdjustmentWindow is the number of blocks between retargets.
	DifficultyAdjustmentWindow uint64 = 2016

	// MinDifficulty and MaxDifficulty bound the nibble count.
	MinDifficulty uint64 = 1
	MaxDifficulty uint64 = 256
)

// retargetDifficulty computes the next difficulty from the timestamps
// spanning the last adjustment window. The adjustment ratio is clamped to
// [1/4, 4] per period, and the result to [1, 256]; the math depends only on
// block timestamps so every node derives the same value.
func retargetDifficulty(old uint64, firstTimestamp, lastTimestamp int64) uint64 {
	actual := lastTimestamp - firstTimestamp
	if actual < 1 {
		actual = 1
	}

	expected := int64(DifficultyAdjustmentWindow) * TargetBlockTimeSeconds

	factor := float64(expected) / float64(actual)
	factor = math.Max(0.25, math.Min(4.0, factor))

	next := uint64(math.Round(float64(old) * factor))

	if lower := old / 4; next < lower {
		next = lower
	}
	if upper := old * 4; next > upper {
		next = upper
	}
	if next < MinDifficulty {
		next = MinDifficulty
	}
	if next > MaxDifficulty {
		next = MaxDifficulty
	}

	return next
}
