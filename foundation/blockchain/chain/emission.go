package chain

// Emission schedule parameters.
const (
	// BaseReward is the coinbase reward in area units before any halving.
	BaseReward uint64 = 1000

	// HalvingInterval is the number of blocks between reward halvings.
	HalvingInterval uint64 = 210_000

	// MaxSupply caps the cumulative emission in area units.
	MaxSupply uint64 = BaseReward * HalvingInterval * 2

	// maxHalvings bounds the shift count to the width of uint64. The integer
	// reward itself is already zero from era 10 on (1000 >> 10 == 0).
	maxHalvings uint64 = 64
)

// Emission returns the coinbase reward available at a block height.
func Emission(height uint64) uint64 {
	halvings := height / HalvingInterval
	if halvings >= maxHalvings {
		return 0
	}
	return BaseReward >> halvings
}

// CurrentSupply returns the total emission over blocks 1..height, walking
// the halving eras in closed form.
func CurrentSupply(height uint64) uint64 {
	var total uint64

	for era := uint64(0); era < maxHalvings; era++ {
		eraStart := era*HalvingInterval + 1
		if eraStart > height {
			break
		}

		eraEnd := (era + 1) * HalvingInterval
		if eraEnd > height {
			eraEnd = height
		}

		reward := BaseReward >> era
		if reward == 0 {
			break
		}

		total += (eraEnd - eraStart + 1) * reward
	}

	if total > MaxSupply {
		return MaxSupply
	}
	return total
}

// RemainingSupply returns the emission still to be mined after height.
func RemainingSupply(height uint64) uint64 {
	return MaxSupply - CurrentSupply(height)
}

// HalvingEra returns the halving era a height falls in.
func HalvingEra(height uint64) uint64 {
	return height / HalvingInterval
}

// BlocksUntilHalving returns how many blocks remain before the next
// halving.
func BlocksUntilHalving(height uint64) uint64 {
	next := (HalvingEra(height) + 1) * HalvingInterval
	return next - height
}
