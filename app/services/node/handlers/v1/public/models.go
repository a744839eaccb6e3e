package public

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/trinitychain/trinitychain/foundation/blockchain/geometry"
)

var errNoBlock = errors.New("no block at that height")

// nodeStatus is the public view of the node.
type nodeStatus struct {
	NodeID             string  `json:"node_id"`
	Height             uint64  `json:"height"`
	TipHash            string  `json:"tip_hash"`
	Difficulty         uint64  `json:"difficulty"`
	MempoolSize        int     `json:"mempool_size"`
	KnownPeers         int     `json:"known_peers"`
	CurrentSupply      uint64  `json:"current_supply"`
	MaxSupply          uint64  `json:"max_supply"`
	HalvingEra         uint64  `json:"halving_era"`
	BlocksUntilHalving uint64  `json:"blocks_until_halving"`
}

// balance is the response for a balance query.
type balance struct {
	Address string  `json:"address"`
	Balance float64 `json:"balance"`
}

// ownedTriangle is one UTXO entry in a triangles query.
type ownedTriangle struct {
	OutputID       string            `json:"output_id"`
	Triangle       geometry.Triangle `json:"triangle"`
	Area           float64           `json:"area"`
	EffectiveValue float64           `json:"effective_value"`
}

// submitResult acknowledges a mempool admission.
type submitResult struct {
	Status string `json:"status"`
	Hash   string `json:"hash"`
}

// parseHeight parses a height path parameter.
func parseHeight(s string) (uint64, error) {
	height, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid height %q", s)
	}
	return height, nil
}
