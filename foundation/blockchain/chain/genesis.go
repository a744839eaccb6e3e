package chain

import (
	"fmt"

	"github.com/trinitychain/trinitychain/foundation/blockchain/geometry"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

// Genesis parameters. Every node derives the identical genesis block from
// these; a node whose computed genesis hash differs refuses to start.
const (
	// GenesisTimestamp is 2024-01-01 00:00:00 UTC.
	GenesisTimestamp int64 = 1_704_067_200

	// GenesisDifficulty is the difficulty the chain starts at.
	GenesisDifficulty uint64 = 2

	// GenesisOwner is the designated null owner of the genesis triangle.
	GenesisOwner = "genesis_owner"

	// GenesisHash is the published hash of the genesis block.
	GenesisHash = "5a9944fb53acf4e52c9219725acf2fbc29a67355d5c031a0783f75f8ad9425d8"
)

// GenesisTriangle returns the root triangle all lineage descends from.
func GenesisTriangle() geometry.Triangle {
	return geometry.NewTriangle(
		geometry.NewPoint(0.0, 0.0),
		geometry.NewPoint(1.0, 0.0),
		geometry.NewPoint(0.5, 0.866025403784),
		nil,
		GenesisOwner,
	)
}

// GenesisBlock derives the genesis block. It carries no transactions, a
// zero previous hash and a zero merkle root.
func GenesisBlock() Block {
	b := Block{
		Header: BlockHeader{
			Height:       0,
			PreviousHash: transaction.Hash{},
			Timestamp:    GenesisTimestamp,
			Difficulty:   GenesisDifficulty,
			Nonce:        0,
			MerkleRoot:   transaction.Hash{},
		},
	}
	b.BlockHash = b.Header.Hash()
	return b
}

// verifyGenesis checks the derived genesis block against the published
// hash. A divergence means the node is configured for a different chain.
func verifyGenesis(b Block) error {
	expected, err := transaction.ParseHash(GenesisHash)
	if err != nil {
		return fmt.Errorf("parsing published genesis hash: %w", err)
	}
	if b.BlockHash != expected {
		return fmt.Errorf("computed genesis hash %s diverges from published %s", b.BlockHash, GenesisHash)
	}
	return nil
}
