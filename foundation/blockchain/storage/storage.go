// Package storage defines the persistence boundary for the chain. The
// engine only ever appends blocks and replays them at startup; everything
// else about durability is the store's business.
package storage

import (
	"github.com/trinitychain/trinitychain/foundation/blockchain/chain"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

// Store represents the behavior required to be implemented by any package
// providing durable block storage. Append must be durable before it
// returns.
type Store interface {
	Append(block chain.Block) error
	LoadAll() ([]chain.Block, error)
	Height() (uint64, error)
	Tip() (transaction.Hash, error)
	Close() error
}
