package network

import (
	"sync"

	"github.com/trinitychain/trinitychain/foundation/blockchain/chain"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

// MaxOrphans bounds the memory a flood of parentless blocks can pin.
const MaxOrphans = 256

// orphanPool queues structurally valid blocks whose lineage has not
// resolved yet. Beyond the cap the oldest entry is evicted first.
type orphanPool struct {
	mu    sync.Mutex
	order []transaction.Hash
	pool  map[transaction.Hash]chain.Block
}

func newOrphanPool() *orphanPool {
	return &orphanPool{
		pool: make(map[transaction.Hash]chain.Block),
	}
}

// add queues an orphan, FIFO-evicting when full.
func (op *orphanPool) add(b chain.Block) {
	op.mu.Lock()
	defer op.mu.Unlock()

	if _, exists := op.pool[b.BlockHash]; exists {
		return
	}

	for len(op.order) >= MaxOrphans {
		oldest := op.order[0]
		op.order = op.order[1:]
		delete(op.pool, oldest)
	}

	op.order = append(op.order, b.BlockHash)
	op.pool[b.BlockHash] = b
}

// take removes and returns the queued orphans in arrival order.
func (op *orphanPool) take() []chain.Block {
	op.mu.Lock()
	defer op.mu.Unlock()

	blocks := make([]chain.Block, 0, len(op.order))
	for _, hash := range op.order {
		blocks = append(blocks, op.pool[hash])
	}
	op.order = nil
	op.pool = make(map[transaction.Hash]chain.Block)

	return blocks
}
