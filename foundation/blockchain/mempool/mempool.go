// Package mempool maintains the pool of pending transactions waiting to be
// mined into a block.
package mempool

import (
	"fmt"
	"sync"

	"github.com/trinitychain/trinitychain/foundation/blockchain/mempool/selector"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
	"github.com/trinitychain/trinitychain/foundation/blockchain/utxo"
)

// MaxTransactions bounds the number of transactions held in the pool.
const MaxTransactions = 10_000

// MaxPerAddress bounds the pending transactions from a single address.
const MaxPerAddress = 100

// evictBatch is the number of lowest-fee transactions removed in one pass
// when the pool is full.
const evictBatch = MaxTransactions / 10

// Mempool represents a cache of pending transactions keyed by hash.
type Mempool struct {
	mu        sync.RWMutex
	pool      map[transaction.Hash]transaction.Tx
	byAddress map[string]int
	selectFn  selector.Func
}

// New constructs a new mempool using the default fee strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyFee)
}

// NewWithStrategy constructs a new mempool with the specified strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:      make(map[transaction.Hash]transaction.Tx),
		byAddress: make(map[string]int),
		selectFn:  selectFn,
	}

	return &mp, nil
}

// Size returns the current number of transactions in the pool.
func (mp *Mempool) Size() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Contains reports whether the pool holds the transaction.
func (mp *Mempool) Contains(hash transaction.Hash) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[hash]
	return exists
}

// Add admits a transaction: stateless validation first, then the state
// preconditions against the supplied UTXO state. On acceptance the
// transaction is stored keyed by its hash and the hash is returned.
func (mp *Mempool) Add(tx transaction.Tx, state *utxo.TriangleState) (transaction.Hash, error) {
	if tx.Kind == transaction.KindCoinbase {
		return transaction.Hash{}, transaction.NewInvalidTransaction("coinbase transactions cannot be added to mempool")
	}

	if err := tx.Validate(); err != nil {
		return transaction.Hash{}, err
	}

	if err := checkState(tx, state); err != nil {
		return transaction.Hash{}, err
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	hash := tx.Hash()
	if _, exists := mp.pool[hash]; exists {
		return transaction.Hash{}, transaction.NewInvalidTransaction("transaction already in mempool")
	}

	sender, _ := tx.Sender()
	if mp.byAddress[sender] >= MaxPerAddress {
		return transaction.Hash{}, transaction.NewInvalidTransaction(fmt.Sprintf("address has reached mempool limit of %d", MaxPerAddress))
	}

	if len(mp.pool) >= MaxTransactions {
		lowestRetained := mp.evictLowestFees()
		if tx.FeeArea() < lowestRetained {
			return transaction.Hash{}, transaction.NewInvalidTransaction("transaction fee below mempool floor")
		}
	}

	mp.pool[hash] = tx
	mp.byAddress[sender]++

	return hash, nil
}

// evictLowestFees removes the lowest-fee tenth of the pool in one batch and
// returns the lowest fee still retained. Batching amortizes the cost so a
// full pool does not pay a scan per admission.
func (mp *Mempool) evictLowestFees() float64 {
	type feePair struct {
		fee  float64
		hash transaction.Hash
	}

	pairs := make([]feePair, 0, len(mp.pool))
	for hash, tx := range mp.pool {
		pairs = append(pairs, feePair{fee: tx.FeeArea(), hash: hash})
	}

	n := evictBatch
	if n > len(pairs) {
		n = len(pairs)
	}

	selector.Quickselect(pairs, n, func(a, b feePair) bool {
		if a.fee != b.fee {
			return a.fee < b.fee
		}
		return a.hash.String() < b.hash.String()
	})

	for _, pair := range pairs[:n] {
		mp.deleteLocked(pair.hash)
	}

	lowestRetained := 0.0
	for i, pair := range pairs[n:] {
		if i == 0 || pair.fee < lowestRetained {
			lowestRetained = pair.fee
		}
	}
	return lowestRetained
}

// SelectTop returns up to k transactions with the highest fees, ties broken
// by nonce then hash so every node selects identically.
func (mp *Mempool) SelectTop(k int) []transaction.Tx {
	mp.mu.RLock()
	txs := make([]transaction.Tx, 0, len(mp.pool))
	for _, tx := range mp.pool {
		txs = append(txs, tx)
	}
	mp.mu.RUnlock()

	return mp.selectFn(txs, k)
}

// Remove drops the given transaction hashes, typically after inclusion in
// an applied block.
func (mp *Mempool) Remove(hashes []transaction.Hash) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, hash := range hashes {
		mp.deleteLocked(hash)
	}
}

// RevalidateAgainst drops every transaction whose state precondition no
// longer holds, returning how many were removed. Called after a block apply
// or a reorganization.
func (mp *Mempool) RevalidateAgainst(state *utxo.TriangleState) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var toRemove []transaction.Hash
	for hash, tx := range mp.pool {
		if checkState(tx, state) != nil {
			toRemove = append(toRemove, hash)
		}
	}

	for _, hash := range toRemove {
		mp.deleteLocked(hash)
	}

	return len(toRemove)
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[transaction.Hash]transaction.Tx)
	mp.byAddress = make(map[string]int)
}

// Copy returns a snapshot of the pending transactions.
func (mp *Mempool) Copy() []transaction.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	txs := make([]transaction.Tx, 0, len(mp.pool))
	for _, tx := range mp.pool {
		txs = append(txs, tx)
	}
	return txs
}

// =============================================================================

// deleteLocked removes one entry and maintains the per-address counts. The
// caller holds the write lock.
func (mp *Mempool) deleteLocked(hash transaction.Hash) {
	tx, exists := mp.pool[hash]
	if !exists {
		return
	}
	delete(mp.pool, hash)

	if sender, ok := tx.Sender(); ok {
		mp.byAddress[sender]--
		if mp.byAddress[sender] <= 0 {
			delete(mp.byAddress, sender)
		}
	}
}

// checkState validates a transaction's state preconditions.
func checkState(tx transaction.Tx, state *utxo.TriangleState) error {
	switch tx.Kind {
	case transaction.KindTransfer:
		return state.CheckTransfer(tx.Transfer)
	case transaction.KindSubdivision:
		return state.CheckSubdivision(tx.Subdivision)
	case transaction.KindCoinbase:
		return transaction.NewInvalidTransaction("coinbase transactions do not belong in the mempool")
	}
	return transaction.NewInvalidTransaction(fmt.Sprintf("unknown transaction kind %q", tx.Kind))
}
