// Package selector provides transaction selecting algorithms for block
// assembly.
package selector

import (
	"fmt"
	"sort"

	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

// List of different select strategies.
const (
	StrategyFee = "fee"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyFee: feeSelect,
}

// Func defines a function that takes the pool's transactions and selects
// howMany of them in an order based on the function's strategy. Receiving -1
// for howMany must return all the transactions in the strategy's ordering.
type Func func(txs []transaction.Tx, howMany int) []transaction.Tx

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// byPriority orders transactions highest fee first, breaking ties by nonce
// ascending and then by hash ascending so selection is deterministic.
func byPriority(a, b transaction.Tx) bool {
	af, bf := a.FeeArea(), b.FeeArea()
	if af != bf {
		return af > bf
	}
	an, bn := a.Nonce(), b.Nonce()
	if an != bn {
		return an < bn
	}
	return a.Hash().String() < b.Hash().String()
}

// feeSelect returns up to howMany transactions with the highest fees. A
// quickselect pass partitions the top candidates first so the sort only
// touches howMany entries.
func feeSelect(txs []transaction.Tx, howMany int) []transaction.Tx {
	if howMany < 0 || howMany > len(txs) {
		howMany = len(txs)
	}
	if howMany == 0 {
		return nil
	}

	picked := make([]transaction.Tx, len(txs))
	copy(picked, txs)

	Quickselect(picked, howMany, byPriority)
	picked = picked[:howMany]

	sort.Slice(picked, func(i, j int) bool {
		return byPriority(picked[i], picked[j])
	})

	return picked
}

// =============================================================================

// Quickselect partitions items so the k entries that come first under less
// occupy items[:k], in no particular order. Average O(n), which keeps
// repeated top-k selection cheaper than a full sort.
func Quickselect[T any](items []T, k int, less func(a, b T) bool) {
	lo, hi := 0, len(items)-1
	for lo < hi {
		p := partition(items, lo, hi, less)
		switch {
		case p == k-1:
			return
		case p < k-1:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
}

// partition uses a median-of-three pivot to avoid quadratic behavior on
// already-ordered input.
func partition[T any](items []T, lo, hi int, less func(a, b T) bool) int {
	mid := lo + (hi-lo)/2
	if less(items[mid], items[lo]) {
		items[mid], items[lo] = items[lo], items[mid]
	}
	if less(items[hi], items[lo]) {
		items[hi], items[lo] = items[lo], items[hi]
	}
	if less(items[hi], items[mid]) {
		items[hi], items[mid] = items[mid], items[hi]
	}
	items[mid], items[hi] = items[hi], items[mid]

	pivot := items[hi]
	i := lo
	for j := lo; j < hi; j++ {
		if less(items[j], pivot) {
			items[i], items[j] = items[j], items[i]
			i++
		}
	}
	items[i], items[hi] = items[hi], items[i]
	return i
}
