// Package utxo maintains the triangle state: the canonical set of unspent
// triangle outputs keyed by synthetic output id, with a materialized
// address index kept consistent by every mutation.
package utxo

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/trinitychain/trinitychain/foundation/blockchain/geometry"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

// TriangleState is the UTXO set over triangles. It is not safe for
// concurrent use; the chain engine serializes access behind its lock.
type TriangleState struct {
	utxoSet      map[transaction.Hash]geometry.Triangle
	addressIndex map[string]map[transaction.Hash]struct{}
}

// New constructs an empty triangle state.
func New() *TriangleState {
	return &TriangleState{
		utxoSet:      make(map[transaction.Hash]geometry.Triangle),
		addressIndex: make(map[string]map[transaction.Hash]struct{}),
	}
}

// Clone produces a deep copy for use as a working state during validation
// or block application. Mutations to the clone are never visible to the
// original.
func (ts *TriangleState) Clone() *TriangleState {
	clone := &TriangleState{
		utxoSet:      make(map[transaction.Hash]geometry.Triangle, len(ts.utxoSet)),
		addressIndex: make(map[string]map[transaction.Hash]struct{}, len(ts.addressIndex)),
	}
	for id, tri := range ts.utxoSet {
		clone.utxoSet[id] = tri
	}
	for addr, ids := range ts.addressIndex {
		set := make(map[transaction.Hash]struct{}, len(ids))
		for id := range ids {
			set[id] = struct{}{}
		}
		clone.addressIndex[addr] = set
	}
	return clone
}

// Count returns the number of unspent outputs.
func (ts *TriangleState) Count() int {
	return len(ts.utxoSet)
}

// Get returns the triangle stored under the output id.
func (ts *TriangleState) Get(id transaction.Hash) (geometry.Triangle, bool) {
	tri, exists := ts.utxoSet[id]
	return tri, exists
}

// TrianglesOf returns the output ids and triangles owned by an address as
// a map, which carries no order; OutputIDsOf returns the ids sorted.
func (ts *TriangleState) TrianglesOf(address string) map[transaction.Hash]geometry.Triangle {
	owned := make(map[transaction.Hash]geometry.Triangle)
	for id := range ts.addressIndex[address] {
		if tri, exists := ts.utxoSet[id]; exists {
			owned[id] = tri
		}
	}
	return owned
}

// OutputIDsOf returns the sorted output ids owned by an address.
func (ts *TriangleState) OutputIDsOf(address string) []transaction.Hash {
	ids := make([]transaction.Hash, 0, len(ts.addressIndex[address]))
	for id := range ts.addressIndex[address] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}

// Balance sums the effective values of the triangles owned by an address.
func (ts *TriangleState) Balance(address string) float64 {
	var total float64
	for id := range ts.addressIndex[address] {
		if tri, exists := ts.utxoSet[id]; exists {
			total += tri.EffectiveValue()
		}
	}
	return total
}

// =============================================================================

// Insert adds an output under the given id. Duplicate ids fail so a
// transaction can never silently overwrite an existing output.
func (ts *TriangleState) Insert(id transaction.Hash, tri geometry.Triangle) error {
	if _, exists := ts.utxoSet[id]; exists {
		return transaction.NewInvalidTransaction(fmt.Sprintf("output id collision on %s", id))
	}

	ts.utxoSet[id] = tri

	set, exists := ts.addressIndex[tri.Owner]
	if !exists {
		set = make(map[transaction.Hash]struct{})
		ts.addressIndex[tri.Owner] = set
	}
	set[id] = struct{}{}

	return nil
}

// remove deletes an output and its index entry.
func (ts *TriangleState) remove(id transaction.Hash) {
	tri, exists := ts.utxoSet[id]
	if !exists {
		return
	}
	delete(ts.utxoSet, id)

	if set, exists := ts.addressIndex[tri.Owner]; exists {
		delete(set, id)
		if len(set) == 0 {
			delete(ts.addressIndex, tri.Owner)
		}
	}
}

// =============================================================================

// CheckTransfer validates a transfer's state preconditions without
// mutating: the input must exist, belong to the sender, and retain at
// least the tolerance after the fee.
func (ts *TriangleState) CheckTransfer(tr *transaction.TransferTx) error {
	input, exists := ts.utxoSet[tr.InputHash]
	if !exists {
		return NewTriangleNotFound(tr.InputHash)
	}

	if input.Owner != tr.Sender {
		return transaction.NewInvalidTransaction(fmt.Sprintf("sender %s does not own input (owned by %s)", tr.Sender, input.Owner))
	}

	oldValue := input.EffectiveValue()
	remaining := oldValue - tr.FeeArea
	if remaining < geometry.Tolerance {
		return transaction.NewInvalidTransaction(fmt.Sprintf("insufficient triangle value: input has %.9f but fee_area is %.9f", oldValue, tr.FeeArea))
	}

	return nil
}

// ApplyTransfer spends the input output and materializes output 0 of the
// transfer: identical geometry, new owner, explicit value reduced by the
// fee. The spend and the insert are one logical step.
func (ts *TriangleState) ApplyTransfer(tr *transaction.TransferTx, txHash transaction.Hash) error {
	if err := ts.CheckTransfer(tr); err != nil {
		return err
	}

	outputID := transaction.OutputID(txHash, 0)
	if _, exists := ts.utxoSet[outputID]; exists {
		return transaction.NewInvalidTransaction(fmt.Sprintf("output id collision on %s", outputID))
	}

	input := ts.utxoSet[tr.InputHash]
	newValue := input.EffectiveValue() - tr.FeeArea

	ts.remove(tr.InputHash)

	successor := geometry.NewTriangleWithValue(input.A, input.B, input.C, input.ParentHash, tr.NewOwner, newValue)
	return ts.Insert(outputID, successor)
}

// =============================================================================

// CheckSubdivision validates a subdivision's state preconditions without
// mutating: the parent must exist, belong to the owner, and the declared
// children must match the midpoint construction within tolerance.
func (ts *TriangleState) CheckSubdivision(sub *transaction.SubdivisionTx) error {
	parent, exists := ts.utxoSet[sub.ParentHash]
	if !exists {
		return NewTriangleNotFound(sub.ParentHash)
	}

	if parent.Owner != sub.Owner {
		return transaction.NewInvalidTransaction(fmt.Sprintf("owner %s does not own parent (owned by %s)", sub.Owner, parent.Owner))
	}

	if len(sub.Children) != 3 {
		return transaction.NewInvalidTransaction("subdivision must produce exactly 3 children")
	}

	expected := parent.Subdivide()
	for i, child := range sub.Children {
		if !child.Equals(expected[i]) {
			return transaction.NewInvalidTransaction(fmt.Sprintf("child %d geometry does not match expected subdivision", i))
		}
	}

	return nil
}

// ApplySubdivision spends the parent output and materializes the three
// corner children as outputs 0..2. The canonical computed children are
// inserted, so sub-tolerance perturbations in the declared children never
// reach the state.
func (ts *TriangleState) ApplySubdivision(sub *transaction.SubdivisionTx, txHash transaction.Hash) error {
	if err := ts.CheckSubdivision(sub); err != nil {
		return err
	}

	outputIDs := [3]transaction.Hash{
		transaction.OutputID(txHash, 0),
		transaction.OutputID(txHash, 1),
		transaction.OutputID(txHash, 2),
	}
	for _, id := range outputIDs {
		if _, exists := ts.utxoSet[id]; exists {
			return transaction.NewInvalidTransaction(fmt.Sprintf("output id collision on %s", id))
		}
	}

	parent := ts.utxoSet[sub.ParentHash]
	children := parent.Subdivide()

	ts.remove(sub.ParentHash)

	for i, child := range children {
		if err := ts.Insert(outputIDs[i], child); err != nil {
			return err
		}
	}

	return nil
}

// =============================================================================

// ApplyCoinbase materializes the reward output: a right isosceles triangle
// whose geometry is deterministic in the block height and beneficiary and
// whose area equals the reward.
func (ts *TriangleState) ApplyCoinbase(cb *transaction.CoinbaseTx, txHash transaction.Hash) error {
	if err := cb.Validate(); err != nil {
		return err
	}

	reward := CoinbaseTriangle(cb)
	if !reward.IsValid() {
		return transaction.NewInvalidTransaction("invalid reward area for coinbase transaction")
	}

	return ts.Insert(transaction.OutputID(txHash, 0), reward)
}

// CoinbaseTriangle derives the deterministic reward triangle for a
// coinbase: side sqrt(2*reward) so the area equals the reward, placed at an
// x offset from the block height and a y offset from the beneficiary so
// rewards at the same height to different miners never coincide. Offsets
// wrap to respect the coordinate bound.
func CoinbaseTriangle(cb *transaction.CoinbaseTx) geometry.Triangle {
	side := math.Sqrt(2 * float64(cb.RewardArea))

	xOff := float64(cb.BlockHeight%10_000_000) * 1000.0

	sum := sha256.Sum256([]byte(cb.Beneficiary))
	yOff := float64(binary.LittleEndian.Uint64(sum[:8])%1_000_000) / 1000.0

	return geometry.NewTriangle(
		geometry.NewPoint(xOff, yOff),
		geometry.NewPoint(xOff+side, yOff),
		geometry.NewPoint(xOff, yOff+side),
		nil,
		cb.Beneficiary,
	)
}
