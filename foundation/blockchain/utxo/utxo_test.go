package utxo_test

import (
	"math"
	"testing"

	"github.com/trinitychain/trinitychain/foundation/blockchain/geometry"
	"github.com/trinitychain/trinitychain/foundation/blockchain/signature"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
	"github.com/trinitychain/trinitychain/foundation/blockchain/utxo"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func seedTriangle(t *testing.T, state *utxo.TriangleState, owner string) transaction.Hash {
	t.Helper()

	tri := geometry.NewTriangle(
		geometry.NewPoint(0, 0),
		geometry.NewPoint(4, 0),
		geometry.NewPoint(0, 5),
		nil,
		owner,
	)
	id := transaction.OutputID(transaction.Hash(tri.Hash()), 0)
	if err := state.Insert(id, tri); err != nil {
		t.Fatalf("seeding triangle: %v", err)
	}
	return id
}

func TestTransferFeeDeduction(t *testing.T) {
	t.Log("Given the need to deduct fees without perturbing geometry.")
	{
		kp, err := signature.Generate()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould generate a key pair: %v", failed, err)
		}

		state := utxo.New()
		inputID := seedTriangle(t, state, kp.Address())

		tr := transaction.TransferTx{
			InputHash: inputID,
			NewOwner:  "0xReceiver",
			Sender:    kp.Address(),
			FeeArea:   0.1,
			Nonce:     1,
		}
		if err := tr.Sign(kp); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould sign the transfer: %v", failed, err)
		}

		tx := transaction.NewTransfer(tr)
		if err := state.ApplyTransfer(tx.Transfer, tx.Hash()); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould apply the transfer: %v", failed, err)
		}
		t.Logf("\t%s\tTest 0:\tShould apply the transfer.", success)

		if _, exists := state.Get(inputID); exists {
			t.Fatalf("\t%s\tTest 0:\tShould remove the spent input.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould remove the spent input.", success)

		outID := transaction.OutputID(tx.Hash(), 0)
		out, exists := state.Get(outID)
		if !exists {
			t.Fatalf("\t%s\tTest 0:\tShould hold the successor output.", failed)
		}
		if out.Owner != "0xReceiver" {
			t.Fatalf("\t%s\tTest 0:\tShould carry the new owner: got %s", failed, out.Owner)
		}
		if math.Abs(out.EffectiveValue()-9.9) > 1e-12 {
			t.Fatalf("\t%s\tTest 0:\tShould have effective value 9.9: got %v", failed, out.EffectiveValue())
		}
		if math.Abs(out.Area()-10.0) > 1e-9 {
			t.Fatalf("\t%s\tTest 0:\tShould keep the geometric area at 10: got %v", failed, out.Area())
		}
		t.Logf("\t%s\tTest 0:\tShould deduct the fee and freeze the geometry.", success)
	}

	t.Log("Given the need to reject transfers that exhaust the value.")
	{
		kp, err := signature.Generate()
		if err != nil {
			t.Fatalf("\t%s\tTest 1:\tShould generate a key pair: %v", failed, err)
		}

		state := utxo.New()
		inputID := seedTriangle(t, state, kp.Address())

		tr := transaction.TransferTx{
			InputHash: inputID,
			NewOwner:  "0xReceiver",
			Sender:    kp.Address(),
			FeeArea:   10.0,
			Nonce:     1,
		}
		if err := tr.Sign(kp); err != nil {
			t.Fatalf("\t%s\tTest 1:\tShould sign the transfer: %v", failed, err)
		}

		tx := transaction.NewTransfer(tr)
		if err := state.ApplyTransfer(tx.Transfer, tx.Hash()); err == nil {
			t.Fatalf("\t%s\tTest 1:\tShould reject a fee equal to the whole value.", failed)
		}
		if _, exists := state.Get(inputID); !exists {
			t.Fatalf("\t%s\tTest 1:\tShould leave the input untouched on failure.", failed)
		}
		t.Logf("\t%s\tTest 1:\tShould reject the fee and leave state untouched.", success)
	}
}

func TestWrongOwnerRejected(t *testing.T) {
	t.Log("Given the need to reject spends by non-owners.")
	{
		kp, err := signature.Generate()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould generate a key pair: %v", failed, err)
		}

		state := utxo.New()
		inputID := seedTriangle(t, state, "0xSomeoneElse")

		tr := transaction.TransferTx{
			InputHash: inputID,
			NewOwner:  "0xReceiver",
			Sender:    kp.Address(),
			FeeArea:   0.1,
			Nonce:     1,
		}
		if err := tr.Sign(kp); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould sign the transfer: %v", failed, err)
		}

		tx := transaction.NewTransfer(tr)
		if err := state.ApplyTransfer(tx.Transfer, tx.Hash()); err == nil {
			t.Fatalf("\t%s\tTest 0:\tShould reject a spend by a non-owner.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould reject a spend by a non-owner.", success)
	}
}

func TestSubdivisionTolerance(t *testing.T) {
	t.Log("Given the need to match children against the midpoint construction.")
	{
		kp, err := signature.Generate()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould generate a key pair: %v", failed, err)
		}

		state := utxo.New()
		parentID := seedTriangle(t, state, kp.Address())
		parent, _ := state.Get(parentID)

		build := func(perturb float64) transaction.Tx {
			children := parent.Subdivide()
			children[1].A.X += perturb

			sub := transaction.SubdivisionTx{
				ParentHash: parentID,
				Children:   children[:],
				Owner:      kp.Address(),
				Fee:        0,
				Nonce:      1,
			}
			if err := sub.Sign(kp); err != nil {
				t.Fatalf("signing subdivision: %v", err)
			}
			return transaction.NewSubdivision(sub)
		}

		bad := build(2e-9)
		if err := state.CheckSubdivision(bad.Subdivision); err == nil {
			t.Fatalf("\t%s\tTest 0:\tShould reject a 2e-9 midpoint deviation.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould reject a 2e-9 midpoint deviation.", success)

		good := build(5e-10)
		if err := state.ApplySubdivision(good.Subdivision, good.Hash()); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould accept a 5e-10 midpoint deviation: %v", failed, err)
		}
		t.Logf("\t%s\tTest 0:\tShould accept a 5e-10 midpoint deviation.", success)

		if _, exists := state.Get(parentID); exists {
			t.Fatalf("\t%s\tTest 0:\tShould remove the subdivided parent.", failed)
		}
		if state.Count() != 3 {
			t.Fatalf("\t%s\tTest 0:\tShould hold exactly the three children: got %d", failed, state.Count())
		}

		var total float64
		for i := uint32(0); i < 3; i++ {
			child, exists := state.Get(transaction.OutputID(good.Hash(), i))
			if !exists {
				t.Fatalf("\t%s\tTest 0:\tShould hold child output %d.", failed, i)
			}
			total += child.Area()
		}
		if math.Abs(total-parent.Area()*0.75) > 1e-9 {
			t.Fatalf("\t%s\tTest 0:\tShould conserve 75%% of the parent area: got %v", failed, total)
		}
		t.Logf("\t%s\tTest 0:\tShould replace the parent with the three corners.", success)
	}
}

func TestCoinbaseDeterminism(t *testing.T) {
	t.Log("Given the need for deterministic coinbase geometry.")
	{
		cb := transaction.CoinbaseTx{
			Beneficiary: "0xMiner",
			RewardArea:  1000,
			BlockHeight: 7,
		}

		t1 := utxo.CoinbaseTriangle(&cb)
		t2 := utxo.CoinbaseTriangle(&cb)
		if t1.Hash() != t2.Hash() {
			t.Fatalf("\t%s\tTest 0:\tShould derive identical geometry for identical inputs.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould derive identical geometry for identical inputs.", success)

		if math.Abs(t1.Area()-1000) > 1e-6 {
			t.Fatalf("\t%s\tTest 0:\tShould have area equal to the reward: got %v", failed, t1.Area())
		}
		t.Logf("\t%s\tTest 0:\tShould have area equal to the reward.", success)

		other := cb
		other.Beneficiary = "0xOtherMiner"
		if utxo.CoinbaseTriangle(&other).Hash() == t1.Hash() {
			t.Fatalf("\t%s\tTest 0:\tShould vary geometry with the beneficiary.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould vary geometry with the beneficiary.", success)
	}
}

func TestAddressIndexConsistency(t *testing.T) {
	t.Log("Given the need to keep the address index consistent with the set.")
	{
		kp, err := signature.Generate()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould generate a key pair: %v", failed, err)
		}

		state := utxo.New()
		inputID := seedTriangle(t, state, kp.Address())

		if len(state.TrianglesOf(kp.Address())) != 1 {
			t.Fatalf("\t%s\tTest 0:\tShould index the seeded output by owner.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould index the seeded output by owner.", success)

		tr := transaction.TransferTx{
			InputHash: inputID,
			NewOwner:  "0xReceiver",
			Sender:    kp.Address(),
			FeeArea:   0.1,
			Nonce:     1,
		}
		if err := tr.Sign(kp); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould sign the transfer: %v", failed, err)
		}

		tx := transaction.NewTransfer(tr)
		if err := state.ApplyTransfer(tx.Transfer, tx.Hash()); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould apply the transfer: %v", failed, err)
		}

		if len(state.TrianglesOf(kp.Address())) != 0 {
			t.Fatalf("\t%s\tTest 0:\tShould drop the sender's index entry.", failed)
		}
		if len(state.TrianglesOf("0xReceiver")) != 1 {
			t.Fatalf("\t%s\tTest 0:\tShould index the successor by the new owner.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould move the index entry with ownership.", success)

		if math.Abs(state.Balance("0xReceiver")-9.9) > 1e-9 {
			t.Fatalf("\t%s\tTest 0:\tShould report the receiver balance as 9.9: got %v", failed, state.Balance("0xReceiver"))
		}
		t.Logf("\t%s\tTest 0:\tShould report balances from the index.", success)
	}
}

func TestCloneIsolation(t *testing.T) {
	t.Log("Given the need for working copies that never leak mutations.")
	{
		state := utxo.New()
		id := seedTriangle(t, state, "0xOwner")

		clone := state.Clone()

		cb := transaction.CoinbaseTx{Beneficiary: "0xMiner", RewardArea: 1000, BlockHeight: 1}
		tx := transaction.NewCoinbase(cb)
		if err := clone.ApplyCoinbase(tx.Coinbase, tx.Hash()); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould apply a coinbase to the clone: %v", failed, err)
		}

		if state.Count() != 1 || clone.Count() != 2 {
			t.Fatalf("\t%s\tTest 0:\tShould keep the original untouched: got %d/%d", failed, state.Count(), clone.Count())
		}
		if _, exists := state.Get(id); !exists {
			t.Fatalf("\t%s\tTest 0:\tShould keep the original output.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould isolate clone mutations from the original.", success)
	}
}
