package mempool_test

import (
	"testing"

	"github.com/trinitychain/trinitychain/foundation/blockchain/geometry"
	"github.com/trinitychain/trinitychain/foundation/blockchain/mempool"
	"github.com/trinitychain/trinitychain/foundation/blockchain/signature"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
	"github.com/trinitychain/trinitychain/foundation/blockchain/utxo"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// nextOffset spaces every seeded triangle apart so no two share geometry.
var nextOffset float64

// seedOutputs inserts count triangles of area 50 owned by addr and returns
// their output ids.
func seedOutputs(t *testing.T, state *utxo.TriangleState, addr string, count int) []transaction.Hash {
	t.Helper()

	ids := make([]transaction.Hash, 0, count)
	for i := 0; i < count; i++ {
		nextOffset += 100
		off := nextOffset
		tri := geometry.NewTriangle(
			geometry.NewPoint(off, 0),
			geometry.NewPoint(off+10, 0),
			geometry.NewPoint(off, 10),
			nil,
			addr,
		)
		id := transaction.OutputID(transaction.Hash(tri.Hash()), 0)
		if err := state.Insert(id, tri); err != nil {
			t.Fatalf("seeding output %d: %v", i, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func signedTransfer(t *testing.T, kp *signature.KeyPair, input transaction.Hash, fee float64, nonce uint64) transaction.Tx {
	t.Helper()

	tr := transaction.TransferTx{
		InputHash: input,
		NewOwner:  "0xReceiver",
		Sender:    kp.Address(),
		FeeArea:   fee,
		Nonce:     nonce,
	}
	if err := tr.Sign(kp); err != nil {
		t.Fatalf("signing transfer: %v", err)
	}
	return transaction.NewTransfer(tr)
}

func TestAdmissionAndSelection(t *testing.T) {
	t.Log("Given the need to admit transactions and select by fee priority.")
	{
		kp, err := signature.Generate()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould generate a key pair: %v", failed, err)
		}

		state := utxo.New()
		ids := seedOutputs(t, state, kp.Address(), 4)

		mp, err := mempool.New()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould construct a mempool: %v", failed, err)
		}

		fees := []float64{0.5, 2.0, 1.0, 0.1}
		for i, fee := range fees {
			tx := signedTransfer(t, kp, ids[i], fee, uint64(i+1))
			if _, err := mp.Add(tx, state); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould admit transaction %d: %v", failed, i, err)
			}
		}
		t.Logf("\t%s\tTest 0:\tShould admit all valid transactions.", success)

		top := mp.SelectTop(2)
		if len(top) != 2 {
			t.Fatalf("\t%s\tTest 0:\tShould select exactly 2 transactions: got %d", failed, len(top))
		}
		if top[0].FeeArea() != 2.0 || top[1].FeeArea() != 1.0 {
			t.Fatalf("\t%s\tTest 0:\tShould order by fee descending: got %v, %v", failed, top[0].FeeArea(), top[1].FeeArea())
		}
		t.Logf("\t%s\tTest 0:\tShould select the highest fees first.", success)

		tx := signedTransfer(t, kp, ids[0], 0.5, 1)
		if _, err := mp.Add(tx, state); err == nil {
			t.Fatalf("\t%s\tTest 0:\tShould reject a duplicate transaction.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould reject a duplicate transaction.", success)

		unsigned := transaction.NewTransfer(transaction.TransferTx{
			InputHash: ids[0],
			NewOwner:  "0xReceiver",
			Sender:    kp.Address(),
			FeeArea:   1,
			Nonce:     9,
		})
		if _, err := mp.Add(unsigned, state); err == nil {
			t.Fatalf("\t%s\tTest 0:\tShould reject an unsigned transaction.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould reject an unsigned transaction.", success)

		missing := signedTransfer(t, kp, transaction.OutputID(transaction.Hash{}, 7), 1, 10)
		if _, err := mp.Add(missing, state); err == nil {
			t.Fatalf("\t%s\tTest 0:\tShould reject a spend of an unknown output.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould reject a spend of an unknown output.", success)
	}
}

func TestPerAddressCap(t *testing.T) {
	t.Log("Given the need to cap pending transactions per address.")
	{
		kp, err := signature.Generate()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould generate a key pair: %v", failed, err)
		}

		state := utxo.New()
		ids := seedOutputs(t, state, kp.Address(), mempool.MaxPerAddress+1)

		mp, err := mempool.New()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould construct a mempool: %v", failed, err)
		}

		for i := 0; i < mempool.MaxPerAddress; i++ {
			tx := signedTransfer(t, kp, ids[i], 1, uint64(i+1))
			if _, err := mp.Add(tx, state); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould admit transaction %d: %v", failed, i, err)
			}
		}

		over := signedTransfer(t, kp, ids[mempool.MaxPerAddress], 1, mempool.MaxPerAddress+1)
		if _, err := mp.Add(over, state); err == nil {
			t.Fatalf("\t%s\tTest 0:\tShould reject the %dth transaction from one address.", failed, mempool.MaxPerAddress+1)
		}
		t.Logf("\t%s\tTest 0:\tShould enforce the per-address cap.", success)
	}
}

func TestRevalidate(t *testing.T) {
	t.Log("Given the need to prune transactions invalidated by state changes.")
	{
		kp, err := signature.Generate()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould generate a key pair: %v", failed, err)
		}

		state := utxo.New()
		ids := seedOutputs(t, state, kp.Address(), 2)

		mp, err := mempool.New()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould construct a mempool: %v", failed, err)
		}

		for i, id := range ids {
			tx := signedTransfer(t, kp, id, 1, uint64(i+1))
			if _, err := mp.Add(tx, state); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould admit transaction %d: %v", failed, i, err)
			}
		}

		// Spend the first output out from under the pool.
		spend := transaction.TransferTx{
			InputHash: ids[0],
			NewOwner:  "0xOther",
			Sender:    kp.Address(),
			FeeArea:   0.1,
			Nonce:     99,
		}
		if err := spend.Sign(kp); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould sign the spend: %v", failed, err)
		}
		spendTx := transaction.NewTransfer(spend)
		if err := state.ApplyTransfer(spendTx.Transfer, spendTx.Hash()); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould apply the spend: %v", failed, err)
		}

		removed := mp.RevalidateAgainst(state)
		if removed != 1 {
			t.Fatalf("\t%s\tTest 0:\tShould remove only the transaction spending the gone output: got %d", failed, removed)
		}
		if mp.Size() != 1 {
			t.Fatalf("\t%s\tTest 0:\tShould keep the transaction whose input is still unspent: got %d", failed, mp.Size())
		}
		t.Logf("\t%s\tTest 0:\tShould prune transactions whose inputs are gone.", success)
	}
}

func TestEviction(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full-pool eviction in short mode")
	}

	t.Log("Given the need to evict the lowest-fee tenth when the pool fills.")
	{
		state := utxo.New()
		mp, err := mempool.New()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould construct a mempool: %v", failed, err)
		}

		// Fill the pool to capacity with fee=1 transfers, spread across
		// addresses so the per-address cap is not the limiter.
		addresses := mempool.MaxTransactions / mempool.MaxPerAddress
		for a := 0; a < addresses; a++ {
			kp, err := signature.Generate()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould generate key pair %d: %v", failed, a, err)
			}

			ids := seedOutputs(t, state, kp.Address(), mempool.MaxPerAddress)
			for i, id := range ids {
				tx := signedTransfer(t, kp, id, 1, uint64(i+1))
				if _, err := mp.Add(tx, state); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould admit filler tx %d/%d: %v", failed, a, i, err)
				}
			}
		}

		if mp.Size() != mempool.MaxTransactions {
			t.Fatalf("\t%s\tTest 0:\tShould be at capacity: got %d", failed, mp.Size())
		}
		t.Logf("\t%s\tTest 0:\tShould fill the pool to capacity.", success)

		// Admitting a fee=5 transaction evicts 10% in one batch.
		kp, err := signature.Generate()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould generate the closing key pair: %v", failed, err)
		}

		ids := seedOutputs(t, state, kp.Address(), 1)
		rich := signedTransfer(t, kp, ids[0], 5, 1)
		if _, err := mp.Add(rich, state); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould admit the fee=5 transaction: %v", failed, err)
		}
		t.Logf("\t%s\tTest 0:\tShould admit the high-fee transaction.", success)

		exp := mempool.MaxTransactions - mempool.MaxTransactions/10 + 1
		if mp.Size() != exp {
			t.Fatalf("\t%s\tTest 0:\tShould have evicted one batch: got %d, exp %d", failed, mp.Size(), exp)
		}
		t.Logf("\t%s\tTest 0:\tShould evict exactly one lowest-fee batch.", success)
	}
}
