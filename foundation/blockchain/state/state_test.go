package state_test

import (
	"context"
	"testing"

	"github.com/trinitychain/trinitychain/foundation/blockchain/peer"
	"github.com/trinitychain/trinitychain/foundation/blockchain/signature"
	"github.com/trinitychain/trinitychain/foundation/blockchain/state"
	"github.com/trinitychain/trinitychain/foundation/blockchain/storage/memory"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func TestMinePersistReplay(t *testing.T) {
	t.Log("Given the need to mine, persist and replay the chain.")
	{
		kp, err := signature.Generate()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould generate a key pair: %v", failed, err)
		}

		store := memory.New()

		st, err := state.New(state.Config{
			Beneficiary:   kp.Address(),
			Host:          "127.0.0.1:0",
			Storage:       store,
			KnownPeers:    peer.NewSet(),
			MiningThreads: 2,
		})
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould construct the state: %v", failed, err)
		}

		for i := 0; i < 2; i++ {
			if _, err := st.MineNextBlock(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould mine block %d: %v", failed, i+1, err)
			}
		}
		if st.Height() != 2 {
			t.Fatalf("\t%s\tTest 0:\tShould be at height 2: got %d", failed, st.Height())
		}
		t.Logf("\t%s\tTest 0:\tShould mine and apply two blocks.", success)

		height, err := store.Height()
		if err != nil || height != 2 {
			t.Fatalf("\t%s\tTest 0:\tShould have persisted to height 2: got %d", failed, height)
		}
		t.Logf("\t%s\tTest 0:\tShould persist every applied block.", success)

		// A second state over the same store replays to the same chain.
		st2, err := state.New(state.Config{
			Host:       "127.0.0.1:0",
			Storage:    store,
			KnownPeers: peer.NewSet(),
		})
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould replay the store: %v", failed, err)
		}

		if st2.Height() != st.Height() || st2.Tip().BlockHash != st.Tip().BlockHash {
			t.Fatalf("\t%s\tTest 0:\tShould replay to the identical tip.", failed)
		}
		if st2.Balance(kp.Address()) != st.Balance(kp.Address()) {
			t.Fatalf("\t%s\tTest 0:\tShould replay to identical balances.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould replay the store to an identical state.", success)
	}
}

func TestSubmitAndMineTransaction(t *testing.T) {
	t.Log("Given the need to admit a transaction and mine it into a block.")
	{
		kp, err := signature.Generate()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould generate a key pair: %v", failed, err)
		}

		st, err := state.New(state.Config{
			Beneficiary: kp.Address(),
			Host:        "127.0.0.1:0",
			Storage:     memory.New(),
			KnownPeers:  peer.NewSet(),
		})
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould construct the state: %v", failed, err)
		}

		// Mine one reward to fund the key pair.
		mined, err := st.MineNextBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould mine the funding block: %v", failed, err)
		}

		rewardID := transaction.OutputID(mined.Transactions[0].Hash(), 0)
		tr := transaction.TransferTx{
			InputHash: rewardID,
			NewOwner:  "0xReceiver",
			Sender:    kp.Address(),
			FeeArea:   1.5,
			Nonce:     1,
		}
		if err := tr.Sign(kp); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould sign the transfer: %v", failed, err)
		}

		hash, err := st.SubmitTransaction(transaction.NewTransfer(tr))
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould admit the transfer: %v", failed, err)
		}
		if st.MempoolSize() != 1 {
			t.Fatalf("\t%s\tTest 0:\tShould hold one pending transaction.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould admit the transfer to the mempool.", success)

		block, err := st.MineNextBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould mine the transfer block: %v", failed, err)
		}

		included := false
		for _, tx := range block.Transactions {
			if tx.Hash() == hash {
				included = true
			}
		}
		if !included {
			t.Fatalf("\t%s\tTest 0:\tShould include the pending transfer.", failed)
		}
		if st.MempoolSize() != 0 {
			t.Fatalf("\t%s\tTest 0:\tShould prune the mempool after inclusion.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould mine the transfer and prune the pool.", success)

		if st.Balance("0xReceiver") == 0 {
			t.Fatalf("\t%s\tTest 0:\tShould credit the receiver.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould credit the receiver's balance.", success)
	}
}
