package miner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/trinitychain/trinitychain/foundation/blockchain/chain"
	"github.com/trinitychain/trinitychain/foundation/blockchain/miner"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func template(t *testing.T, difficulty uint64) chain.Block {
	t.Helper()

	cb := transaction.CoinbaseTx{
		Beneficiary: "0xMiner",
		RewardArea:  1000,
		BlockHeight: 1,
	}

	b, err := chain.NewBlock(chain.GenesisBlock(), difficulty, []transaction.Tx{transaction.NewCoinbase(cb)})
	if err != nil {
		t.Fatalf("building template: %v", err)
	}
	return b
}

func TestMineSingle(t *testing.T) {
	t.Log("Given the need to find a nonce single-threaded.")
	{
		b, err := miner.Mine(context.Background(), template(t, 2), 1)
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould find a solution: %v", failed, err)
		}
		if !b.VerifyProofOfWork() {
			t.Fatalf("\t%s\tTest 0:\tShould satisfy the proof of work.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould find a block satisfying the proof of work.", success)
	}
}

func TestMineParallel(t *testing.T) {
	t.Log("Given the need to race workers over the nonce space.")
	{
		b, err := miner.Mine(context.Background(), template(t, 2), 4)
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould find a solution: %v", failed, err)
		}
		if !b.VerifyProofOfWork() {
			t.Fatalf("\t%s\tTest 0:\tShould satisfy the proof of work.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould find a block satisfying the proof of work.", success)
	}
}

func TestMineCancellation(t *testing.T) {
	t.Log("Given the need to stop promptly on the stop signal.")
	{
		// A 256-nibble difficulty is unreachable, so only cancellation can
		// end the search.
		ctx, cancel := context.WithCancel(context.Background())
		tmpl := template(t, 256)

		done := make(chan error, 1)
		go func() {
			_, err := miner.Mine(ctx, tmpl, 4)
			done <- err
		}()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("\t%s\tTest 0:\tShould return the cancellation error: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould return the cancellation error.", success)
		case <-time.After(5 * time.Second):
			t.Fatalf("\t%s\tTest 0:\tShould exit promptly after cancellation.", failed)
		}
	}
}
