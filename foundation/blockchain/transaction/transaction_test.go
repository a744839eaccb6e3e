package transaction_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/trinitychain/trinitychain/foundation/blockchain/geometry"
	"github.com/trinitychain/trinitychain/foundation/blockchain/signature"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func signedTransfer(t *testing.T, kp *signature.KeyPair) transaction.Tx {
	t.Helper()

	tr := transaction.TransferTx{
		InputHash: transaction.OutputID(transaction.Hash{}, 1),
		NewOwner:  "0xReceiver",
		Sender:    kp.Address(),
		FeeArea:   0.25,
		Nonce:     7,
		Memo:      "coffee",
	}
	if err := tr.Sign(kp); err != nil {
		t.Fatalf("signing transfer: %v", err)
	}
	return transaction.NewTransfer(tr)
}

func TestHashExcludesSignature(t *testing.T) {
	t.Log("Given the need for hashes over committing fields only.")
	{
		kp1, err := signature.Generate()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould generate a key pair: %v", failed, err)
		}

		tx := signedTransfer(t, kp1)
		unsigned := *tx.Transfer
		unsigned.Signature = nil
		unsigned.PublicKey = nil

		if tx.Hash() != transaction.NewTransfer(unsigned).Hash() {
			t.Fatalf("\t%s\tTest 0:\tShould hash identically with and without signature.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould hash identically with and without signature.", success)

		changed := *tx.Transfer
		changed.FeeArea = 0.26
		if tx.Hash() == transaction.NewTransfer(changed).Hash() {
			t.Fatalf("\t%s\tTest 0:\tShould change when a committed field changes.", failed)
		}
		t.Logf("\t%s\tTest 0:\tShould change when a committed field changes.", success)
	}
}

func TestStatelessValidation(t *testing.T) {
	t.Log("Given the need to reject malformed transactions before state access.")
	{
		kp, err := signature.Generate()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould generate a key pair: %v", failed, err)
		}

		tx := signedTransfer(t, kp)
		if err := tx.Validate(); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould accept a well-formed transfer: %v", failed, err)
		}
		t.Logf("\t%s\tTest 0:\tShould accept a well-formed transfer.", success)

		tampered := *tx.Transfer
		tampered.NewOwner = "0xThief"
		if err := transaction.NewTransfer(tampered).Validate(); err == nil {
			t.Fatalf("\t%s\tTest 1:\tShould reject a tampered transfer.", failed)
		}
		t.Logf("\t%s\tTest 1:\tShould reject a tampered transfer.", success)

		negFee := transaction.TransferTx{
			InputHash: transaction.OutputID(transaction.Hash{}, 1),
			NewOwner:  "0xReceiver",
			Sender:    kp.Address(),
			FeeArea:   -1,
			Nonce:     1,
		}
		if err := negFee.Sign(kp); err != nil {
			t.Fatalf("\t%s\tTest 2:\tShould sign: %v", failed, err)
		}
		if err := transaction.NewTransfer(negFee).Validate(); err == nil {
			t.Fatalf("\t%s\tTest 2:\tShould reject a negative fee.", failed)
		}
		t.Logf("\t%s\tTest 2:\tShould reject a negative fee.", success)

		longMemo := transaction.TransferTx{
			InputHash: transaction.OutputID(transaction.Hash{}, 1),
			NewOwner:  "0xReceiver",
			Sender:    kp.Address(),
			FeeArea:   0,
			Nonce:     1,
			Memo:      strings.Repeat("x", transaction.MaxMemoLength+1),
		}
		if err := longMemo.Sign(kp); err != nil {
			t.Fatalf("\t%s\tTest 3:\tShould sign: %v", failed, err)
		}
		if err := transaction.NewTransfer(longMemo).Validate(); err == nil {
			t.Fatalf("\t%s\tTest 3:\tShould reject an oversized memo.", failed)
		}
		t.Logf("\t%s\tTest 3:\tShould reject an oversized memo.", success)

		other, err := signature.Generate()
		if err != nil {
			t.Fatalf("\t%s\tTest 4:\tShould generate a second key pair: %v", failed, err)
		}
		wrongKey := transaction.TransferTx{
			InputHash: transaction.OutputID(transaction.Hash{}, 1),
			NewOwner:  "0xReceiver",
			Sender:    kp.Address(),
			FeeArea:   0,
			Nonce:     1,
		}
		if err := wrongKey.Sign(other); err != nil {
			t.Fatalf("\t%s\tTest 4:\tShould sign: %v", failed, err)
		}
		if err := transaction.NewTransfer(wrongKey).Validate(); err == nil {
			t.Fatalf("\t%s\tTest 4:\tShould reject a signer who is not the sender.", failed)
		}
		t.Logf("\t%s\tTest 4:\tShould reject a signer who is not the sender.", success)
	}
}

func TestSubdivisionValidation(t *testing.T) {
	t.Log("Given the need to validate subdivision payloads statelessly.")
	{
		kp, err := signature.Generate()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould generate a key pair: %v", failed, err)
		}

		parent := geometry.NewTriangle(
			geometry.NewPoint(0, 0),
			geometry.NewPoint(8, 0),
			geometry.NewPoint(0, 8),
			nil,
			kp.Address(),
		)
		children := parent.Subdivide()

		sub := transaction.SubdivisionTx{
			ParentHash: transaction.OutputID(transaction.Hash(parent.Hash()), 0),
			Children:   children[:],
			Owner:      kp.Address(),
			Fee:        2,
			Nonce:      1,
		}
		if err := sub.Sign(kp); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould sign: %v", failed, err)
		}

		tx := transaction.NewSubdivision(sub)
		if err := tx.Validate(); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould accept a well-formed subdivision: %v", failed, err)
		}
		t.Logf("\t%s\tTest 0:\tShould accept a well-formed subdivision.", success)

		short := sub
		short.Children = children[:2]
		if err := short.Sign(kp); err != nil {
			t.Fatalf("\t%s\tTest 1:\tShould sign: %v", failed, err)
		}
		if err := transaction.NewSubdivision(short).Validate(); err == nil {
			t.Fatalf("\t%s\tTest 1:\tShould reject two children.", failed)
		}
		t.Logf("\t%s\tTest 1:\tShould reject two children.", success)

		if err := tx.Validate(); err != nil {
			t.Fatalf("\t%s\tTest 2:\tShould leave the original untouched: %v", failed, err)
		}
		if tx.FeeArea() != 2 {
			t.Fatalf("\t%s\tTest 2:\tShould report the symbolic fee at face value.", failed)
		}
		t.Logf("\t%s\tTest 2:\tShould report the symbolic fee at face value.", success)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Log("Given the need for hash-stable wire round trips.")
	{
		kp, err := signature.Generate()
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould generate a key pair: %v", failed, err)
		}

		tx := signedTransfer(t, kp)

		data, err := json.Marshal(tx)
		if err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould encode: %v", failed, err)
		}

		var decoded transaction.Tx
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould decode: %v", failed, err)
		}

		if decoded.Hash() != tx.Hash() {
			t.Fatalf("\t%s\tTest 0:\tShould hash identically after a round trip.", failed)
		}
		if err := decoded.Validate(); err != nil {
			t.Fatalf("\t%s\tTest 0:\tShould still verify after a round trip: %v", failed, err)
		}
		t.Logf("\t%s\tTest 0:\tShould survive a JSON round trip.", success)
	}
}
