// Package transaction defines the three transaction kinds that move
// triangles on the chain and their validation rules. A transaction is a
// closed tagged union: exactly one of the variant payloads is set and the
// kind tag says which. The canonical byte encoding used for hashing and
// signing is explicit and kept separate from the JSON runtime encoding.
package transaction

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/trinitychain/trinitychain/foundation/blockchain/geometry"
	"github.com/trinitychain/trinitychain/foundation/blockchain/signature"
)

// MaxTxSize bounds the serialized size of a single transaction.
const MaxTxSize = 100 * 1024

// MaxMemoLength bounds the transfer memo.
const MaxMemoLength = 256

// Kind tags the transaction variants.
type Kind string

// The set of transaction kinds.
const (
	KindCoinbase    Kind = "coinbase"
	KindTransfer    Kind = "transfer"
	KindSubdivision Kind = "subdivision"
)

// =============================================================================

// Tx is the tagged union carried in blocks and the mempool. Exactly one
// variant matching Kind is non-nil.
type Tx struct {
	Kind        Kind           `json:"kind"`
	Coinbase    *CoinbaseTx    `json:"coinbase,omitempty"`
	Transfer    *TransferTx    `json:"transfer,omitempty"`
	Subdivision *SubdivisionTx `json:"subdivision,omitempty"`
}

// NewCoinbase wraps a coinbase payload in the union.
func NewCoinbase(cb CoinbaseTx) Tx {
	return Tx{Kind: KindCoinbase, Coinbase: &cb}
}

// NewTransfer wraps a transfer payload in the union.
func NewTransfer(tr TransferTx) Tx {
	return Tx{Kind: KindTransfer, Transfer: &tr}
}

// NewSubdivision wraps a subdivision payload in the union.
func NewSubdivision(sub SubdivisionTx) Tx {
	return Tx{Kind: KindSubdivision, Subdivision: &sub}
}

// Hash computes the transaction hash: SHA-256 over the canonical encoding
// of all committing fields. Signatures and public keys are excluded; output
// identity is bound to the producing transaction via output ids instead.
func (tx Tx) Hash() Hash {
	return Hash(sha256.Sum256(tx.commitBytes()))
}

// commitBytes produces the canonical byte encoding that the hash commits to.
func (tx Tx) commitBytes() []byte {
	var buf bytes.Buffer

	switch tx.Kind {
	case KindCoinbase:
		cb := tx.Coinbase
		buf.WriteString("coinbase")
		writeUint64(&buf, cb.RewardArea)
		buf.WriteString(cb.Beneficiary)
		writeUint64(&buf, cb.BlockHeight)
		writeUint64(&buf, cb.Nonce)

	case KindTransfer:
		tr := tx.Transfer
		buf.WriteString("transfer")
		buf.Write(tr.InputHash[:])
		buf.WriteString(tr.NewOwner)
		buf.WriteString(tr.Sender)
		writeFloat64(&buf, tr.FeeArea)
		writeUint64(&buf, tr.Nonce)
		buf.WriteString(tr.Memo)

	case KindSubdivision:
		sub := tx.Subdivision
		buf.WriteString("subdivision")
		buf.Write(sub.ParentHash[:])
		for _, child := range sub.Children {
			h := child.Hash()
			buf.Write(h[:])
		}
		buf.WriteString(sub.Owner)
		writeUint64(&buf, sub.Fee)
		writeUint64(&buf, sub.Nonce)
	}

	return buf.Bytes()
}

// FeeArea returns the geometric fee this transaction offers to the miner.
// Subdivision fees are symbolic integers and are reported at face value;
// coinbase transactions carry no fee.
func (tx Tx) FeeArea() float64 {
	switch tx.Kind {
	case KindTransfer:
		return tx.Transfer.FeeArea
	case KindSubdivision:
		return float64(tx.Subdivision.Fee)
	}
	return 0
}

// Nonce returns the user-supplied nonce, 0 for coinbase.
func (tx Tx) Nonce() uint64 {
	switch tx.Kind {
	case KindCoinbase:
		return tx.Coinbase.Nonce
	case KindTransfer:
		return tx.Transfer.Nonce
	case KindSubdivision:
		return tx.Subdivision.Nonce
	}
	return 0
}

// Sender returns the address that authored the transaction. Coinbase
// transactions have no sender.
func (tx Tx) Sender() (string, bool) {
	switch tx.Kind {
	case KindTransfer:
		return tx.Transfer.Sender, true
	case KindSubdivision:
		return tx.Subdivision.Owner, true
	}
	return "", false
}

// Validate performs the stateless checks: variant consistency, field
// ranges, memo length, fee finiteness, serialized size and signature
// verification. State preconditions are checked separately against the
// UTXO set.
func (tx Tx) Validate() error {
	switch tx.Kind {
	case KindCoinbase:
		if tx.Coinbase == nil {
			return NewInvalidTransaction("coinbase payload missing")
		}
		return tx.Coinbase.Validate()

	case KindTransfer:
		if tx.Transfer == nil {
			return NewInvalidTransaction("transfer payload missing")
		}
		if err := tx.Transfer.Validate(); err != nil {
			return err
		}

	case KindSubdivision:
		if tx.Subdivision == nil {
			return NewInvalidTransaction("subdivision payload missing")
		}
		if err := tx.Subdivision.Validate(); err != nil {
			return err
		}

	default:
		return NewInvalidTransaction(fmt.Sprintf("unknown transaction kind %q", tx.Kind))
	}

	return tx.validateSize()
}

// validateSize bounds the wire size of a transaction.
func (tx Tx) validateSize() error {
	data, err := json.Marshal(tx)
	if err != nil {
		return NewInvalidTransaction(fmt.Sprintf("serialization failed: %s", err))
	}
	if len(data) > MaxTxSize {
		return NewInvalidTransaction(fmt.Sprintf("transaction too large: %d bytes (max %d)", len(data), MaxTxSize))
	}
	return nil
}

// MerkleHash implements the merkle Hashable interface.
func (tx Tx) MerkleHash() ([]byte, error) {
	h := tx.Hash()
	return h[:], nil
}

// Equals implements the merkle Hashable interface.
func (tx Tx) Equals(other Tx) bool {
	return tx.Hash() == other.Hash()
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	if sender, ok := tx.Sender(); ok {
		return fmt.Sprintf("%s:%s:%d", tx.Kind, sender, tx.Nonce())
	}
	return fmt.Sprintf("%s:%s", tx.Kind, tx.Hash())
}

// =============================================================================

// CoinbaseTx issues the block reward to the miner. Its triangle geometry is
// derived deterministically from the block height and beneficiary when the
// transaction is applied.
type CoinbaseTx struct {
	Beneficiary string `json:"beneficiary"`
	RewardArea  uint64 `json:"reward_area"`
	BlockHeight uint64 `json:"block_height"`
	Nonce       uint64 `json:"nonce"`
}

// Validate checks the coinbase fields.
func (cb CoinbaseTx) Validate() error {
	if cb.RewardArea == 0 {
		return NewInvalidTransaction("coinbase reward area must be greater than zero")
	}
	if cb.Beneficiary == "" {
		return NewInvalidTransaction("coinbase beneficiary address cannot be empty")
	}
	return nil
}

// =============================================================================

// TransferTx moves ownership of a triangle output. The fee is geometric:
// fee_area is deducted from the output's effective value and collected by
// the miner through the coinbase ceiling.
type TransferTx struct {
	InputHash Hash    `json:"input_hash"`
	NewOwner  string  `json:"new_owner"`
	Sender    string  `json:"sender"`
	FeeArea   float64 `json:"fee_area"`
	Nonce     uint64  `json:"nonce"`
	Memo      string  `json:"memo,omitempty"`
	Signature []byte  `json:"signature,omitempty"`
	PublicKey []byte  `json:"public_key,omitempty"`
}

// SignableBytes returns the bytes the sender signs.
func (tr TransferTx) SignableBytes() []byte {
	var buf bytes.Buffer
	buf.WriteString("TRANSFER:")
	buf.Write(tr.InputHash[:])
	buf.WriteString(tr.NewOwner)
	buf.WriteString(tr.Sender)
	writeFloat64(&buf, tr.FeeArea)
	writeUint64(&buf, tr.Nonce)
	buf.WriteString(tr.Memo)
	return buf.Bytes()
}

// Sign attaches a signature and public key produced by the key pair.
func (tr *TransferTx) Sign(kp *signature.KeyPair) error {
	sig, err := kp.Sign(tr.SignableBytes())
	if err != nil {
		return err
	}
	tr.Signature = sig
	tr.PublicKey = kp.PublicKey()
	return nil
}

// Validate performs the stateless transfer checks.
func (tr TransferTx) Validate() error {
	if len(tr.Signature) == 0 || len(tr.PublicKey) == 0 {
		return NewInvalidTransaction("transfer not signed")
	}
	if tr.Sender == "" {
		return NewInvalidTransaction("sender address cannot be empty")
	}
	if tr.NewOwner == "" {
		return NewInvalidTransaction("new owner address cannot be empty")
	}
	if math.IsNaN(tr.FeeArea) || math.IsInf(tr.FeeArea, 0) {
		return NewInvalidTransaction("fee area must be a finite number")
	}
	if tr.FeeArea < 0 {
		return NewInvalidTransaction("fee area cannot be negative")
	}
	if len(tr.Memo) > MaxMemoLength {
		return NewInvalidTransaction(fmt.Sprintf("memo exceeds maximum length of %d bytes", MaxMemoLength))
	}

	if !signature.Verify(tr.PublicKey, tr.SignableBytes(), tr.Signature) {
		return NewInvalidTransaction("invalid signature")
	}

	addr, err := signature.AddressFromPublicKey(tr.PublicKey)
	if err != nil {
		return NewInvalidTransaction(fmt.Sprintf("invalid public key: %s", err))
	}
	if addr != tr.Sender {
		return NewInvalidTransaction("public key does not belong to sender")
	}

	return nil
}

// =============================================================================

// SubdivisionTx splits one parent output into the three Sierpinski corner
// children. The fee is a symbolic integer, never deducted from triangle
// value; the 25% central hole is the geometric cost of subdividing.
type SubdivisionTx struct {
	ParentHash Hash                `json:"parent_hash"`
	Children   []geometry.Triangle `json:"children"`
	Owner      string              `json:"owner_address"`
	Fee        uint64              `json:"fee"`
	Nonce      uint64              `json:"nonce"`
	Signature  []byte              `json:"signature,omitempty"`
	PublicKey  []byte              `json:"public_key,omitempty"`
}

// SignableBytes returns the bytes the owner signs.
func (sub SubdivisionTx) SignableBytes() []byte {
	var buf bytes.Buffer
	buf.WriteString("SUBDIVIDE:")
	buf.Write(sub.ParentHash[:])
	for _, child := range sub.Children {
		h := child.Hash()
		buf.Write(h[:])
	}
	buf.WriteString(sub.Owner)
	writeUint64(&buf, sub.Fee)
	writeUint64(&buf, sub.Nonce)
	return buf.Bytes()
}

// Sign attaches a signature and public key produced by the key pair.
func (sub *SubdivisionTx) Sign(kp *signature.KeyPair) error {
	sig, err := kp.Sign(sub.SignableBytes())
	if err != nil {
		return err
	}
	sub.Signature = sig
	sub.PublicKey = kp.PublicKey()
	return nil
}

// Validate performs the stateless subdivision checks.
func (sub SubdivisionTx) Validate() error {
	if len(sub.Signature) == 0 || len(sub.PublicKey) == 0 {
		return NewInvalidTransaction("subdivision not signed")
	}
	if sub.Owner == "" {
		return NewInvalidTransaction("owner address cannot be empty")
	}
	if len(sub.Children) != 3 {
		return NewInvalidTransaction("subdivision must produce exactly 3 children")
	}
	for i, child := range sub.Children {
		if !child.IsValid() {
			return NewInvalidTransaction(fmt.Sprintf("child %d is not a valid triangle", i))
		}
	}

	if !signature.Verify(sub.PublicKey, sub.SignableBytes(), sub.Signature) {
		return NewInvalidTransaction("invalid signature")
	}

	addr, err := signature.AddressFromPublicKey(sub.PublicKey)
	if err != nil {
		return NewInvalidTransaction(fmt.Sprintf("invalid public key: %s", err))
	}
	if addr != sub.Owner {
		return NewInvalidTransaction("public key does not belong to owner")
	}

	return nil
}

// =============================================================================

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeFloat64(buf *bytes.Buffer, v float64) {
	writeUint64(buf, math.Float64bits(v))
}
