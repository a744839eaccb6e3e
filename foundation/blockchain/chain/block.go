package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/trinitychain/trinitychain/foundation/blockchain/merkle"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

// BlockHeader represents the metadata committed by a block's hash.
type BlockHeader struct {
	Height       uint64           `json:"height"`
	PreviousHash transaction.Hash `json:"previous_hash"`
	Timestamp    int64            `json:"timestamp"`
	Difficulty   uint64           `json:"difficulty"`
	Nonce        uint64           `json:"nonce"`
	MerkleRoot   transaction.Hash `json:"merkle_root"`
}

// Hash computes the canonical header hash: SHA-256 over the little-endian
// encoding of the header fields in declaration order. This layout is the
// cross-implementation contract; the genesis hash and every PoW check
// depend on it.
func (h BlockHeader) Hash() transaction.Hash {
	var buf bytes.Buffer

	writeUint64(&buf, h.Height)
	buf.Write(h.PreviousHash[:])
	writeUint64(&buf, uint64(h.Timestamp))
	writeUint64(&buf, h.Difficulty)
	writeUint64(&buf, h.Nonce)
	buf.Write(h.MerkleRoot[:])

	return transaction.Hash(sha256.Sum256(buf.Bytes()))
}

// =============================================================================

// Block represents a group of transactions batched together under a mined
// header.
type Block struct {
	Header       BlockHeader      `json:"header"`
	BlockHash    transaction.Hash `json:"hash"`
	Transactions []transaction.Tx `json:"transactions"`
}

// NewBlock constructs an unmined block on top of a parent: the merkle root
// is committed, the nonce is zero and the hash is unset until mining. The
// timestamp is forced strictly past the parent's.
func NewBlock(parent Block, difficulty uint64, txs []transaction.Tx) (Block, error) {
	root, err := MerkleRoot(txs)
	if err != nil {
		return Block{}, err
	}

	timestamp := time.Now().UTC().Unix()
	if timestamp <= parent.Header.Timestamp {
		timestamp = parent.Header.Timestamp + 1
	}

	b := Block{
		Header: BlockHeader{
			Height:       parent.Header.Height + 1,
			PreviousHash: parent.BlockHash,
			Timestamp:    timestamp,
			Difficulty:   difficulty,
			Nonce:        0,
			MerkleRoot:   root,
		},
		Transactions: txs,
	}

	return b, nil
}

// Hash recomputes the block hash from the header.
func (b Block) Hash() transaction.Hash {
	return b.Header.Hash()
}

// VerifyProofOfWork reports whether the stored hash matches the header and
// satisfies the difficulty predicate.
func (b Block) VerifyProofOfWork() bool {
	if b.BlockHash != b.Header.Hash() {
		return false
	}
	return HashSatisfiesDifficulty(b.BlockHash, b.Header.Difficulty)
}

// =============================================================================

// HashSatisfiesDifficulty reports whether the leading difficulty hex
// nibbles of the hash are zero.
func HashSatisfiesDifficulty(hash transaction.Hash, difficulty uint64) bool {
	if difficulty > 256 {
		difficulty = 256
	}

	for i := uint64(0); i < difficulty; i++ {
		b := hash[i/2]
		var nibble byte
		if i%2 == 0 {
			nibble = b >> 4
		} else {
			nibble = b & 0x0f
		}
		if nibble != 0 {
			return false
		}
	}
	return true
}

// MerkleRoot computes the merkle root over the transactions. An empty
// payload yields the zero root.
func MerkleRoot(txs []transaction.Tx) (transaction.Hash, error) {
	tree, err := merkle.NewTree(txs)
	if err != nil {
		return transaction.Hash{}, err
	}
	return transaction.Hash(tree.Root()), nil
}

// =============================================================================

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
