package transaction

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Hash is a 32-byte SHA-256 value. It serializes as a hex string.
type Hash [32]byte

// String implements the fmt.Stringer interface.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText implements the encoding.TextMarshaler interface so hashes can
// key JSON maps.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (h *Hash) UnmarshalText(data []byte) error {
	if len(data) != 64 {
		return fmt.Errorf("hash must be 64 hex characters, got %d", len(data))
	}
	b, err := hex.DecodeString(string(data))
	if err != nil {
		return fmt.Errorf("decoding hash: %w", err)
	}
	copy(h[:], b)
	return nil
}

// ParseHash decodes a 64-character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if err := h.UnmarshalText([]byte(s)); err != nil {
		return Hash{}, err
	}
	return h, nil
}

// =============================================================================

// OutputID derives the synthetic id under which a produced output is keyed
// in the UTXO set: SHA-256 of the producing transaction's hash and the
// output index. Keying outputs by producer identity keeps a transfer that
// preserves geometry from colliding with its own input.
func OutputID(txHash Hash, index uint32) Hash {
	var buf [36]byte
	copy(buf[:32], txHash[:])
	binary.LittleEndian.PutUint32(buf[32:], index)
	return Hash(sha256.Sum256(buf[:]))
}
