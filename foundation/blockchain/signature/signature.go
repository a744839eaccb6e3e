// Package signature provides the signing boundary for the chain. The core
// only ever commits signable bytes and stores signatures and public keys
// opaquely; this package is the one place that knows they are ECDSA values
// on the secp256k1 curve.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// KeyPair wraps a private key for producing signatures over transaction
// signable bytes.
type KeyPair struct {
	privateKey *ecdsa.PrivateKey
}

// Generate constructs a new random key pair.
func Generate() (*KeyPair, error) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return &KeyPair{privateKey: pk}, nil
}

// LoadECDSA reads a key pair from the hex-encoded key file at path.
func LoadECDSA(path string) (*KeyPair, error) {
	pk, err := crypto.LoadECDSA(path)
	if err != nil {
		return nil, fmt.Errorf("loading key from %q: %w", path, err)
	}
	return &KeyPair{privateKey: pk}, nil
}

// SaveECDSA writes the key pair to a hex-encoded key file at path.
func (kp *KeyPair) SaveECDSA(path string) error {
	return crypto.SaveECDSA(path, kp.privateKey)
}

// Address returns the address derived from the key pair's public key.
func (kp *KeyPair) Address() string {
	return crypto.PubkeyToAddress(kp.privateKey.PublicKey).String()
}

// PublicKey returns the uncompressed public key bytes to be carried in a
// transaction.
func (kp *KeyPair) PublicKey() []byte {
	return crypto.FromECDSAPub(&kp.privateKey.PublicKey)
}

// Sign produces a signature over the message bytes.
func (kp *KeyPair) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)

	sig, err := crypto.Sign(digest[:], kp.privateKey)
	if err != nil {
		return nil, fmt.Errorf("signing message: %w", err)
	}

	// Drop the recovery id, verification carries the public key explicitly.
	return sig[:crypto.RecoveryIDOffset], nil
}

// =============================================================================

// Verify reports whether signature is a valid signature by publicKey over
// the message bytes.
func Verify(publicKey []byte, message []byte, signature []byte) bool {
	if len(signature) != crypto.SignatureLength-1 {
		return false
	}

	digest := sha256.Sum256(message)
	return crypto.VerifySignature(publicKey, digest[:], signature)
}

// AddressFromPublicKey derives the address for the supplied public key bytes.
func AddressFromPublicKey(publicKey []byte) (string, error) {
	if len(publicKey) == 0 {
		return "", errors.New("empty public key")
	}

	pub, err := crypto.UnmarshalPubkey(publicKey)
	if err != nil {
		return "", fmt.Errorf("unmarshaling public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pub).String(), nil
}

// SignatureString returns the signature in hex for logging.
func SignatureString(signature []byte) string {
	return hexutil.Encode(signature)
}
