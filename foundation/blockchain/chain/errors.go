package chain

import "errors"

// ErrInvalidBlockLinkage is returned when a block's parent link or height
// does not fit the chain.
var ErrInvalidBlockLinkage = errors.New("invalid block linkage")

// ErrOrphanBlock is returned for a structurally valid block whose parent is
// unknown; the network layer recovers by requesting the parent.
var ErrOrphanBlock = errors.New("orphan block")

// ErrInvalidProofOfWork is returned when a block hash fails the difficulty
// predicate or mismatches its header.
var ErrInvalidProofOfWork = errors.New("invalid proof of work")

// ErrInvalidMerkleRoot is returned when the recomputed merkle root
// disagrees with the header.
var ErrInvalidMerkleRoot = errors.New("invalid merkle root")
