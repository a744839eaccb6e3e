// Package state is the core API for the blockchain node. It owns the
// single reader-writer lock over the chain engine so that read-only
// queries run shared while block application, mempool admission and
// reorganization run exclusive and observably atomic.
package state

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/trinitychain/trinitychain/foundation/blockchain/chain"
	"github.com/trinitychain/trinitychain/foundation/blockchain/geometry"
	"github.com/trinitychain/trinitychain/foundation/blockchain/mempool"
	"github.com/trinitychain/trinitychain/foundation/blockchain/miner"
	"github.com/trinitychain/trinitychain/foundation/blockchain/peer"
	"github.com/trinitychain/trinitychain/foundation/blockchain/storage"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

// EventHandler defines a function that is called when events occur in the
// processing of blocks and transactions.
type EventHandler = chain.EventHandler

// Worker interface represents the behavior required to be implemented by
// any package providing support for mining and transaction sharing.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalShareTx(tx transaction.Tx)
}

// Broadcaster interface represents the behavior required to be implemented
// by the network layer for gossiping blocks and transactions.
type Broadcaster interface {
	BroadcastBlock(b chain.Block)
	BroadcastTransaction(tx transaction.Tx)
}

// =============================================================================

// Config represents the configuration required to start the node state.
type Config struct {
	Beneficiary    string
	Host           string
	Storage        storage.Store
	KnownPeers     *peer.Set
	SelectStrategy string
	MaxTxPerBlock  int
	MiningThreads  int
	EvHandler      EventHandler
}

// State manages the blockchain node.
type State struct {
	mu sync.RWMutex

	beneficiary   string
	host          string
	nodeID        string
	maxTxPerBlock int
	miningThreads int
	evHandler     EventHandler

	chain      *chain.Chain
	storage    storage.Store
	knownPeers *peer.Set

	Worker      Worker
	broadcaster Broadcaster
}

// New constructs the node state: a fresh chain seeded from genesis, then
// replayed from whatever the block store holds.
func New(cfg Config) (*State, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	strategy := cfg.SelectStrategy
	if strategy == "" {
		strategy = "fee"
	}
	mp, err := mempool.NewWithStrategy(strategy)
	if err != nil {
		return nil, err
	}

	c, err := chain.New(mp, ev)
	if err != nil {
		return nil, err
	}

	// Replay the durable blocks. The genesis block is derived, never
	// stored, so skip it if an older store carried one.
	blocks, err := cfg.Storage.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("loading blocks from storage: %w", err)
	}
	for _, b := range blocks {
		if b.Header.Height == 0 {
			continue
		}
		if err := c.ApplyBlock(b); err != nil {
			// A stale tail can survive a reorganization rewrite; everything
			// past the break resyncs from peers.
			ev("state: startup: stopping replay at block %d: %s", b.Header.Height, err)
			break
		}
	}
	ev("state: startup: replayed %d stored blocks, height %d", len(blocks), c.Height())

	var id [32]byte
	if _, err := rand.Read(id[:]); err != nil {
		return nil, fmt.Errorf("generating node id: %w", err)
	}

	maxTx := cfg.MaxTxPerBlock
	if maxTx <= 0 {
		maxTx = 100
	}
	threads := cfg.MiningThreads
	if threads <= 0 {
		threads = 1
	}

	s := State{
		beneficiary:   cfg.Beneficiary,
		host:          cfg.Host,
		nodeID:        hex.EncodeToString(id[:]),
		maxTxPerBlock: maxTx,
		miningThreads: threads,
		evHandler:     ev,
		chain:         c,
		storage:       cfg.Storage,
		knownPeers:    cfg.KnownPeers,
	}

	return &s, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() {
	if s.Worker != nil {
		s.Worker.Shutdown()
	}
	s.storage.Close()
}

// RegisterBroadcaster wires the network layer in after construction.
func (s *State) RegisterBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// =============================================================================
// Read-only queries (shared lock)

// NodeID returns this process run's ephemeral 32-byte node id in hex.
func (s *State) NodeID() string {
	return s.nodeID
}

// Host returns the node's P2P listen host.
func (s *State) Host() string {
	return s.host
}

// Beneficiary returns the mining beneficiary address.
func (s *State) Beneficiary() string {
	return s.beneficiary
}

// MiningThreads returns the configured parallel mining width.
func (s *State) MiningThreads() int {
	return s.miningThreads
}

// KnownPeers returns the peer set.
func (s *State) KnownPeers() *peer.Set {
	return s.knownPeers
}

// Height returns the current chain height.
func (s *State) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.chain.Height()
}

// Tip returns the latest block on the main chain.
func (s *State) Tip() chain.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.chain.Tip()
}

// Difficulty returns the difficulty the next block must satisfy.
func (s *State) Difficulty() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.chain.Difficulty()
}

// Balance sums the effective values owned by an address.
func (s *State) Balance(address string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.chain.State().Balance(address)
}

// TrianglesOf returns the outputs owned by an address.
func (s *State) TrianglesOf(address string) map[transaction.Hash]geometry.Triangle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.chain.State().TrianglesOf(address)
}

// Triangle returns the output stored under an id.
func (s *State) Triangle(id transaction.Hash) (geometry.Triangle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.chain.State().Get(id)
}

// BlockByHash returns the block with the given hash.
func (s *State) BlockByHash(hash transaction.Hash) (chain.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.chain.BlockByHash(hash)
}

// BlockByHeight returns the main-chain block at the given height.
func (s *State) BlockByHeight(height uint64) (chain.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.chain.BlockByHeight(height)
}

// HeadersFrom returns up to count headers starting at fromHeight.
func (s *State) HeadersFrom(fromHeight uint64, count int) []chain.BlockHeader {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.chain.HeadersFrom(fromHeight, count)
}

// BlocksByHashes returns the known blocks among the requested hashes.
func (s *State) BlocksByHashes(hashes []transaction.Hash) []chain.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blocks := make([]chain.Block, 0, len(hashes))
	for _, h := range hashes {
		if b, exists := s.chain.BlockByHash(h); exists {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// MempoolSize returns the number of pending transactions.
func (s *State) MempoolSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.chain.Mempool().Size()
}

// MempoolCopy returns a snapshot of the pending transactions.
func (s *State) MempoolCopy() []transaction.Tx {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.chain.Mempool().Copy()
}

// =============================================================================
// Mutations (exclusive lock)

// SubmitTransaction offers a transaction to the mempool. On fresh
// admission the transaction is shared with peers.
func (s *State) SubmitTransaction(tx transaction.Tx) (transaction.Hash, error) {
	s.mu.Lock()
	hash, err := s.chain.Mempool().Add(tx, s.chain.State())
	s.mu.Unlock()

	if err != nil {
		return transaction.Hash{}, err
	}

	s.evHandler("state: SubmitTransaction: admitted %s", hash)

	if s.Worker != nil {
		s.Worker.SignalShareTx(tx)
	}

	return hash, nil
}

// ApplyPeerBlock takes a block received from a peer, stops any in-flight
// mining, applies it and persists the result.
func (s *State) ApplyPeerBlock(b chain.Block) error {
	if s.Worker != nil {
		done := s.Worker.SignalCancelMining()
		defer done()
	}

	return s.applyBlock(b)
}

// MineNextBlock assembles a template, runs the proof-of-work search
// without holding the chain lock, and applies the result.
func (s *State) MineNextBlock(ctx context.Context) (chain.Block, error) {
	s.mu.RLock()
	template, err := s.chain.NextBlockTemplate(s.beneficiary, s.maxTxPerBlock)
	s.mu.RUnlock()
	if err != nil {
		return chain.Block{}, err
	}

	block, err := miner.Mine(ctx, template, s.miningThreads)
	if err != nil {
		return chain.Block{}, err
	}

	if err := s.applyBlock(block); err != nil {
		return chain.Block{}, err
	}

	return block, nil
}

// ApplyBlockBatch applies a synced batch of blocks in height order under
// one exclusive section. The first failure aborts the batch and is
// returned so the sync session stops.
func (s *State) ApplyBlockBatch(blocks []chain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range blocks {
		prevTip := s.chain.Tip()
		if err := s.chain.ApplyBlock(b); err != nil {
			return err
		}
		if err := s.persist(b, prevTip); err != nil {
			return err
		}
	}

	return nil
}

// BroadcastBlock hands a block to the network layer, when one is wired.
func (s *State) BroadcastBlock(b chain.Block) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastBlock(b)
	}
}

// BroadcastTransaction hands a transaction to the network layer.
func (s *State) BroadcastTransaction(tx transaction.Tx) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastTransaction(tx)
	}
}

// =============================================================================

// applyBlock runs one block through the chain engine and persists the
// outcome.
func (s *State) applyBlock(b chain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevTip := s.chain.Tip()
	if err := s.chain.ApplyBlock(b); err != nil {
		return err
	}

	return s.persist(b, prevTip)
}

// persist writes the apply outcome to the block store. A simple tip
// extension appends one block; a reorganization rewrites the main chain so
// the store tracks the surviving branch. Blocks are durable after the
// in-memory apply succeeds; a crash in between loses only the newest
// blocks, which resync. The caller holds the exclusive lock.
func (s *State) persist(b chain.Block, prevTip chain.Block) error {
	newTip := s.chain.Tip()

	switch {
	case newTip.BlockHash == b.BlockHash && b.Header.PreviousHash == prevTip.BlockHash:
		if err := s.storage.Append(b); err != nil {
			return fmt.Errorf("persisting block %d: %w", b.Header.Height, err)
		}

	case newTip.BlockHash != prevTip.BlockHash:
		// Reorganized: rewrite the main chain. Heights overwrite in the
		// store, so the surviving branch replaces the displaced one.
		for _, blk := range s.chain.Blocks() {
			if blk.Header.Height == 0 {
				continue
			}
			if err := s.storage.Append(blk); err != nil {
				return fmt.Errorf("persisting reorganized block %d: %w", blk.Header.Height, err)
			}
		}

	default:
		// A recorded fork that did not win; nothing durable changes.
	}

	return nil
}
