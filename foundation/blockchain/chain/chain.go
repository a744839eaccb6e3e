// Package chain implements the block engine: validation, atomic
// application, fork tracking, longest-chain reorganization, difficulty
// retargeting and the emission schedule.
//
// A Chain value is not safe for concurrent use. The node serializes all
// access behind a single reader-writer lock so every multi-step transition
// is observably atomic.
package chain

import (
	"errors"
	"fmt"
	"time"

	"github.com/trinitychain/trinitychain/foundation/blockchain/mempool"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
	"github.com/trinitychain/trinitychain/foundation/blockchain/utxo"
)

// maxClockDrift bounds how far past wall clock a block timestamp may run.
const maxClockDrift = 2 * time.Hour

// EventHandler defines a function that is called when events occur in the
// processing of blocks and transactions.
type EventHandler func(v string, args ...any)

// Chain manages the ordered blocks, the block index, alternative-branch
// blocks, the triangle state and the mempool.
type Chain struct {
	evHandler  EventHandler
	blocks     []Block
	blockIndex map[transaction.Hash]Block
	forks      map[transaction.Hash]Block
	state      *utxo.TriangleState
	mempool    *mempool.Mempool
	difficulty uint64
}

// New constructs a chain holding only the genesis block. Construction
// fails when the derived genesis hash diverges from the published one.
func New(mp *mempool.Mempool, evHandler EventHandler) (*Chain, error) {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	genesis := GenesisBlock()
	if err := verifyGenesis(genesis); err != nil {
		return nil, err
	}

	state := utxo.New()
	if err := state.Insert(transaction.OutputID(genesis.BlockHash, 0), GenesisTriangle()); err != nil {
		return nil, err
	}

	c := Chain{
		evHandler:  ev,
		blocks:     []Block{genesis},
		blockIndex: map[transaction.Hash]Block{genesis.BlockHash: genesis},
		forks:      make(map[transaction.Hash]Block),
		state:      state,
		mempool:    mp,
		difficulty: GenesisDifficulty,
	}

	return &c, nil
}

// =============================================================================
// Read access

// Height returns the height of the chain tip.
func (c *Chain) Height() uint64 {
	return c.tip().Header.Height
}

// Tip returns the latest block on the main chain.
func (c *Chain) Tip() Block {
	return c.tip()
}

func (c *Chain) tip() Block {
	return c.blocks[len(c.blocks)-1]
}

// Difficulty returns the difficulty the next block must satisfy.
func (c *Chain) Difficulty() uint64 {
	return c.difficulty
}

// State returns the triangle state for read-only queries. Callers must not
// mutate it and must hold the node's read lock for the duration of use.
func (c *Chain) State() *utxo.TriangleState {
	return c.state
}

// Mempool returns the pool of pending transactions.
func (c *Chain) Mempool() *mempool.Mempool {
	return c.mempool
}

// BlockByHash returns the block with the given hash, main chain or fork.
func (c *Chain) BlockByHash(hash transaction.Hash) (Block, bool) {
	b, exists := c.blockIndex[hash]
	return b, exists
}

// BlockByHeight returns the main-chain block at the given height.
func (c *Chain) BlockByHeight(height uint64) (Block, bool) {
	if height >= uint64(len(c.blocks)) {
		return Block{}, false
	}
	return c.blocks[height], true
}

// HeadersFrom returns up to count headers starting at fromHeight.
func (c *Chain) HeadersFrom(fromHeight uint64, count int) []BlockHeader {
	headers := make([]BlockHeader, 0, count)
	for h := fromHeight; h < uint64(len(c.blocks)) && len(headers) < count; h++ {
		headers = append(headers, c.blocks[h].Header)
	}
	return headers
}

// Blocks returns a copy of the main chain.
func (c *Chain) Blocks() []Block {
	blocks := make([]Block, len(c.blocks))
	copy(blocks, c.blocks)
	return blocks
}

// =============================================================================
// Validation

// ValidateBlock enforces the consensus rules against the current chain
// without mutating it: linkage, height, strict-monotone timestamp with a
// drift cap, proof of work, merkle root, coinbase position and reward
// ceiling. For a block that extends the tip, every transaction is also
// checked against a walked working copy of the state so intra-block
// dependencies resolve; a fork block's transactions are checked when a
// reorganization replays them.
func (c *Chain) ValidateBlock(b Block) error {
	parent, exists := c.blockIndex[b.Header.PreviousHash]
	if !exists {
		// Classify: a structurally sound block with an unknown parent is an
		// orphan the network layer can recover; anything else is garbage.
		if err := validateStructure(b); err != nil {
			return err
		}
		return ErrOrphanBlock
	}

	if b.Header.Height != parent.Header.Height+1 {
		return fmt.Errorf("%w: got height %d, exp %d", ErrInvalidBlockLinkage, b.Header.Height, parent.Header.Height+1)
	}

	if b.Header.Timestamp <= parent.Header.Timestamp {
		return transaction.NewInvalidTransaction("block timestamp must be greater than parent timestamp")
	}
	if b.Header.Timestamp > time.Now().UTC().Add(maxClockDrift).Unix() {
		return transaction.NewInvalidTransaction("block timestamp too far in the future")
	}

	if err := validateStructure(b); err != nil {
		return err
	}

	if err := validateCoinbase(b); err != nil {
		return err
	}

	// Walk the transactions against a working copy only when the block
	// extends the tip; fork branches are re-validated in full when a
	// reorganization replays them.
	if b.Header.PreviousHash == c.tip().BlockHash {
		working := c.state.Clone()
		if err := applyTransactions(working, b); err != nil {
			return err
		}
	}

	return nil
}

// validateStructure checks the block's self-consistency: header hash,
// difficulty predicate and merkle root.
func validateStructure(b Block) error {
	if !b.VerifyProofOfWork() {
		return ErrInvalidProofOfWork
	}

	root, err := MerkleRoot(b.Transactions)
	if err != nil {
		return err
	}
	if b.Header.MerkleRoot != root {
		return ErrInvalidMerkleRoot
	}

	return nil
}

// validateCoinbase enforces exactly one coinbase at index 0 whose height
// matches the block and whose reward stays under emission plus fees.
func validateCoinbase(b Block) error {
	if b.Header.Height == 0 {
		return nil
	}

	coinbaseCount := 0
	for i, tx := range b.Transactions {
		if tx.Kind == transaction.KindCoinbase {
			coinbaseCount++
			if i != 0 {
				return transaction.NewInvalidTransaction("coinbase must be the first transaction in the block")
			}
		}
	}
	if coinbaseCount != 1 {
		return transaction.NewInvalidTransaction(fmt.Sprintf("block must contain exactly one coinbase, found %d", coinbaseCount))
	}

	cb := b.Transactions[0].Coinbase
	if cb.BlockHeight != b.Header.Height {
		return transaction.NewInvalidTransaction(fmt.Sprintf("coinbase height %d does not match block height %d", cb.BlockHeight, b.Header.Height))
	}

	maxReward := Emission(b.Header.Height) + uint64(TotalFees(b.Transactions))
	if cb.RewardArea > maxReward {
		return transaction.NewInvalidTransaction(fmt.Sprintf("coinbase reward %d exceeds maximum allowed %d", cb.RewardArea, maxReward))
	}

	return nil
}

// TotalFees sums the fee area offered by the block's non-coinbase
// transactions.
func TotalFees(txs []transaction.Tx) float64 {
	var total float64
	for _, tx := range txs {
		if tx.Kind != transaction.KindCoinbase {
			total += tx.FeeArea()
		}
	}
	return total
}

// =============================================================================
// Application

// ApplyBlock validates a block and advances the chain. The call either
// succeeds fully — state, blocks, index and mempool advanced together — or
// fails with no observable mutation.
func (c *Chain) ApplyBlock(b Block) error {
	if err := c.ValidateBlock(b); err != nil {
		return err
	}

	// Case 1: the block extends the main chain.
	if b.Header.PreviousHash == c.tip().BlockHash {
		return c.extendTip(b)
	}

	// Case 2: the block extends a known non-tip ancestor and opens or
	// lengthens a fork.
	c.evHandler("chain: ApplyBlock: fork detected at height %d", b.Header.Height)
	c.forks[b.BlockHash] = b
	c.blockIndex[b.BlockHash] = b

	branch, err := c.branchFrom(b)
	if err != nil {
		return err
	}

	if c.branchWork(branch) > c.mainWork(branch[0].Header.Height) {
		c.evHandler("chain: ApplyBlock: fork outweighs main chain, reorganizing")
		if err := c.reorganizeToFork(branch); err != nil {
			// A failed reorg keeps the block as a recorded fork; the main
			// chain is untouched.
			c.evHandler("chain: ApplyBlock: reorganization failed: %s", err)
		}
	}

	return nil
}

// extendTip applies a tip-extending block: mutate a clone, then install
// everything in one step.
func (c *Chain) extendTip(b Block) error {
	working := c.state.Clone()
	if err := applyTransactions(working, b); err != nil {
		return err
	}

	c.state = working
	c.blocks = append(c.blocks, b)
	c.blockIndex[b.BlockHash] = b

	if b.Header.Height > 0 && b.Header.Height%DifficultyAdjustmentWindow == 0 {
		c.adjustDifficulty()
	}

	txHashes := make([]transaction.Hash, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		txHashes = append(txHashes, tx.Hash())
	}
	c.mempool.Remove(txHashes)
	c.mempool.RevalidateAgainst(c.state)

	c.evHandler("chain: ApplyBlock: block[%d] applied: %s", b.Header.Height, b.BlockHash)
	return nil
}

// applyTransactions applies a block's transactions to the state in block
// order, validating each statelessly first.
func applyTransactions(state *utxo.TriangleState, b Block) error {
	for i, tx := range b.Transactions {
		if tx.Kind == transaction.KindCoinbase && i != 0 {
			return transaction.NewInvalidTransaction("coinbase must be the first transaction in the block")
		}
		if err := tx.Validate(); err != nil {
			return err
		}
		if err := applyTx(state, tx); err != nil {
			return err
		}
	}
	return nil
}

// applyTx dispatches one transaction apply on the kind tag.
func applyTx(state *utxo.TriangleState, tx transaction.Tx) error {
	switch tx.Kind {
	case transaction.KindCoinbase:
		return state.ApplyCoinbase(tx.Coinbase, tx.Hash())
	case transaction.KindTransfer:
		return state.ApplyTransfer(tx.Transfer, tx.Hash())
	case transaction.KindSubdivision:
		return state.ApplySubdivision(tx.Subdivision, tx.Hash())
	}
	return transaction.NewInvalidTransaction(fmt.Sprintf("unknown transaction kind %q", tx.Kind))
}

// =============================================================================
// Forks and reorganization

// branchFrom walks a fork head back through the block index until it meets
// the main chain, returning the branch oldest-first. The first element is
// the earliest off-chain block; its parent is the common ancestor.
func (c *Chain) branchFrom(head Block) ([]Block, error) {
	var branch []Block

	current := head
	for {
		if c.onMainChain(current.BlockHash) {
			break
		}
		branch = append(branch, current)

		parent, exists := c.blockIndex[current.Header.PreviousHash]
		if !exists {
			return nil, fmt.Errorf("%w: fork ancestry incomplete at %s", ErrInvalidBlockLinkage, current.Header.PreviousHash)
		}
		current = parent
	}

	for i, j := 0, len(branch)-1; i < j; i, j = i+1, j-1 {
		branch[i], branch[j] = branch[j], branch[i]
	}
	return branch, nil
}

// onMainChain reports whether the hash is a main-chain block.
func (c *Chain) onMainChain(hash transaction.Hash) bool {
	b, exists := c.blockIndex[hash]
	if !exists {
		return false
	}
	if b.Header.Height >= uint64(len(c.blocks)) {
		return false
	}
	return c.blocks[b.Header.Height].BlockHash == hash
}

// branchWork sums the difficulty carried by a branch.
func (c *Chain) branchWork(branch []Block) uint64 {
	var work uint64
	for _, b := range branch {
		work += b.Header.Difficulty
	}
	return work
}

// mainWork sums the difficulty of the main chain from fromHeight to the tip.
func (c *Chain) mainWork(fromHeight uint64) uint64 {
	var work uint64
	for h := fromHeight; h < uint64(len(c.blocks)); h++ {
		work += c.blocks[h].Header.Difficulty
	}
	return work
}

// reorganizeToFork switches the main chain to the given branch. The full
// candidate chain is replayed into a scratch state first; only on success
// are blocks and state swapped together. Disconnected main-chain
// transactions are re-offered to the mempool best-effort.
func (c *Chain) reorganizeToFork(branch []Block) error {
	ancestorHeight := branch[0].Header.Height - 1

	newChain := make([]Block, 0, int(ancestorHeight)+1+len(branch))
	newChain = append(newChain, c.blocks[:ancestorHeight+1]...)
	newChain = append(newChain, branch...)

	newState, err := RebuildFromBlocks(newChain)
	if err != nil {
		return err
	}

	// The swap: move displaced main-chain blocks into the fork set so the
	// chain can reorganize back, then install blocks and state together.
	displaced := c.blocks[ancestorHeight+1:]
	for _, b := range displaced {
		c.forks[b.BlockHash] = b
	}
	for _, b := range branch {
		delete(c.forks, b.BlockHash)
	}

	c.blocks = newChain
	c.state = newState

	newTip := c.tip()
	c.difficulty = newTip.Header.Difficulty
	if newTip.Header.Height > 0 && newTip.Header.Height%DifficultyAdjustmentWindow == 0 {
		c.adjustDifficulty()
	}

	// Transactions that lost their block get a second chance; duplicates
	// and now-invalid entries are silently dropped.
	for _, b := range displaced {
		for _, tx := range b.Transactions {
			if tx.Kind == transaction.KindCoinbase {
				continue
			}
			c.mempool.Add(tx, c.state)
		}
	}
	c.mempool.RevalidateAgainst(c.state)

	c.evHandler("chain: reorganize: switched to fork tip[%d] %s", newTip.Header.Height, newTip.BlockHash)
	return nil
}

// RebuildFromBlocks replays a full chain from its genesis block into a
// fresh triangle state, validating linkage, proof of work and merkle roots
// along the way.
func RebuildFromBlocks(blocks []Block) (*utxo.TriangleState, error) {
	if len(blocks) == 0 {
		return nil, errors.New("cannot rebuild from an empty chain")
	}

	genesis := GenesisBlock()
	if blocks[0].BlockHash != genesis.BlockHash {
		return nil, fmt.Errorf("%w: chain does not start at genesis", ErrInvalidBlockLinkage)
	}

	state := utxo.New()
	if err := state.Insert(transaction.OutputID(genesis.BlockHash, 0), GenesisTriangle()); err != nil {
		return nil, err
	}

	for i := 1; i < len(blocks); i++ {
		b, parent := blocks[i], blocks[i-1]

		if b.Header.PreviousHash != parent.BlockHash {
			return nil, fmt.Errorf("%w: broken linkage at height %d", ErrInvalidBlockLinkage, b.Header.Height)
		}
		if b.Header.Height != parent.Header.Height+1 {
			return nil, fmt.Errorf("%w: height gap at %d", ErrInvalidBlockLinkage, b.Header.Height)
		}
		if b.Header.Timestamp <= parent.Header.Timestamp {
			return nil, transaction.NewInvalidTransaction("block timestamp must be greater than parent timestamp")
		}
		if err := validateStructure(b); err != nil {
			return nil, err
		}
		if err := validateCoinbase(b); err != nil {
			return nil, err
		}
		if err := applyTransactions(state, b); err != nil {
			return nil, err
		}
	}

	return state, nil
}

// =============================================================================
// Difficulty and templates

// adjustDifficulty retargets from the timestamps spanning the last window.
func (c *Chain) adjustDifficulty() {
	if uint64(len(c.blocks)) <= DifficultyAdjustmentWindow {
		return
	}

	window := c.blocks[uint64(len(c.blocks))-DifficultyAdjustmentWindow:]
	first, last := window[0], window[len(window)-1]

	old := c.difficulty
	c.difficulty = retargetDifficulty(old, first.Header.Timestamp, last.Header.Timestamp)

	if old != c.difficulty {
		c.evHandler("chain: difficulty adjusted: %d -> %d", old, c.difficulty)
	}
}

// NextBlockTemplate assembles an unmined block for the miner: the top-fee
// mempool subset that applies cleanly in sequence, behind a coinbase
// claiming emission plus fees.
func (c *Chain) NextBlockTemplate(beneficiary string, maxTxs int) (Block, error) {
	tip := c.tip()
	height := tip.Header.Height + 1

	candidates := c.mempool.SelectTop(maxTxs)

	// Drop candidates that conflict once earlier selections apply; the
	// remainder is guaranteed to validate as a block.
	working := c.state.Clone()
	txs := make([]transaction.Tx, 0, len(candidates)+1)
	for _, tx := range candidates {
		if err := applyTx(working, tx); err != nil {
			c.evHandler("chain: template: dropping conflicting tx %s: %s", tx.Hash(), err)
			continue
		}
		txs = append(txs, tx)
	}

	cb := transaction.CoinbaseTx{
		Beneficiary: beneficiary,
		RewardArea:  Emission(height) + uint64(TotalFees(txs)),
		BlockHeight: height,
		Nonce:       0,
	}
	all := append([]transaction.Tx{transaction.NewCoinbase(cb)}, txs...)

	return NewBlock(tip, c.difficulty, all)
}
