// Package miner performs the proof-of-work nonce search, single-threaded
// or as a parallel race between strided workers sharing a lock-free stop
// signal.
package miner

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/trinitychain/trinitychain/foundation/blockchain/chain"
)

// ErrNoSolution is returned when the nonce space is exhausted without
// satisfying the difficulty predicate.
var ErrNoSolution = errors.New("no solution found")

// noneFound is the sentinel the winning worker swaps its nonce against.
const noneFound = math.MaxUint64

// Mine searches for a nonce that makes the template's header hash satisfy
// its difficulty. The search observes ctx at least once per attempt and
// returns ctx.Err() promptly on cancellation. threads <= 1 runs the
// single-threaded scan.
func Mine(ctx context.Context, template chain.Block, threads int) (chain.Block, error) {
	if threads <= 1 {
		return mineSingle(ctx, template)
	}
	return mineParallel(ctx, template, threads)
}

// mineSingle increments the nonce from zero, rehashing the header each
// step.
func mineSingle(ctx context.Context, template chain.Block) (chain.Block, error) {
	b := template

	for nonce := uint64(0); ; nonce++ {
		if ctx.Err() != nil {
			return chain.Block{}, ctx.Err()
		}

		b.Header.Nonce = nonce
		hash := b.Header.Hash()
		if chain.HashSatisfiesDifficulty(hash, b.Header.Difficulty) {
			b.BlockHash = hash
			return b, nil
		}

		if nonce == math.MaxUint64 {
			return chain.Block{}, ErrNoSolution
		}
	}
}

// mineParallel races workers over the nonce space. Worker i scans nonces
// i, i+N, i+2N, ... on its own block copy. The first hit publishes its
// nonce with a compare-and-swap and raises the shared found flag; the
// losers observe the flag and exit. All atomics are sequentially
// consistent so the stop signal is seen promptly.
func mineParallel(ctx context.Context, template chain.Block, threads int) (chain.Block, error) {
	var found atomic.Bool
	var foundNonce atomic.Uint64
	foundNonce.Store(noneFound)

	var wg sync.WaitGroup
	wg.Add(threads)

	stride := uint64(threads)
	for i := 0; i < threads; i++ {
		go func(start uint64) {
			defer wg.Done()

			b := template
			for nonce := start; ; nonce += stride {
				if found.Load() || ctx.Err() != nil {
					return
				}

				b.Header.Nonce = nonce
				if chain.HashSatisfiesDifficulty(b.Header.Hash(), b.Header.Difficulty) {
					if foundNonce.CompareAndSwap(noneFound, nonce) {
						found.Store(true)
					}
					return
				}

				if nonce > math.MaxUint64-stride {
					return
				}
			}
		}(uint64(i))
	}

	wg.Wait()

	if ctx.Err() != nil {
		return chain.Block{}, ctx.Err()
	}

	nonce := foundNonce.Load()
	if nonce == noneFound {
		return chain.Block{}, ErrNoSolution
	}

	// Reconstruct the winning block from the published nonce.
	b := template
	b.Header.Nonce = nonce
	b.BlockHash = b.Header.Hash()
	if !chain.HashSatisfiesDifficulty(b.BlockHash, b.Header.Difficulty) {
		return chain.Block{}, ErrNoSolution
	}

	return b, nil
}
