// Package worker implements the node's background workflows: the
// continuous mining loop and transaction sharing. The worker registers
// itself with the state.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/trinitychain/trinitychain/foundation/blockchain/state"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

// txSharingBuffer gives the share channel room so admissions never block
// on a slow peer write.
const txSharingBuffer = 100

// Worker manages the mining and transaction sharing goroutines.
type Worker struct {
	st          *state.State
	evHandler   state.EventHandler
	wg          sync.WaitGroup
	shut        chan struct{}
	startMining chan bool
	txSharing   chan transaction.Tx

	mu         sync.Mutex
	cancelMine context.CancelFunc
}

// Run creates the worker, registers it with the state and starts the
// background operations.
func Run(st *state.State, evHandler state.EventHandler) *Worker {
	w := Worker{
		st:          st,
		evHandler:   evHandler,
		shut:        make(chan struct{}),
		startMining: make(chan bool, 1),
		txSharing:   make(chan transaction.Tx, txSharingBuffer),
	}

	st.Worker = &w

	operations := []func(){
		w.shareTxOperations,
	}
	if st.Beneficiary() != "" {
		operations = append(operations, w.miningOperations)
		w.SignalStartMining()
	}

	w.wg.Add(len(operations))
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			op()
		}(op)
	}

	return &w
}

// Shutdown terminates the goroutines performing the workflows.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	close(w.shut)
	w.SignalCancelMining()()
	w.wg.Wait()
}

// =============================================================================

// SignalStartMining starts a mining operation if one is not already
// pending.
func (w *Worker) SignalStartMining() {
	select {
	case w.startMining <- true:
	default:
	}
}

// SignalCancelMining cancels any in-flight proof-of-work search. The
// returned done function exists so callers can sequence their state update
// before mining restarts.
func (w *Worker) SignalCancelMining() (done func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancelMine != nil {
		w.cancelMine()
	}

	return func() { w.SignalStartMining() }
}

// SignalShareTx queues a transaction for gossip to the known peers.
func (w *Worker) SignalShareTx(tx transaction.Tx) {
	select {
	case w.txSharing <- tx:
	default:
		w.evHandler("worker: SignalShareTx: dropping share, channel full")
	}
}

// =============================================================================

// miningOperations waits for the start signal and runs mining rounds until
// shutdown. Each completed round re-arms the signal so mining is
// continuous.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.shut:
			return
		case <-w.startMining:
			w.runMiningOperation()

			select {
			case <-w.shut:
				return
			default:
				w.SignalStartMining()
			}
		}
	}
}

// runMiningOperation performs one template-assemble / search / apply round.
func (w *Worker) runMiningOperation() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.mu.Lock()
	w.cancelMine = cancel
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.cancelMine = nil
		w.mu.Unlock()
	}()

	block, err := w.st.MineNextBlock(ctx)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			w.evHandler("worker: runMiningOperation: MINING: cancelled")
		default:
			w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
		}
		return
	}

	w.evHandler("worker: runMiningOperation: MINING: mined block[%d] %s", block.Header.Height, block.BlockHash)
	w.st.BroadcastBlock(block)
}

// shareTxOperations gossips freshly admitted transactions to the peers.
func (w *Worker) shareTxOperations() {
	w.evHandler("worker: shareTxOperations: G started")
	defer w.evHandler("worker: shareTxOperations: G completed")

	for {
		select {
		case <-w.shut:
			return
		case tx := <-w.txSharing:
			w.st.BroadcastTransaction(tx)
		}
	}
}

// ensure the worker satisfies the state contract.
var _ state.Worker = (*Worker)(nil)
