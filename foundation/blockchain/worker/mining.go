package worker

import (
	"errors"
	"time"

	"github.com/ardanlabs/minernode/foundation/blockchain/state"
)

// miningOperations handles mining.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.startMining:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation takes transactions from the mempool and mines a new
// block on top of the current head. The job is abandoned as soon as the
// head moves, the next operation mines on the new head.
func (w *Worker) runMiningOperation() {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	// Validate we are allowed to mine.
	if !w.state.IsMiningAllowed() {
		w.evHandler("worker: runMiningOperation: MINING: turned off")
		return
	}

	// Make sure there are transactions in the mempool.
	length := w.state.RetrieveMempoolLength()
	if length == 0 {
		w.evHandler("worker: runMiningOperation: MINING: no transactions to mine: Txs[%d]", length)
		return
	}

	// After running a mining operation, check if a new operation should
	// be signaled again.
	defer func() {
		length := w.state.RetrieveMempoolLength()
		if length > 0 && !w.isShutdown() {
			w.evHandler("worker: runMiningOperation: MINING: signal new mining operation: Txs[%d]", length)
			w.SignalStartMining()
		}
	}()

	// Drain the cancel mining channel before starting.
	select {
	case <-w.cancelMining:
		w.evHandler("worker: runMiningOperation: MINING: drained cancel channel")
	default:
	}

	// Take the snapshot of the head and the transactions to include.
	args, err := w.state.PrepareNextBlock()
	if err != nil {
		if errors.Is(err, state.ErrNoTransactions) {
			w.evHandler("worker: runMiningOperation: MINING: WARNING: no transactions in mempool")
			return
		}
		w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
		return
	}

	job := NewJob(args)

	w.mu.Lock()
	w.job = job
	w.mu.Unlock()

	t := time.Now()
	if err := job.Start(w.ctx); err != nil {
		w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
		return
	}

	select {
	case <-w.cancelMining:
		w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
		job.Interrupt()
		return

	case <-w.shut:
		w.evHandler("worker: runMiningOperation: MINING: CANCEL: shutdown")
		job.Interrupt()
		return

	case <-job.Done():
	}

	block, err := job.Result()
	duration := time.Since(t)

	w.evHandler("worker: runMiningOperation: MINING: mining duration[%v]", duration)

	if err != nil {
		w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete: %s", err)
		return
	}

	// The head may have moved while we were mining, the state decides.
	if err := w.state.AcceptMinedBlock(block); err != nil {
		w.evHandler("worker: runMiningOperation: MINING: WARNING: mined block not accepted: %s", err)
		return
	}

	// WOW, we mined a block. Propose the new block to the network.
	w.SignalShareBlock(block, "")
}
