// Package worker implements mining, chain synchronization, and gossip for
// the blockchain.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ardanlabs/minernode/foundation/blockchain/database"
	"github.com/ardanlabs/minernode/foundation/blockchain/peer"
	"github.com/ardanlabs/minernode/foundation/blockchain/state"
)

// Set of buffer sizes for the gossip and sync requests. When a buffer is
// full new requests are dropped and logged.
const (
	maxTxShareRequests    = 100
	maxBlockShareRequests = 100
	maxSyncRequests       = 10
)

// Config represents the timings used by the worker.
type Config struct {
	SyncInterval   time.Duration
	StartupTimeout time.Duration
	EvHandler      state.EventHandler
}

// =============================================================================

// blockShare is a request to share a block with everyone but its sender.
type blockShare struct {
	block database.Block
	from  string
}

// Worker manages the POW workflows for the blockchain.
type Worker struct {
	state          *state.State
	wg             sync.WaitGroup
	ticker         *time.Ticker
	shut           chan struct{}
	ctx            context.Context
	cancel         context.CancelFunc
	startMining    chan bool
	cancelMining   chan bool
	txSharing      chan string
	blockSharing   chan blockShare
	syncing        chan peer.Peer
	startupTimeout time.Duration
	evHandler      state.EventHandler

	mu  sync.Mutex
	job *Job
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, cfg Config) *Worker {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	syncInterval := cfg.SyncInterval
	if syncInterval <= 0 {
		syncInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := Worker{
		state:          st,
		ticker:         time.NewTicker(syncInterval),
		shut:           make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
		startMining:    make(chan bool, 1),
		cancelMining:   make(chan bool, 1),
		txSharing:      make(chan string, maxTxShareRequests),
		blockSharing:   make(chan blockShare, maxBlockShareRequests),
		syncing:        make(chan peer.Peer, maxSyncRequests),
		startupTimeout: cfg.StartupTimeout,
		evHandler:      ev,
	}

	// Register this worker with the state package.
	st.SetWorker(&w)

	// Load the set of operations we need to run.
	operations := []func(){
		w.startupSync,
		w.peerOperations,
		w.syncOperations,
		w.miningOperations,
		w.shareTxOperations,
		w.shareBlockOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}

	// Pick up anything already sitting in the mempool.
	w.SignalStartMining()

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop ticker")
	w.ticker.Stop()

	w.evHandler("worker: shutdown: signal cancel mining")
	w.SignalCancelMining()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.cancel()
	w.wg.Wait()
}

// SignalStartMining starts a mining operation. If there is already a signal
// pending in the channel, just return since a mining operation will start.
func (w *Worker) SignalStartMining() {
	if !w.state.IsMiningAllowed() {
		w.evHandler("worker: SignalStartMining: mining turned off")
		return
	}

	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately. The caller does not wait for mining to stop.
func (w *Worker) SignalCancelMining() {
	select {
	case w.cancelMining <- true:
	default:
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")
}

// SignalShareTx signals a share transaction operation. If
// maxTxShareRequests signals exist in the channel, we won't send these.
func (w *Worker) SignalShareTx(id string) {
	select {
	case w.txSharing <- id:
		w.evHandler("worker: SignalShareTx: share Tx signaled")
	default:
		w.evHandler("worker: SignalShareTx: queue full, transactions won't be shared.")
	}
}

// SignalShareBlock signals a share block operation for a block received
// from the specified host.
func (w *Worker) SignalShareBlock(block database.Block, from string) {
	select {
	case w.blockSharing <- blockShare{block: block, from: from}:
		w.evHandler("worker: SignalShareBlock: share block signaled")
	default:
		w.evHandler("worker: SignalShareBlock: queue full, block won't be shared.")
	}
}

// SignalSync signals a chain sync with the specified peer.
func (w *Worker) SignalSync(pr peer.Peer) {
	select {
	case w.syncing <- pr:
		w.evHandler("worker: SignalSync: sync signaled: peer[%s]", pr.Host)
	default:
		w.evHandler("worker: SignalSync: queue full, sync with peer[%s] dropped.", pr.Host)
	}
}

// =============================================================================

// MiningStatus returns the status of the most recent mining job.
func (w *Worker) MiningStatus() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.job == nil {
		return StatusIdle
	}
	return w.job.Status()
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
