package worker

import (
	"time"

	"github.com/cenkalti/backoff"
)

// startupSync brings this node up to date with its peers. Peers started at
// the same time may not be listening yet, so the sync is retried with an
// exponential backoff until one peer answers or the timeout passes.
func (w *Worker) startupSync() {
	w.evHandler("worker: startupSync: G started")
	defer w.evHandler("worker: startupSync: G completed")

	if w.startupTimeout <= 0 {
		w.Sync()
		return
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = w.startupTimeout

	operation := func() error {
		return w.state.SynchronizeWithPeers(w.ctx)
	}

	notify := func(err error, next time.Duration) {
		w.evHandler("worker: startupSync: WARNING: %s: retry in %v", err, next)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, w.ctx), notify); err != nil {
		w.evHandler("worker: startupSync: giving up: %s", err)
		return
	}

	// Anything pulled from peers may need mining.
	w.SignalStartMining()
}

// Sync synchronizes the chain with every known peer once.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	if err := w.state.SynchronizeWithPeers(w.ctx); err != nil {
		w.evHandler("worker: sync: WARNING: %s", err)
	}
}

// syncOperations handles chain requests for peers that sent us blocks we
// couldn't link to our chain.
func (w *Worker) syncOperations() {
	w.evHandler("worker: syncOperations: G started")
	defer w.evHandler("worker: syncOperations: G completed")

	for {
		select {
		case pr := <-w.syncing:
			if w.isShutdown() {
				continue
			}

			outcome, err := w.state.SynchronizeChain(w.ctx, pr)
			if err != nil {
				w.evHandler("worker: syncOperations: peer[%s]: WARNING: %s", pr.Host, err)
				continue
			}
			w.evHandler("worker: syncOperations: peer[%s]: outcome[%s]", pr.Host, outcome)

		case <-w.shut:
			w.evHandler("worker: syncOperations: received shut signal")
			return
		}
	}
}
