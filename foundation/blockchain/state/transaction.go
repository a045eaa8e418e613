package state

import (
	"fmt"

	"github.com/ardanlabs/minernode/foundation/blockchain/database"
)

// ValidateTransaction checks the identifier is well formed and not already
// pending or on the chain.
func (s *State) ValidateTransaction(id string) error {
	if err := database.ValidateTransactionID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.validateTransaction(id)
}

// IsValidTransaction is the boolean form of ValidateTransaction.
func (s *State) IsValidTransaction(id string) bool {
	return s.ValidateTransaction(id) == nil
}

// SubmitTransaction accepts a transaction from a client for inclusion. An
// accepted transaction is shared with the known peers.
func (s *State) SubmitTransaction(id string) error {
	if err := s.upsertTransaction(id); err != nil {
		return err
	}

	s.evHandler("state: SubmitTransaction: accepted tx[%s]", id)

	s.currentWorker().SignalShareTx(id)
	s.currentWorker().SignalStartMining()

	return nil
}

// UpsertNodeTransaction accepts a transaction relayed by a peer. These are
// not shared again.
func (s *State) UpsertNodeTransaction(id string) error {
	if err := s.upsertTransaction(id); err != nil {
		return err
	}

	s.evHandler("state: UpsertNodeTransaction: accepted tx[%s]", id)

	s.currentWorker().SignalStartMining()

	return nil
}

// UpdateTransactionPool removes every pending transaction that is now on
// the chain and returns the ones removed.
func (s *State) UpdateTransactionPool() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pruneMempool()
}

// =============================================================================

func (s *State) upsertTransaction(id string) error {
	if err := database.ValidateTransactionID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateTransaction(id); err != nil {
		return err
	}

	s.mempool.Upsert(id)

	return nil
}

// validateTransaction checks the transaction against the ledger and pool.
// The caller must hold the lock.
func (s *State) validateTransaction(id string) error {
	if s.chain.ContainsTransaction(id) {
		return fmt.Errorf("%w: %s", ErrCommitted, id)
	}

	if s.mempool.Contains(id) {
		return fmt.Errorf("%w: %s", ErrPending, id)
	}

	return nil
}

// pruneMempool removes the pending transactions that are on the chain.
// The caller must hold the lock.
func (s *State) pruneMempool() []string {
	removed := s.mempool.DeleteFunc(s.chain.ContainsTransaction)
	for _, id := range removed {
		s.evHandler("state: pruneMempool: tx[%s] committed", id)
	}
	return removed
}

// restoreAbandoned returns transactions from blocks dropped by a
// replacement to the pool when the new chain doesn't carry them. The
// caller must hold the lock.
func (s *State) restoreAbandoned(abandoned []database.Block) {
	for _, block := range abandoned {
		for _, id := range block.Trans {
			if s.chain.ContainsTransaction(id) {
				continue
			}
			if s.mempool.Upsert(id) {
				s.evHandler("state: restoreAbandoned: tx[%s] returned to mempool", id)
			}
		}
	}
}
