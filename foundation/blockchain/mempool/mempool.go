// Package mempool maintains the pool of transaction identifiers that have
// been received but are not yet on the chain.
package mempool

import (
	"slices"
	"sort"
	"sync"
)

// Mempool represents a deduplicated set of pending transactions that
// remembers the order they arrived in.
type Mempool struct {
	pool map[string]uint64
	seq  uint64
	mu   sync.RWMutex
}

// New constructs a new, empty mempool.
func New() *Mempool {
	return &Mempool{
		pool: make(map[string]uint64),
	}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Contains reports whether the transaction is pending.
func (mp *Mempool) Contains(id string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[id]
	return exists
}

// Upsert adds a transaction to the mempool. A transaction already pending
// keeps its original place in line. It reports whether the transaction was new.
func (mp *Mempool) Upsert(id string) bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[id]; exists {
		return false
	}

	mp.seq++
	mp.pool[id] = mp.seq

	return true
}

// Delete removes transactions from the mempool and returns how many of
// them were pending.
func (mp *Mempool) Delete(ids ...string) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var removed int
	for _, id := range ids {
		if _, exists := mp.pool[id]; exists {
			delete(mp.pool, id)
			removed++
		}
	}

	return removed
}

// DeleteFunc removes every transaction the function reports true for and
// returns the ones removed in arrival order.
func (mp *Mempool) DeleteFunc(fn func(id string) bool) []string {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var removed []string
	for _, id := range mp.ordered() {
		if fn(id) {
			delete(mp.pool, id)
			removed = append(removed, id)
		}
	}

	return removed
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]uint64)
}

// PickBest returns the next set of transactions for the next block in the
// order they arrived. Pass -1 for all the transactions.
func (mp *Mempool) PickBest(howMany int) []string {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	ids := mp.ordered()
	if howMany >= 0 && howMany < len(ids) {
		ids = ids[:howMany]
	}

	return slices.Clip(ids)
}

// Copy returns every pending transaction in the order they arrived.
func (mp *Mempool) Copy() []string {
	return mp.PickBest(-1)
}

// ordered returns the transactions sorted by arrival. The caller must hold
// the lock.
func (mp *Mempool) ordered() []string {
	ids := make([]string, 0, len(mp.pool))
	for id := range mp.pool {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		return mp.pool[ids[i]] < mp.pool[ids[j]]
	})

	return ids
}
