// Package state is the core API for the blockchain and implements all the
// business rules and processing. A single mutex guards the chain, the
// mempool and the missing chain buffer as one unit.
package state

import (
	"errors"
	"sync"

	"github.com/ardanlabs/minernode/foundation/blockchain/database"
	"github.com/ardanlabs/minernode/foundation/blockchain/genesis"
	"github.com/ardanlabs/minernode/foundation/blockchain/mempool"
	"github.com/ardanlabs/minernode/foundation/blockchain/network"
	"github.com/ardanlabs/minernode/foundation/blockchain/peer"
)

// Set of error values returned by the state api.
var (
	ErrNoTransactions = errors.New("no transactions in mempool")
	ErrStaleBlock     = errors.New("mined block is no longer on top of the chain")
	ErrInvariant      = errors.New("ledger invariant violated")
	ErrPending        = errors.New("transaction is already pending")
	ErrCommitted      = errors.New("transaction is already on the chain")
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of blocks and transactions.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, chain sync, and gossip.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining()
	SignalShareTx(id string)
	SignalShareBlock(block database.Block, from string)
	SignalSync(pr peer.Peer)
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Host          string
	Genesis       genesis.Genesis
	KnownPeers    *peer.PeerSet
	Client        *network.Client
	MiningEnabled bool
	EvHandler     EventHandler
}

// State manages the blockchain database.
type State struct {
	host          string
	evHandler     EventHandler
	miningEnabled bool
	mu            sync.Mutex

	knownPeers *peer.PeerSet
	client     *network.Client
	genesis    genesis.Genesis
	chain      *database.Chain
	mempool    *mempool.Mempool

	workerMu sync.RWMutex
	worker   Worker
}

// New constructs a new blockchain for data management.
func New(cfg Config) (*State, error) {
	if err := cfg.Genesis.Validate(); err != nil {
		return nil, err
	}

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	client := cfg.Client
	if client == nil {
		client = network.NewClient(cfg.Host, 0, 0)
	}

	// Every node derives the same genesis block from the same genesis
	// information, which is what lets independent nodes agree.
	chain := database.NewChain(database.GenesisBlock(cfg.Genesis), cfg.Genesis.Difficulty)

	state := State{
		host:          cfg.Host,
		evHandler:     ev,
		miningEnabled: cfg.MiningEnabled,

		knownPeers: knownPeers,
		client:     client,
		genesis:    cfg.Genesis,
		chain:      chain,
		mempool:    mempool.New(),

		worker: nopWorker{},
	}

	// The Worker is set to a no-op here. The call to worker.Run will register
	// itself and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.workerMu.Lock()
	w := s.worker
	s.worker = nopWorker{}
	s.workerMu.Unlock()

	w.Shutdown()

	return nil
}

// SetWorker registers the worker that is signaled as blocks and
// transactions are processed.
func (s *State) SetWorker(w Worker) {
	s.workerMu.Lock()
	defer s.workerMu.Unlock()

	s.worker = w
}

// currentWorker returns the registered worker.
func (s *State) currentWorker() Worker {
	s.workerMu.RLock()
	defer s.workerMu.RUnlock()

	return s.worker
}

// IsMiningAllowed reports whether this node mines blocks.
func (s *State) IsMiningAllowed() bool {
	return s.miningEnabled
}

// checkInvariant verifies the head of the ledger still recomputes to its
// hash before it is built upon. The caller must hold the lock.
func (s *State) checkInvariant() error {
	if last := s.chain.LastBlock(); !last.IsConsistent() {
		s.evHandler("state: checkInvariant: FATAL: head block[%s] no longer matches its contents", last.Hash())
		return ErrInvariant
	}
	return nil
}

// =============================================================================

// nopWorker is used until a worker registers itself.
type nopWorker struct{}

func (nopWorker) Shutdown() {}
func (nopWorker) SignalStartMining() {}
func (nopWorker) SignalCancelMining() {}
func (nopWorker) SignalShareTx(id string) {}
func (nopWorker) SignalShareBlock(database.Block, string) {}
func (nopWorker) SignalSync(pr peer.Peer) {}
