package state

import (
	"math/big"

	"github.com/ardanlabs/minernode/foundation/blockchain/database"
	"github.com/ardanlabs/minernode/foundation/blockchain/genesis"
	"github.com/ardanlabs/minernode/foundation/blockchain/peer"
)

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveLatestBlock returns a copy the current latest block.
func (s *State) RetrieveLatestBlock() database.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chain.LastBlock()
}

// RetrieveChain returns a copy of every block on the chain.
func (s *State) RetrieveChain() []database.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chain.Blocks()
}

// RetrieveChainFrom returns the blocks after the specified hash. The full
// chain is returned when the hash is empty or not on the chain.
func (s *State) RetrieveChainFrom(after string) []database.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	if after != "" {
		if blocks, exists := s.chain.BlocksAfter(after); exists {
			return blocks
		}
	}

	return s.chain.Blocks()
}

// RetrieveWork returns the total work of the chain.
func (s *State) RetrieveWork() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chain.Work()
}

// RetrieveDifficulty returns the difficulty of the chain.
func (s *State) RetrieveDifficulty() uint {
	return s.genesis.Difficulty
}

// RetrieveMempool returns a copy of the mempool.
func (s *State) RetrieveMempool() []string {
	return s.mempool.Copy()
}

// RetrieveMempoolLength returns the current length of the mempool.
func (s *State) RetrieveMempoolLength() int {
	return s.mempool.Count()
}

// RetrieveMissingChains returns the number of buffered sequences.
func (s *State) RetrieveMissingChains() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chain.MissingChains()
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// RetrieveStatus returns the status of the chain to report to others.
func (s *State) RetrieveStatus() peer.PeerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return peer.PeerStatus{
		Host:            s.host,
		LatestBlockHash: s.chain.LastBlock().Hash(),
		ChainLength:     s.chain.Len(),
		Work:            s.chain.Work().String(),
	}
}

// ContainsTransaction reports whether the transaction is on the chain.
func (s *State) ContainsTransaction(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chain.ContainsTransaction(id)
}

// CheckIntegrity recomputes the hash of every block held by the ledger.
func (s *State) CheckIntegrity() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chain.CheckIntegrity()
}
