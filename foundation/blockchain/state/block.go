package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/minernode/foundation/blockchain/database"
	"github.com/ardanlabs/minernode/foundation/blockchain/peer"
	"github.com/ardanlabs/minernode/foundation/blockchain/signature"
)

// Outcome describes what happened to a block or chain offered to the node.
type Outcome int

// Set of outcomes for processing blocks and chains.
const (
	OutcomeRejected Outcome = iota
	OutcomeDuplicate
	OutcomeAppended
	OutcomeReorganized
	OutcomeForkRetained
	OutcomeOrphaned
)

var outcomes = map[Outcome]string{
	OutcomeRejected:     "rejected",
	OutcomeDuplicate:    "duplicate",
	OutcomeAppended:     "appended",
	OutcomeReorganized:  "reorganized",
	OutcomeForkRetained: "fork-retained",
	OutcomeOrphaned:     "orphaned",
}

// String implements the Stringer interface.
func (o Outcome) String() string {
	if s, exists := outcomes[o]; exists {
		return s
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// HeadChanged reports whether the outcome moved the head of the chain.
func (o Outcome) HeadChanged() bool {
	return o == OutcomeAppended || o == OutcomeReorganized
}

// =============================================================================

// ProcessProposedBlock takes a block received from a peer and applies the
// fork choice rules to it. A block that extends the chain is appended and
// shared, a block on an older fork is retained, and a block with an unknown
// parent is buffered while the missing blocks are requested from the sender.
func (s *State) ProcessProposedBlock(block database.Block, from peer.Peer) (Outcome, error) {
	s.evHandler("state: ProcessProposedBlock: started: prevBlk[%s]: newBlk[%s]: numTrans[%d]", block.Header.PrevBlockHash, block.Hash(), len(block.Trans))

	outcome, needSync, err := s.processProposedBlock(block)

	s.evHandler("state: ProcessProposedBlock: completed: newBlk[%s]: outcome[%s]", block.Hash(), outcome)

	if err != nil {
		return outcome, err
	}

	if outcome.HeadChanged() {
		s.headChanged()
		s.currentWorker().SignalShareBlock(block, from.Host)
	}

	if needSync && from.Host != "" {
		s.evHandler("state: ProcessProposedBlock: request chain from peer[%s]", from.Host)
		s.currentWorker().SignalSync(from)
	}

	return outcome, nil
}

// ProcessPeerChain applies a sequence of blocks received in response to a
// chain request. The sequence is either a full chain starting at genesis or
// the blocks following one of our blocks.
func (s *State) ProcessPeerChain(blocks []database.Block) (Outcome, error) {
	s.evHandler("state: ProcessPeerChain: started: blocks[%d]", len(blocks))

	outcome, err := s.processPeerChain(blocks)

	s.evHandler("state: ProcessPeerChain: completed: outcome[%s]", outcome)

	if err != nil {
		return outcome, err
	}

	if outcome.HeadChanged() {
		s.headChanged()
	}

	return outcome, nil
}

// PrepareNextBlock returns the snapshot needed to mine the next block: the
// current head and the pending transactions that will go in it.
func (s *State) PrepareNextBlock() (database.POWArgs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var trans []string
	for _, id := range s.mempool.PickBest(-1) {
		if s.chain.ContainsTransaction(id) {
			continue
		}

		trans = append(trans, id)
		if len(trans) == int(s.genesis.TransPerBlock) {
			break
		}
	}

	if len(trans) == 0 {
		return database.POWArgs{}, ErrNoTransactions
	}

	args := database.POWArgs{
		PrevBlock:  s.chain.LastBlock(),
		Trans:      trans,
		Difficulty: s.chain.Difficulty(),
		EvHandler:  s.evHandler,
	}

	return args, nil
}

// AcceptMinedBlock takes a block mined by this node and appends it to the
// chain. A block mined on top of a head that has since moved is validated
// against the current head and rejected with ErrStaleBlock.
func (s *State) AcceptMinedBlock(block database.Block) error {
	s.evHandler("state: AcceptMinedBlock: started: newBlk[%s]", block.Hash())
	defer s.evHandler("state: AcceptMinedBlock: completed: newBlk[%s]", block.Hash())

	if err := s.acceptMinedBlock(block); err != nil {
		return err
	}

	s.blockEvent(block)

	return nil
}

// =============================================================================

func (s *State) processProposedBlock(block database.Block) (Outcome, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkInvariant(); err != nil {
		return OutcomeRejected, false, err
	}

	if s.chain.ContainsBlock(block) || s.chain.ContainsMissingBlock(block) {
		return OutcomeDuplicate, false, nil
	}

	prevHash := block.Header.PrevBlockHash

	// The block extends our head.
	if prevHash == s.chain.LastBlock().Hash() {
		if err := s.chain.AddBlock(block); err != nil {
			return OutcomeRejected, false, err
		}

		s.evHandler("state: processProposedBlock: appended: newBlk[%s]", block.Hash())
		s.mempool.Delete(block.Trans...)
		s.resolveMissingChains()
		s.blockEvent(block)

		return OutcomeAppended, false, nil
	}

	// The block extends an older block of ours.
	if parent, exists := s.chain.FindLinkingBlockByHash(prevHash); exists {
		if err := s.chain.ValidateNewBlock(block, parent); err != nil {
			return OutcomeRejected, false, err
		}

		if err := s.chain.AddMissingChain([]database.Block{block}); err != nil {
			return OutcomeRejected, false, err
		}

		if s.resolveMissingChains() {
			return OutcomeReorganized, false, nil
		}

		// Ask for more when one more block on the fork would outweigh ours.
		needSync := false
		if fork, exists := s.chain.FindMissingChainByHash(prevHash); exists {
			localWork, err := s.chain.WorkFromBlock(prevHash)
			if err == nil {
				forkWork := database.CalculateWork(fork, s.chain.Difficulty())
				forkWork.Add(forkWork, database.WorkPerBlock(s.chain.Difficulty()))
				needSync = forkWork.Cmp(localWork) > 0
			}
		}

		s.evHandler("state: processProposedBlock: fork retained: parent[%s]: needSync[%t]", prevHash, needSync)

		return OutcomeForkRetained, needSync, nil
	}

	// The parent is unknown, hold it until the blocks in between arrive.
	if err := s.chain.AddMissingChain([]database.Block{block}); err != nil {
		return OutcomeRejected, false, err
	}

	if s.resolveMissingChains() {
		return OutcomeReorganized, false, nil
	}

	s.evHandler("state: processProposedBlock: orphaned: parent[%s]: buffered[%d]", prevHash, s.chain.MissingChains())

	return OutcomeOrphaned, true, nil
}

func (s *State) processPeerChain(blocks []database.Block) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkInvariant(); err != nil {
		return OutcomeRejected, err
	}

	// Skip the blocks we already have.
	start := 0
	for start < len(blocks) && s.chain.ContainsBlock(blocks[start]) {
		start++
	}
	if start == len(blocks) {
		return OutcomeDuplicate, nil
	}

	before := s.chain.LastBlock().Hash()

	fullChain := blocks[0].Header.PrevBlockHash == signature.ZeroHash

	var candidate []database.Block
	switch {
	case fullChain:
		candidate = blocks

	default:
		full, err := s.chain.LinkMissingChain(blocks[start:])
		if err != nil {
			if !errors.Is(err, database.ErrUnlinked) {
				return OutcomeRejected, err
			}

			if err := s.chain.AddMissingChain(blocks[start:]); err != nil {
				return OutcomeRejected, err
			}
			return OutcomeOrphaned, nil
		}
		candidate = full
	}

	abandoned, err := s.chain.ReplaceChain(candidate)
	if err != nil {

		// A lighter sub range is kept in case it is extended later.
		if errors.Is(err, database.ErrInsufficientWork) && !fullChain {
			if err := s.chain.AddMissingChain(blocks[start:]); err == nil {
				return OutcomeForkRetained, nil
			}
		}
		return OutcomeRejected, err
	}

	s.evHandler("state: processPeerChain: replaced chain: length[%d]: abandoned[%d]", s.chain.Len(), len(abandoned))
	s.restoreAbandoned(abandoned)
	s.pruneMempool()
	s.resolveMissingChains()

	if len(abandoned) == 0 && s.chain.Len() > 0 {
		last := s.chain.LastBlock()
		s.evHandler("state: processPeerChain: extended from[%s] to[%s]", before, last.Hash())
		return OutcomeAppended, nil
	}

	return OutcomeReorganized, nil
}

func (s *State) acceptMinedBlock(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkInvariant(); err != nil {
		return err
	}

	last := s.chain.LastBlock()
	if err := s.chain.ValidateNewBlock(block, last); err != nil {
		if block.Header.PrevBlockHash != last.Hash() {
			return fmt.Errorf("%w: %w", ErrStaleBlock, err)
		}
		return err
	}

	if err := s.chain.AddBlock(block); err != nil {
		return err
	}

	s.mempool.Delete(block.Trans...)
	s.resolveMissingChains()

	return nil
}

// resolveMissingChains attaches the buffered sequences that now link to the
// chain and reconciles the mempool with the result. The caller must hold
// the lock.
func (s *State) resolveMissingChains() bool {
	abandoned, changed := s.chain.ResolveMissingChains()
	if !changed {
		return false
	}

	s.evHandler("state: resolveMissingChains: chain changed: length[%d]: abandoned[%d]", s.chain.Len(), len(abandoned))
	s.restoreAbandoned(abandoned)
	s.pruneMempool()

	return true
}

// headChanged stops any mining against the old head and starts mining on
// the new one when there is work to do.
func (s *State) headChanged() {
	s.currentWorker().SignalCancelMining()

	if s.mempool.Count() > 0 {
		s.currentWorker().SignalStartMining()
	}
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block) {
	blockJSON, err := json.Marshal(database.NewBlockData(block))
	if err != nil {
		blockJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: %s`, string(blockJSON))
}
