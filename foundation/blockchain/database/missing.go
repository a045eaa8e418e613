package database

import (
	"fmt"
	"slices"
)

// maxMissingChains is the number of unlinked sequences held at any time.
const maxMissingChains = 64

// missingChains buffers block sequences that don't yet attach to the
// local ledger, oldest first. Sibling forks waiting on the same parent are
// held as separate sequences. No locking is performed since the Chain is
// guarded by its owner.
type missingChains struct {
	seqs [][]Block
}

func newMissingChains() *missingChains {
	return &missingChains{}
}

// extend prepends the buffered blocks leading up to the parent of the first
// block, when that parent is held in a buffered sequence.
func (mc *missingChains) extend(blocks []Block) []Block {
	parent := blocks[0].Header.PrevBlockHash

	var prefix []Block
	for _, seq := range mc.seqs {
		for i, block := range seq {
			if block.Hash() == parent && i+1 > len(prefix) {
				prefix = seq[:i+1]
			}
		}
	}

	if prefix == nil {
		return blocks
	}

	return append(slices.Clone(prefix), blocks...)
}

// add stores the sequence. Buffered sequences that continue from its tip
// are joined onto it, one stored sequence per follower.
func (mc *missingChains) add(blocks []Block) {
	blocks = slices.Clone(blocks)
	tip := blocks[len(blocks)-1].Hash()

	var followers [][]Block
	for i := 0; i < len(mc.seqs); {
		if mc.seqs[i][0].Header.PrevBlockHash == tip {
			followers = append(followers, mc.seqs[i])
			mc.removeAt(i)
			continue
		}
		i++
	}

	if len(followers) == 0 {
		mc.store(blocks)
		return
	}

	for _, seq := range followers {
		mc.store(append(slices.Clone(blocks), seq...))
	}
}

// store buffers the sequence unless a buffered one already holds it, and
// drops the buffered sequences it covers.
func (mc *missingChains) store(blocks []Block) {
	for i := 0; i < len(mc.seqs); {
		switch {
		case hasPrefix(mc.seqs[i], blocks):
			return
		case hasPrefix(blocks, mc.seqs[i]):
			mc.removeAt(i)
		default:
			i++
		}
	}

	mc.seqs = append(mc.seqs, blocks)

	for len(mc.seqs) > maxMissingChains {
		mc.removeAt(0)
	}
}

// find returns the longest sequence waiting on the specified parent hash.
func (mc *missingChains) find(hash string) ([]Block, bool) {
	var found []Block
	for _, seq := range mc.seqs {
		if seq[0].Header.PrevBlockHash == hash && len(seq) > len(found) {
			found = seq
		}
	}

	if found == nil {
		return nil, false
	}
	return slices.Clone(found), true
}

// contains reports whether the block is held in any buffered sequence.
func (mc *missingChains) contains(hash string) bool {
	for _, seq := range mc.seqs {
		for _, block := range seq {
			if block.Hash() == hash {
				return true
			}
		}
	}
	return false
}

func (mc *missingChains) len() int {
	return len(mc.seqs)
}

func (mc *missingChains) at(i int) []Block {
	return slices.Clone(mc.seqs[i])
}

func (mc *missingChains) set(i int, blocks []Block) {
	mc.seqs[i] = slices.Clone(blocks)
}

func (mc *missingChains) removeAt(i int) {
	mc.seqs = slices.Delete(mc.seqs, i, i+1)
}

// hasPrefix reports whether seq starts with every block in prefix.
func hasPrefix(seq []Block, prefix []Block) bool {
	if len(prefix) > len(seq) {
		return false
	}
	for i := range prefix {
		if seq[i].Hash() != prefix[i].Hash() {
			return false
		}
	}
	return true
}

// =============================================================================

// validateSequence checks a sequence on its own, without regard to where it
// attaches. The first block is held to every rule that doesn't need a parent.
func validateSequence(blocks []Block, difficulty uint) error {
	if len(blocks) == 0 {
		return ErrEmptyChain
	}

	first := blocks[0]
	if !first.IsConsistent() {
		return fmt.Errorf("%w: %s", ErrInvalidHash, first.Hash())
	}
	if !isHashSolved(difficulty, first.Hash()) {
		return fmt.Errorf("%w: %s, difficulty %d", ErrDifficultyNotMet, first.Hash(), difficulty)
	}
	if err := first.validateTrans(); err != nil {
		return err
	}

	for i := 1; i < len(blocks); i++ {
		if err := blocks[i].ValidateBlock(blocks[i-1], difficulty); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}

	return uniqueTrans(blocks)
}

// uniqueTrans checks no transaction appears twice across the blocks.
func uniqueTrans(blocks []Block) error {
	seen := make(map[string]struct{})
	for _, block := range blocks {
		for _, tx := range block.Trans {
			if _, exists := seen[tx]; exists {
				return fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx)
			}
			seen[tx] = struct{}{}
		}
	}
	return nil
}
