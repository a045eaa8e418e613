package database

import (
	"errors"
	"fmt"
	"math/big"
	"slices"
)

// Chain is the ordered sequence of blocks that make up the local ledger
// with the genesis block at index 0. Chain performs no locking, the owner
// is responsible for serializing access.
type Chain struct {
	difficulty uint
	blocks     []Block
	index      map[string]int // block hash -> position
	trans      map[string]int // transaction id -> position of the block
	missing    *missingChains
}

// NewChain constructs a chain holding only the genesis block.
func NewChain(genesisBlock Block, difficulty uint) *Chain {
	c := Chain{
		difficulty: difficulty,
		missing:    newMissingChains(),
	}
	c.reset([]Block{genesisBlock})

	return &c
}

// reset rebuilds the chain and its lookup tables from the blocks.
func (c *Chain) reset(blocks []Block) {
	c.blocks = slices.Clone(blocks)
	c.index = make(map[string]int, len(blocks))
	c.trans = make(map[string]int)

	for i, block := range c.blocks {
		c.index[block.Hash()] = i
		for _, tx := range block.Trans {
			c.trans[tx] = i
		}
	}
}

// =============================================================================

// ValidateNewBlock validates the candidate against the previous block using
// the chain difficulty.
func (c *Chain) ValidateNewBlock(candidate Block, previous Block) error {
	return candidate.ValidateBlock(previous, c.difficulty)
}

// IsValidNewBlock reports whether the candidate can follow the previous block.
func (c *Chain) IsValidNewBlock(candidate Block, previous Block) bool {
	return c.ValidateNewBlock(candidate, previous) == nil
}

// AddBlock appends the block to the end of the chain. Nothing is changed
// when the block is rejected.
func (c *Chain) AddBlock(candidate Block) error {
	if c.ContainsBlock(candidate) {
		return fmt.Errorf("%w: %s", ErrDuplicateBlock, candidate.Hash())
	}

	if err := c.ValidateNewBlock(candidate, c.LastBlock()); err != nil {
		return err
	}

	for _, tx := range candidate.Trans {
		if c.ContainsTransaction(tx) {
			return fmt.Errorf("%w: %s already on chain", ErrDuplicateTransaction, tx)
		}
	}

	pos := len(c.blocks)
	c.blocks = append(c.blocks, candidate)
	c.index[candidate.Hash()] = pos
	for _, tx := range candidate.Trans {
		c.trans[tx] = pos
	}

	return nil
}

// ValidateChain validates a complete sequence supplied by a peer. The
// sequence must start with the same genesis block as the local chain.
func (c *Chain) ValidateChain(blocks []Block) error {
	if len(blocks) == 0 {
		return ErrEmptyChain
	}

	if len(c.blocks) == 0 || !blocks[0].Equal(c.blocks[0]) || !blocks[0].IsConsistent() {
		return ErrGenesisMismatch
	}

	for i := 1; i < len(blocks); i++ {
		if err := c.ValidateNewBlock(blocks[i], blocks[i-1]); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}

	return uniqueTrans(blocks)
}

// IsValidChain reports whether the sequence is a valid chain.
func (c *Chain) IsValidChain(blocks []Block) bool {
	return c.ValidateChain(blocks) == nil
}

// ValidateMissingChain validates a sequence that is expected to attach to a
// block already on the local chain. The local blocks up to the attachment
// point are considered part of the sequence for duplicate checks.
func (c *Chain) ValidateMissingChain(blocks []Block) error {
	if len(blocks) == 0 {
		return ErrEmptyChain
	}

	link, exists := c.index[blocks[0].Header.PrevBlockHash]
	if !exists {
		return fmt.Errorf("%w: parent %s", ErrUnlinked, blocks[0].Header.PrevBlockHash)
	}

	previous := c.blocks[link]
	for i, block := range blocks {
		if err := c.ValidateNewBlock(block, previous); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		previous = block
	}

	if err := uniqueTrans(blocks); err != nil {
		return err
	}

	for _, block := range blocks {
		for _, tx := range block.Trans {
			if pos, exists := c.trans[tx]; exists && pos <= link {
				return fmt.Errorf("%w: %s already on chain", ErrDuplicateTransaction, tx)
			}
		}
	}

	return nil
}

// IsValidMissingChain reports whether the sequence can attach to the local chain.
func (c *Chain) IsValidMissingChain(blocks []Block) bool {
	return c.ValidateMissingChain(blocks) == nil
}

// LinkMissingChain validates the sequence and returns the complete chain it
// forms with the local blocks up to the attachment point.
func (c *Chain) LinkMissingChain(blocks []Block) ([]Block, error) {
	if err := c.ValidateMissingChain(blocks); err != nil {
		return nil, err
	}

	link := c.index[blocks[0].Header.PrevBlockHash]

	full := make([]Block, 0, link+1+len(blocks))
	full = append(full, c.blocks[:link+1]...)
	full = append(full, blocks...)

	return full, nil
}

// ReplaceChain replaces the local chain with the candidate when the candidate
// is valid and carries strictly more work. The blocks dropped from the local
// chain are returned.
func (c *Chain) ReplaceChain(blocks []Block) ([]Block, error) {
	if err := c.ValidateChain(blocks); err != nil {
		return nil, err
	}

	if CalculateWork(blocks, c.difficulty).Cmp(c.Work()) <= 0 {
		return nil, ErrInsufficientWork
	}

	// Find where the candidate diverges from the local chain.
	fork := 0
	for fork < len(blocks) && fork < len(c.blocks) && blocks[fork].Hash() == c.blocks[fork].Hash() {
		fork++
	}

	abandoned := slices.Clone(c.blocks[fork:])
	c.reset(blocks)

	return abandoned, nil
}

// ResolveMissingChains attaches every buffered sequence whose parent is now
// on the local chain. A sequence that forms a chain with more work than the
// local chain replaces it. Sequences that can't attach are dropped, ones that
// are valid but lighter are kept. The blocks abandoned by any replacements
// are returned along with whether the chain changed.
func (c *Chain) ResolveMissingChains() ([]Block, bool) {
	var abandoned []Block
	var changed bool

	for i := 0; i < c.missing.len(); {
		seq := c.missing.at(i)
		if _, exists := c.index[seq[0].Header.PrevBlockHash]; !exists {
			i++
			continue
		}

		// Blocks that reached the chain some other way are skipped.
		for len(seq) > 0 && c.ContainsBlock(seq[0]) {
			seq = seq[1:]
		}
		if len(seq) == 0 {
			c.missing.removeAt(i)
			continue
		}

		full, err := c.LinkMissingChain(seq)
		if err != nil {
			c.missing.removeAt(i)
			continue
		}

		dropped, err := c.ReplaceChain(full)
		if err != nil {
			if !errors.Is(err, ErrInsufficientWork) {
				c.missing.removeAt(i)
				continue
			}
			c.missing.set(i, seq)
			i++
			continue
		}

		c.missing.removeAt(i)
		abandoned = append(abandoned, dropped...)
		changed = true

		// A replacement can make other sequences attachable.
		i = 0
	}

	return abandoned, changed
}

// =============================================================================

// AddMissingChain buffers a sequence that doesn't attach to the local chain
// yet. A sequence continuing from a buffered block is stored with the
// buffered blocks leading up to it, so sibling forks are each held whole.
func (c *Chain) AddMissingChain(blocks []Block) error {
	if err := validateSequence(blocks, c.difficulty); err != nil {
		return err
	}

	if c.ContainsBlock(blocks[0]) || c.missing.contains(blocks[0].Hash()) {
		return fmt.Errorf("%w: %s", ErrDuplicateBlock, blocks[0].Hash())
	}

	if _, linked := c.index[blocks[0].Header.PrevBlockHash]; !linked {
		blocks = c.missing.extend(blocks)
	}
	c.missing.add(blocks)

	return nil
}

// FindMissingChainByHash returns the longest buffered sequence waiting on
// the specified parent hash.
func (c *Chain) FindMissingChainByHash(hash string) ([]Block, bool) {
	return c.missing.find(hash)
}

// ContainsMissingBlock reports whether the block is held in the buffer.
func (c *Chain) ContainsMissingBlock(block Block) bool {
	return c.missing.contains(block.Hash())
}

// MissingChains returns the number of buffered sequences.
func (c *Chain) MissingChains() int {
	return c.missing.len()
}

// =============================================================================

// Work returns the total work of the local chain.
func (c *Chain) Work() *big.Int {
	return CalculateWork(c.blocks, c.difficulty)
}

// WorkFromBlock returns the work of the local blocks that follow the block
// with the specified hash.
func (c *Chain) WorkFromBlock(hash string) (*big.Int, error) {
	pos, exists := c.index[hash]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnlinked, hash)
	}

	return CalculateWork(c.blocks[pos+1:], c.difficulty), nil
}

// FindLinkingBlockByHash returns the local block with the specified hash.
func (c *Chain) FindLinkingBlockByHash(hash string) (Block, bool) {
	pos, exists := c.index[hash]
	if !exists {
		return Block{}, false
	}
	return c.blocks[pos], true
}

// ContainsBlock reports whether the block is on the local chain.
func (c *Chain) ContainsBlock(block Block) bool {
	pos, exists := c.index[block.Hash()]
	return exists && c.blocks[pos].Equal(block)
}

// ContainsTransaction reports whether the transaction is in any block.
func (c *Chain) ContainsTransaction(id string) bool {
	_, exists := c.trans[id]
	return exists
}

// ContainsTransactions reports whether every transaction is on the chain.
func (c *Chain) ContainsTransactions(ids []string) bool {
	for _, id := range ids {
		if !c.ContainsTransaction(id) {
			return false
		}
	}
	return true
}

// BlocksAfter returns the blocks that follow the block with the specified hash.
func (c *Chain) BlocksAfter(hash string) ([]Block, bool) {
	pos, exists := c.index[hash]
	if !exists {
		return nil, false
	}
	return slices.Clone(c.blocks[pos+1:]), true
}

// Blocks returns a copy of the blocks on the chain.
func (c *Chain) Blocks() []Block {
	return slices.Clone(c.blocks)
}

// LastBlock returns the block at the head of the chain.
func (c *Chain) LastBlock() Block {
	if len(c.blocks) == 0 {
		return Block{}
	}
	return c.blocks[len(c.blocks)-1]
}

// Genesis returns the first block of the chain.
func (c *Chain) Genesis() Block {
	if len(c.blocks) == 0 {
		return Block{}
	}
	return c.blocks[0]
}

// Difficulty returns the difficulty every mined block must meet.
func (c *Chain) Difficulty() uint {
	return c.difficulty
}

// IsEmpty reports whether the chain holds no blocks.
func (c *Chain) IsEmpty() bool {
	return len(c.blocks) == 0
}

// Len returns the number of blocks on the chain.
func (c *Chain) Len() int {
	return len(c.blocks)
}

// CheckIntegrity recomputes the hash of every block on the chain and
// reports the first one that no longer matches.
func (c *Chain) CheckIntegrity() error {
	for i, block := range c.blocks {
		if !block.IsConsistent() {
			return fmt.Errorf("%w: block %d: %s", ErrInvalidHash, i, block.Hash())
		}
	}
	return nil
}
