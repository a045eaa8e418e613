// Package database handles the in memory ledger: blocks, the chain of blocks,
// the rules for validating them and the work accounting used for fork choice.
package database

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/ardanlabs/minernode/foundation/blockchain/genesis"
	"github.com/ardanlabs/minernode/foundation/blockchain/signature"
)

// maxFutureDrift is how far ahead of our clock a block timestamp can be.
const maxFutureDrift = 2 * time.Minute

// powCheckInterval is the number of nonce attempts made between checks
// for cancellation.
const powCheckInterval = 1 << 10

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	PrevBlockHash string `json:"prev_block_hash"` // Hash of the previous block in the chain.
	TimeStamp     int64  `json:"timestamp"`       // Time the block was mined in epoch milliseconds.
	Nonce         uint64 `json:"nonce"`           // Value identified to solve the hash solution.
}

// Block represents a group of transactions batched together. A block is
// treated as immutable once it has been mined.
type Block struct {
	Header BlockHeader
	Trans  []string
	hash   string
}

// NewBlock constructs an unmined block with its hash calculated.
func NewBlock(prevBlockHash string, timeStamp int64, trans []string) Block {
	b := Block{
		Header: BlockHeader{
			PrevBlockHash: prevBlockHash,
			TimeStamp:     timeStamp,
		},
		Trans: normalize(trans),
	}
	b.hash = b.CalculateHash()

	return b
}

// GenesisBlock constructs the first block of the chain from the genesis
// information. The genesis block is not mined.
func GenesisBlock(gen genesis.Genesis) Block {
	return NewBlock(signature.ZeroHash, gen.Date.UTC().UnixMilli(), nil)
}

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	PrevBlock  Block
	Trans      []string
	Difficulty uint
	EvHandler  func(v string, args ...any)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle.
func POW(ctx context.Context, args POWArgs) (Block, error) {
	ev := args.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	// The block timestamp can't be before its parent even when the clocks
	// of the two miners disagree.
	ts := time.Now().UTC().UnixMilli()
	if ts < args.PrevBlock.Header.TimeStamp {
		ts = args.PrevBlock.Header.TimeStamp
	}

	nb := NewBlock(args.PrevBlock.Hash(), ts, slices.Clone(args.Trans))

	if err := nb.Mine(ctx, args.Difficulty, ev); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// Mine does the work of finding a valid hash for the block at the specified
// difficulty. Pointer semantics are being used since a nonce is being
// discovered. Cancellation is checked every powCheckInterval attempts.
func (b *Block) Mine(ctx context.Context, difficulty uint, ev func(v string, args ...any)) error {
	ev("database: Mine: MINING: started: trans%v", b.Trans)
	defer ev("database: Mine: MINING: completed")

	// Choose a random starting point for the nonce. After this, the nonce
	// will be incremented by 1 until a solution is found by us or another node.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return err
	}
	b.Header.Nonce = nBig.Uint64()

	start := time.Now()

	var attempts uint64
	for {
		if attempts%powCheckInterval == 0 && ctx.Err() != nil {
			ev("database: Mine: MINING: CANCELLED: attempts[%d]", attempts)
			return ctx.Err()
		}
		attempts++

		hash := b.CalculateHash()
		if !isHashSolved(difficulty, hash) {
			b.Header.Nonce++
			continue
		}

		b.hash = hash

		ev("database: Mine: MINING: SOLVED: prevBlk[%s]: newBlk[%s]: attempts[%d]: duration[%v]", b.Header.PrevBlockHash, hash, attempts, time.Since(start))

		return nil
	}
}

// Hash returns the hash recorded for the block.
func (b Block) Hash() string {
	return b.hash
}

// CalculateHash recomputes the hash from the contents of the block. The
// fields are hashed in the same order and encoding as BlockData.
func (b Block) CalculateHash() string {
	return signature.Hash(struct {
		PrevBlockHash string   `json:"prev_block_hash"`
		TimeStamp     int64    `json:"timestamp"`
		Trans         []string `json:"trans"`
		Nonce         uint64   `json:"nonce"`
	}{
		PrevBlockHash: b.Header.PrevBlockHash,
		TimeStamp:     b.Header.TimeStamp,
		Trans:         normalize(b.Trans),
		Nonce:         b.Header.Nonce,
	})
}

// IsConsistent reports whether the recorded hash matches the contents.
func (b Block) IsConsistent() bool {
	return b.hash == b.CalculateHash()
}

// Equal compares every field of the two blocks.
func (b Block) Equal(other Block) bool {
	return b.Header == other.Header &&
		b.hash == other.hash &&
		slices.Equal(b.Trans, other.Trans)
}

// String implements the Stringer interface for logging.
func (b Block) String() string {
	return fmt.Sprintf("Block{hash=%s, prev=%s, timestamp=%d, trans=[%s], nonce=%d}",
		b.hash, b.Header.PrevBlockHash, b.Header.TimeStamp, strings.Join(b.Trans, ","), b.Header.Nonce)
}

// ValidateBlock takes a block and validates it against the previous block at
// the specified difficulty.
func (b Block) ValidateBlock(previousBlock Block, difficulty uint) error {
	if b.Header.PrevBlockHash != previousBlock.Hash() {
		return fmt.Errorf("%w: got %s, exp %s", ErrInvalidLink, b.Header.PrevBlockHash, previousBlock.Hash())
	}

	if !b.IsConsistent() {
		return fmt.Errorf("%w: %s", ErrInvalidHash, b.hash)
	}

	if !isHashSolved(difficulty, b.hash) {
		return fmt.Errorf("%w: %s, difficulty %d", ErrDifficultyNotMet, b.hash, difficulty)
	}

	if b.Header.TimeStamp < previousBlock.Header.TimeStamp {
		return fmt.Errorf("%w: block %d is before parent %d", ErrTimestamp, b.Header.TimeStamp, previousBlock.Header.TimeStamp)
	}

	limit := time.Now().Add(maxFutureDrift).UnixMilli()
	if b.Header.TimeStamp > limit {
		return fmt.Errorf("%w: block %d is too far in the future", ErrTimestamp, b.Header.TimeStamp)
	}

	return b.validateTrans()
}

// validateTrans checks the transactions carried by the block on their own.
func (b Block) validateTrans() error {
	if len(b.Trans) == 0 {
		return ErrNoTransactions
	}

	seen := make(map[string]struct{}, len(b.Trans))
	for _, tx := range b.Trans {
		if err := ValidateTransactionID(tx); err != nil {
			return err
		}

		if _, exists := seen[tx]; exists {
			return fmt.Errorf("%w: %s repeated in block", ErrDuplicateTransaction, tx)
		}
		seen[tx] = struct{}{}
	}

	return nil
}

// isHashSolved checks the hash to make sure it complies with
// the POW rules. We need to match a difficulty number of 0's.
func isHashSolved(difficulty uint, hash string) bool {
	if difficulty > signature.HexDigits {
		return false
	}

	return signature.IsHash(hash) && signature.LeadingZeros(hash) >= int(difficulty)
}

// normalize makes sure a nil transaction list hashes the same as an empty one.
func normalize(trans []string) []string {
	if trans == nil {
		return []string{}
	}
	return trans
}

// =============================================================================

// BlockData represents what is sent across the network. The field order
// matches the order used to calculate the hash.
type BlockData struct {
	PrevBlockHash string   `json:"prev_block_hash"`
	TimeStamp     int64    `json:"timestamp"`
	Trans         []string `json:"trans"`
	Nonce         uint64   `json:"nonce"`
	Hash          string   `json:"hash"`
}

// NewBlockData constructs the value to serialize.
func NewBlockData(block Block) BlockData {
	return BlockData{
		PrevBlockHash: block.Header.PrevBlockHash,
		TimeStamp:     block.Header.TimeStamp,
		Trans:         slices.Clone(normalize(block.Trans)),
		Nonce:         block.Header.Nonce,
		Hash:          block.hash,
	}
}

// ToBlock converts a BlockData into a Block. The hash is taken as provided
// so a tampered block can be detected by validation.
func ToBlock(blockData BlockData) Block {
	return Block{
		Header: BlockHeader{
			PrevBlockHash: blockData.PrevBlockHash,
			TimeStamp:     blockData.TimeStamp,
			Nonce:         blockData.Nonce,
		},
		Trans: normalize(blockData.Trans),
		hash:  blockData.Hash,
	}
}

// ToBlocks converts a set of BlockData into Blocks.
func ToBlocks(blockData []BlockData) []Block {
	blocks := make([]Block, len(blockData))
	for i, bd := range blockData {
		blocks[i] = ToBlock(bd)
	}
	return blocks
}

// NewBlocksData converts a set of Blocks into BlockData.
func NewBlocksData(blocks []Block) []BlockData {
	blockData := make([]BlockData, len(blocks))
	for i, block := range blocks {
		blockData[i] = NewBlockData(block)
	}
	return blockData
}
