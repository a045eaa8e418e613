package database

import "errors"

// Set of error values returned when a block or chain fails validation. The
// caller decides what to do with the offending value, the ledger is never
// changed when one of these is returned.
var (
	ErrInvalidLink          = errors.New("block does not link to the previous block")
	ErrInvalidHash          = errors.New("block hash does not match its contents")
	ErrDifficultyNotMet     = errors.New("block hash does not satisfy the difficulty")
	ErrTimestamp            = errors.New("block timestamp is out of range")
	ErrNoTransactions       = errors.New("block has no transactions")
	ErrDuplicateTransaction = errors.New("transaction is already on the chain")
	ErrDuplicateBlock       = errors.New("block is already on the chain")
	ErrInvalidTransaction   = errors.New("transaction identifier is invalid")
	ErrEmptyChain           = errors.New("chain has no blocks")
	ErrGenesisMismatch      = errors.New("chain does not start with our genesis block")
	ErrUnlinked             = errors.New("chain does not link to a known block")
	ErrInsufficientWork     = errors.New("chain does not carry more work than ours")
)
