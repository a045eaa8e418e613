package database

import (
	"fmt"
	"strings"

	"github.com/ardanlabs/minernode/foundation/validate"
)

// MaxTransactionLength is the longest transaction identifier accepted.
const MaxTransactionLength = 128

// transactionRule is the validator rule applied to every identifier.
var transactionRule = fmt.Sprintf("required,max=%d,printascii", MaxTransactionLength)

// ValidateTransactionID checks the identifier is syntactically well formed.
// Transactions are opaque so this is the only rule: 1 to 128 printable
// ascii characters with no spaces.
func ValidateTransactionID(id string) error {
	if err := validate.Var("transaction", id, transactionRule); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTransaction, err)
	}

	if strings.ContainsRune(id, ' ') {
		return fmt.Errorf("%w: contains a space", ErrInvalidTransaction)
	}

	return nil
}

// IsValidTransactionID is the boolean form of ValidateTransactionID.
func IsValidTransactionID(id string) bool {
	return ValidateTransactionID(id) == nil
}
