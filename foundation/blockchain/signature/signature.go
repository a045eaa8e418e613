// Package signature provides helper functions for handling the blockchain
// hashing needs.
package signature

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// HexDigits is the number of hex digits in a hash after the 0x prefix.
const HexDigits = 64

// =============================================================================

// Hash returns a unique string for the value. The value is marshaled to JSON
// so field order in the struct definition is part of the hash.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// LeadingZeros returns the number of leading zero hex digits in the
// specified 0x prefixed hash. A malformed hash reports zero.
func LeadingZeros(hash string) int {
	if len(hash) != HexDigits+2 || !has0xPrefix(hash) {
		return 0
	}

	var n int
	for _, c := range hash[2:] {
		if c != '0' {
			break
		}
		n++
	}

	return n
}

// IsHash reports whether the string is a 0x prefixed, 32 byte hex value.
func IsHash(hash string) bool {
	if len(hash) != HexDigits+2 {
		return false
	}

	_, err := hexutil.Decode(hash)
	return err == nil
}

// =============================================================================

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
