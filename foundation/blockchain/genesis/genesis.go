// Package genesis maintains access to the genesis information shared by
// every node on the network.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// MaxDifficulty is the largest number of leading zero hex digits a hash
// can be asked to carry.
const MaxDifficulty = 16

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time `json:"date"`
	Difficulty    uint      `json:"difficulty"`      // Number of leading zero hex digits needed to solve the work problem.
	TransPerBlock uint16    `json:"trans_per_block"` // The maximum number of transactions that can be in a block.
}

// Default returns the genesis used when no genesis file is provided. The date
// must be fixed so independently started nodes compute the same genesis block.
func Default() Genesis {
	return Genesis{
		Date:          time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Difficulty:    4,
		TransPerBlock: 1,
	}
}

// =============================================================================

// Load opens and consumes the genesis file. Values missing from the file
// are taken from the default genesis.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	genesis := Default()
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decoding genesis: %w", err)
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the genesis values are usable.
func (g Genesis) Validate() error {
	if g.Difficulty > MaxDifficulty {
		return fmt.Errorf("difficulty %d exceeds the max of %d", g.Difficulty, MaxDifficulty)
	}

	if g.TransPerBlock == 0 {
		return fmt.Errorf("trans per block must be greater than zero")
	}

	return nil
}
