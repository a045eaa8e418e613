package database

import "math/big"

// WorkPerBlock returns the expected number of hash attempts needed to find a
// hash with difficulty leading zero hex digits, 16^difficulty.
func WorkPerBlock(difficulty uint) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), 4*difficulty)
}

// CalculateWork returns the total work of the specified blocks mined at the
// specified difficulty. Work grows with both length and difficulty, so a
// shorter chain at a higher difficulty can outweigh a longer one.
func CalculateWork(blocks []Block, difficulty uint) *big.Int {
	work := WorkPerBlock(difficulty)
	return work.Mul(work, big.NewInt(int64(len(blocks))))
}
