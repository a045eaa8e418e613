package commands

import (
	"fmt"

	"github.com/ardanlabs/minernode/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

func newStatusCmd(s *settings) *cobra.Command {
	var difficulty uint

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize the chain held by a node peer socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.context()
			defer cancel()

			blocks, err := s.client().RequestChain(ctx, s.host, "")
			if err != nil {
				return fmt.Errorf("request chain: %w", err)
			}

			if len(blocks) == 0 {
				return database.ErrEmptyChain
			}

			var trans int
			for _, block := range blocks {
				trans += len(block.Trans)
			}

			head := blocks[len(blocks)-1]
			fmt.Fprintf(s.out, "host:         %s\n", s.host)
			fmt.Fprintf(s.out, "length:       %d\n", len(blocks))
			fmt.Fprintf(s.out, "head:         %s\n", head.Hash())
			fmt.Fprintf(s.out, "transactions: %d\n", trans)
			fmt.Fprintf(s.out, "work:         %s\n", database.CalculateWork(blocks, difficulty))

			return nil
		},
	}

	cmd.Flags().UintVar(&difficulty, "difficulty", 4, "Difficulty the chain was mined at.")

	return cmd
}
