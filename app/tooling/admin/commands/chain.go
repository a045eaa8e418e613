package commands

import (
	"encoding/json"
	"fmt"

	"github.com/ardanlabs/minernode/foundation/blockchain/database"
	"github.com/ardanlabs/minernode/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

func newChainCmd(s *settings) *cobra.Command {
	var after string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Print the chain held by a node peer socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.context()
			defer cancel()

			blocks, err := s.client().RequestChain(ctx, s.host, after)
			if err != nil {
				return fmt.Errorf("request chain: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(s.out)
				enc.SetIndent("", "  ")
				return enc.Encode(database.NewBlocksData(blocks))
			}

			for i, block := range blocks {
				fmt.Fprintf(s.out, "%4d  %s  zeros[%d]  nonce[%d]  trans%v\n", i, block.Hash(), signature.LeadingZeros(block.Hash()), block.Header.Nonce, block.Trans)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&after, "after", "", "Only print the blocks after this block hash.")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the blocks in their wire form.")

	return cmd
}
