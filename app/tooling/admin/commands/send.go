package commands

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/minernode/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

// ErrRejected is returned when the node refuses the transaction.
var ErrRejected = errors.New("transaction rejected")

func newSendCmd(s *settings) *cobra.Command {
	var tx string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Submit a transaction to a node client socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.ValidateTransactionID(tx); err != nil {
				return err
			}

			ctx, cancel := s.context()
			defer cancel()

			s.log.Infow("send", "host", s.host, "tx", tx)

			resp, err := s.client().SubmitTransaction(ctx, s.host, tx)
			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}

			if !resp.Accepted {
				return fmt.Errorf("%w: %s", ErrRejected, resp.Reason)
			}

			fmt.Fprintf(s.out, "accepted: %s\n", resp.Transaction)
			return nil
		},
	}

	cmd.Flags().StringVar(&tx, "tx", "", "Identifier of the transaction to submit.")
	cmd.MarkFlagRequired("tx")

	return cmd
}
