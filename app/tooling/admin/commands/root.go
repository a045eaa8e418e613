// Package commands contains the admin commands.
package commands

import (
	"context"
	"io"
	"time"

	"github.com/ardanlabs/minernode/foundation/blockchain/network"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// settings carries the flags shared by every command.
type settings struct {
	log     *zap.SugaredLogger
	out     io.Writer
	host    string
	timeout time.Duration
}

// client returns a protocol client identified as the admin tool.
func (s *settings) client() *network.Client {
	return network.NewClient("admin", s.timeout, s.timeout)
}

// context returns a context bounded by the command timeout.
func (s *settings) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// NewRootCmd constructs the admin command tree writing results to out.
func NewRootCmd(build string, log *zap.SugaredLogger, out io.Writer) *cobra.Command {
	s := settings{
		log: log,
		out: out,
	}

	rootCmd := &cobra.Command{
		Use:           "admin",
		Short:         "Administer a miner node over its sockets",
		Version:       build,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&s.host, "host", "H", "localhost:9000", "Address of the node socket.")
	rootCmd.PersistentFlags().DurationVarP(&s.timeout, "timeout", "t", 10*time.Second, "Timeout for the whole operation.")

	rootCmd.AddCommand(newSendCmd(&s))
	rootCmd.AddCommand(newChainCmd(&s))
	rootCmd.AddCommand(newStatusCmd(&s))

	return rootCmd
}

// Execute runs the admin command tree against the process arguments.
func Execute(build string, log *zap.SugaredLogger, out io.Writer) error {
	return NewRootCmd(build, log, out).Execute()
}
