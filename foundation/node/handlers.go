package node

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/ardanlabs/minernode/foundation/blockchain/database"
	"github.com/ardanlabs/minernode/foundation/blockchain/network"
	"github.com/ardanlabs/minernode/foundation/blockchain/peer"
)

// ErrUnsupportedKind is reported when a message kind isn't served on the port.
var ErrUnsupportedKind = errors.New("unsupported message kind")

// handleClient serves transaction submissions. Every submission gets a
// status reply and the connection stays open for more.
func (n *Node) handleClient(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	r := network.NewReader(conn)

	for {
		msg, ok := n.next(conn, r, "handleClient")
		if !ok {
			return
		}

		var err error
		switch msg.Kind {
		case network.KindNewTransaction:
			err = n.state.SubmitTransaction(msg.Transaction)
		default:
			err = fmt.Errorf("%w: %s", ErrUnsupportedKind, msg.Kind)
		}

		if err != nil {
			n.evHandler("node: handleClient: remote[%s]: tx[%s]: rejected: %s", remote, msg.Transaction, err)
		}

		if err := n.reply(conn, network.NewTransactionStatus(msg.Transaction, err)); err != nil {
			n.evHandler("node: handleClient: remote[%s]: WARNING: %s", remote, err)
			return
		}
	}
}

// handlePeer serves the messages sent by other nodes. Each message is read
// in full before the state is touched so no network io happens under the
// state lock.
func (n *Node) handlePeer(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	r := network.NewReader(conn)

	for {
		msg, ok := n.next(conn, r, "handlePeer")
		if !ok {
			return
		}

		// The sender is only asked for blocks when it told us where it listens.
		from := peer.New(msg.From)
		if from.Validate() != nil {
			from = peer.Peer{}
		}

		switch msg.Kind {
		case network.KindNewTransaction:
			if err := n.state.UpsertNodeTransaction(msg.Transaction); err != nil {
				n.evHandler("node: handlePeer: remote[%s]: tx[%s]: ignored: %s", remote, msg.Transaction, err)
			}

		case network.KindNewBlock:
			block := database.ToBlock(*msg.Block)
			outcome, err := n.state.ProcessProposedBlock(block, from)
			if err != nil {
				n.evHandler("node: handlePeer: remote[%s]: block[%s]: %s: %s", remote, block.Hash(), outcome, err)
				continue
			}
			n.evHandler("node: handlePeer: remote[%s]: block[%s]: %s", remote, block.Hash(), outcome)

		case network.KindChainRequest:
			blocks := n.state.RetrieveChainFrom(msg.After)
			if err := n.reply(conn, network.NewChainResponse(n.host, blocks)); err != nil {
				n.evHandler("node: handlePeer: remote[%s]: WARNING: %s", remote, err)
				return
			}

		case network.KindChainResponse:
			outcome, err := n.state.ProcessPeerChain(database.ToBlocks(msg.Blocks))
			if err != nil {
				n.evHandler("node: handlePeer: remote[%s]: chain: %s: %s", remote, outcome, err)
				continue
			}
			n.evHandler("node: handlePeer: remote[%s]: chain: %s", remote, outcome)

		default:
			n.evHandler("node: handlePeer: remote[%s]: %s: %s", remote, ErrUnsupportedKind, msg.Kind)
		}
	}
}

// next reads the next message from the connection. It reports false when
// the connection should be closed: the peer hung up, went idle, sent a
// malformed message, or the node is stopping.
func (n *Node) next(conn net.Conn, r *network.Reader, handler string) (network.Message, bool) {
	remote := conn.RemoteAddr().String()

	if err := conn.SetReadDeadline(time.Now().Add(n.cfg.IOTimeout)); err != nil {
		return network.Message{}, false
	}
	if n.isShutdown() {
		return network.Message{}, false
	}

	msg, err := r.Read()
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
		case errors.Is(err, os.ErrDeadlineExceeded):
			if !n.isShutdown() {
				n.evHandler("node: %s: remote[%s]: idle, closing", handler, remote)
			}
		case errors.Is(err, network.ErrMalformed):
			n.evHandler("node: %s: remote[%s]: ERROR: %s", handler, remote, err)
		default:
			n.evHandler("node: %s: remote[%s]: WARNING: %s", handler, remote, err)
		}
		return network.Message{}, false
	}

	return msg, true
}

// reply writes a message back on the connection within the io timeout.
func (n *Node) reply(conn net.Conn, msg network.Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(n.cfg.IOTimeout)); err != nil {
		return err
	}
	return network.Write(conn, msg)
}
