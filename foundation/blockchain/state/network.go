package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/minernode/foundation/blockchain/database"
	"github.com/ardanlabs/minernode/foundation/blockchain/peer"
)

// ErrNoPeers is returned by a sync when no peer could be reached.
var ErrNoPeers = errors.New("no peer could be reached")

// NetSendBlockToPeers takes a new block and sends it to all known peers
// except the one it came from. A peer that can't be reached is logged and
// skipped.
func (s *State) NetSendBlockToPeers(ctx context.Context, block database.Block, from string) {
	s.evHandler("state: NetSendBlockToPeers: started: newBlk[%s]", block.Hash())
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	for _, pr := range s.RetrieveKnownPeers() {
		if pr.Match(from) {
			continue
		}

		if err := s.client.SendBlock(ctx, pr.Host, block); err != nil {
			s.evHandler("state: NetSendBlockToPeers: WARNING: %s", err)
			continue
		}

		s.evHandler("state: NetSendBlockToPeers: sent to peer[%s]", pr.Host)
	}
}

// NetSendTxToPeers shares a new transaction with the known peers.
func (s *State) NetSendTxToPeers(ctx context.Context, id string) {
	s.evHandler("state: NetSendTxToPeers: started: tx[%s]", id)
	defer s.evHandler("state: NetSendTxToPeers: completed")

	for _, pr := range s.RetrieveKnownPeers() {
		if err := s.client.SendTransaction(ctx, pr.Host, id); err != nil {
			s.evHandler("state: NetSendTxToPeers: WARNING: %s", err)
		}
	}
}

// NetRequestPeerChain asks the peer for the blocks after our head. The peer
// answers with its full chain when it doesn't hold our head.
func (s *State) NetRequestPeerChain(ctx context.Context, pr peer.Peer) ([]database.Block, error) {
	s.evHandler("state: NetRequestPeerChain: started: %s", pr.Host)
	defer s.evHandler("state: NetRequestPeerChain: completed: %s", pr.Host)

	blocks, err := s.client.RequestChain(ctx, pr.Host, s.RetrieveLatestBlock().Hash())
	if err != nil {
		return nil, err
	}

	s.evHandler("state: NetRequestPeerChain: peer[%s]: found blocks[%d]", pr.Host, len(blocks))

	return blocks, nil
}

// SynchronizeChain fetches the blocks the peer has that we don't and
// applies them using the fork choice rules.
func (s *State) SynchronizeChain(ctx context.Context, pr peer.Peer) (Outcome, error) {
	blocks, err := s.NetRequestPeerChain(ctx, pr)
	if err != nil {
		return OutcomeRejected, err
	}

	outcome, err := s.ProcessPeerChain(blocks)
	if err != nil {
		return outcome, fmt.Errorf("%s: %w", pr.Host, err)
	}

	return outcome, nil
}

// SynchronizeWithPeers synchronizes with every known peer. It fails with
// ErrNoPeers only when peers are known and none of them could be reached.
func (s *State) SynchronizeWithPeers(ctx context.Context) error {
	s.evHandler("state: SynchronizeWithPeers: started")
	defer s.evHandler("state: SynchronizeWithPeers: completed")

	peers := s.RetrieveKnownPeers()
	if len(peers) == 0 {
		return nil
	}

	var reached int
	for _, pr := range peers {
		blocks, err := s.NetRequestPeerChain(ctx, pr)
		if err != nil {
			s.evHandler("state: SynchronizeWithPeers: peer[%s]: WARNING: %s", pr.Host, err)
			continue
		}
		reached++

		outcome, err := s.ProcessPeerChain(blocks)
		if err != nil {
			s.evHandler("state: SynchronizeWithPeers: peer[%s]: chain not adopted: %s", pr.Host, err)
			continue
		}

		s.evHandler("state: SynchronizeWithPeers: peer[%s]: outcome[%s]", pr.Host, outcome)
	}

	if reached == 0 {
		return ErrNoPeers
	}

	return nil
}
