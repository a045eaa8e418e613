package public

import "github.com/ardanlabs/minernode/foundation/blockchain/peer"

type status struct {
	Host            string      `json:"host"`
	LatestBlockHash string      `json:"latest_block_hash"`
	ChainLength     int         `json:"chain_length"`
	Work            string      `json:"work"`
	Difficulty      uint        `json:"difficulty"`
	Uncommitted     int         `json:"uncommitted"`
	MissingChains   int         `json:"missing_chains"`
	Mining          string      `json:"mining"`
	KnownPeers      []peer.Peer `json:"known_peers"`
}

type submitTx struct {
	ID string `json:"id" validate:"required,max=128"`
}

type txStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
