// Package node runs a blockchain node: the client and peer listeners, the
// bounded pool of connection handlers, and the worker that mines and
// gossips on behalf of the shared state.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ardanlabs/minernode/foundation/blockchain/database"
	"github.com/ardanlabs/minernode/foundation/blockchain/genesis"
	"github.com/ardanlabs/minernode/foundation/blockchain/network"
	"github.com/ardanlabs/minernode/foundation/blockchain/peer"
	"github.com/ardanlabs/minernode/foundation/blockchain/state"
	"github.com/ardanlabs/minernode/foundation/blockchain/worker"
)

// Set of error values for the node lifecycle.
var (
	ErrRunning    = errors.New("node is already running")
	ErrNotRunning = errors.New("node is not running")
)

// Set of defaults applied when the configuration leaves a value unset.
const (
	defaultMaxHandlers = 32
	defaultDialTimeout = 2 * time.Second
	defaultIOTimeout   = 10 * time.Second
)

// Config represents the construction time settings of a node. The settings
// can't be changed once the node is constructed.
type Config struct {
	NodeIndex      int
	ListenHost     string
	ClientPort     int
	PeerPort       int
	PeerAddresses  []string
	Difficulty     uint
	Mining         bool
	MaxHandlers    int
	DialTimeout    time.Duration
	IOTimeout      time.Duration
	SyncInterval   time.Duration
	StartupTimeout time.Duration
	Genesis        *genesis.Genesis
	EvHandler      state.EventHandler
}

// Node manages the listeners and handlers around the shared state.
type Node struct {
	cfg       Config
	host      string
	state     *state.State
	evHandler state.EventHandler

	mu       sync.Mutex
	running  bool
	shut     chan struct{}
	clientLn net.Listener
	peerLn   net.Listener
	worker   *worker.Worker
	sem      chan struct{}
	wg       sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// New constructs a node with an in memory chain holding only the genesis
// block. Nothing is listening until Start is called.
func New(cfg Config) (*Node, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.MaxHandlers <= 0 {
		cfg.MaxHandlers = defaultMaxHandlers
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = defaultIOTimeout
	}
	cfg.PeerAddresses = append([]string(nil), cfg.PeerAddresses...)

	gen := genesis.Default()
	if cfg.Genesis != nil {
		gen = *cfg.Genesis
	}
	gen.Difficulty = cfg.Difficulty

	host, err := selfHost(cfg)
	if err != nil {
		return nil, err
	}

	knownPeers := peer.NewPeerSet()
	for _, address := range cfg.PeerAddresses {
		pr := peer.New(address)
		if err := pr.Validate(); err != nil {
			return nil, fmt.Errorf("peer address %q: %w", address, err)
		}
		knownPeers.Add(pr)
	}

	st, err := state.New(state.Config{
		Host:          host,
		Genesis:       gen,
		KnownPeers:    knownPeers,
		Client:        network.NewClient(host, cfg.DialTimeout, cfg.IOTimeout),
		MiningEnabled: cfg.Mining,
		EvHandler:     ev,
	})
	if err != nil {
		return nil, err
	}

	n := Node{
		cfg:       cfg,
		host:      host,
		state:     st,
		evHandler: ev,
	}

	return &n, nil
}

// Start binds the client and peer listeners, starts accepting connections
// and starts the worker. A node that was stopped can be started again and
// continues with the chain it had.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return ErrRunning
	}

	n.evHandler("node: Start: started: host[%s]", n.host)
	defer n.evHandler("node: Start: completed")

	clientLn, err := net.Listen("tcp", net.JoinHostPort(n.cfg.ListenHost, strconv.Itoa(n.cfg.ClientPort)))
	if err != nil {
		return fmt.Errorf("client listener: %w", err)
	}

	peerLn, err := net.Listen("tcp", net.JoinHostPort(n.cfg.ListenHost, strconv.Itoa(n.cfg.PeerPort)))
	if err != nil {
		clientLn.Close()
		return fmt.Errorf("peer listener: %w", err)
	}

	n.shut = make(chan struct{})
	n.clientLn = clientLn
	n.peerLn = peerLn
	n.sem = make(chan struct{}, n.cfg.MaxHandlers)
	n.conns = make(map[net.Conn]struct{})

	n.worker = worker.Run(n.state, worker.Config{
		SyncInterval:   n.cfg.SyncInterval,
		StartupTimeout: n.cfg.StartupTimeout,
		EvHandler:      n.evHandler,
	})

	n.wg.Add(2)
	go n.acceptLoop("client", clientLn, n.handleClient)
	go n.acceptLoop("peer", peerLn, n.handlePeer)

	n.running = true

	n.evHandler("node: Start: client[%s]: peer[%s]", clientLn.Addr(), peerLn.Addr())

	return nil
}

// Stop signals the listeners, the handlers and the worker to stop and waits
// for the handlers in flight to finish. Connections still open when the
// context is done are closed and the context error is returned.
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return ErrNotRunning
	}

	n.evHandler("node: Stop: started")
	defer n.evHandler("node: Stop: completed")

	close(n.shut)
	n.clientLn.Close()
	n.peerLn.Close()

	// Handlers waiting for their next message stop now, a handler in the
	// middle of a message finishes it.
	n.interruptConns()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		n.evHandler("node: Stop: WARNING: forcing connections closed: %s", ctx.Err())
		n.closeConns()
		<-done
		err = ctx.Err()
	}

	// Every handler is done so the worker can be replaced safely.
	n.state.Shutdown()
	n.running = false

	return err
}

// =============================================================================

// State returns the shared state of the node.
func (n *Node) State() *state.State {
	return n.state
}

// Host returns the peer address this node is known by.
func (n *Node) Host() string {
	return n.host
}

// ClientAddr returns the address the client listener is bound to.
func (n *Node) ClientAddr() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.clientLn == nil {
		return ""
	}
	return n.clientLn.Addr().String()
}

// PeerAddr returns the address the peer listener is bound to.
func (n *Node) PeerAddr() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.peerLn == nil {
		return ""
	}
	return n.peerLn.Addr().String()
}

// MiningStatus returns the status of the current mining job.
func (n *Node) MiningStatus() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running || n.worker == nil {
		return worker.StatusIdle.String()
	}
	return n.worker.MiningStatus().String()
}

// Chain returns a copy of the blocks on the chain.
func (n *Node) Chain() []database.Block {
	return n.state.RetrieveChain()
}

// LastBlock returns the head of the chain.
func (n *Node) LastBlock() database.Block {
	return n.state.RetrieveLatestBlock()
}

// Difficulty returns the difficulty blocks are mined at.
func (n *Node) Difficulty() uint {
	return n.state.RetrieveDifficulty()
}

// IsEmpty reports whether the chain holds no blocks.
func (n *Node) IsEmpty() bool {
	return len(n.state.RetrieveChain()) == 0
}

// =============================================================================

// selfHost returns the peer address of this node, which is the entry of the
// peer list at the node index when that list is provided.
func selfHost(cfg Config) (string, error) {
	if len(cfg.PeerAddresses) == 0 {
		host := cfg.ListenHost
		if host == "" {
			host = "localhost"
		}
		return net.JoinHostPort(host, strconv.Itoa(cfg.PeerPort)), nil
	}

	if cfg.NodeIndex < 0 || cfg.NodeIndex >= len(cfg.PeerAddresses) {
		return "", fmt.Errorf("node index %d is outside the %d peer addresses", cfg.NodeIndex, len(cfg.PeerAddresses))
	}

	return cfg.PeerAddresses[cfg.NodeIndex], nil
}
