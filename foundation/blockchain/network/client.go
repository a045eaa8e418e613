package network

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/ardanlabs/minernode/foundation/blockchain/database"
)

// Client dials nodes to deliver messages. Every operation is bounded by the
// dial and io timeouts so an unresponsive node can't stall the caller.
type Client struct {
	From        string
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// NewClient constructs a client identifying itself as from.
func NewClient(from string, dialTimeout time.Duration, ioTimeout time.Duration) *Client {
	return &Client{
		From:        from,
		DialTimeout: dialTimeout,
		IOTimeout:   ioTimeout,
	}
}

// Send delivers a message that expects no reply.
func (c *Client) Send(ctx context.Context, host string, msg Message) error {
	conn, err := c.dial(ctx, host)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := Write(conn, msg); err != nil {
		return fmt.Errorf("write %s: %w", host, err)
	}

	return nil
}

// Request delivers a message and waits for the single reply.
func (c *Client) Request(ctx context.Context, host string, msg Message) (Message, error) {
	conn, err := c.dial(ctx, host)
	if err != nil {
		return Message{}, err
	}
	defer conn.Close()

	if err := Write(conn, msg); err != nil {
		return Message{}, fmt.Errorf("write %s: %w", host, err)
	}

	resp, err := NewReader(conn).Read()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Message{}, fmt.Errorf("read %s: %w", host, err)
	}

	return resp, nil
}

// SendBlock announces a block to the node.
func (c *Client) SendBlock(ctx context.Context, host string, block database.Block) error {
	return c.Send(ctx, host, NewBlock(c.From, block))
}

// SendTransaction relays a transaction to the node.
func (c *Client) SendTransaction(ctx context.Context, host string, id string) error {
	return c.Send(ctx, host, NewTransaction(c.From, id))
}

// RequestChain asks the node for the blocks after the specified hash. The
// node replies with its full chain when it doesn't hold that block.
func (c *Client) RequestChain(ctx context.Context, host string, after string) ([]database.Block, error) {
	resp, err := c.Request(ctx, host, NewChainRequest(c.From, after))
	if err != nil {
		return nil, err
	}

	if resp.Kind != KindChainResponse {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrMalformed, KindChainResponse, resp.Kind)
	}

	return database.ToBlocks(resp.Blocks), nil
}

// SubmitTransaction submits a transaction on a client port and returns
// the status reported by the node.
func (c *Client) SubmitTransaction(ctx context.Context, host string, id string) (Message, error) {
	resp, err := c.Request(ctx, host, NewTransaction("", id))
	if err != nil {
		return Message{}, err
	}

	if resp.Kind != KindTransactionStatus {
		return Message{}, fmt.Errorf("%w: expected %s, got %s", ErrMalformed, KindTransactionStatus, resp.Kind)
	}

	return resp, nil
}

// dial connects to the host and sets the deadline for the whole exchange.
func (c *Client) dial(ctx context.Context, host string) (net.Conn, error) {
	d := net.Dialer{Timeout: c.DialTimeout}

	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", host, err)
	}

	if c.IOTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(c.IOTimeout)); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return conn, nil
}
