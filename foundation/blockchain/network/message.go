// Package network implements the socket protocol spoken between nodes and
// with clients. Messages are JSON documents delimited by a newline.
package network

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ardanlabs/minernode/foundation/blockchain/database"
	"github.com/ardanlabs/minernode/foundation/validate"
)

// MaxMessageSize is the largest message that will be read. A full chain
// response is the largest message exchanged.
const MaxMessageSize = 32 << 20

// ErrMalformed is returned when a message can't be parsed or is missing the
// payload its kind requires.
var ErrMalformed = errors.New("malformed message")

// Kind identifies the payload carried by a message.
type Kind string

// Set of message kinds understood by a node.
const (
	KindNewTransaction    Kind = "NEW_TRANSACTION"
	KindNewBlock          Kind = "NEW_BLOCK"
	KindChainRequest      Kind = "CHAIN_REQUEST"
	KindChainResponse     Kind = "CHAIN_RESPONSE"
	KindTransactionStatus Kind = "TRANSACTION_STATUS"
)

// Message is the tagged value exchanged over a connection. Only the fields
// relevant to the kind are set.
type Message struct {
	Kind        Kind                 `json:"kind" validate:"required,oneof=NEW_TRANSACTION NEW_BLOCK CHAIN_REQUEST CHAIN_RESPONSE TRANSACTION_STATUS"`
	From        string               `json:"from,omitempty"`
	Transaction string               `json:"transaction,omitempty"`
	Block       *database.BlockData  `json:"block,omitempty" validate:"required_if=Kind NEW_BLOCK"`
	After       string               `json:"after,omitempty"`
	Blocks      []database.BlockData `json:"blocks,omitempty"`
	Accepted    bool                 `json:"accepted,omitempty"`
	Reason      string               `json:"reason,omitempty"`
}

// NewTransaction constructs a message carrying a transaction identifier.
func NewTransaction(from string, id string) Message {
	return Message{Kind: KindNewTransaction, From: from, Transaction: id}
}

// NewBlock constructs a message announcing a block.
func NewBlock(from string, block database.Block) Message {
	bd := database.NewBlockData(block)
	return Message{Kind: KindNewBlock, From: from, Block: &bd}
}

// NewChainRequest constructs a request for the blocks after the specified
// hash. An empty hash asks for the full chain.
func NewChainRequest(from string, after string) Message {
	return Message{Kind: KindChainRequest, From: from, After: after}
}

// NewChainResponse constructs a message carrying a sequence of blocks.
func NewChainResponse(from string, blocks []database.Block) Message {
	return Message{Kind: KindChainResponse, From: from, Blocks: database.NewBlocksData(blocks)}
}

// NewTransactionStatus constructs the reply to a client submission.
func NewTransactionStatus(id string, err error) Message {
	msg := Message{Kind: KindTransactionStatus, Transaction: id, Accepted: err == nil}
	if err != nil {
		msg.Reason = err.Error()
	}
	return msg
}

// Validate checks the message carries the payload its kind requires.
func (m Message) Validate() error {
	if err := validate.Check(m); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	return nil
}

// =============================================================================

// Write encodes the message as a single line.
func Write(w io.Writer, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if _, err := w.Write(append(data, '\n')); err != nil {
		return err
	}

	return nil
}

// Reader decodes newline delimited messages from a stream.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader constructs a reader for the stream.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxMessageSize)

	return &Reader{
		scanner: scanner,
	}
}

// Read returns the next message on the stream. It returns io.EOF when the
// stream is closed cleanly and ErrMalformed when a line can't be decoded.
func (r *Reader) Read() (Message, error) {
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return Message{}, fmt.Errorf("%w: %s", ErrMalformed, err)
		}

		if err := msg.Validate(); err != nil {
			return Message{}, err
		}

		return msg, nil
	}

	if err := r.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return Message{}, fmt.Errorf("%w: %s", ErrMalformed, err)
		}
		return Message{}, err
	}

	return Message{}, io.EOF
}
