// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ardanlabs/minernode/business/web/errs"
	"github.com/ardanlabs/minernode/foundation/blockchain/database"
	"github.com/ardanlabs/minernode/foundation/blockchain/state"
	"github.com/ardanlabs/minernode/foundation/events"
	"github.com/ardanlabs/minernode/foundation/node"
	"github.com/ardanlabs/minernode/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of node endpoints.
type Handlers struct {
	Log  *zap.SugaredLogger
	Node *node.Node
	WS   websocket.Upgrader
	Evts *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitTransaction adds a new client transaction to the mempool. The
// transaction is shared with the known peers.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tx submitTx
	if err := web.Decode(r, &tx); err != nil {
		return err
	}

	h.Log.Infow("submit tran", "traceid", v.TraceID, "tx", tx.ID)
	if err := h.Node.State().SubmitTransaction(tx.ID); err != nil {
		switch {
		case errors.Is(err, state.ErrPending), errors.Is(err, state.ErrCommitted):
			return errs.NewTrusted(err, http.StatusConflict)
		default:
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// TransactionStatus reports whether the transaction is pending, committed
// or unknown to this node.
func (h Handlers) TransactionStatus(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id := web.Param(r, "id")
	if err := database.ValidateTransactionID(id); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := txStatus{
		ID: id,
	}

	switch err := h.Node.State().ValidateTransaction(id); {
	case errors.Is(err, state.ErrCommitted):
		resp.Status = "committed"
	case errors.Is(err, state.ErrPending):
		resp.Status = "pending"
	default:
		resp.Status = "unknown"
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.Node.State().RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	st := h.Node.State()
	ps := st.RetrieveStatus()

	resp := status{
		Host:            ps.Host,
		LatestBlockHash: ps.LatestBlockHash,
		ChainLength:     ps.ChainLength,
		Work:            ps.Work,
		Difficulty:      st.RetrieveDifficulty(),
		Uncommitted:     st.RetrieveMempoolLength(),
		MissingChains:   st.RetrieveMissingChains(),
		Mining:          h.Node.MiningStatus(),
		KnownPeers:      st.RetrieveKnownPeers(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	mempool := h.Node.State().RetrieveMempool()
	return web.Respond(ctx, w, mempool, http.StatusOK)
}

// Blocks returns the blocks on the chain. When a block hash is provided only
// the blocks after it are returned, or the full chain if the block is not
// held by this node.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blocks := h.Node.State().RetrieveChainFrom(web.Param(r, "after"))
	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, database.NewBlocksData(blocks), http.StatusOK)
}
