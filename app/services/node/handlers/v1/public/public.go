// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	v1 "github.com/trinitychain/trinitychain/business/web/v1"
	"github.com/trinitychain/trinitychain/foundation/blockchain/chain"
	"github.com/trinitychain/trinitychain/foundation/blockchain/state"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
	"github.com/trinitychain/trinitychain/foundation/events"
	"github.com/trinitychain/trinitychain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of public endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Status returns the node's view of the chain.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tip := h.State.Tip()

	status := nodeStatus{
		NodeID:             h.State.NodeID(),
		Height:             tip.Header.Height,
		TipHash:            tip.BlockHash.String(),
		Difficulty:         h.State.Difficulty(),
		MempoolSize:        h.State.MempoolSize(),
		KnownPeers:         h.State.KnownPeers().Count(),
		CurrentSupply:      chain.CurrentSupply(tip.Header.Height),
		MaxSupply:          chain.MaxSupply,
		HalvingEra:         chain.HalvingEra(tip.Header.Height),
		BlocksUntilHalving: chain.BlocksUntilHalving(tip.Header.Height),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// Genesis returns the derived genesis block.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, chain.GenesisBlock(), http.StatusOK)
}

// Balance returns the total effective value owned by an address.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	resp := balance{
		Address: address,
		Balance: h.State.Balance(address),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Triangles returns the triangle outputs owned by an address.
func (h Handlers) Triangles(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	owned := h.State.TrianglesOf(address)
	resp := make([]ownedTriangle, 0, len(owned))
	for id, tri := range owned {
		resp = append(resp, ownedTriangle{
			OutputID:       id.String(),
			Triangle:       tri,
			Area:           tri.Area(),
			EffectiveValue: tri.EffectiveValue(),
		})
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BlockByHeight returns one main-chain block.
func (h Handlers) BlockByHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	height, err := parseHeight(web.Param(r, "height"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	block, exists := h.State.BlockByHeight(height)
	if !exists {
		return v1.NewRequestError(errNoBlock, http.StatusNotFound)
	}

	return web.Respond(ctx, w, block, http.StatusOK)
}

// Mempool returns the pending transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.MempoolCopy(), http.StatusOK)
}

// SubmitTransaction offers a signed transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tx transaction.Tx
	if err := web.Decode(r, &tx); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	h.Log.Infow("submit transaction", "traceid", v.TraceID, "tx", tx.String())

	hash, err := h.State.SubmitTransaction(tx)
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := submitResult{
		Status: "transaction added to mempool",
		Hash:   hash.String(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
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
