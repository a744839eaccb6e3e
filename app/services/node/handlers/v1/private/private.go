// Package private maintains the group of handlers for node-to-operator
// access.
package private

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	v1 "github.com/trinitychain/trinitychain/business/web/v1"
	"github.com/trinitychain/trinitychain/foundation/blockchain/chain"
	"github.com/trinitychain/trinitychain/foundation/blockchain/peer"
	"github.com/trinitychain/trinitychain/foundation/blockchain/state"
	"github.com/trinitychain/trinitychain/foundation/web"
	"go.uber.org/zap"
)

// maxBlockRange bounds one block-range query.
const maxBlockRange = 100

// Handlers manages the set of private endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// Peers returns the known peer set.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.KnownPeers().Copy(h.State.Host()), http.StatusOK)
}

// AddPeer registers a peer host with this node.
func (h Handlers) AddPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var np newPeer
	if err := web.Decode(r, &np); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	added := h.State.KnownPeers().Add(peer.New(np.Host))

	resp := struct {
		Status string `json:"status"`
		Added  bool   `json:"added"`
	}{
		Status: "peer registered",
		Added:  added,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BlocksByRange returns the main-chain blocks in [from, to], at most
// maxBlockRange of them, stopping at the first height the chain lacks.
func (h Handlers) BlocksByRange(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := strconv.ParseUint(web.Param(r, "from"), 10, 64)
	if err != nil {
		return v1.NewRequestError(errors.New("invalid from height"), http.StatusBadRequest)
	}

	var to uint64
	if s := web.Param(r, "to"); s == "latest" {
		to = h.State.Height()
	} else {
		to, err = strconv.ParseUint(s, 10, 64)
		if err != nil {
			return v1.NewRequestError(errors.New("invalid to height"), http.StatusBadRequest)
		}
	}

	if to < from {
		return v1.NewRequestError(errors.New("to height before from height"), http.StatusBadRequest)
	}
	if to-from+1 > maxBlockRange {
		to = from + maxBlockRange - 1
	}

	blocks := make([]chain.Block, 0, to-from+1)
	for height := from; height <= to; height++ {
		b, exists := h.State.BlockByHeight(height)
		if !exists {
			break
		}
		blocks = append(blocks, b)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// newPeer is the model for registering a peer.
type newPeer struct {
	Host string `json:"host" validate:"required"`
}
