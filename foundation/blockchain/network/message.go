package network

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/trinitychain/trinitychain/foundation/blockchain/chain"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

// Wire limits. Every read path enforces MaxMessageSize before allocating.
const (
	MaxMessageSize     = 10 * 1024 * 1024
	MaxHeadersPerBatch = 2000
	MaxBlocksPerBatch  = 50
)

// Message types.
const (
	TypeHello           = "hello"
	TypeGetBlockHeaders = "get_block_headers"
	TypeBlockHeaders    = "block_headers"
	TypeGetBlocks       = "get_blocks"
	TypeBlocks          = "blocks"
	TypeNewBlock        = "new_block"
	TypeNewTransaction  = "new_transaction"
	TypeGetParent       = "get_parent"
)

// Hello announces a node's identity and tip to a peer.
type Hello struct {
	NodeID    string           `json:"node_id"`
	Version   string           `json:"version"`
	TipHeight uint64           `json:"tip_height"`
	TipHash   transaction.Hash `json:"tip_hash"`
}

// GetBlockHeaders asks for up to Count headers starting at FromHeight.
type GetBlockHeaders struct {
	FromHeight uint64 `json:"from_height"`
	Count      int    `json:"count"`
}

// Message is the framed envelope: a type tag plus the one payload matching
// it.
type Message struct {
	Type            string              `json:"type"`
	Hello           *Hello              `json:"hello,omitempty"`
	GetBlockHeaders *GetBlockHeaders    `json:"get_block_headers,omitempty"`
	BlockHeaders    []chain.BlockHeader `json:"block_headers,omitempty"`
	GetBlocks       []transaction.Hash  `json:"get_blocks,omitempty"`
	Blocks          []chain.Block       `json:"blocks,omitempty"`
	Block           *chain.Block        `json:"block,omitempty"`
	Tx              *transaction.Tx     `json:"tx,omitempty"`
	ParentHash      *transaction.Hash   `json:"parent_hash,omitempty"`
}

// =============================================================================

// WriteMessage frames and writes one message: a big-endian u32 length
// followed by the JSON payload.
func WriteMessage(w io.Writer, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return NewError("encoding %s message: %s", msg.Type, err)
	}
	if len(data) > MaxMessageSize {
		return NewError("outbound message too large: %d bytes (max %d)", len(data), MaxMessageSize)
	}

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))

	if _, err := w.Write(length[:]); err != nil {
		return NewError("writing frame length: %s", err)
	}
	if _, err := w.Write(data); err != nil {
		return NewError("writing frame payload: %s", err)
	}

	return nil
}

// ReadMessage reads one framed message, enforcing the size cap before any
// payload allocation.
func ReadMessage(r io.Reader) (Message, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return Message{}, NewError("reading frame length: %s", err)
	}

	size := binary.BigEndian.Uint32(length[:])
	if size > MaxMessageSize {
		return Message{}, NewError("message too large: %d bytes (max %d)", size, MaxMessageSize)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return Message{}, NewError("reading frame payload: %s", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, NewError("decoding message: %s", err)
	}

	return msg, nil
}
