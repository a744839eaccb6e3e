// Package network implements the P2P synchronization protocol: framed TCP
// messages, block and transaction gossip, headers-first batch sync and
// orphan recovery. Inbound and outbound connections share one message
// handler.
package network

import (
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/trinitychain/trinitychain/foundation/blockchain/chain"
	"github.com/trinitychain/trinitychain/foundation/blockchain/peer"
	"github.com/trinitychain/trinitychain/foundation/blockchain/state"
	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

// Version is the protocol version announced in Hello.
const Version = "1.0"

// dialTimeout bounds connection establishment; ioTimeout bounds each
// request/response exchange.
const (
	dialTimeout = 5 * time.Second
	ioTimeout   = 10 * time.Second
)

// Config represents the configuration required to run the network node.
type Config struct {
	State     *state.State
	EvHandler state.EventHandler
}

// Node serves the P2P protocol and drives sync against the known peers.
type Node struct {
	st        *state.State
	evHandler state.EventHandler
	orphans   *orphanPool

	listener net.Listener
	shut     chan struct{}
	wg       sync.WaitGroup

	syncMu sync.Mutex
}

// New constructs the network node and registers it as the state's
// broadcaster.
func New(cfg Config) *Node {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	n := Node{
		st:        cfg.State,
		evHandler: ev,
		orphans:   newOrphanPool(),
		shut:      make(chan struct{}),
	}

	cfg.State.RegisterBroadcaster(&n)

	return &n
}

// Start binds the listener and launches the accept loop and the periodic
// peer sync.
func (n *Node) Start() error {
	listener, err := net.Listen("tcp", n.st.Host())
	if err != nil {
		return NewError("binding %s: %s", n.st.Host(), err)
	}
	n.listener = listener
	n.evHandler("network: listening on %s", n.st.Host())

	n.wg.Add(2)
	go func() {
		defer n.wg.Done()
		n.acceptLoop()
	}()
	go func() {
		defer n.wg.Done()
		n.syncLoop()
	}()

	return nil
}

// Shutdown closes the listener and waits for the loops to drain.
func (n *Node) Shutdown() {
	close(n.shut)
	if n.listener != nil {
		n.listener.Close()
	}
	n.wg.Wait()
}

// =============================================================================
// Serving

// acceptLoop serves inbound connections until shutdown.
func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.shut:
				return
			default:
				n.evHandler("network: accept: ERROR: %s", err)
				continue
			}
		}

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.handleConn(conn)
		}()
	}
}

// handleConn processes one request/response exchange and closes.
func (n *Node) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(ioTimeout))

	msg, err := ReadMessage(conn)
	if err != nil {
		n.evHandler("network: handleConn: %s: %s", conn.RemoteAddr(), err)
		return
	}

	switch msg.Type {
	case TypeHello:
		n.handleHello(conn)

	case TypeGetBlockHeaders:
		if msg.GetBlockHeaders == nil {
			return
		}
		count := msg.GetBlockHeaders.Count
		if count <= 0 || count > MaxHeadersPerBatch {
			count = MaxHeadersPerBatch
		}
		headers := n.st.HeadersFrom(msg.GetBlockHeaders.FromHeight, count)
		n.respond(conn, Message{Type: TypeBlockHeaders, BlockHeaders: headers})

	case TypeGetBlocks:
		if len(msg.GetBlocks) > MaxBlocksPerBatch {
			n.evHandler("network: handleConn: %s: oversized block request", conn.RemoteAddr())
			return
		}
		blocks := n.st.BlocksByHashes(msg.GetBlocks)
		n.respond(conn, Message{Type: TypeBlocks, Blocks: blocks})

	case TypeGetParent:
		if msg.ParentHash == nil {
			return
		}
		if b, exists := n.st.BlockByHash(*msg.ParentHash); exists {
			n.respond(conn, Message{Type: TypeBlocks, Blocks: []chain.Block{b}})
		}

	case TypeNewBlock:
		if msg.Block != nil {
			n.handleNewBlock(*msg.Block)
		}

	case TypeNewTransaction:
		if msg.Tx != nil {
			if _, err := n.st.SubmitTransaction(*msg.Tx); err != nil {
				// Invalid or duplicate gossip is dropped; the peer stays.
				n.evHandler("network: handleConn: dropping gossiped tx: %s", err)
			}
		}

	default:
		n.evHandler("network: handleConn: %s: unknown message type %q", conn.RemoteAddr(), msg.Type)
	}
}

// handleHello answers with our status.
func (n *Node) handleHello(conn net.Conn) {
	tip := n.st.Tip()
	n.respond(conn, Message{
		Type: TypeHello,
		Hello: &Hello{
			NodeID:    n.st.NodeID(),
			Version:   Version,
			TipHeight: tip.Header.Height,
			TipHash:   tip.BlockHash,
		},
	})
}

// handleNewBlock applies a gossiped block, queueing orphans for recovery.
func (n *Node) handleNewBlock(b chain.Block) {
	err := n.st.ApplyPeerBlock(b)
	switch {
	case err == nil:
		n.evHandler("network: gossip: applied block[%d] %s", b.Header.Height, b.BlockHash)
		n.retryOrphans()

	case errors.Is(err, chain.ErrOrphanBlock):
		n.evHandler("network: gossip: orphan block[%d], requesting parent", b.Header.Height)
		n.orphans.add(b)
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.recoverOrphan(b.Header.PreviousHash)
		}()

	case errors.Is(err, chain.ErrInvalidProofOfWork), errors.Is(err, chain.ErrInvalidMerkleRoot):
		// A peer pushing unverifiable blocks is cut loose.
		n.evHandler("network: gossip: dropping peer material: %s", err)

	default:
		n.evHandler("network: gossip: block rejected: %s", err)
	}
}

// respond writes one reply frame, logging failures.
func (n *Node) respond(conn net.Conn, msg Message) {
	if err := WriteMessage(conn, msg); err != nil {
		n.evHandler("network: respond: %s: %s", conn.RemoteAddr(), err)
	}
}

// =============================================================================
// Gossip

// BroadcastBlock announces a block to every known peer.
func (n *Node) BroadcastBlock(b chain.Block) {
	n.broadcast(Message{Type: TypeNewBlock, Block: &b})
}

// BroadcastTransaction announces a transaction to every known peer.
func (n *Node) BroadcastTransaction(tx transaction.Tx) {
	n.broadcast(Message{Type: TypeNewTransaction, Tx: &tx})
}

// broadcast fans a message out to the peer set, dropping peers that are
// unreachable.
func (n *Node) broadcast(msg Message) {
	for _, p := range n.st.KnownPeers().Copy(n.st.Host()) {
		conn, err := net.DialTimeout("tcp", p.Host, dialTimeout)
		if err != nil {
			n.evHandler("network: broadcast: %s unreachable: %s", p.Host, err)
			continue
		}

		conn.SetDeadline(time.Now().Add(ioTimeout))
		if err := WriteMessage(conn, msg); err != nil {
			n.evHandler("network: broadcast: %s: %s", p.Host, err)
		}
		conn.Close()
	}
}

// =============================================================================
// Sync

// syncLoop performs an initial sync and then re-checks the peers
// periodically.
func (n *Node) syncLoop() {
	n.syncAllPeers()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-n.shut:
			return
		case <-ticker.C:
			n.syncAllPeers()
		}
	}
}

// syncAllPeers exchanges Hello with every known peer and pulls whatever
// chain they have past ours.
func (n *Node) syncAllPeers() {
	for _, p := range n.st.KnownPeers().Copy(n.st.Host()) {
		if err := n.SyncWithPeer(p); err != nil {
			n.evHandler("network: sync: %s: %s", p.Host, err)
		}
	}
}

// SyncWithPeer runs the headers-first protocol against one peer: headers
// in batches of up to 2000, matching bodies in batches of up to 50,
// applied strictly in height order. One sync session runs at a time.
func (n *Node) SyncWithPeer(p peer.Peer) error {
	n.syncMu.Lock()
	defer n.syncMu.Unlock()

	status, err := n.hello(p)
	if err != nil {
		return err
	}

	for n.st.Height() < status.TipHeight {
		from := n.st.Height() + 1
		startHeight := n.st.Height()

		headers, err := n.requestHeaders(p, from, MaxHeadersPerBatch)
		if err != nil {
			return err
		}
		if len(headers) == 0 {
			return nil
		}

		sort.Slice(headers, func(i, j int) bool {
			return headers[i].Height < headers[j].Height
		})

		for start := 0; start < len(headers); start += MaxBlocksPerBatch {
			end := start + MaxBlocksPerBatch
			if end > len(headers) {
				end = len(headers)
			}

			hashes := make([]transaction.Hash, 0, end-start)
			for _, h := range headers[start:end] {
				hashes = append(hashes, h.Hash())
			}

			blocks, err := n.requestBlocks(p, hashes)
			if err != nil {
				return err
			}
			if len(blocks) == 0 {
				return NewError("peer %s returned no blocks for batch", p.Host)
			}

			sort.Slice(blocks, func(i, j int) bool {
				return blocks[i].Header.Height < blocks[j].Header.Height
			})

			if err := n.st.ApplyBlockBatch(blocks); err != nil {
				return NewError("applying batch from %s: %s", p.Host, err)
			}

			n.evHandler("network: sync: applied %d blocks from %s, height %d", len(blocks), p.Host, n.st.Height())
		}

		if n.st.Height() == startHeight {
			return NewError("peer %s: sync made no progress at height %d", p.Host, startHeight)
		}
	}

	return nil
}

// =============================================================================
// Client requests

// request performs one request/response exchange with a peer.
func (n *Node) request(p peer.Peer, req Message) (Message, error) {
	conn, err := net.DialTimeout("tcp", p.Host, dialTimeout)
	if err != nil {
		return Message{}, NewError("dialing %s: %s", p.Host, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(ioTimeout))

	if err := WriteMessage(conn, req); err != nil {
		return Message{}, err
	}
	return ReadMessage(conn)
}

// hello exchanges status with a peer.
func (n *Node) hello(p peer.Peer) (peer.Status, error) {
	tip := n.st.Tip()
	resp, err := n.request(p, Message{
		Type: TypeHello,
		Hello: &Hello{
			NodeID:    n.st.NodeID(),
			Version:   Version,
			TipHeight: tip.Header.Height,
			TipHash:   tip.BlockHash,
		},
	})
	if err != nil {
		return peer.Status{}, err
	}
	if resp.Type != TypeHello || resp.Hello == nil {
		return peer.Status{}, NewError("peer %s: unexpected hello response %q", p.Host, resp.Type)
	}

	return peer.Status{
		NodeID:    resp.Hello.NodeID,
		TipHeight: resp.Hello.TipHeight,
		TipHash:   resp.Hello.TipHash,
	}, nil
}

// requestHeaders pulls a header batch.
func (n *Node) requestHeaders(p peer.Peer, from uint64, count int) ([]chain.BlockHeader, error) {
	resp, err := n.request(p, Message{
		Type:            TypeGetBlockHeaders,
		GetBlockHeaders: &GetBlockHeaders{FromHeight: from, Count: count},
	})
	if err != nil {
		return nil, err
	}
	if resp.Type != TypeBlockHeaders {
		return nil, NewError("peer %s: unexpected headers response %q", p.Host, resp.Type)
	}
	if len(resp.BlockHeaders) > MaxHeadersPerBatch {
		return nil, NewError("peer %s: oversized header batch", p.Host)
	}
	return resp.BlockHeaders, nil
}

// requestBlocks pulls a body batch.
func (n *Node) requestBlocks(p peer.Peer, hashes []transaction.Hash) ([]chain.Block, error) {
	resp, err := n.request(p, Message{Type: TypeGetBlocks, GetBlocks: hashes})
	if err != nil {
		return nil, err
	}
	if resp.Type != TypeBlocks {
		return nil, NewError("peer %s: unexpected blocks response %q", p.Host, resp.Type)
	}
	if len(resp.Blocks) > MaxBlocksPerBatch {
		return nil, NewError("peer %s: oversized block batch", p.Host)
	}
	return resp.Blocks, nil
}

// =============================================================================
// Orphan recovery

// recoverOrphan walks missing ancestry backwards: request the absent
// parent from the peers, apply it, and keep going while the answer is
// itself an orphan. Queued orphans are retried once lineage resolves.
func (n *Node) recoverOrphan(parentHash transaction.Hash) {
	missing := parentHash

	for depth := 0; depth < MaxOrphans; depth++ {
		if _, exists := n.st.BlockByHash(missing); exists {
			break
		}

		parent, found := n.fetchParent(missing)
		if !found {
			return
		}

		err := n.st.ApplyPeerBlock(parent)
		switch {
		case err == nil:
			depth = MaxOrphans // lineage resolved, drain the queue

		case errors.Is(err, chain.ErrOrphanBlock):
			n.orphans.add(parent)
			missing = parent.Header.PreviousHash
			continue

		default:
			n.evHandler("network: orphan recovery: parent rejected: %s", err)
			return
		}
	}

	n.retryOrphans()
}

// fetchParent asks the known peers for the block with the given hash.
func (n *Node) fetchParent(hash transaction.Hash) (chain.Block, bool) {
	for _, p := range n.st.KnownPeers().Copy(n.st.Host()) {
		resp, err := n.request(p, Message{Type: TypeGetParent, ParentHash: &hash})
		if err != nil {
			continue
		}
		if resp.Type == TypeBlocks && len(resp.Blocks) > 0 && resp.Blocks[0].BlockHash == hash {
			return resp.Blocks[0], true
		}
	}
	return chain.Block{}, false
}

// retryOrphans re-applies queued orphans in arrival order, re-queueing the
// ones still missing lineage. Passes repeat while progress is made so a
// child queued before its parent still resolves.
func (n *Node) retryOrphans() {
	for {
		progress := false

		for _, b := range n.orphans.take() {
			err := n.st.ApplyPeerBlock(b)
			switch {
			case err == nil:
				progress = true
				n.evHandler("network: orphan recovery: applied block[%d] %s", b.Header.Height, b.BlockHash)
			case errors.Is(err, chain.ErrOrphanBlock):
				n.orphans.add(b)
			default:
				n.evHandler("network: orphan recovery: dropping block[%d]: %s", b.Header.Height, err)
			}
		}

		if !progress {
			return
		}
	}
}
