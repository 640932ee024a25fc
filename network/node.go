package network

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/soliduschain/node/log"
)

var logger = log.Component("network")

// MessageHandler is called for each received message that is not a pending
// request's response.
type MessageHandler func(peer *Peer, msg Message)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// Node listens for incoming peers over websocket and manages outgoing
// connections. Grounded on the teacher's network.Node; generalized from raw
// TCP framing to websocket framing (matching the transport library the rest
// of the retrieval pack reaches for) and from a single handler table to one
// that coexists with the Peer-level request/response correlation added for
// sync probing.
type Node struct {
	nodeID     string
	listenAddr string
	maxPeers   int
	upgrader   websocket.Upgrader

	mu       sync.RWMutex
	peers    map[string]*Peer
	handlers map[MsgType]MessageHandler

	tlsConfig *tls.Config
	server    *http.Server
	listener  net.Listener
}

// UseTLS enables mTLS for both accepted and outbound connections. Call
// before Start/AddPeer. A nil cfg (the default) keeps plain ws://.
func (n *Node) UseTLS(cfg *tls.Config) {
	n.tlsConfig = cfg
}

// NewNode creates a Node that will listen on listenAddr.
func NewNode(nodeID, listenAddr string) *Node {
	return &Node{
		nodeID:     nodeID,
		listenAddr: listenAddr,
		maxPeers:   DefaultMaxPeers,
		upgrader:   websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		peers:      make(map[string]*Peer),
		handlers:   make(map[MsgType]MessageHandler),
	}
}

// Handle registers a handler for msg type.
func (n *Node) Handle(typ MsgType, h MessageHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[typ] = h
}

// Start begins accepting connections on a background HTTP server upgrading
// every request on /node to a websocket peer. listenAddr may name port 0 to
// bind an ephemeral port, which Addr() then reports.
func (n *Node) Start() error {
	ln, err := net.Listen("tcp", n.listenAddr)
	if err != nil {
		return fmt.Errorf("network: listen on %s: %w", n.listenAddr, err)
	}
	if n.tlsConfig != nil {
		ln = tls.NewListener(ln, n.tlsConfig)
	}
	n.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/node", n.handleUpgrade)
	n.server = &http.Server{Handler: mux}

	go func() {
		if err := n.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.WithField("err", err).Error("http server stopped")
		}
	}()
	return nil
}

// Addr returns the address the node is actually listening on, resolving any
// ephemeral port picked at Start.
func (n *Node) Addr() string {
	if n.listener == nil {
		return n.listenAddr
	}
	return n.listener.Addr().String()
}

// Stop shuts down the node and every connected peer.
func (n *Node) Stop() {
	if n.server != nil {
		_ = n.server.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

func (n *Node) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	n.mu.RLock()
	full := len(n.peers) >= n.maxPeers
	n.mu.RUnlock()
	if full {
		http.Error(w, "max peers reached", http.StatusServiceUnavailable)
		return
	}
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithField("err", err).Warn("websocket upgrade failed")
		return
	}
	peer := NewPeer(r.RemoteAddr, r.RemoteAddr, conn)
	n.registerPeer(peer)
	go n.readLoop(peer)
}

// AddPeer dials addr and registers the connection under id.
func (n *Node) AddPeer(id, addr string) (*Peer, error) {
	peer, err := Connect(id, addr, n.tlsConfig)
	if err != nil {
		return nil, err
	}
	n.registerPeer(peer)
	go n.readLoop(peer)

	hello, err := marshalPayload(HelloPayload{NodeID: n.nodeID})
	if err != nil {
		return peer, nil
	}
	if err := peer.Send(Message{Type: MsgHello, Payload: hello}); err != nil {
		logger.WithField("peer", id).WithField("err", err).Warn("send hello")
	}
	return peer, nil
}

func (n *Node) registerPeer(p *Peer) {
	n.mu.Lock()
	n.peers[p.ID] = p
	n.mu.Unlock()
}

// Peer returns the connected peer with the given id, or nil if not found.
func (n *Node) Peer(id string) *Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[id]
}

// Peers returns a snapshot of every connected peer.
func (n *Node) Peers() []*Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p)
	}
	return out
}

// RemovePeer drops a peer from the registry, closing its connection.
func (n *Node) RemovePeer(id string) {
	n.mu.Lock()
	p, ok := n.peers[id]
	delete(n.peers, id)
	n.mu.Unlock()
	if ok {
		p.Close()
	}
}

// Broadcast sends msg to all connected peers, logging (not failing) any
// individual send error.
func (n *Node) Broadcast(msg Message) {
	for _, p := range n.Peers() {
		if err := p.Send(msg); err != nil {
			logger.WithField("peer", p.ID).WithField("err", err).Warn("broadcast failed")
		}
	}
}

func (n *Node) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("peer", peer.ID).WithField("panic", r).Error("readLoop panic")
		}
		n.RemovePeer(peer.ID)
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		if !peer.Allow() {
			logger.WithField("peer", peer.ID).Warn("rate limit exceeded, dropping peer")
			return
		}
		if peer.dispatch(msg) {
			continue
		}
		n.mu.RLock()
		h, ok := n.handlers[msg.Type]
		n.mu.RUnlock()
		if ok {
			// Handlers run off the read loop so one that blocks on its own
			// round trip (e.g. fetching announced transactions) cannot
			// starve this peer's subsequent reads, including the reply it
			// is waiting on.
			go h(peer, msg)
		}
	}
}

func errPeerNotFound(id string) error {
	return fmt.Errorf("network: peer %s not connected", id)
}
