package network

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// inboundRateLimit bounds how many messages a single peer may push per
// second before its connection is dropped — a misbehaving or flooding peer
// cannot stall the node's single-writer Processor queue.
const inboundRateLimit = 200

// Peer represents a connected remote node, framed as JSON messages over a
// websocket connection. Grounded on the teacher's length-prefixed-TCP Peer,
// generalized to carry request/response correlation (ID) so SampleTips,
// HasBlockID and BlocksFrom can round-trip synchronously instead of only
// broadcasting fire-and-forget messages.
type Peer struct {
	ID   string
	Addr string

	conn    *websocket.Conn
	limiter *rate.Limiter

	writeMu sync.Mutex
	closed  bool
	closeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan Message
}

// NewPeer wraps an established websocket connection as a Peer.
func NewPeer(id, addr string, conn *websocket.Conn) *Peer {
	return &Peer{
		ID:      id,
		Addr:    addr,
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(inboundRateLimit), inboundRateLimit*2),
		pending: make(map[string]chan Message),
	}
}

// Connect dials the remote websocket address and returns a connected Peer.
// A non-nil tlsConfig dials wss:// with that client configuration,
// matching the mTLS setup the operator enables with config.TLSConfig;
// nil falls back to plain ws://, as the teacher's own TCP transport did.
func Connect(id, addr string, tlsConfig *tls.Config) (*Peer, error) {
	scheme := "ws"
	dialer := websocket.DefaultDialer
	if tlsConfig != nil {
		scheme = "wss"
		dialer = &websocket.Dialer{TLSClientConfig: tlsConfig}
	}
	u := url.URL{Scheme: scheme, Host: addr, Path: "/node"}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("network: connect to %s: %w", addr, err)
	}
	return NewPeer(id, addr, conn), nil
}

// Send writes a JSON message to the peer.
func (p *Peer) Send(msg Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.isClosed() {
		return fmt.Errorf("network: peer %s closed", p.ID)
	}
	return p.conn.WriteJSON(msg)
}

// Receive reads the next JSON message. A 30-second read deadline prevents a
// stalled peer from blocking the read loop indefinitely.
func (p *Peer) Receive() (Message, error) {
	_ = p.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var msg Message
	if err := p.conn.ReadJSON(&msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Allow reports whether the peer is still within its inbound rate budget.
func (p *Peer) Allow() bool {
	return p.limiter.Allow()
}

// dispatch routes msg to a pending request's waiting channel if its ID
// matches one, returning true if it was consumed that way.
func (p *Peer) dispatch(msg Message) bool {
	if msg.ID == "" {
		return false
	}
	p.pendingMu.Lock()
	ch, ok := p.pending[msg.ID]
	if ok {
		delete(p.pending, msg.ID)
	}
	p.pendingMu.Unlock()
	if !ok {
		return false
	}
	ch <- msg
	return true
}

// request sends msg with a fresh correlation ID and returns the channel the
// reply with that ID will arrive on, plus a func that drops the pending
// entry. It does not wait; roundTrip does the waiting.
func (p *Peer) request(msg Message) (chan Message, func(), error) {
	id := uuid.NewString()
	msg.ID = id
	ch := make(chan Message, 1)

	p.pendingMu.Lock()
	p.pending[id] = ch
	p.pendingMu.Unlock()

	cancel := func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}

	if err := p.Send(msg); err != nil {
		cancel()
		return nil, nil, err
	}
	return ch, cancel, nil
}

func (p *Peer) isClosed() bool {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	return p.closed
}

// Close terminates the peer connection and wakes any in-flight requests.
func (p *Peer) Close() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	p.closeMu.Unlock()

	p.conn.Close()

	p.pendingMu.Lock()
	for id, ch := range p.pending {
		close(ch)
		delete(p.pending, id)
	}
	p.pendingMu.Unlock()
}

func marshalPayload(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("network: marshal payload: %w", err)
	}
	return raw, nil
}
