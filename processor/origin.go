package processor

// Origin distinguishes a block the local forger produced from one received
// over the network, so failure handling knows whether there is a peer to
// penalize.
type Origin struct {
	peerID string
	isPeer bool
}

// Local is the origin for a block this node forged itself.
func Local() Origin { return Origin{} }

// FromPeer is the origin for a block received from peerID.
func FromPeer(peerID string) Origin { return Origin{peerID: peerID, isPeer: true} }

// IsLocal reports whether this origin is the local forger.
func (o Origin) IsLocal() bool { return !o.isPeer }

// PeerID returns the originating peer id and true, or ("", false) for a
// local origin.
func (o Origin) PeerID() (string, bool) { return o.peerID, o.isPeer }
