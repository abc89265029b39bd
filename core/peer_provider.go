package core

import "context"

// PeerProvider abstracts over however a deployment discovers the fleet of
// peers it should gossip with. Implementations are selected by the
// connection layer's configuration (§4.C of the design).
type PeerProvider interface {
	// Init is called once at startup and may spawn background work (e.g. a
	// watch stream). It must return promptly.
	Init(ctx context.Context) error

	// Get returns the current membership snapshot. It must be cheap and
	// non-blocking; it may return an empty slice before membership has
	// been learned.
	Get() []Peer
}

// StaticProvider returns a fixed, configured list of peers verbatim. It is
// useful for local development and for fleets with a hand-maintained peer
// list.
type StaticProvider struct {
	Peers []Peer `yaml:"peers" json:"peers"`
}

var _ PeerProvider = (*StaticProvider)(nil)

// Init is a no-op for the static provider.
func (s *StaticProvider) Init(ctx context.Context) error { return nil }

// Get returns the configured peer list.
func (s *StaticProvider) Get() []Peer {
	out := make([]Peer, len(s.Peers))
	copy(out, s.Peers)
	return out
}
