// Package registry implements the stream actor's client registry: per-client
// state, subscription lifecycle, and the active/passive/paused duality
// (spec §2 item 5, §3 "Client entry", §4.3).
//
// The registry itself holds no locks of its own: it is only ever touched
// from the owning stream actor's single goroutine (spec §4.3: "the registry
// owns monitors; on client death the actor receives a liveness notification
// and the registry performs remove"), mirroring the teacher's
// server.Registry except that here the registry is per-actor client state,
// not a process-wide stream-key map (that role is internal/manager's).
package registry

import (
	"fmt"

	"github.com/nsavage/streamcore/internal/frame"
)

// State is one of the four mutually exclusive client states (spec §3
// invariant: "a client is in exactly one state").
type State uint8

const (
	Starting State = iota
	Active
	Passive
	Paused
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Passive:
		return "passive"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// TickerHandle is the minimal control surface the registry needs over a
// passive client's ticker: enough to stop it on unsubscribe/actor-shutdown
// without the registry importing internal/ticker. Concrete ticker
// implementations satisfy this trivially.
type TickerHandle interface {
	Stop()
}

// Client is one subscriber's registry entry (spec §3 "Client entry").
type Client struct {
	ID         string
	StreamTag  string
	State      State
	Ticker     TickerHandle // non-nil only in State == Passive
	BufferMS   int
	SendAudio  bool
	SendVideo  bool
	Bytes      uint64
	Done       <-chan struct{} // liveness watch; closed on client death

	// Deliver pushes a frame to this client (spec §4.2 step 5: "deliver to
	// the client (push)"). Fire-and-forget from the actor's perspective;
	// any backpressure/drop policy lives in Deliver's implementation, not
	// in the registry or actor (spec §4.2: "the core never blocks").
	Deliver func(frame.Frame)
}

// Registry is the stream actor's client table. Zero value is not usable;
// construct with New.
type Registry struct {
	clients map[string]*Client
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Insert adds c to the registry. A second insert under the same ID is
// rejected: spec §4.1 "a second subscribe from the same caller is an
// error."
func (r *Registry) Insert(c *Client) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("registry: insert requires a non-empty client id")
	}
	if _, exists := r.clients[c.ID]; exists {
		return fmt.Errorf("registry: client %q already subscribed", c.ID)
	}
	r.clients[c.ID] = c
	return nil
}

// Remove deletes the client with the given id, if present. Tolerates a
// missing id (spec §4.1 unsubscribe: "MUST tolerate missing caller").
func (r *Registry) Remove(id string) {
	delete(r.clients, id)
}

// Find returns the client with the given id, or (nil, false).
func (r *Registry) Find(id string) (*Client, bool) {
	c, ok := r.clients[id]
	return c, ok
}

// List returns a snapshot slice of all registered clients. O(n) per spec
// §4.3.
func (r *Registry) List() []*Client {
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// MassUpdateState transitions every client currently in `from` to `to`.
// Used after a source comes back from NO_SOURCE: "mark all active clients
// as starting" (spec §4.6).
func (r *Registry) MassUpdateState(from, to State) {
	for _, c := range r.clients {
		if c.State == from {
			c.State = to
		}
	}
}

// IncrementBytes adds n to the named client's cumulative byte counter
// (spec §3 "bytes"; §4.1 read_frame: "increments the client's byte counter
// by the frame body size"). No-op if the client is absent (may have raced
// with an unsubscribe).
func (r *Registry) IncrementBytes(id string, n int) {
	if c, ok := r.clients[id]; ok {
		c.Bytes += uint64(n)
	}
}

// ClientCount reports the number of live subscribers (spec §8 invariant:
// "client_count() equals the number of live subscribers in the registry at
// all times").
func (r *Registry) ClientCount() int {
	return len(r.clients)
}
