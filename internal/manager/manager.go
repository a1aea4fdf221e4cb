// Package manager is the process-wide stream-key registry: it owns the
// spawn-on-demand map from stream key to running actor that the teacher's
// server.Server used to fold into its connection map (spec §2 item 7's
// "per-stream actor" implies something holds the collection of them; spec.md
// itself is silent on the collection's shape, so this package supplies it).
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nsavage/streamcore/internal/flavor"
	"github.com/nsavage/streamcore/internal/logger"
	"github.com/nsavage/streamcore/internal/metrics"
	"github.com/nsavage/streamcore/internal/stream"
)

// Factory builds the options and flavor adapter for a newly requested stream
// key. Called at most once per key while that key has no running actor.
type Factory func(key string) (stream.Options, flavor.Adapter, error)

// Manager is the spawn-on-demand stream-key table, generalizing the
// teacher's Server.conns map from "one entry per TCP connection" to "one
// entry per logical stream," with entries surviving across the many
// connections/clients that may subscribe to the same key over the stream's
// lifetime.
type Manager struct {
	factory Factory
	metrics *metrics.Metrics // optional; nil disables gauge updates

	mu      sync.RWMutex
	actors  map[string]*stream.Actor
	closing bool
}

// New returns a Manager that builds streams on demand using factory. m may
// be nil, disabling active-stream gauge updates.
func New(factory Factory, m *metrics.Metrics) *Manager {
	return &Manager{factory: factory, metrics: m, actors: make(map[string]*stream.Actor)}
}

// Get returns the running actor for key, if one exists.
func (m *Manager) Get(key string) (*stream.Actor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.actors[key]
	return a, ok
}

// GetOrCreate returns the running actor for key, spawning one via the
// configured Factory if none exists yet. Concurrent callers racing on the
// same unseen key are serialized: only one factory call and one actor
// survive, matching spec §4.1's "subscribing to an unknown key creates it."
func (m *Manager) GetOrCreate(key string) (*stream.Actor, error) {
	m.mu.RLock()
	if a, ok := m.actors[key]; ok {
		m.mu.RUnlock()
		return a, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.actors[key]; ok {
		return a, nil
	}
	if m.closing {
		return nil, fmt.Errorf("manager: shutting down, refusing to create %q", key)
	}

	opts, adapter, err := m.factory(key)
	if err != nil {
		return nil, fmt.Errorf("manager: factory for %q: %w", key, err)
	}
	opts.Name = key

	a, err := stream.New(opts, adapter)
	if err != nil {
		return nil, fmt.Errorf("manager: new actor for %q: %w", key, err)
	}
	if binder, ok := adapter.(interface{ Bind(*stream.Actor) }); ok {
		binder.Bind(a)
	}
	m.actors[key] = a
	go a.Run()
	go m.watchSelfTermination(key, a)
	m.observeActiveStreams(len(m.actors))

	logger.Logger().Info().Str("stream", key).Msg("stream created")
	return a, nil
}

func (m *Manager) observeActiveStreams(n int) {
	if m.metrics != nil {
		m.metrics.ActiveStreams.Set(float64(n))
	}
}

// watchSelfTermination removes key from the table once its actor stops on
// its own (inactivity timeout, source-loss shutdown policy, flavor stop) so
// a later GetOrCreate respawns rather than returning a dead actor.
func (m *Manager) watchSelfTermination(key string, a *stream.Actor) {
	<-a.Stopped()
	m.mu.Lock()
	if current, ok := m.actors[key]; ok && current == a {
		delete(m.actors, key)
	}
	n := len(m.actors)
	m.mu.Unlock()
	m.observeActiveStreams(n)
	logger.Logger().Info().Str("stream", key).Msg("stream stopped")
}

// Remove stops the actor for key, if present, and removes it from the
// table. Tolerates an unknown key.
func (m *Manager) Remove(ctx context.Context, key string) {
	m.mu.Lock()
	a, ok := m.actors[key]
	m.mu.Unlock()
	if !ok {
		return
	}
	a.StopStream(ctx)
}

// Keys returns a snapshot of the currently running stream keys.
func (m *Manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.actors))
	for k := range m.actors {
		out = append(out, k)
	}
	return out
}

// Count reports the number of currently running streams.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.actors)
}

// Shutdown stops every running actor concurrently and waits for all of them
// to exit, mirroring the teacher's Server.Stop() connection-close loop but
// fanned out with an errgroup instead of a sequential range over the map
// (spec places no ordering requirement across independent streams).
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	actors := make(map[string]*stream.Actor, len(m.actors))
	for k, a := range m.actors {
		actors[k] = a
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for key, a := range actors {
		key, a := key, a
		g.Go(func() error {
			a.StopStream(gctx)
			select {
			case <-a.Stopped():
			case <-time.After(5 * time.Second):
				return fmt.Errorf("manager: stream %q did not stop within grace period", key)
			}
			return nil
		})
	}
	return g.Wait()
}
