package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsavage/streamcore/internal/flavor"
	"github.com/nsavage/streamcore/internal/frame"
	"github.com/nsavage/streamcore/internal/metrics"
	"github.com/nsavage/streamcore/internal/stream"
)

func newManager(t *testing.T, factory Factory) *Manager {
	t.Helper()
	return New(factory, metrics.New(prometheus.NewRegistry()))
}

type noopFlavor struct{}

func (noopFlavor) Init(s flavor.State, _ map[string]any) (flavor.State, error) { return s, nil }
func (noopFlavor) HandleFrame(fr frame.Frame, s flavor.State) flavor.Result {
	return flavor.ReplyFrame(&fr, s)
}
func (noopFlavor) HandleControl(_ flavor.ControlEvent, s flavor.State) flavor.Result {
	return flavor.NoReply(s)
}
func (noopFlavor) HandleInfo(_ any, s flavor.State) flavor.Result { return flavor.NoReply(s) }

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGetOrCreateSpawnsOnce(t *testing.T) {
	var calls int32
	m := newManager(t, func(key string) (stream.Options, flavor.Adapter, error) {
		atomic.AddInt32(&calls, 1)
		return stream.Options{}, noopFlavor{}, nil
	})
	t.Cleanup(func() { _ = m.Shutdown(testCtx(t)) })

	var wg sync.WaitGroup
	actors := make([]*stream.Actor, 10)
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := m.GetOrCreate("mystream")
			require.NoError(t, err)
			actors[i] = a
		}()
	}
	wg.Wait()

	for _, a := range actors[1:] {
		assert.Same(t, actors[0], a)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, m.Count())
}

func TestGetReturnsFalseForUnknownKey(t *testing.T) {
	m := newManager(t, func(key string) (stream.Options, flavor.Adapter, error) {
		return stream.Options{}, noopFlavor{}, nil
	})
	_, ok := m.Get("nope")
	assert.False(t, ok)
}

func TestFactoryErrorPropagates(t *testing.T) {
	wantErr := errors.New("bad config")
	m := newManager(t, func(key string) (stream.Options, flavor.Adapter, error) {
		return stream.Options{}, nil, wantErr
	})
	_, err := m.GetOrCreate("broken")
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 0, m.Count())
}

func TestRemoveStopsActorAndClearsEntry(t *testing.T) {
	m := newManager(t, func(key string) (stream.Options, flavor.Adapter, error) {
		return stream.Options{}, noopFlavor{}, nil
	})
	a, err := m.GetOrCreate("doomed")
	require.NoError(t, err)

	m.Remove(testCtx(t), "doomed")
	select {
	case <-a.Stopped():
	case <-time.After(time.Second):
		t.Fatal("actor did not stop")
	}

	// watchSelfTermination races the removal; poll briefly.
	require.Eventually(t, func() bool {
		_, ok := m.Get("doomed")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestShutdownStopsAllAndFailsFurtherCreates(t *testing.T) {
	m := newManager(t, func(key string) (stream.Options, flavor.Adapter, error) {
		return stream.Options{}, noopFlavor{}, nil
	})
	_, err := m.GetOrCreate("s1")
	require.NoError(t, err)
	_, err = m.GetOrCreate("s2")
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(testCtx(t)))

	_, err = m.GetOrCreate("s3")
	assert.Error(t, err)
}

func TestKeysReflectsRunningStreams(t *testing.T) {
	m := newManager(t, func(key string) (stream.Options, flavor.Adapter, error) {
		return stream.Options{}, noopFlavor{}, nil
	})
	t.Cleanup(func() { _ = m.Shutdown(testCtx(t)) })

	_, err := m.GetOrCreate("alpha")
	require.NoError(t, err)
	_, err = m.GetOrCreate("beta")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"alpha", "beta"}, m.Keys())
}

func TestActiveStreamsGaugeTracksLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	m := New(func(key string) (stream.Options, flavor.Adapter, error) {
		return stream.Options{}, noopFlavor{}, nil
	}, met)

	_, err := m.GetOrCreate("one")
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(met.ActiveStreams))

	m.Remove(testCtx(t), "one")
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(met.ActiveStreams) == 0
	}, time.Second, 5*time.Millisecond)
}
