package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsavage/streamcore/internal/flavor"
	"github.com/nsavage/streamcore/internal/frame"
	"github.com/nsavage/streamcore/internal/manager"
	"github.com/nsavage/streamcore/internal/metrics"
	"github.com/nsavage/streamcore/internal/stream"
)

type noopFlavor struct{}

func (noopFlavor) Init(state flavor.State, options map[string]any) (flavor.State, error) {
	return state, nil
}
func (noopFlavor) HandleFrame(fr frame.Frame, state flavor.State) flavor.Result {
	return flavor.NoReply(state)
}
func (noopFlavor) HandleControl(event flavor.ControlEvent, state flavor.State) flavor.Result {
	return flavor.NoReply(state)
}
func (noopFlavor) HandleInfo(message any, state flavor.State) flavor.Result {
	return flavor.NoReply(state)
}

func newTestServer(t *testing.T) (*Server, *manager.Manager) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := manager.New(func(key string) (stream.Options, flavor.Adapter, error) {
		return stream.Options{Name: key}, noopFlavor{}, nil
	}, metrics.New(reg))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return New(m, reg, 0, zerolog.Nop()), m
}

func TestListStreamsReturnsSpawnedKeys(t *testing.T) {
	s, m := newTestServer(t)
	_, err := m.GetOrCreate("alpha")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/streams", nil)
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Streams []string `json:"streams"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, []string{"alpha"}, body.Streams)
}

func TestStreamStatusReturnsActorSnapshot(t *testing.T) {
	s, m := newTestServer(t)
	_, err := m.GetOrCreate("alpha")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/streams/alpha", nil)
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var status map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&status))
	assert.Contains(t, status, "source_state")
}

func TestStreamStatusUnknownKeyReturns404(t *testing.T) {
	s, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/streams/ghost", nil)
	s.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsEndpointExposesPrometheusFormat(t *testing.T) {
	s, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "streamcore_active_streams")
}
