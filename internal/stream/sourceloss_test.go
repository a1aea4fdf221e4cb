package stream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsavage/streamcore/internal/flavor"
	"github.com/nsavage/streamcore/internal/registry"
)

func newActorWithFlavor(t *testing.T, policy SourceTimeoutPolicy, onControl func(flavor.ControlEvent, flavor.State) flavor.Result) *Actor {
	t.Helper()
	a, err := New(Options{Name: "s1", SourceTimeout: policy}, &fakeFlavor{onControl: onControl})
	require.NoError(t, err)
	return a
}

func TestHandleSourceLostStopOutcomeTerminates(t *testing.T) {
	a := newActorWithFlavor(t, DefaultSourceTimeout(), func(e flavor.ControlEvent, s flavor.State) flavor.Result {
		return flavor.Stop(errors.New("disk full"), s)
	})
	assert.True(t, a.handleSourceLost("src1"))
}

func TestHandleSourceLostReplyAdoptsNewSource(t *testing.T) {
	a := newActorWithFlavor(t, DefaultSourceTimeout(), func(e flavor.ControlEvent, s flavor.State) flavor.Result {
		return flavor.ReplyValue("backup-source", s)
	})
	a.state.TSDeltaKnown = true

	terminate := a.handleSourceLost("src1")
	assert.False(t, terminate)
	assert.Equal(t, "backup-source", a.state.Source)
	assert.True(t, a.state.SourceSet)
	assert.False(t, a.state.TSDeltaKnown, "adopting a new source resets ts_delta")
	assert.Equal(t, sourceOK, a.sourceState)
}

func TestHandleSourceLostNoReplyShutdownTerminates(t *testing.T) {
	a := newActorWithFlavor(t, SourceTimeoutPolicy{Shutdown: true}, nil)
	assert.True(t, a.handleSourceLost("src1"))
}

func TestHandleSourceLostNoReplyDisabledStaysAlive(t *testing.T) {
	a := newActorWithFlavor(t, SourceTimeoutPolicy{Disabled: true}, nil)
	assert.False(t, a.handleSourceLost("src1"))
	assert.Equal(t, "", a.state.Source)
	assert.False(t, a.state.SourceSet)
	assert.Equal(t, sourceOK, a.sourceState)
}

func TestHandleSourceLostNoReplyZeroMSTerminates(t *testing.T) {
	a := newActorWithFlavor(t, SourceTimeoutPolicy{MS: 0}, nil)
	assert.True(t, a.handleSourceLost("src1"))
}

func TestHandleSourceLostNoReplyArmsGraceTimer(t *testing.T) {
	a := newActorWithFlavor(t, SourceTimeoutPolicy{MS: 50}, nil)
	terminate := a.handleSourceLost("src1")
	assert.False(t, terminate)
	assert.Equal(t, sourceLostGrace, a.sourceState)
	assert.Equal(t, uint64(1), a.noSourceGen)
}

func TestHandleNoSourceExpiredReplyReactivatesStartingClients(t *testing.T) {
	a := newActorWithFlavor(t, DefaultSourceTimeout(), func(e flavor.ControlEvent, s flavor.State) flavor.Result {
		return flavor.ReplyValue("backup-source", s)
	})
	require.NoError(t, a.registry.Insert(&registry.Client{ID: "c1", State: registry.Active}))

	terminate := a.handleNoSourceExpired()
	assert.False(t, terminate)
	c, ok := a.registry.Find("c1")
	require.True(t, ok)
	assert.Equal(t, registry.Starting, c.State)
	assert.Equal(t, "backup-source", a.state.Source)
}

func TestHandleNoSourceExpiredDefaultTerminates(t *testing.T) {
	a := newActorWithFlavor(t, DefaultSourceTimeout(), nil)
	assert.True(t, a.handleNoSourceExpired())
}

func TestCancelGraceOnNewSourceInvalidatesPendingTimer(t *testing.T) {
	a := newActorWithFlavor(t, SourceTimeoutPolicy{MS: 50}, nil)
	a.handleSourceLost("src1") // arms the grace timer, noSourceGen == 1
	require.Equal(t, sourceLostGrace, a.sourceState)

	a.cancelGraceOnNewSource()
	assert.Equal(t, sourceOK, a.sourceState)
	assert.Equal(t, uint64(2), a.noSourceGen, "generation bump invalidates the in-flight timer message")
}

func TestCancelGraceOnNewSourceNoOpOutsideGrace(t *testing.T) {
	a := newActorWithFlavor(t, DefaultSourceTimeout(), nil)
	a.cancelGraceOnNewSource()
	assert.Equal(t, sourceOK, a.sourceState)
	assert.Equal(t, uint64(0), a.noSourceGen)
}
