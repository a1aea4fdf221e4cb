package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsavage/streamcore/internal/frame"
	"github.com/nsavage/streamcore/internal/registry"
)

func newBareActor(t *testing.T) *Actor {
	t.Helper()
	a, err := New(Options{Name: "s1"}, &fakeFlavor{})
	require.NoError(t, err)
	return a
}

func TestApplyTSDeltaComputesOnceThenReuses(t *testing.T) {
	a := newBareActor(t)
	a.state.LastDTS = 1000
	a.state.LastDTSAt = time.Now()

	shifted := a.applyTSDelta(frame.Frame{DTS: 100})
	assert.Equal(t, int64(1000), shifted.DTS, "delta should bridge last known dts to the new source's first frame")
	assert.True(t, a.state.TSDeltaKnown)

	again := a.applyTSDelta(frame.Frame{DTS: 150})
	assert.Equal(t, int64(1050), again.DTS, "subsequent frames reuse the established delta")
}

func TestDispatchFrameCachesConfigAndUpdatesLastDTS(t *testing.T) {
	a := newBareActor(t)
	a.dispatchFrame(frame.Frame{Content: frame.ContentVideo, Flavor: frame.FlavorConfig, Codec: "avc", DTS: 5})

	require.NotNil(t, a.state.VideoConfig)
	assert.Equal(t, "avc", a.state.VideoConfig.Codec)
	assert.Equal(t, int64(5), a.state.LastDTS)
}

func TestDispatchToClientTransitionsStartingToActiveWithConfigReplay(t *testing.T) {
	a := newBareActor(t)
	a.state.VideoConfig = &frame.Frame{Content: frame.ContentVideo, Flavor: frame.FlavorConfig}

	var delivered []frame.Frame
	c := &registry.Client{ID: "c1", State: registry.Starting, SendVideo: true, SendAudio: true,
		Deliver: func(fr frame.Frame) { delivered = append(delivered, fr) }}

	a.dispatchToClient(c, frame.Frame{Content: frame.ContentVideo, DTS: 10})

	require.Len(t, delivered, 2)
	assert.True(t, delivered[0].IsConfig(), "config frame replays before the content frame")
	assert.Equal(t, int64(10), delivered[1].DTS)
	assert.Equal(t, registry.Active, c.State)
}

func TestDispatchToClientSkipsPassiveAndPaused(t *testing.T) {
	a := newBareActor(t)
	called := false
	deliver := func(frame.Frame) { called = true }

	passive := &registry.Client{ID: "p", State: registry.Passive, Deliver: deliver}
	a.dispatchToClient(passive, frame.Frame{Content: frame.ContentVideo})
	assert.False(t, called)

	paused := &registry.Client{ID: "q", State: registry.Paused, Deliver: deliver}
	a.dispatchToClient(paused, frame.Frame{Content: frame.ContentVideo})
	assert.False(t, called)
}

func TestClientAcceptsFiltersByTrack(t *testing.T) {
	a := newBareActor(t)
	audioOnly := &registry.Client{SendAudio: true, SendVideo: false}
	assert.True(t, a.clientAccepts(audioOnly, frame.Frame{Content: frame.ContentAudio}))
	assert.False(t, a.clientAccepts(audioOnly, frame.Frame{Content: frame.ContentVideo}))
	assert.True(t, a.clientAccepts(audioOnly, frame.Frame{Content: frame.ContentMetadata}))
}

func TestPushContentFrameStampsStreamTag(t *testing.T) {
	a := newBareActor(t)
	var got frame.Frame
	c := &registry.Client{StreamTag: "tag-1", SendVideo: true, SendAudio: true,
		Deliver: func(fr frame.Frame) { got = fr }}

	a.pushContentFrame(c, frame.Frame{Content: frame.ContentVideo, DTS: 1})
	assert.Equal(t, "tag-1", got.StreamID)
}
