package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	coreerrors "github.com/nsavage/streamcore/internal/errors"
	"github.com/nsavage/streamcore/internal/frame"
	"github.com/nsavage/streamcore/internal/storage"
)

// fakeStorage is a no-op storage.Adapter, just enough to make Options.Format
// non-nil for the timeshift/storage conflict test below.
type fakeStorage struct{}

func (fakeStorage) ReadFrame(key string) (frame.Frame, string, error) { return frame.Frame{}, "", nil }
func (fakeStorage) Seek(dts int64, dir storage.SeekDirection) (string, int64, bool) {
	return "", 0, false
}
func (fakeStorage) Properties() map[string]any      { return nil }
func (fakeStorage) WriteFrame(fr frame.Frame) error { return nil }

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestActor(t *testing.T, opts Options) *Actor {
	t.Helper()
	a, err := New(opts, &fakeFlavor{})
	require.NoError(t, err)
	go a.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		a.StopStream(ctx)
		<-a.Stopped()
	})
	return a
}

type collector struct {
	mu     sync.Mutex
	frames []frame.Frame
}

func (c *collector) deliver(fr frame.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, fr)
}

func (c *collector) snapshot() []frame.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]frame.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

func ctx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSubscribeStartPauseResumeDeliversFrames(t *testing.T) {
	a := newTestActor(t, Options{Name: "s1"})
	c := &collector{}

	require.NoError(t, a.Subscribe(ctx(t), "client1", SubscribeOptions{}, nil, c.deliver))
	require.NoError(t, a.Start(ctx(t), "client1"))

	a.Publish(frame.Frame{Content: frame.ContentVideo, DTS: 100})
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, c.snapshot(), 1)

	require.NoError(t, a.Pause(ctx(t), "client1"))
	a.Publish(frame.Frame{Content: frame.ContentVideo, DTS: 200})
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, c.snapshot(), 1, "paused client should not receive frames")

	require.NoError(t, a.Resume(ctx(t), "client1"))
	a.Publish(frame.Frame{Content: frame.ContentVideo, DTS: 300})
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, c.snapshot(), 2)

	a.Unsubscribe(ctx(t), "client1")
	a.Publish(frame.Frame{Content: frame.ContentVideo, DTS: 400})
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, c.snapshot(), 2, "unsubscribed client should not receive frames")
}

func TestSubscribeRejectsDuplicateClientID(t *testing.T) {
	a := newTestActor(t, Options{Name: "s1"})
	c := &collector{}

	require.NoError(t, a.Subscribe(ctx(t), "dup", SubscribeOptions{}, nil, c.deliver))
	err := a.Subscribe(ctx(t), "dup", SubscribeOptions{}, nil, c.deliver)
	assert.Error(t, err)
}

func TestUnsubscribeTreatsUnknownClientAsNoOp(t *testing.T) {
	a := newTestActor(t, Options{Name: "s1"})
	assert.NotPanics(t, func() {
		a.Unsubscribe(ctx(t), "ghost")
	})
}

func TestStartingClientReceivesCachedConfigBeforeFirstFrame(t *testing.T) {
	a := newTestActor(t, Options{Name: "s1"})
	c := &collector{}

	// Publish a video config frame before the client subscribes, priming the cache.
	a.Publish(frame.Frame{Content: frame.ContentVideo, Flavor: frame.FlavorConfig, Codec: "avc", DTS: 0})
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, a.Subscribe(ctx(t), "late", SubscribeOptions{}, nil, c.deliver))
	require.NoError(t, a.Start(ctx(t), "late"))

	a.Publish(frame.Frame{Content: frame.ContentVideo, DTS: 40})
	time.Sleep(20 * time.Millisecond)

	got := c.snapshot()
	require.Len(t, got, 2, "expect replayed config frame then content frame")
	assert.True(t, got[0].IsConfig())
	assert.Equal(t, int64(40), got[1].DTS)
}

func TestLivenessCloseTriggersUnsubscribe(t *testing.T) {
	a := newTestActor(t, Options{Name: "s1"})
	c := &collector{}
	liveness := make(chan struct{})

	require.NoError(t, a.Subscribe(ctx(t), "watched", SubscribeOptions{}, liveness, c.deliver))
	require.NoError(t, a.Start(ctx(t), "watched"))
	close(liveness)
	time.Sleep(20 * time.Millisecond)

	a.Publish(frame.Frame{Content: frame.ContentVideo, DTS: 10})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.snapshot(), "client whose liveness channel closed should be unsubscribed")
}

func TestInfoRejectsUnknownKeys(t *testing.T) {
	a := newTestActor(t, Options{Name: "s1"})
	_, err := a.Info(ctx(t), []string{"bogus_key"})
	assert.Error(t, err)
}

func TestInfoReportsClientCount(t *testing.T) {
	a := newTestActor(t, Options{Name: "s1"})
	c := &collector{}
	require.NoError(t, a.Subscribe(ctx(t), "a", SubscribeOptions{}, nil, c.deliver))

	values, err := a.Info(ctx(t), []string{"client_count"})
	require.NoError(t, err)
	assert.Equal(t, 1, values["client_count"])
}

func TestStopStreamClosesStoppedChannel(t *testing.T) {
	a, err := New(Options{Name: "s1"}, &fakeFlavor{})
	require.NoError(t, err)
	go a.Run()

	a.StopStream(ctx(t))
	select {
	case <-a.Stopped():
	case <-time.After(time.Second):
		t.Fatal("actor did not stop")
	}
}

func TestNewRejectsTimeshiftAndStorageTogether(t *testing.T) {
	_, err := New(Options{Name: "s1", TimeshiftMS: 1000, Format: fakeStorage{}}, &fakeFlavor{})
	var want *coreerrors.TimeshiftAndStorageError
	assert.ErrorAs(t, err, &want)
}

func TestSyncCallAfterStopReturnsErrActorStopped(t *testing.T) {
	a, err := New(Options{Name: "s1"}, &fakeFlavor{})
	require.NoError(t, err)
	go a.Run()
	a.StopStream(ctx(t))
	<-a.Stopped()

	err = a.Start(ctx(t), "whoever")
	assert.ErrorIs(t, err, ErrActorStopped)
}
