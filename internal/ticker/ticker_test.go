package ticker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nsavage/streamcore/internal/frame"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// sliceSource serves frame.Frame values by key, where key is a decimal
// index into the slice, mirroring the ring buffer's key scheme closely
// enough for ticker tests without importing internal/storage/timeshift.
type sliceSource struct {
	frames []frame.Frame
}

func (s *sliceSource) read(key string) (frame.Frame, string, bool) {
	idx := 0
	if key != "" {
		for i, k := range []string{"0", "1", "2", "3", "4"} {
			if k == key {
				idx = i
				break
			}
		}
	}
	if idx >= len(s.frames) {
		return frame.Frame{}, "", true
	}
	next := ""
	if idx+1 < len(s.frames) {
		next = []string{"0", "1", "2", "3", "4"}[idx+1]
	}
	return s.frames[idx], next, false
}

func TestTickerDeliversFramesInOrderThenEOF(t *testing.T) {
	src := &sliceSource{frames: []frame.Frame{
		{DTS: 0}, {DTS: 10}, {DTS: 20},
	}}

	var mu sync.Mutex
	var delivered []int64
	eofCh := make(chan struct{})

	tk := New(src.read, func(fr frame.Frame) {
		mu.Lock()
		delivered = append(delivered, fr.DTS)
		mu.Unlock()
	}, func() { close(eofCh) })

	tk.Start("", 0)

	select {
	case <-eofCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for EOF")
	}
	tk.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{0, 10, 20}, delivered)
}

func TestTickerPauseHaltsDelivery(t *testing.T) {
	src := &sliceSource{frames: []frame.Frame{
		{DTS: 0}, {DTS: 500}, {DTS: 1000},
	}}

	var mu sync.Mutex
	var delivered []int64

	tk := New(src.read, func(fr frame.Frame) {
		mu.Lock()
		delivered = append(delivered, fr.DTS)
		mu.Unlock()
	}, func() {})

	tk.Start("", 0)
	time.Sleep(20 * time.Millisecond)
	tk.Pause()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	countAfterPause := len(delivered)
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	countLater := len(delivered)
	mu.Unlock()

	assert.Equal(t, countAfterPause, countLater, "no frames should be delivered while paused")
	tk.Stop()
}

func TestTickerStopIsIdempotent(t *testing.T) {
	src := &sliceSource{frames: []frame.Frame{{DTS: 0}}}
	tk := New(src.read, func(frame.Frame) {}, func() {})
	tk.Start("", 0)
	require.NotPanics(t, func() {
		tk.Stop()
		tk.Stop()
	})
}
