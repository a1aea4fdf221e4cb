package stream

import (
	"io"

	"github.com/nsavage/streamcore/internal/frame"
	"github.com/nsavage/streamcore/internal/mediainfo"
	"github.com/nsavage/streamcore/internal/registry"
	"github.com/nsavage/streamcore/internal/storage"
)

// SubscribeOptions are the recognized subscribe() options (spec §4.1).
// SendAudio/SendVideo default to true (receive both tracks) when left nil;
// set explicitly to filter a track out.
type SubscribeOptions struct {
	StreamTag string
	BufferMS  int
	SendAudio *bool
	SendVideo *bool
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

// InfoKeys are the keys info() recognizes (spec §4.1).
var InfoKeys = map[string]bool{
	"client_count": true,
	"url":          true,
	"type":         true,
	"storage":      true,
	"clients":      true,
	"last_dts":     true,
	"ts_delay":     true,
	"created_at":   true,
	"options":      true,
}

type subscribeReq struct {
	clientID string
	opts     SubscribeOptions
	liveness <-chan struct{}
	deliver  func(frame.Frame)
	done     chan error
}

type startReq struct {
	clientID string
	done     chan error
}

type pauseReq struct {
	clientID string
	done     chan error
}

type resumeReq struct {
	clientID string
	done     chan error
}

type unsubscribeReq struct {
	clientID string
	done     chan struct{}
}

type seekReq struct {
	clientID string
	dts      int64
	dir      storage.SeekDirection
	done     chan seekResult
}

type seekResult struct {
	key string
	dts int64
	err error
}

type seekInfoReq struct {
	dts  int64
	opts map[string]any
	done chan seekInfoResult
}

type seekInfoResult struct {
	key   string
	dts   int64
	found bool
}

type readFrameReq struct {
	clientID string
	key      string
	done     chan readFrameResult
}

type readFrameResult struct {
	fr      frame.Frame
	nextKey string
	eof     bool
	err     error
}

type mediaInfoReq struct {
	done chan mediainfo.Info
}

type setMediaInfoReq struct {
	info mediainfo.Info
	done chan struct{}
}

type infoReq struct {
	keys []string
	done chan infoResult
}

type infoResult struct {
	values map[string]any
	err    error
}

type statusReq struct {
	done chan map[string]any
}

type stopStreamReq struct {
	done chan struct{}
}

// Async (fire-and-forget) messages.

type setSourceMsg struct {
	source string
}

type setSocketMsg struct {
	socket io.ReadWriteCloser
}

type playSetupMsg struct {
	clientID string
	opts     map[string]any
}

type publishMsg struct {
	fr frame.Frame
}

type clientDeadMsg struct {
	clientID string
}

type sourceLostMsg struct {
	source string
}

type noSourceTimerMsg struct {
	generation uint64
}

// newRegistryClient builds the registry.Client this package inserts for a
// subscriber.
func newRegistryClient(id string, opts SubscribeOptions, done <-chan struct{}, deliver func(frame.Frame)) *registry.Client {
	return &registry.Client{
		ID:        id,
		StreamTag: opts.StreamTag,
		State:     registry.Starting,
		BufferMS:  opts.BufferMS,
		SendAudio: boolOr(opts.SendAudio, true),
		SendVideo: boolOr(opts.SendVideo, true),
		Done:      done,
		Deliver:   deliver,
	}
}
