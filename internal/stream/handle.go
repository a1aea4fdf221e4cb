package stream

import (
	"context"
	"errors"
	"io"

	"github.com/nsavage/streamcore/internal/frame"
	"github.com/nsavage/streamcore/internal/mediainfo"
	"github.com/nsavage/streamcore/internal/storage"
)

// ErrActorStopped is returned by synchronous calls made after the actor has
// already terminated.
var ErrActorStopped = errors.New("stream: actor stopped")

// Subscribe adds caller clientID to the client registry in state starting
// (spec §4.1 subscribe). liveness, if non-nil, is the caller's liveness
// watch: closing it triggers the same cleanup as Unsubscribe. deliver
// receives every frame pushed to this client.
func (a *Actor) Subscribe(ctx context.Context, clientID string, opts SubscribeOptions, liveness <-chan struct{}, deliver func(frame.Frame)) error {
	done := make(chan error, 1)
	if !a.sendSync(ctx, subscribeReq{clientID: clientID, opts: opts, liveness: liveness, deliver: deliver, done: done}) {
		return ErrActorStopped
	}
	return a.awaitErr(ctx, done)
}

// Play is subscribe(opts) followed by start (spec §6 inbound API table).
func (a *Actor) Play(ctx context.Context, clientID string, opts SubscribeOptions, liveness <-chan struct{}, deliver func(frame.Frame)) error {
	if err := a.Subscribe(ctx, clientID, opts, liveness, deliver); err != nil {
		return err
	}
	return a.Start(ctx, clientID)
}

// Start transitions clientID from starting to active or passive (spec §4.1
// start).
func (a *Actor) Start(ctx context.Context, clientID string) error {
	done := make(chan error, 1)
	if !a.sendSync(ctx, startReq{clientID: clientID, done: done}) {
		return ErrActorStopped
	}
	return a.awaitErr(ctx, done)
}

// Pause halts delivery for clientID (spec §4.1 pause).
func (a *Actor) Pause(ctx context.Context, clientID string) error {
	done := make(chan error, 1)
	if !a.sendSync(ctx, pauseReq{clientID: clientID, done: done}) {
		return ErrActorStopped
	}
	return a.awaitErr(ctx, done)
}

// Resume restarts delivery for clientID (spec §4.1 resume).
func (a *Actor) Resume(ctx context.Context, clientID string) error {
	done := make(chan error, 1)
	if !a.sendSync(ctx, resumeReq{clientID: clientID, done: done}) {
		return ErrActorStopped
	}
	return a.awaitErr(ctx, done)
}

// Unsubscribe removes clientID; tolerates an unknown id (spec §4.1
// unsubscribe).
func (a *Actor) Unsubscribe(ctx context.Context, clientID string) {
	done := make(chan struct{})
	if !a.sendSync(ctx, unsubscribeReq{clientID: clientID, done: done}) {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	case <-a.stopped:
	}
}

// SeekResult is the outcome of a Seek call.
type SeekResult struct {
	Key string
	DTS int64
}

// Seek rebases a passive client's ticker to the keyframe nearest dts (spec
// §4.1 seek). dir is preserved for API compatibility but does not change
// resolution policy (spec §9 Open Questions).
func (a *Actor) Seek(ctx context.Context, clientID string, dts int64, dir storage.SeekDirection) (SeekResult, error) {
	done := make(chan seekResult, 1)
	if !a.sendSync(ctx, seekReq{clientID: clientID, dts: dts, dir: dir, done: done}) {
		return SeekResult{}, ErrActorStopped
	}
	select {
	case r := <-done:
		return SeekResult{Key: r.key, DTS: r.dts}, r.err
	case <-ctx.Done():
		return SeekResult{}, ctx.Err()
	case <-a.stopped:
		return SeekResult{}, ErrActorStopped
	}
}

// SeekInfoResult is the outcome of a SeekInfo query.
type SeekInfoResult struct {
	Key   string
	DTS   int64
	Found bool
}

// SeekInfo is a pure query over storage, giving the flavor a chance to
// intercept first (spec §4.1 seek_info).
func (a *Actor) SeekInfo(ctx context.Context, dts int64, opts map[string]any) (SeekInfoResult, error) {
	done := make(chan seekInfoResult, 1)
	if !a.sendSync(ctx, seekInfoReq{dts: dts, opts: opts, done: done}) {
		return SeekInfoResult{}, ErrActorStopped
	}
	select {
	case r := <-done:
		return SeekInfoResult{Key: r.key, DTS: r.dts, Found: r.found}, nil
	case <-ctx.Done():
		return SeekInfoResult{}, ctx.Err()
	case <-a.stopped:
		return SeekInfoResult{}, ErrActorStopped
	}
}

// ReadFrameResult is the outcome of a ReadFrame call.
type ReadFrameResult struct {
	Frame   frame.Frame
	NextKey string
	EOF     bool
}

// ReadFrame is the ticker-driven storage read (spec §4.1 read_frame).
func (a *Actor) ReadFrame(ctx context.Context, clientID, key string) (ReadFrameResult, error) {
	done := make(chan readFrameResult, 1)
	if !a.sendSync(ctx, readFrameReq{clientID: clientID, key: key, done: done}) {
		return ReadFrameResult{}, ErrActorStopped
	}
	select {
	case r := <-done:
		return ReadFrameResult{Frame: r.fr, NextKey: r.nextKey, EOF: r.eof}, r.err
	case <-ctx.Done():
		return ReadFrameResult{}, ctx.Err()
	case <-a.stopped:
		return ReadFrameResult{}, ErrActorStopped
	}
}

// MediaInfo blocks until both tracks are configured (bounded by the
// stop_wait_for_config timer), or returns immediately if already ready
// (spec §4.1 media_info).
func (a *Actor) MediaInfo(ctx context.Context) (mediainfo.Info, error) {
	done := make(chan mediainfo.Info, 1)
	if !a.sendSync(ctx, mediaInfoReq{done: done}) {
		return mediainfo.Info{}, ErrActorStopped
	}
	select {
	case info := <-done:
		return info, nil
	case <-ctx.Done():
		return mediainfo.Info{}, ctx.Err()
	case <-a.stopped:
		return mediainfo.Info{}, ErrActorStopped
	}
}

// SetMediaInfo installs info, answering any waiters if it is now ready
// (spec §4.1 set_media_info).
func (a *Actor) SetMediaInfo(ctx context.Context, info mediainfo.Info) error {
	done := make(chan struct{})
	if !a.sendSync(ctx, setMediaInfoReq{info: info, done: done}) {
		return ErrActorStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-a.stopped:
		return ErrActorStopped
	}
}

// Info returns the requested introspection keys (spec §4.1 info).
func (a *Actor) Info(ctx context.Context, keys []string) (map[string]any, error) {
	done := make(chan infoResult, 1)
	if !a.sendSync(ctx, infoReq{keys: keys, done: done}) {
		return nil, ErrActorStopped
	}
	select {
	case r := <-done:
		return r.values, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.stopped:
		return nil, ErrActorStopped
	}
}

// Status returns a snapshot of actor-internal state for diagnostics (spec
// §4.1 status).
func (a *Actor) Status(ctx context.Context) (map[string]any, error) {
	done := make(chan map[string]any, 1)
	if !a.sendSync(ctx, statusReq{done: done}) {
		return nil, ErrActorStopped
	}
	select {
	case s := <-done:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.stopped:
		return nil, ErrActorStopped
	}
}

// StopStream terminates the actor normally (spec §4.1 stop).
func (a *Actor) StopStream(ctx context.Context) {
	done := make(chan struct{})
	if !a.sendSync(ctx, stopStreamReq{done: done}) {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	case <-a.stopped:
	}
}

// SetSource configures the stream's frame producer (spec §4.1 set_source,
// async).
func (a *Actor) SetSource(source string) {
	a.send(setSourceMsg{source: source})
}

// SetSocket transfers socket ownership to the actor (spec §4.1 set_socket,
// async).
func (a *Actor) SetSocket(socket io.ReadWriteCloser) {
	a.send(setSocketMsg{socket: socket})
}

// PlaySetup forwards runtime toggles to a passive client's ticker (spec
// §4.1 play_setup, async).
func (a *Actor) PlaySetup(clientID string, opts map[string]any) {
	a.send(playSetupMsg{clientID: clientID, opts: opts})
}

// Publish injects fr into the actor's inbound path as if from the source
// (spec §4.1 publish, async).
func (a *Actor) Publish(fr frame.Frame) {
	a.send(publishMsg{fr: fr})
}

// NotifySourceLost signals that the current source's liveness watch fired,
// driving the source-loss state machine (spec §4.6). Supervisor glue calls
// this; it is not part of spec.md's inbound API table because the core
// treats it as internal to set_source's monitor, but it must cross the
// mailbox boundary like any other actor input.
func (a *Actor) NotifySourceLost(source string) {
	a.send(sourceLostMsg{source: source})
}

// sendSync enqueues a synchronous request, returning false if ctx is
// already done or the actor has stopped before the send could happen.
func (a *Actor) sendSync(ctx context.Context, msg any) bool {
	select {
	case a.mailbox <- msg:
		return true
	case <-ctx.Done():
		return false
	case <-a.stopped:
		return false
	}
}

func (a *Actor) awaitErr(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-a.stopped:
		return ErrActorStopped
	}
}
