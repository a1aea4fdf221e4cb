package stream

import (
	"context"
	"time"

	coreerrors "github.com/nsavage/streamcore/internal/errors"
	"github.com/nsavage/streamcore/internal/flavor"
	"github.com/nsavage/streamcore/internal/frame"
	"github.com/nsavage/streamcore/internal/registry"
	"github.com/nsavage/streamcore/internal/storage"
	"github.com/nsavage/streamcore/internal/ticker"
)

func (a *Actor) handleSubscribe(m subscribeReq) error {
	if _, exists := a.registry.Find(m.clientID); exists {
		return coreerrors.NewAlreadySubscribed(m.clientID)
	}
	c := newRegistryClient(m.clientID, m.opts, m.liveness, m.deliver)
	if err := a.registry.Insert(c); err != nil {
		return err
	}
	a.observeClientSubscribed()
	if m.liveness != nil {
		live := m.liveness
		id := m.clientID
		go func() {
			<-live
			a.send(clientDeadMsg{clientID: id})
		}()
	}
	return nil
}

// send enqueues an async message, tolerating an actor that has already
// stopped (mirrors the teacher's SendMessage "connection not initialized"
// guard, generalized to "actor already stopped").
func (a *Actor) send(msg any) {
	select {
	case a.mailbox <- msg:
	case <-a.stopped:
	}
}

func (a *Actor) handleStart(m startReq) error {
	c, ok := a.registry.Find(m.clientID)
	if !ok {
		return coreerrors.NewUnknownRequest("start: unknown client " + m.clientID)
	}
	if a.state.Storage == nil {
		c.State = registry.Active
		return nil
	}

	clientID := m.clientID
	t := ticker.New(
		func(key string) (frame.Frame, string, bool) {
			// Runs on the ticker goroutine: go through the mailbox so storage
			// and registry are only touched by the actor goroutine.
			r, err := a.ReadFrame(context.Background(), clientID, key)
			if err != nil || r.EOF {
				return frame.Frame{}, "", true
			}
			return r.Frame, r.NextKey, false
		},
		func(fr frame.Frame) {
			if c.Deliver != nil {
				c.Deliver(fr.WithStreamID(c.StreamTag))
			}
		},
		func() { a.send(clientDeadMsg{clientID: clientID}) },
	)
	t.Start("", c.BufferMS)
	c.Ticker = t
	a.tickers[clientID] = t
	c.State = registry.Passive
	return nil
}

func (a *Actor) handlePause(m pauseReq) error {
	c, ok := a.registry.Find(m.clientID)
	if !ok {
		return coreerrors.NewUnknownRequest("pause: unknown client " + m.clientID)
	}
	if c.State != registry.Active && c.State != registry.Passive {
		return nil
	}
	if t, ok := c.Ticker.(*ticker.Ticker); ok {
		t.Pause()
	}
	c.State = registry.Paused
	return nil
}

func (a *Actor) handleResume(m resumeReq) error {
	c, ok := a.registry.Find(m.clientID)
	if !ok {
		return coreerrors.NewUnknownRequest("resume: unknown client " + m.clientID)
	}
	if c.State != registry.Paused {
		return nil
	}
	if t, ok := c.Ticker.(*ticker.Ticker); ok {
		c.State = registry.Passive
		t.Resume()
	} else {
		c.State = registry.Active
	}
	return nil
}

func (a *Actor) handleUnsubscribe(clientID string) {
	c, ok := a.registry.Find(clientID)
	if !ok {
		return
	}
	if c.Ticker != nil {
		c.Ticker.Stop()
		delete(a.tickers, clientID)
	}
	a.registry.Remove(clientID)
	a.observeClientUnsubscribed()
}

func (a *Actor) handleSeek(m seekReq) seekResult {
	c, ok := a.registry.Find(m.clientID)
	if !ok {
		return seekResult{err: coreerrors.NewUnknownRequest("seek: unknown client " + m.clientID)}
	}
	if c.Ticker == nil {
		return seekResult{err: coreerrors.NewNotPassive(m.clientID)}
	}
	if a.state.Storage == nil {
		return seekResult{err: coreerrors.NewNoStorage("seek")}
	}
	key, dts, ok2 := a.state.Storage.Seek(m.dts, m.dir)
	if !ok2 {
		return seekResult{err: coreerrors.NewNoStorage("seek: empty storage")}
	}
	if t, ok := c.Ticker.(*ticker.Ticker); ok {
		t.Seek(key, dts)
	}
	return seekResult{key: key, dts: dts}
}

func (a *Actor) handleSeekInfo(m seekInfoReq) seekInfoResult {
	res := a.flavorAdapter.HandleControl(flavor.ControlEvent{
		Kind: flavor.ControlSeekInfo, SeekDTS: m.dts, SeekOpts: m.opts,
	}, a.flavorView())
	a.applyFlavorState(res.State)
	if res.Outcome == flavor.OutcomeReply {
		if pair, ok := res.Value.(seekInfoResult); ok {
			return pair
		}
	}
	if a.state.Storage == nil {
		return seekInfoResult{}
	}
	key, dts, ok := a.state.Storage.Seek(m.dts, storage.SeekAfter)
	return seekInfoResult{key: key, dts: dts, found: ok}
}

func (a *Actor) handleReadFrame(m readFrameReq) readFrameResult {
	if a.state.Storage == nil {
		return readFrameResult{err: coreerrors.NewNoStorage("read_frame")}
	}
	fr, next, err := a.state.Storage.ReadFrame(m.key)
	if err != nil {
		if err == storage.ErrEOF {
			return readFrameResult{eof: true}
		}
		return readFrameResult{err: err}
	}
	if fr.IsConfig() {
		a.cacheConfigFrame(fr)
	} else if m.clientID != "" {
		a.registry.IncrementBytes(m.clientID, len(fr.Body))
	}
	return readFrameResult{fr: fr, nextKey: next}
}

func (a *Actor) cacheConfigFrame(fr frame.Frame) {
	switch fr.Content {
	case frame.ContentAudio:
		f := fr
		a.state.AudioConfig = &f
		a.state.MediaInfo = a.state.MediaInfo.WithConfig(true, fr.Codec, fr.Body)
	case frame.ContentVideo:
		f := fr
		a.state.VideoConfig = &f
		a.state.MediaInfo = a.state.MediaInfo.WithConfig(false, fr.Codec, fr.Body)
	}
	a.flushWaitersIfReady()
}

func (a *Actor) handleMediaInfo(m mediaInfoReq) {
	if a.state.MediaInfo.IsReady() {
		m.done <- a.state.MediaInfo.Merge(a.storageDuration())
		return
	}
	a.state.WaitingForConfig = append(a.state.WaitingForConfig, m.done)
	time.AfterFunc(stopWaitForConfig, func() {
		a.send(forceConfigReadyMsg{})
	})
}

func (a *Actor) storageDuration() int64 {
	if a.state.Storage == nil {
		return 0
	}
	props := a.state.Storage.Properties()
	if d, ok := props["duration"].(int64); ok {
		return d
	}
	return 0
}

func (a *Actor) handleSetMediaInfo(m setMediaInfoReq) {
	a.state.MediaInfo = m.info
	a.flushWaitersIfReady()
}

func (a *Actor) flushWaitersIfReady() {
	if !a.state.MediaInfo.IsReady() || len(a.state.WaitingForConfig) == 0 {
		return
	}
	for _, w := range a.state.WaitingForConfig {
		w <- a.state.MediaInfo.Merge(a.storageDuration())
	}
	a.state.WaitingForConfig = nil
}

func (a *Actor) handleForceConfigReady() {
	if len(a.state.WaitingForConfig) == 0 {
		return
	}
	a.state.MediaInfo = a.state.MediaInfo.ForceReady()
	a.flushWaitersIfReady()
}

func (a *Actor) handleInfo(keys []string) infoResult {
	values := make(map[string]any, len(keys))
	var bad []string
	for _, k := range keys {
		if !InfoKeys[k] {
			bad = append(bad, k)
			continue
		}
		values[k] = a.infoValue(k)
	}
	if len(bad) > 0 {
		return infoResult{err: coreerrors.NewBadInfoKeys(bad)}
	}
	return infoResult{values: values}
}

func (a *Actor) infoValue(key string) any {
	switch key {
	case "client_count":
		return a.registry.ClientCount()
	case "url":
		return a.state.URL
	case "type":
		return a.state.Type
	case "storage":
		return a.state.Storage != nil
	case "clients":
		return a.registry.List()
	case "last_dts":
		return a.state.LastDTS
	case "ts_delay":
		if a.state.Type == "file" || a.state.LastDTSAt.IsZero() {
			return int64(0)
		}
		return time.Since(a.state.LastDTSAt).Milliseconds()
	case "created_at":
		return a.state.CreatedAt
	case "options":
		return a.state.Options
	default:
		return nil
	}
}

func (a *Actor) handleStatus() map[string]any {
	return map[string]any{
		"source_state":  a.sourceState.String(),
		"client_count":  a.registry.ClientCount(),
		"source":        a.state.Source,
		"source_set":    a.state.SourceSet,
		"media_info_ok": a.state.MediaInfo.IsReady(),
	}
}

func (a *Actor) handleSetSource(src string) {
	a.cancelGraceOnNewSource()
	a.state.Source = src
	a.state.SourceSet = src != ""
	a.state.TSDeltaKnown = false
	a.sourceState = sourceOK

	res := a.flavorAdapter.HandleControl(flavor.ControlEvent{Kind: flavor.ControlSetSource, Source: src}, a.flavorView())
	a.applyFlavorState(res.State)
}

func (a *Actor) handleSetSocket(m setSocketMsg) {
	res := a.flavorAdapter.HandleControl(flavor.ControlEvent{Kind: flavor.ControlSetSocket, Socket: m.socket}, a.flavorView())
	a.applyFlavorState(res.State)
}

func (a *Actor) handlePlaySetup(m playSetupMsg) {
	c, ok := a.registry.Find(m.clientID)
	if !ok {
		return
	}
	if c.Ticker == nil {
		return // active clients: no-op (spec §4.1)
	}
	bufferMS := c.BufferMS
	if v, ok := m.opts["buffer_ms"].(int); ok {
		bufferMS = v
	}
	if t, ok := c.Ticker.(*ticker.Ticker); ok {
		t.PlaySetup(bufferMS)
	}
}

// forceConfigReadyMsg flushes any still-pending media_info waiters (spec §5
// stop_wait_for_config).
type forceConfigReadyMsg struct{}
