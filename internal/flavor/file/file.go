// Package file implements a passive-only, file-backed flavor: media dropped
// into a watched directory is ingested into a persistent keyed store
// (internal/storage/badgerstore) that the actor hands out to passive
// clients as its storage adapter (SPEC_FULL.md §3 "File flavor").
package file

import (
	"io"
	"os"
	"sync"

	"github.com/dhowden/tag"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/nsavage/streamcore/internal/flavor"
	"github.com/nsavage/streamcore/internal/frame"
	"github.com/nsavage/streamcore/internal/mediainfo"
	"github.com/nsavage/streamcore/internal/storage/badgerstore"
	"github.com/nsavage/streamcore/internal/stream"
)

// Flavor is a flavor.Adapter that ingests whole media files dropped into
// watchDir into store, then announces each ingested file as the stream's
// new source. It never receives frames over HandleFrame in the ordinary
// case: this flavor is passive-only, so playback is driven entirely by
// passive clients reading back out of store via read_frame/seek.
type Flavor struct {
	store    *badgerstore.Store
	watchDir string
	log      zerolog.Logger

	mu      sync.Mutex
	actor   *stream.Actor
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// New returns a Flavor backed by store, watching watchDir for dropped files.
// An empty watchDir disables the watch; the flavor then only serves
// whatever store already contains.
func New(store *badgerstore.Store, watchDir string, log zerolog.Logger) *Flavor {
	return &Flavor{store: store, watchDir: watchDir, log: log}
}

// Init marks the stream as file-shaped; the badger store backing this
// stream is wired into stream.Options.Format by the caller that constructs
// this Flavor, not through this call (spec §6 storage-adapter contract:
// storage is handed to the actor at construction, not negotiated via init).
func (f *Flavor) Init(state flavor.State, options map[string]any) (flavor.State, error) {
	state.MediaInfo.FlowType = mediainfo.FlowTypeFile
	return state, nil
}

// Bind receives the now-constructed actor so the directory watcher can push
// set_source asynchronously (internal/flavor.Adapter's four methods are all
// called by the actor; this is the reverse direction, wired by
// internal/manager after stream.New returns).
func (f *Flavor) Bind(a *stream.Actor) {
	f.mu.Lock()
	f.actor = a
	f.mu.Unlock()

	if f.watchDir == "" {
		return
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		f.log.Error().Err(err).Msg("file flavor: watcher unavailable")
		return
	}
	if err := w.Add(f.watchDir); err != nil {
		f.log.Error().Err(err).Str("dir", f.watchDir).Msg("file flavor: watch add failed")
		_ = w.Close()
		return
	}

	f.watcher = w
	f.stop = make(chan struct{})
	go f.watchLoop()
}

func (f *Flavor) watchLoop() {
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			f.ingest(ev.Name)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.log.Warn().Err(err).Msg("file flavor: watcher error")
		case <-f.stop:
			return
		}
	}
}

// ingest reads path into store as a single keyframe-flavored frame, tags it
// with whatever codec/title metadata dhowden/tag can extract, and then
// announces it as the stream's source so info() reflects the new ingest.
func (f *Flavor) ingest(path string) {
	fh, err := os.Open(path)
	if err != nil {
		f.log.Warn().Err(err).Str("path", path).Msg("file flavor: open failed")
		return
	}
	defer fh.Close()

	var codec string
	if meta, err := tag.ReadFrom(fh); err != nil {
		f.log.Debug().Err(err).Str("path", path).Msg("file flavor: no tag metadata")
	} else {
		codec = string(meta.FileType())
		f.log.Info().Str("path", path).Str("title", meta.Title()).
			Str("artist", meta.Artist()).Str("codec", codec).Msg("file flavor: ingesting tagged file")
	}

	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		f.log.Warn().Err(err).Str("path", path).Msg("file flavor: seek failed")
		return
	}
	body, err := io.ReadAll(fh)
	if err != nil {
		f.log.Warn().Err(err).Str("path", path).Msg("file flavor: read failed")
		return
	}

	fr := frame.Frame{
		Content: frame.ContentAudio,
		Flavor:  frame.FlavorKeyframe,
		Codec:   codec,
		Body:    body,
	}
	if err := f.store.WriteFrame(fr); err != nil {
		f.log.Error().Err(err).Str("path", path).Msg("file flavor: write failed")
		return
	}

	f.mu.Lock()
	a := f.actor
	f.mu.Unlock()
	if a != nil {
		a.SetSource(path)
	}
}

// HandleFrame is only reachable if something calls actor.Publish directly
// against a file-flavored stream; this flavor has no live ingest path of
// its own, so it passes the frame through unchanged.
func (f *Flavor) HandleFrame(fr frame.Frame, state flavor.State) flavor.Result {
	return flavor.ReplyFrame(&fr, state)
}

// HandleControl accepts the core's control events with no special handling:
// a file-backed stream has no live source to lose, so source_lost/no_source
// never fire in ordinary operation.
func (f *Flavor) HandleControl(event flavor.ControlEvent, state flavor.State) flavor.Result {
	return flavor.NoReply(state)
}

// HandleInfo ignores unrecognized casts.
func (f *Flavor) HandleInfo(message any, state flavor.State) flavor.Result {
	return flavor.NoReply(state)
}

// Close stops the directory watcher, if one is running.
func (f *Flavor) Close() error {
	f.mu.Lock()
	w := f.watcher
	stop := f.stop
	f.mu.Unlock()
	if w == nil {
		return nil
	}
	close(stop)
	return w.Close()
}

var _ flavor.Adapter = (*Flavor)(nil)
