// Package timeshift implements the in-memory ring buffer the core installs
// automatically when a stream is configured with `timeshift` instead of a
// pre-installed `format` (spec §3, §6; GLOSSARY "Timeshift": "a bounded
// in-memory storage automatically wrapped around a live stream so that
// passive clients can seek into the recent past").
package timeshift

import (
	"strconv"

	"github.com/nsavage/streamcore/internal/storage"

	"github.com/nsavage/streamcore/internal/frame"
)

type entry struct {
	seq uint64
	fr  frame.Frame
}

// Ring is a bounded, DTS-windowed frame buffer. Not safe for concurrent
// use: like every storage.Adapter, it is owned by a single stream actor
// goroutine (spec §5).
type Ring struct {
	windowMS int64
	entries  []entry
	nextSeq  uint64
}

// New returns a Ring that retains frames within windowMS of the most
// recently written frame's DTS.
func New(windowMS int64) *Ring {
	return &Ring{windowMS: windowMS}
}

var _ storage.Adapter = (*Ring)(nil)

// WriteFrame appends fr, evicting entries that have fallen outside the
// configured window relative to fr's DTS.
func (r *Ring) WriteFrame(fr frame.Frame) error {
	r.entries = append(r.entries, entry{seq: r.nextSeq, fr: fr})
	r.nextSeq++

	if r.windowMS <= 0 {
		return nil
	}
	cutoff := fr.DTS - r.windowMS
	i := 0
	for i < len(r.entries) && r.entries[i].fr.DTS < cutoff {
		i++
	}
	if i > 0 {
		r.entries = append([]entry(nil), r.entries[i:]...)
	}
	return nil
}

// ReadFrame returns the frame at key, or the oldest retained frame if key
// is empty, along with the following entry's key.
func (r *Ring) ReadFrame(key string) (frame.Frame, string, error) {
	idx, err := r.indexOf(key)
	if err != nil {
		return frame.Frame{}, "", err
	}
	if idx >= len(r.entries) {
		return frame.Frame{}, "", storage.ErrEOF
	}
	next := ""
	if idx+1 < len(r.entries) {
		next = r.keyAt(idx + 1)
	}
	return r.entries[idx].fr, next, nil
}

// indexOf resolves key to the slice index of the frame it names. An empty
// key resolves to the oldest retained entry (index 0). A key that has
// fallen outside the retained window also resolves to index 0, since the
// timeshift window is advisory rather than a hard error surface.
func (r *Ring) indexOf(key string) (int, error) {
	if key == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(key, 10, 64)
	if err != nil {
		return 0, storage.ErrEOF
	}
	for i, e := range r.entries {
		if e.seq == seq {
			return i, nil
		}
	}
	return 0, nil
}

func (r *Ring) keyAt(idx int) string {
	return strconv.FormatUint(r.entries[idx].seq, 10)
}

// Seek resolves dts per the storage.SeekDirection policy: the first
// keyframe at or after dts, else the last keyframe before it. dir is not
// consulted.
func (r *Ring) Seek(dts int64, dir storage.SeekDirection) (string, int64, bool) {
	var before *entry
	for i := range r.entries {
		e := &r.entries[i]
		if e.fr.Flavor != frame.FlavorKeyframe {
			continue
		}
		if e.fr.DTS >= dts {
			return r.keyAt(i), e.fr.DTS, true
		}
		before = e
	}
	if before != nil {
		return strconv.FormatUint(before.seq, 10), before.fr.DTS, true
	}
	return "", 0, false
}

// Properties reports the retained window's duration.
func (r *Ring) Properties() map[string]any {
	if len(r.entries) == 0 {
		return map[string]any{"duration": int64(0)}
	}
	first := r.entries[0].fr.DTS
	last := r.entries[len(r.entries)-1].fr.DTS
	return map[string]any{"duration": last - first}
}
