// Package storage defines the storage-adapter capability the stream actor
// calls for passive clients' random-access frame reads and seeks (spec §2
// item 3, §6 "Storage-adapter contract"). Concrete backings (an in-memory
// timeshift ring, a persistent keyed store) live in subpackages; this
// package only fixes the contract, the way the teacher's media.Subscriber
// interface fixes what a subscriber must support without prescribing its
// transport.
package storage

import (
	"errors"

	"github.com/nsavage/streamcore/internal/frame"
)

// ErrEOF is returned by ReadFrame once the stored sequence is exhausted.
// The last stored frame itself is returned normally, with an empty next key.
var ErrEOF = errors.New("storage: eof")

// SeekDirection mirrors spec §9's preserved-but-advisory before/after
// discriminator; the implementation always resolves to "first keyframe at
// or after dts, else nearest keyframe strictly before" regardless of which
// direction is requested (spec's documented current behavior).
type SeekDirection uint8

const (
	SeekAfter SeekDirection = iota
	SeekBefore
)

// Adapter is the capability a flavor hands the actor as `format`/`storage`
// (spec §3), or that the core installs itself for a `timeshift` buffer.
// Adapters are owned exclusively by the actor goroutine that holds them
// (spec §5: "Storage is owned by the actor; only read_frame and seek are
// called on it, and only from the actor thread") so implementations need
// not be safe for concurrent use.
type Adapter interface {
	// ReadFrame returns the frame at key (or the first frame if key is
	// empty) and the key of the following frame. Returns ErrEOF once the
	// stored sequence is exhausted.
	ReadFrame(key string) (fr frame.Frame, nextKey string, err error)

	// Seek resolves dts to a keyframe's (key, actualDTS) per SeekDirection
	// policy. ok is false if no keyframe exists (empty storage).
	Seek(dts int64, dir SeekDirection) (key string, actualDTS int64, ok bool)

	// Properties reports adapter-level metadata, notably "duration" (ms)
	// when known, merged into media_info replies (spec §4.1).
	Properties() map[string]any

	// WriteFrame appends fr to the backing store. Used for timeshift and
	// file-flavor ingestion; read-only adapters may return
	// errors.ErrUnsupported.
	WriteFrame(fr frame.Frame) error
}
