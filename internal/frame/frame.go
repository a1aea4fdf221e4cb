// Package frame defines the immutable media record that flows through the
// stream actor: one audio, video, or metadata unit carrying timing, codec,
// and body information (spec §3, §GLOSSARY).
package frame

import "fmt"

// Content classifies the track a frame belongs to.
type Content uint8

const (
	ContentUnknown Content = iota
	ContentAudio
	ContentVideo
	ContentMetadata
)

func (c Content) String() string {
	switch c {
	case ContentAudio:
		return "audio"
	case ContentVideo:
		return "video"
	case ContentMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// Flavor classifies a frame's role within its track: a codec-configuration
// blob (SPS/PPS, ADTS header, ...), a keyframe, or an ordinary frame. Named
// "Flavor" to match spec.md's `flavor ∈ {config, keyframe, frame, …}`
// vocabulary — distinct from the stream-type "flavor adapter" in package
// internal/flavor.
type Flavor uint8

const (
	FlavorUnknown Flavor = iota
	FlavorConfig
	FlavorKeyframe
	FlavorFrame
)

func (f Flavor) String() string {
	switch f {
	case FlavorConfig:
		return "config"
	case FlavorKeyframe:
		return "keyframe"
	case FlavorFrame:
		return "frame"
	default:
		return "unknown"
	}
}

// Frame is the immutable unit of media the actor dispatches. Callers must
// treat the Body slice as read-only once a Frame is handed to the actor;
// the actor and its subscribers may retain references to it concurrently.
type Frame struct {
	Content Content
	Flavor  Flavor
	Codec   string
	DTS     int64 // decode timestamp, ms relative to stream origin
	PTS     int64 // presentation timestamp, ms relative to stream origin

	Body []byte

	// StreamID is stamped onto outgoing frames with the receiving client's
	// stream_tag (spec §4.2 step 5); empty on frames still owned by the
	// source / storage layer.
	StreamID string

	// Key/NextKey identify this frame's position in a storage adapter's
	// keyspace (spec §2 item 3, §6 storage-adapter contract). Both are
	// empty for frames arriving live from a source rather than storage.
	Key     string
	NextKey string
}

// WithStreamID returns a shallow copy of f stamped with the given tag,
// leaving the original and its Body slice untouched (spec §4.2 step 5b:
// "stamp stream_id with the client's tag").
func (f Frame) WithStreamID(tag string) Frame {
	f.StreamID = tag
	return f
}

// IsConfig reports whether this is a codec-configuration frame (spec §3:
// "flavor=config frame" updates video_config/audio_config).
func (f Frame) IsConfig() bool { return f.Flavor == FlavorConfig }

// Shifted returns a copy of f with delta added to DTS and PTS, used to
// apply ts_delta during fan-out (spec §4.2 step 2).
func (f Frame) Shifted(delta int64) Frame {
	f.DTS += delta
	f.PTS += delta
	return f
}

func (f Frame) String() string {
	return fmt.Sprintf("frame{%s/%s codec=%s dts=%d pts=%d body=%dB}",
		f.Content, f.Flavor, f.Codec, f.DTS, f.PTS, len(f.Body))
}
