// Package mediainfo describes a stream's track layout and codec
// configuration (spec §2 item 2, §3 `media_info` field).
package mediainfo

// TrackState distinguishes a track still waiting on its first
// codec-configuration frame from one whose configuration is known.
type TrackState uint8

const (
	// TrackWait means no codec-config frame has arrived yet for this track.
	TrackWait TrackState = iota
	// TrackReady means the track's configuration is known (possibly empty,
	// e.g. after stop_wait_for_config fires with nothing having arrived).
	TrackReady
)

// Track describes one audio or video track.
type Track struct {
	State  TrackState
	Codec  string
	Config []byte // raw codec-configuration payload, if any
}

// FlowType classifies the stream as a live feed or a file-like source.
type FlowType string

const (
	FlowTypeStream FlowType = "stream"
	FlowTypeFile   FlowType = "file"
)

// Info is the declarative description of a stream's tracks (spec §3).
// Audio and Video start as nil until the first corresponding config frame
// is observed or SetMediaInfo supplies one. A nil track is not pending:
// IsReady counts it as ready; only a track in TrackWait holds replies back.
type Info struct {
	FlowType FlowType
	Audio    *Track
	Video    *Track
	Duration int64 // ms; 0 when unknown, merged in from storage.Properties
}

// New returns the default media_info per spec §6: `{flow_type: stream}`,
// with both tracks nil, so the result is already ready.
func New() Info {
	return Info{FlowType: FlowTypeStream}
}

// IsReady reports whether both tracks are no longer in TrackWait (spec §4.1
// media_info: "If both tracks are non-wait, reply immediately").
func (i Info) IsReady() bool {
	return (i.Audio == nil || i.Audio.State == TrackReady) &&
		(i.Video == nil || i.Video.State == TrackReady)
}

// ForceReady resolves any still-pending track to an empty, ready track. Used
// by the stop_wait_for_config timer (spec §5: "wait sentinels become empty
// track lists").
func (i Info) ForceReady() Info {
	if i.Audio != nil && i.Audio.State == TrackWait {
		i.Audio = &Track{State: TrackReady}
	}
	if i.Video != nil && i.Video.State == TrackWait {
		i.Video = &Track{State: TrackReady}
	}
	return i
}

// WithConfig returns a copy of i with the given track's codec/config set and
// its state advanced to TrackReady.
func (i Info) WithConfig(audio bool, codec string, config []byte) Info {
	track := &Track{State: TrackReady, Codec: codec, Config: config}
	if audio {
		i.Audio = track
	} else {
		i.Video = track
	}
	return i
}

// Merge folds storage-reported properties (notably duration) into i,
// returned to media_info callers per spec §4.1.
func (i Info) Merge(durationMS int64) Info {
	i.Duration = durationMS
	return i
}
