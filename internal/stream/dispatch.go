package stream

import (
	"time"

	"github.com/nsavage/streamcore/internal/flavor"
	"github.com/nsavage/streamcore/internal/frame"
	"github.com/nsavage/streamcore/internal/registry"
)

// dispatchFrame is the fan-out path for one frame arriving from the source
// (spec §4.2). It never blocks on an individual client: delivery is
// fire-and-forget, and a slow or dead client's backpressure policy lives in
// its own Deliver implementation, not here (spec §4.2, §5). Returns true if
// the flavor's handle_frame decided to stop the actor.
func (a *Actor) dispatchFrame(fr frame.Frame) bool {
	res := a.flavorAdapter.HandleFrame(fr, a.flavorView())
	a.applyFlavorState(res.State)
	switch res.Outcome {
	case flavor.OutcomeStop, flavor.OutcomeStopWithReply:
		return true
	case flavor.OutcomeReply:
		if res.Frame != nil {
			fr = *res.Frame
		}
	}

	if a.state.Transcoder != nil {
		newState, out, ok := a.state.Transcoder.Apply(a.state.TransState, fr)
		a.state.TransState = newState
		if !ok {
			return false
		}
		fr = out
	}

	fr = a.applyTSDelta(fr)

	a.state.LastDTS = fr.DTS
	a.state.LastDTSAt = time.Now()
	if fr.IsConfig() {
		a.cacheConfigFrame(fr)
	}

	if a.state.Storage != nil {
		_ = a.state.Storage.WriteFrame(fr)
	}

	for _, c := range a.registry.List() {
		a.dispatchToClient(c, fr)
	}
	return false
}

// applyTSDelta computes/updates ts_delta on the first frame from a new
// source and applies it to fr's timestamps (spec §4.2 step 2). The very
// first frame the stream ever sees is not shifted (delta 0).
func (a *Actor) applyTSDelta(fr frame.Frame) frame.Frame {
	if !a.state.TSDeltaKnown {
		if a.state.LastDTSAt.IsZero() {
			a.state.TSDelta = 0
		} else {
			a.state.TSDelta = a.state.LastDTS - fr.DTS
		}
		a.state.TSDeltaKnown = true
	}
	return fr.Shifted(a.state.TSDelta)
}

// dispatchToClient delivers fr to one client per spec §4.2 step 5. Paused
// and passive clients receive nothing on this path (passive clients are
// driven by their ticker instead).
func (a *Actor) dispatchToClient(c *registry.Client, fr frame.Frame) {
	switch c.State {
	case registry.Active:
		a.pushContentFrame(c, fr)
	case registry.Starting:
		a.replayCachedConfig(c)
		c.State = registry.Active
		a.pushContentFrame(c, fr)
	default: // Passive, Paused
	}
}

func (a *Actor) pushContentFrame(c *registry.Client, fr frame.Frame) {
	if !a.clientAccepts(c, fr) {
		a.observeDrop("filtered_track")
		return
	}
	if c.Deliver == nil {
		a.observeDrop("no_sink")
		return
	}
	c.Deliver(fr.WithStreamID(c.StreamTag))
	a.observeDispatch(fr.Content.String())
}

func (a *Actor) clientAccepts(c *registry.Client, fr frame.Frame) bool {
	switch fr.Content {
	case frame.ContentAudio:
		return c.SendAudio
	case frame.ContentVideo:
		return c.SendVideo
	default:
		return true
	}
}

// replayCachedConfig sends cached codec-config frames (video then audio)
// once to a client transitioning out of starting (spec §4.2 step 5c, and
// the teacher's play_handler.go VideoSequenceHeader/AudioSequenceHeader
// replay it generalizes).
func (a *Actor) replayCachedConfig(c *registry.Client) {
	if c.Deliver == nil {
		return
	}
	if a.state.VideoConfig != nil && c.SendVideo {
		c.Deliver(a.state.VideoConfig.WithStreamID(c.StreamTag))
	}
	if a.state.AudioConfig != nil && c.SendAudio {
		c.Deliver(a.state.AudioConfig.WithStreamID(c.StreamTag))
	}
}
