// Package flavor defines the pluggable stream-type capability contract (spec
// §2 item 4, §4.5): the narrow interface through which file/live/mpegts/rtmp
// adapters plug into the stream actor without the actor knowing which kind
// of stream it is driving.
//
// The tagged-variant Result type generalizes the Erlang callback returns
// ({reply, ...}/{noreply, ...}/{stop, ...}) the way the teacher's hooks
// package generalizes RTMP lifecycle events into one Event envelope
// (internal/rtmp/server/hooks/events.go) — here the envelope carries the
// adapter's decision instead of a fired event.
package flavor

import (
	"io"

	"github.com/nsavage/streamcore/internal/frame"
	"github.com/nsavage/streamcore/internal/mediainfo"
)

// State is the restricted view of actor state a flavor adapter is allowed
// to read and patch. It deliberately excludes the client registry and
// mailbox internals (spec §9: "the actor never shares its mutable state
// with anything" beyond what a capability call needs).
type State struct {
	Name, URL, Host, Type string
	Options               map[string]any
	MediaInfo             mediainfo.Info
	Source                string
	GlueDeltaMS           int64
}

// Outcome tags which variant a Result carries, keeping the dispatcher in
// internal/stream exhaustive (spec §9: "a tagged-variant return ... so the
// dispatcher is exhaustive").
type Outcome uint8

const (
	OutcomeNoReply Outcome = iota
	OutcomeReply
	OutcomeStop
	OutcomeStopWithReply
)

// Result is the adapter's decision after handling a frame, control event,
// or info message.
type Result struct {
	Outcome Outcome
	Frame   *frame.Frame // set when replying to handle_frame with a (possibly rewritten) frame
	Value   any          // set when replying to handle_control with a value
	Reason  error        // set when Outcome is a stop variant
	State   State        // the adapter's (possibly patched) state
}

// NoReply builds a {noreply, state'} result.
func NoReply(state State) Result { return Result{Outcome: OutcomeNoReply, State: state} }

// ReplyFrame builds a {reply, frame, state'} result for handle_frame.
func ReplyFrame(f *frame.Frame, state State) Result {
	return Result{Outcome: OutcomeReply, Frame: f, State: state}
}

// ReplyValue builds a {reply, value, state'} result for handle_control.
func ReplyValue(value any, state State) Result {
	return Result{Outcome: OutcomeReply, Value: value, State: state}
}

// Stop builds a {stop, reason, state'} result.
func Stop(reason error, state State) Result {
	return Result{Outcome: OutcomeStop, Reason: reason, State: state}
}

// StopWithReply builds a {stop, reason, value, state'} result, used when a
// flavor needs to both answer a caller and terminate the actor.
func StopWithReply(reason error, value any, state State) Result {
	return Result{Outcome: OutcomeStopWithReply, Reason: reason, Value: value, State: state}
}

// ControlKind enumerates the events the core guarantees to raise via
// HandleControl (spec §4.5).
type ControlKind uint8

const (
	ControlSetSource ControlKind = iota
	ControlSetSocket
	ControlSeekInfo
	ControlSourceLost
	ControlNoSource
	ControlTimeout
	// ControlCustom forwards an unrecognized cast verbatim, carried in
	// ControlEvent.Value.
	ControlCustom
)

// ControlEvent is the payload passed to HandleControl. Only the fields
// relevant to Kind are populated.
type ControlEvent struct {
	Kind ControlKind

	// ControlSetSource / ControlSourceLost
	Source string

	// ControlSetSocket
	Socket io.ReadWriteCloser

	// ControlSeekInfo
	SeekDTS  int64
	SeekOpts map[string]any

	// ControlCustom and any kind that wants a free-form payload
	Value any
}

// Adapter is the four-method capability set every flavor implements (spec
// §4.5). Init is called once at stream creation; a non-nil error aborts
// actor startup and is propagated as the init failure reason.
type Adapter interface {
	Init(state State, options map[string]any) (State, error)
	HandleFrame(f frame.Frame, state State) Result
	HandleControl(event ControlEvent, state State) Result
	HandleInfo(message any, state State) Result
}
