package stream

import (
	"time"

	"github.com/nsavage/streamcore/internal/flavor"
	"github.com/nsavage/streamcore/internal/registry"
)

// sourceState is the source-loss supervision state (spec §4.6): SOURCE_OK →
// SOURCE_LOST_GRACE → NO_SOURCE → (terminated | SOURCE_OK).
type sourceState uint8

const (
	sourceOK sourceState = iota
	sourceLostGrace
	noSource
)

func (s sourceState) String() string {
	switch s {
	case sourceOK:
		return "source_ok"
	case sourceLostGrace:
		return "source_lost_grace"
	case noSource:
		return "no_source"
	default:
		return "unknown"
	}
}

// handleSourceLost implements the SOURCE_OK transition (spec §4.6). Returns
// true if the actor should terminate.
func (a *Actor) handleSourceLost(source string) bool {
	res := a.flavorAdapter.HandleControl(flavor.ControlEvent{Kind: flavor.ControlSourceLost, Source: source}, a.flavorView())
	a.applyFlavorState(res.State)

	switch res.Outcome {
	case flavor.OutcomeStop, flavor.OutcomeStopWithReply:
		a.observeSourceLoss("terminated")
		return true

	case flavor.OutcomeReply:
		a.adoptNewSource(res.Value)
		a.observeSourceLoss("reconnected")
		return false

	default: // OutcomeNoReply
		policy := a.state.SourceTimeout
		switch {
		case policy.Shutdown:
			a.observeSourceLoss("terminated")
			return true
		case policy.Disabled:
			a.state.Source = ""
			a.state.SourceSet = false
			a.sourceState = sourceOK
			a.observeSourceLoss("disabled")
			return false
		case policy.MS <= 0:
			a.observeSourceLoss("terminated")
			return true
		default:
			a.sourceState = sourceLostGrace
			a.noSourceGen++
			gen := a.noSourceGen
			time.AfterFunc(time.Duration(policy.MS)*time.Millisecond, func() {
				a.send(noSourceTimerMsg{generation: gen})
			})
			a.observeSourceLoss("grace")
			return false
		}
	}
}

// handleNoSourceExpired implements the SOURCE_LOST_GRACE → {terminated |
// SOURCE_OK} transition when the no_source timer fires (spec §4.6).
func (a *Actor) handleNoSourceExpired() bool {
	res := a.flavorAdapter.HandleControl(flavor.ControlEvent{Kind: flavor.ControlNoSource}, a.flavorView())
	a.applyFlavorState(res.State)

	switch res.Outcome {
	case flavor.OutcomeReply:
		a.adoptNewSource(res.Value)
		a.registry.MassUpdateState(registry.Active, registry.Starting)
		a.observeSourceLoss("reconnected")
		return false
	default:
		a.observeSourceLoss("terminated")
		return true // graceful expiry, including explicit stop
	}
}

// adoptNewSource installs a replacement source after a flavor reply, the
// common tail of both source-loss transitions (spec §4.6: "SOURCE_OK with
// NewSource, monitor it, reset ts_delta").
func (a *Actor) adoptNewSource(value any) {
	src, _ := value.(string)
	a.state.Source = src
	a.state.SourceSet = src != ""
	a.state.TSDeltaKnown = false
	a.sourceState = sourceOK
}

// cancelGraceOnNewSource cancels the grace-period timer and returns to
// SOURCE_OK (spec §4.6: "During SOURCE_LOST_GRACE, set_source(S) cancels
// the timer and returns to SOURCE_OK"). It is invoked from the normal
// set_source handler; bumping the generation counter invalidates any timer
// already in flight.
func (a *Actor) cancelGraceOnNewSource() {
	if a.sourceState == sourceLostGrace {
		a.noSourceGen++ // invalidate the pending noSourceTimerMsg
		a.sourceState = sourceOK
	}
}
