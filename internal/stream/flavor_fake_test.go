package stream

import (
	"github.com/nsavage/streamcore/internal/flavor"
	"github.com/nsavage/streamcore/internal/frame"
)

// fakeFlavor is a minimal flavor.Adapter stand-in for actor tests, shaped the
// same way internal/flavor's own test fake is, but with a hook per control
// kind so a test can script specific Reply/Stop/NoReply behavior.
type fakeFlavor struct {
	initErr error

	onControl func(flavor.ControlEvent, flavor.State) flavor.Result
}

func (f *fakeFlavor) Init(state flavor.State, options map[string]any) (flavor.State, error) {
	return state, f.initErr
}

func (f *fakeFlavor) HandleFrame(fr frame.Frame, state flavor.State) flavor.Result {
	return flavor.ReplyFrame(&fr, state)
}

func (f *fakeFlavor) HandleControl(event flavor.ControlEvent, state flavor.State) flavor.Result {
	if f.onControl != nil {
		return f.onControl(event, state)
	}
	return flavor.NoReply(state)
}

func (f *fakeFlavor) HandleInfo(message any, state flavor.State) flavor.Result {
	return flavor.NoReply(state)
}
