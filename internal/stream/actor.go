// Package stream implements the stream actor: the single-threaded owner of
// a stream's state, client registry, and fan-out dispatch (spec §2 item 7,
// §4.1, §5). One Actor represents one logical stream; all mutation happens
// on the actor's own goroutine via a message mailbox, the same shape the
// teacher's internal/rtmp/conn.Connection uses for its outboundQueue-driven
// read/write loop, generalized from "one socket" to "one stream with N
// subscribers and an optional storage-backed read path."
package stream

import (
	"time"

	"github.com/rs/zerolog"

	coreerrors "github.com/nsavage/streamcore/internal/errors"
	"github.com/nsavage/streamcore/internal/flavor"
	"github.com/nsavage/streamcore/internal/logger"
	"github.com/nsavage/streamcore/internal/metrics"
	"github.com/nsavage/streamcore/internal/registry"
	"github.com/nsavage/streamcore/internal/ticker"
)

// inactivityTimeout is the overall mailbox inactivity window (spec §4.1:
// "default 120 s").
const inactivityTimeout = 120 * time.Second

// gcHintInterval is the advisory garbage-collection hint period (spec §5:
// "Periodic garbage-collection hinting every 30 s is advisory").
const gcHintInterval = 30 * time.Second

// stopWaitForConfig is how long media_info waiters are held before being
// force-answered (spec §5).
const stopWaitForConfig = 5 * time.Second

// Actor is one running stream. Construct with New, then Run in its own
// goroutine.
type Actor struct {
	mailbox  chan any
	stopped  chan struct{}
	stopOnce chan struct{}

	flavorAdapter flavor.Adapter

	state    State
	registry *registry.Registry
	tickers  map[string]*ticker.Ticker

	sourceState sourceState
	noSourceGen uint64
	log         zerolog.Logger
	metrics     *metrics.Metrics
}

// New constructs an Actor. The flavor adapter's Init is called synchronously
// before the actor starts accepting messages (spec §4.5 init); a non-nil
// error here aborts construction instead of starting a doomed actor.
func New(opts Options, adapter flavor.Adapter) (*Actor, error) {
	st := newState(opts)

	flavorState := flavor.State{
		Name: st.Name, URL: st.URL, Host: st.Host, Type: st.Type,
		Options: opts.FlavorOptions, MediaInfo: st.MediaInfo, GlueDeltaMS: st.GlueDeltaMS,
	}
	newFlavorState, err := adapter.Init(flavorState, opts.FlavorOptions)
	if err != nil {
		return nil, err
	}
	st.MediaInfo = newFlavorState.MediaInfo
	if newFlavorState.Source != "" {
		st.Source = newFlavorState.Source
		st.SourceSet = true
	}

	if opts.TimeshiftMS != 0 && opts.Format != nil {
		return nil, coreerrors.NewTimeshiftAndStorage()
	}

	a := &Actor{
		mailbox:       make(chan any, 64),
		stopped:       make(chan struct{}),
		flavorAdapter: adapter,
		state:         st,
		registry:      registry.New(),
		tickers:       make(map[string]*ticker.Ticker),
		sourceState:   sourceOK,
		log:           logger.WithStream(logger.Logger(), st.Name),
		metrics:       opts.Metrics,
	}
	return a, nil
}

// Stopped is closed once the actor's run loop has exited.
func (a *Actor) Stopped() <-chan struct{} { return a.stopped }

// Run is the actor's mailbox loop. Call it in its own goroutine; it returns
// once the actor stops.
func (a *Actor) Run() {
	defer close(a.stopped)
	defer a.stopAllTickers()

	inactivity := time.NewTimer(inactivityTimeout)
	defer inactivity.Stop()
	gc := time.NewTicker(gcHintInterval)
	defer gc.Stop()

	for {
		select {
		case msg, ok := <-a.mailbox:
			if !ok {
				return
			}
			if !inactivity.Stop() {
				select {
				case <-inactivity.C:
				default:
				}
			}
			inactivity.Reset(inactivityTimeout)

			if a.dispatch(msg) {
				return
			}
		case <-inactivity.C:
			inactivity.Reset(inactivityTimeout)
			if a.handleInactivityTimeout() {
				return
			}
		case <-gc.C:
			// advisory only; nothing to do without manual GC control.
			a.observeGCSweep()
		}
	}
}

// dispatch type-switches one mailbox message to its handler. Returns true
// if the actor should terminate.
func (a *Actor) dispatch(msg any) bool {
	switch m := msg.(type) {
	case subscribeReq:
		m.done <- a.handleSubscribe(m)
	case startReq:
		m.done <- a.handleStart(m)
	case pauseReq:
		m.done <- a.handlePause(m)
	case resumeReq:
		m.done <- a.handleResume(m)
	case unsubscribeReq:
		a.handleUnsubscribe(m.clientID)
		close(m.done)
	case seekReq:
		m.done <- a.handleSeek(m)
	case seekInfoReq:
		m.done <- a.handleSeekInfo(m)
	case readFrameReq:
		m.done <- a.handleReadFrame(m)
	case mediaInfoReq:
		a.handleMediaInfo(m)
	case setMediaInfoReq:
		a.handleSetMediaInfo(m)
		close(m.done)
	case infoReq:
		m.done <- a.handleInfo(m.keys)
	case statusReq:
		m.done <- a.handleStatus()
	case stopStreamReq:
		close(m.done)
		return true

	case setSourceMsg:
		a.handleSetSource(m.source)
	case setSocketMsg:
		a.handleSetSocket(m)
	case playSetupMsg:
		a.handlePlaySetup(m)
	case publishMsg:
		return a.dispatchFrame(m.fr)
	case clientDeadMsg:
		a.handleUnsubscribe(m.clientID)
	case forceConfigReadyMsg:
		a.handleForceConfigReady()
	case sourceLostMsg:
		return a.handleSourceLost(m.source)
	case noSourceTimerMsg:
		if m.generation == a.noSourceGen {
			return a.handleNoSourceExpired()
		}
	default:
		// spec §7: a sync request with an unrecognized shape is fatal to
		// the actor. In this API unrecognized shapes cannot reach the
		// mailbox through the typed handle.go entry points, but the
		// classification still applies to anything that does.
		a.log.Error().Msgf("unknown_request: %T", msg)
		return true
	}
	return false
}

func (a *Actor) handleInactivityTimeout() bool {
	if !a.state.SourceSet {
		return false // spec §4.6: "ignored when the source is absent"
	}
	res := a.flavorAdapter.HandleControl(flavor.ControlEvent{Kind: flavor.ControlTimeout}, a.flavorView())
	a.applyFlavorState(res.State)
	return res.Outcome == flavor.OutcomeStop || res.Outcome == flavor.OutcomeStopWithReply
}

func (a *Actor) stopAllTickers() {
	for _, t := range a.tickers {
		t.Stop()
	}
}

// flavorView projects the actor's internal State down to the restricted
// flavor.State a flavor adapter may read/patch (spec §9).
func (a *Actor) flavorView() flavor.State {
	return flavor.State{
		Name: a.state.Name, URL: a.state.URL, Host: a.state.Host, Type: a.state.Type,
		Options: a.state.Options.FlavorOptions, MediaInfo: a.state.MediaInfo,
		Source: a.state.Source, GlueDeltaMS: a.state.GlueDeltaMS,
	}
}

func (a *Actor) applyFlavorState(fs flavor.State) {
	a.state.MediaInfo = fs.MediaInfo
	if fs.Source != a.state.Source {
		a.state.Source = fs.Source
		a.state.SourceSet = fs.Source != ""
	}
}

func (a *Actor) observeGCSweep() {
	if a.metrics != nil {
		a.metrics.GCSweeps.Inc()
	}
}

func (a *Actor) observeDispatch(content string) {
	if a.metrics != nil {
		a.metrics.ObserveDispatch(content)
	}
}

func (a *Actor) observeDrop(reason string) {
	if a.metrics != nil {
		a.metrics.ObserveDrop(reason)
	}
}

func (a *Actor) observeSourceLoss(outcome string) {
	if a.metrics != nil {
		a.metrics.ObserveSourceLoss(outcome)
	}
}

func (a *Actor) observeClientSubscribed() {
	if a.metrics != nil {
		a.metrics.ActiveClients.Inc()
	}
}

func (a *Actor) observeClientUnsubscribed() {
	if a.metrics != nil {
		a.metrics.ActiveClients.Dec()
	}
}
