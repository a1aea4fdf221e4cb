package stream

import (
	"time"

	"github.com/nsavage/streamcore/internal/frame"
	"github.com/nsavage/streamcore/internal/mediainfo"
	"github.com/nsavage/streamcore/internal/metrics"
	"github.com/nsavage/streamcore/internal/storage"
	"github.com/nsavage/streamcore/internal/storage/timeshift"
)

// SourceTimeoutPolicy encodes the four shapes spec §3/§6 allow for
// source_timeout: a duration, "shutdown" (terminate immediately on loss),
// "false" (stay alive with no source indefinitely), or "0" (terminate
// immediately, same observable effect as shutdown but a distinct spelling
// per spec §7).
type SourceTimeoutPolicy struct {
	Shutdown bool
	Disabled bool // "false": never time out
	MS       int64
}

// DefaultSourceTimeout is spec §6's documented default (60s).
func DefaultSourceTimeout() SourceTimeoutPolicy {
	return SourceTimeoutPolicy{MS: 60_000}
}

// Transcoder is the optional frame transformer applied at the head of
// dispatch (spec §4.2 step 1). Apply may drop a frame by returning
// ok=false.
type Transcoder interface {
	Apply(state any, f frame.Frame) (newState any, out frame.Frame, ok bool)
}

// Options mirrors the configuration surface recognized at init (spec §6
// "Configuration options recognized at init").
type Options struct {
	Name, URL, Host, Type string
	MediaInfo             mediainfo.Info
	GlueDeltaMS           int64
	TimeshiftMS           int64 // mutually exclusive with a pre-installed Format
	Format                storage.Adapter
	SourceTimeout         SourceTimeoutPolicy
	ClientsTimeoutMS      int64
	RetryLimit            int
	Transcoder            Transcoder
	FlavorOptions         map[string]any
	Metrics               *metrics.Metrics // optional; nil disables recording
}

// State is the single struct owned by the actor goroutine, generalizing the
// Erlang ems_media record (spec §3, §9: "the giant ems_media record becomes
// one owned struct inside the actor task").
type State struct {
	Name, URL, Host, Type string
	Options               Options

	MediaInfo         mediainfo.Info
	WaitingForConfig  []chan mediainfo.Info

	Storage storage.Adapter // nil if this stream has no random-access backing

	Source    string
	SourceSet bool

	SourceTimeout    SourceTimeoutPolicy
	ClientsTimeoutMS int64
	RetryLimit       int

	TSDelta      int64
	TSDeltaKnown bool

	LastDTS   int64
	LastDTSAt time.Time

	VideoConfig *frame.Frame
	AudioConfig *frame.Frame

	GlueDeltaMS int64

	Transcoder Transcoder
	TransState any

	CreatedAt time.Time
}

func newState(opts Options) State {
	info := opts.MediaInfo
	if info.FlowType == "" {
		info = mediainfo.New()
	}
	timeout := opts.SourceTimeout
	if timeout == (SourceTimeoutPolicy{}) {
		timeout = DefaultSourceTimeout()
	}
	store := opts.Format
	if store == nil && opts.TimeshiftMS > 0 {
		store = timeshift.New(opts.TimeshiftMS)
	}
	return State{
		Name:             opts.Name,
		URL:              opts.URL,
		Host:             opts.Host,
		Type:             opts.Type,
		Options:          opts,
		MediaInfo:        info,
		Storage:          store,
		SourceTimeout:    timeout,
		ClientsTimeoutMS: opts.ClientsTimeoutMS,
		RetryLimit:       opts.RetryLimit,
		GlueDeltaMS:      opts.GlueDeltaMS,
		Transcoder:       opts.Transcoder,
		CreatedAt:        time.Now(),
	}
}
