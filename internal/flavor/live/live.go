// Package live implements an active-only ingest flavor: a publisher opens a
// websocket connection and streams newline-delimited JSON frame envelopes,
// which this flavor decodes and hands to the actor via publish
// (SPEC_FULL.md §3 "Live flavor"). This is the flavor that exercises
// set_socket (the websocket connection is the transferred socket) and the
// source-loss state machine (socket close => source_lost).
package live

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nsavage/streamcore/internal/flavor"
	"github.com/nsavage/streamcore/internal/frame"
	"github.com/nsavage/streamcore/internal/logger"
	"github.com/nsavage/streamcore/internal/mediainfo"
	"github.com/nsavage/streamcore/internal/stream"
)

// wireFrame is the JSON envelope a publisher sends, one per line.
type wireFrame struct {
	Content string `json:"content"`
	Flavor  string `json:"flavor"`
	Codec   string `json:"codec"`
	DTS     int64  `json:"dts"`
	PTS     int64  `json:"pts"`
	Body    []byte `json:"body"`
}

func (w wireFrame) toFrame() frame.Frame {
	return frame.Frame{
		Content: contentFromWire(w.Content),
		Flavor:  flavorFromWire(w.Flavor),
		Codec:   w.Codec,
		DTS:     w.DTS,
		PTS:     w.PTS,
		Body:    w.Body,
	}
}

func contentFromWire(s string) frame.Content {
	switch s {
	case "audio":
		return frame.ContentAudio
	case "video":
		return frame.ContentVideo
	case "metadata":
		return frame.ContentMetadata
	default:
		return frame.ContentUnknown
	}
}

func flavorFromWire(s string) frame.Flavor {
	switch s {
	case "config":
		return frame.FlavorConfig
	case "keyframe":
		return frame.FlavorKeyframe
	case "frame":
		return frame.FlavorFrame
	default:
		return frame.FlavorUnknown
	}
}

// wsConn adapts a *websocket.Conn to io.ReadWriteCloser so it can travel
// through flavor.ControlEvent.Socket, which is typed as io.ReadWriteCloser
// to stay transport-agnostic (spec §4.5 set_socket).
type wsConn struct {
	conn *websocket.Conn
	buf  []byte
}

func (w *wsConn) Read(p []byte) (int, error) {
	for len(w.buf) == 0 {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		w.buf = data
	}
	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	return n, nil
}

func (w *wsConn) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsConn) Close() error { return w.conn.Close() }

// Flavor is a flavor.Adapter fed by an upgraded websocket publisher
// connection.
type Flavor struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu    sync.Mutex
	actor *stream.Actor
}

// New returns a Flavor ready to accept one publisher connection at a time.
func New(log zerolog.Logger) *Flavor {
	return &Flavor{log: log}
}

// Init marks the stream as a live feed (spec's `flow_type: stream` default,
// made explicit here).
func (f *Flavor) Init(state flavor.State, options map[string]any) (flavor.State, error) {
	state.MediaInfo.FlowType = mediainfo.FlowTypeStream
	return state, nil
}

// Bind receives the actor handle so ServeHTTP can call SetSocket/SetSource
// once a publisher connects.
func (f *Flavor) Bind(a *stream.Actor) {
	f.mu.Lock()
	f.actor = a
	f.mu.Unlock()
}

// ServeHTTP upgrades the request to a websocket and hands the connection to
// the actor as the stream's socket (spec §4.1 set_socket). Wire this as an
// HTTP handler for the stream's publish endpoint.
func (f *Flavor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	a := f.actor
	f.mu.Unlock()
	if a == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Error().Err(err).Msg("live flavor: upgrade failed")
		return
	}

	connID := uuid.NewString()
	connLog := logger.WithConn(&f.log, connID, r.RemoteAddr)
	connLog.Info().Msg("live flavor: publisher connected")

	a.SetSource(r.RemoteAddr)
	a.SetSocket(&wsConn{conn: conn})
}

// HandleFrame passes ingested frames through unmodified; this flavor has
// nothing to add at the individual-frame level.
func (f *Flavor) HandleFrame(fr frame.Frame, state flavor.State) flavor.Result {
	return flavor.ReplyFrame(&fr, state)
}

// HandleControl starts the decode loop on set_socket and reports source
// loss once the connection's read loop ends.
func (f *Flavor) HandleControl(event flavor.ControlEvent, state flavor.State) flavor.Result {
	switch event.Kind {
	case flavor.ControlSetSocket:
		if event.Socket != nil {
			go f.readLoop(event.Socket, state.Source)
		}
		return flavor.NoReply(state)
	default:
		return flavor.NoReply(state)
	}
}

// HandleInfo ignores unrecognized casts.
func (f *Flavor) HandleInfo(message any, state flavor.State) flavor.Result {
	return flavor.NoReply(state)
}

// readLoop decodes newline-delimited JSON frame envelopes off sock and
// publishes each into the actor. A malformed envelope is logged and skipped.
// When sock closes or a read fails, it reports source loss (spec: "socket
// close => source_lost").
func (f *Flavor) readLoop(sock io.ReadWriteCloser, source string) {
	f.mu.Lock()
	a := f.actor
	f.mu.Unlock()
	if a == nil {
		return
	}

	scanner := bufio.NewScanner(sock)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var wf wireFrame
		if err := json.Unmarshal(scanner.Bytes(), &wf); err != nil {
			f.log.Warn().Err(err).Msg("live flavor: malformed frame envelope")
			continue
		}
		a.Publish(wf.toFrame())
	}
	a.NotifySourceLost(source)
}

var _ flavor.Adapter = (*Flavor)(nil)
