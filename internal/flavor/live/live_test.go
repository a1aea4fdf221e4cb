package live

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsavage/streamcore/internal/flavor"
	"github.com/nsavage/streamcore/internal/mediainfo"
	"github.com/nsavage/streamcore/internal/stream"
)

func TestInitMarksFlowTypeStream(t *testing.T) {
	f := New(zerolog.Nop())
	state, err := f.Init(flavor.State{}, nil)
	require.NoError(t, err)
	assert.Equal(t, mediainfo.FlowTypeStream, state.MediaInfo.FlowType)
}

func TestServeHTTPWithoutBindRejects(t *testing.T) {
	f := New(zerolog.Nop())
	srv := httptest.NewServer(f)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 503, resp.StatusCode)
}

func TestPublishedFramesReachActorAndSourceLossOnClose(t *testing.T) {
	f := New(zerolog.Nop())
	opts := stream.Options{
		Name:          "live-1",
		SourceTimeout: stream.SourceTimeoutPolicy{MS: 50},
	}
	actor, err := stream.New(opts, f)
	require.NoError(t, err)
	go actor.Run()
	f.Bind(actor)

	srv := httptest.NewServer(f)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	line, err := json.Marshal(wireFrame{Content: "video", Flavor: "config", Codec: "avc", DTS: 10, Body: []byte{0x01}})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, append(line, '\n')))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.Eventually(t, func() bool {
		status, err := actor.Status(ctx)
		return err == nil && status["source_set"] == true
	}, 2*time.Second, 20*time.Millisecond)

	info, err := actor.Info(ctx, []string{"last_dts"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), info["last_dts"])

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		select {
		case <-actor.Stopped():
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond, "actor should terminate once the grace timer expires with no new source")
}
