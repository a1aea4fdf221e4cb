package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	s := bufio.NewScanner(buf)
	var out []map[string]any
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), "invalid JSON line: %s", line)
		out = append(out, m)
	}
	require.NoError(t, s.Err())
	return out
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	UseWriter(&buf)
	require.NoError(t, SetLevel("info"))

	Logger().Debug().Msg("debug message should be filtered")
	Logger().Info().Int("k", 1).Msg("info message")

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "info message", records[0]["message"])

	buf.Reset()
	require.NoError(t, SetLevel("debug"))
	Logger().Debug().Int("a", 2).Msg("visible debug")
	records = decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "debug", records[0]["level"])
}

func TestFieldExtraction(t *testing.T) {
	var buf bytes.Buffer
	UseWriter(&buf)
	require.NoError(t, SetLevel("debug"))

	l := WithStream(Logger(), "live/test")
	l2 := WithConn(&l, "c1", "127.0.0.1:1234")
	l2.Info().Msg("hello world")

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	rec := records[0]
	for _, k := range []string{"conn_id", "peer_addr", "stream_key"} {
		assert.Contains(t, rec, k)
	}
	assert.Equal(t, "c1", rec["conn_id"])
	assert.Equal(t, "live/test", rec["stream_key"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug": "debug",
		"info":  "info",
		"warn":  "warn",
		"error": "error",
	}
	for in, expect := range cases {
		require.NoError(t, SetLevel(in))
		assert.Equal(t, expect, Level())
	}
	assert.Error(t, SetLevel("bogus"))
}
