// Package logger provides the process-wide structured logger. It mirrors the
// teacher's internal/logger shape (Init/Logger/SetLevel/WithStream/WithConn)
// but is backed by zerolog instead of log/slog, matching the logging stack
// used elsewhere in this retrieval pack (ManuGH-xg2g).
package logger

import (
	"flag"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Environment variable name for log level configuration.
const envLogLevel = "STREAMCORE_LOG_LEVEL"

var (
	global   zerolog.Logger
	initOnce sync.Once
	mu       sync.RWMutex

	// Optional flag (users may pass -log.level=debug). If flag.Parse() hasn't
	// yet been called when Init is invoked, we still scan the raw os.Args.
	flagLevel = flag.String("log.level", "", "log level (debug, info, warn, error)")
)

// Init initializes the global logger. Safe to call multiple times; the first
// call wins except SetLevel/UseWriter, which mutate state intentionally.
func Init() {
	initOnce.Do(func() {
		lvl := detectLevel()
		zerolog.SetGlobalLevel(lvl)
		mu.Lock()
		global = zerolog.New(os.Stdout).With().Timestamp().Logger()
		mu.Unlock()
	})
}

func detectLevel() zerolog.Level {
	if *flagLevel == "" {
		for _, arg := range os.Args[1:] {
			if strings.HasPrefix(arg, "-log.level=") {
				parts := strings.SplitN(arg, "=", 2)
				if len(parts) == 2 {
					*flagLevel = parts[1]
				}
			}
		}
	}
	if lvl, ok := parseLevel(strings.TrimSpace(*flagLevel)); ok {
		return lvl
	}
	if env := os.Getenv(envLogLevel); env != "" {
		if lvl, ok := parseLevel(env); ok {
			return lvl
		}
	}
	return zerolog.InfoLevel
}

func parseLevel(s string) (zerolog.Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "debug":
		return zerolog.DebugLevel, true
	case "info", "":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error", "err":
		return zerolog.ErrorLevel, true
	}
	return 0, false
}

// SetLevel changes the runtime log level.
func SetLevel(level string) error {
	Init()
	lvl, ok := parseLevel(level)
	if !ok {
		return errInvalidLevel(level)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

type errInvalidLevel string

func (e errInvalidLevel) Error() string { return "invalid log level: " + string(e) }

// Level returns the current runtime level as a string.
func Level() string {
	Init()
	return zerolog.GlobalLevel().String()
}

// UseWriter swaps the output writer (intended for tests). Retains the
// current level.
func UseWriter(w io.Writer) {
	Init()
	mu.Lock()
	global = zerolog.New(w).With().Timestamp().Logger()
	mu.Unlock()
}

// Logger returns the global logger (ensures Init was called).
func Logger() *zerolog.Logger {
	Init()
	mu.RLock()
	defer mu.RUnlock()
	l := global
	return &l
}

// WithStream attaches the stream key field used on the stream actor's log
// lines.
func WithStream(l *zerolog.Logger, streamKey string) zerolog.Logger {
	return l.With().Str("stream_key", streamKey).Logger()
}

// WithClient attaches client identity fields.
func WithClient(l *zerolog.Logger, clientID string) zerolog.Logger {
	return l.With().Str("client_id", clientID).Logger()
}

// WithConn attaches connection/socket identity fields (used by flavors that
// own a transport connection, e.g. the live websocket flavor).
func WithConn(l *zerolog.Logger, connID, peerAddr string) zerolog.Logger {
	return l.With().Str("conn_id", connID).Str("peer_addr", peerAddr).Logger()
}
