package cmd

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nsavage/streamcore/internal/adminapi"
	"github.com/nsavage/streamcore/internal/config"
	"github.com/nsavage/streamcore/internal/flavor"
	flavorfile "github.com/nsavage/streamcore/internal/flavor/file"
	flavorlive "github.com/nsavage/streamcore/internal/flavor/live"
	flavormpegts "github.com/nsavage/streamcore/internal/flavor/mpegts"
	"github.com/nsavage/streamcore/internal/manager"
	"github.com/nsavage/streamcore/internal/metrics"
	"github.com/nsavage/streamcore/internal/presence"
	"github.com/nsavage/streamcore/internal/storage"
	"github.com/nsavage/streamcore/internal/storage/badgerstore"
	"github.com/nsavage/streamcore/internal/storage/timeshift"
	"github.com/nsavage/streamcore/internal/stream"
)

// Key namespaces distinguish which flavor a manager.Factory call should
// build, since a single shared manager.Manager (what internal/adminapi
// expects to list/query) otherwise has no way to tell "live/foo" apart from
// "mpegts/foo" beyond the key string itself.
const (
	prefixLive   = "live/"
	prefixMpegts = "mpegts/"
	prefixFile   = "file/"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stream core daemon",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
	}

	log := initLogger(cfg.Logging.Level)
	log.Info().Msg("streamcored starting")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	liveFlavors := &sync.Map{}
	mpegtsFlavors := &sync.Map{}

	mgr := manager.New(newFactory(cfg, log, m, liveFlavors, mpegtsFlavors), m)

	var presenceReg *presence.Registry
	if cfg.Presence.Addr != "" {
		presenceReg, err = presence.New(presence.Config{
			Addr: cfg.Presence.Addr, Password: cfg.Presence.Password, DB: cfg.Presence.DB,
		}, log)
		if err != nil {
			return fmt.Errorf("connecting presence registry: %w", err)
		}
		defer presenceReg.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	adminSrv := &http.Server{
		Addr:    cfg.Admin.ListenAddr,
		Handler: adminapi.New(mgr, reg, cfg.Admin.RateLimitPerMin, log),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", cfg.Admin.ListenAddr).Msg("admin API listening")
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin API stopped unexpectedly")
		}
	}()

	var liveSrv *http.Server
	if cfg.Flavors.LiveEnabled {
		liveSrv = &http.Server{Addr: cfg.Flavors.LiveListenAddr, Handler: liveRouter(mgr, liveFlavors)}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("addr", cfg.Flavors.LiveListenAddr).Msg("live ingest listening")
			if err := liveSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("live ingest server stopped unexpectedly")
			}
		}()
	}

	var mpegtsListener net.Listener
	if cfg.Flavors.MPEGTSEnabled {
		mpegtsListener, err = net.Listen("tcp", cfg.Flavors.MPEGTSListenAddr)
		if err != nil {
			return fmt.Errorf("listening for mpegts ingest on %s: %w", cfg.Flavors.MPEGTSListenAddr, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("addr", mpegtsListener.Addr().String()).Msg("mpegts ingest listening")
			acceptMPEGTS(ctx, mpegtsListener, mgr, mpegtsFlavors, log)
		}()
	}

	if cfg.Flavors.FileEnabled {
		if _, err := mgr.GetOrCreate(prefixFile + "library"); err != nil {
			log.Error().Err(err).Msg("failed to start file-watch flavor")
		}
	}

	if presenceReg != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			syncPresence(ctx, presenceReg, mgr, processOwner())
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = adminSrv.Shutdown(shutdownCtx)
	if liveSrv != nil {
		_ = liveSrv.Shutdown(shutdownCtx)
	}
	if mpegtsListener != nil {
		_ = mpegtsListener.Close()
	}
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("manager shutdown did not complete cleanly")
	}

	wg.Wait()
	log.Info().Msg("streamcored stopped")
	return nil
}

// newFactory dispatches on key namespace to build the right flavor.Adapter
// and stream.Options for a newly requested key, keeping a single shared
// manager.Manager (spec §9's collection of actors) even though three
// unrelated ingest flavors feed it.
func newFactory(cfg *config.Config, log zerolog.Logger, m *metrics.Metrics, liveFlavors, mpegtsFlavors *sync.Map) manager.Factory {
	return func(key string) (stream.Options, flavor.Adapter, error) {
		store, err := newStorageForKey(cfg, key)
		if err != nil {
			return stream.Options{}, nil, err
		}

		opts := stream.Options{
			GlueDeltaMS:      cfg.Stream.GlueDeltaMS,
			SourceTimeout:    stream.SourceTimeoutPolicy{MS: cfg.Stream.SourceTimeoutMS},
			ClientsTimeoutMS: cfg.Stream.ClientsTimeoutMS,
			RetryLimit:       cfg.Stream.RetryLimit,
			Metrics:          m,
			Format:           store,
		}

		switch {
		case strings.HasPrefix(key, prefixLive):
			if !cfg.Flavors.LiveEnabled {
				return stream.Options{}, nil, fmt.Errorf("live flavor is disabled")
			}
			f := flavorlive.New(log)
			liveFlavors.Store(key, f)
			return opts, f, nil

		case strings.HasPrefix(key, prefixMpegts):
			if !cfg.Flavors.MPEGTSEnabled {
				return stream.Options{}, nil, fmt.Errorf("mpegts flavor is disabled")
			}
			f := flavormpegts.New(log)
			mpegtsFlavors.Store(key, f)
			return opts, f, nil

		case strings.HasPrefix(key, prefixFile):
			if !cfg.Flavors.FileEnabled {
				return stream.Options{}, nil, fmt.Errorf("file flavor is disabled")
			}
			bs, ok := store.(*badgerstore.Store)
			if !ok {
				return stream.Options{}, nil, fmt.Errorf("file flavor requires storage.backend=badger")
			}
			f := flavorfile.New(bs, cfg.Flavors.FileWatchDir, log)
			return opts, f, nil

		default:
			return stream.Options{}, nil, fmt.Errorf("unrecognized stream key namespace: %q", key)
		}
	}
}

// newStorageForKey builds the random-access backing store for one stream,
// namespacing Badger's on-disk directory per key since each key gets its own
// Store instance (spec §3, §6: ring buffer vs. persistent store).
func newStorageForKey(cfg *config.Config, key string) (storage.Adapter, error) {
	switch cfg.Storage.Backend {
	case "badger":
		dir := filepath.Join(cfg.Storage.BadgerDir, sanitizeKey(key))
		store, err := badgerstore.Open(dir)
		if err != nil {
			return nil, fmt.Errorf("opening badger store for %q: %w", key, err)
		}
		return store, nil
	default:
		return timeshift.New(cfg.Storage.TimeshiftMS), nil
	}
}

func sanitizeKey(key string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
}

// liveRouter exposes the active live.Flavor instances under /live/{key},
// creating the backing actor on first contact.
func liveRouter(mgr *manager.Manager, liveFlavors *sync.Map) http.Handler {
	r := chi.NewRouter()
	r.HandleFunc("/live/{key}", func(w http.ResponseWriter, req *http.Request) {
		key := prefixLive + chi.URLParam(req, "key")
		if _, err := mgr.GetOrCreate(key); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		v, ok := liveFlavors.Load(key)
		if !ok {
			http.Error(w, "stream not ready", http.StatusServiceUnavailable)
			return
		}
		v.(*flavorlive.Flavor).ServeHTTP(w, req)
	})
	return r
}

// acceptMPEGTS runs a TCP accept loop, mirroring the teacher's
// server.acceptLoop shape (accept, register, hand off, keep looping until
// the listener closes). Each connection's first newline-terminated line
// names the stream key; everything after that is demuxed as MPEG-TS.
func acceptMPEGTS(ctx context.Context, ln net.Listener, mgr *manager.Manager, mpegtsFlavors *sync.Map, log zerolog.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			log.Warn().Err(err).Msg("mpegts accept error")
			return
		}
		go handleMPEGTSConn(ctx, conn, mgr, mpegtsFlavors, log)
	}
}

func handleMPEGTSConn(ctx context.Context, conn net.Conn, mgr *manager.Manager, mpegtsFlavors *sync.Map, log zerolog.Logger) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("mpegts: failed to read stream key")
		return
	}
	key := prefixMpegts + strings.TrimSpace(line)

	if _, err := mgr.GetOrCreate(key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("mpegts: failed to create stream")
		return
	}
	v, ok := mpegtsFlavors.Load(key)
	if !ok {
		log.Warn().Str("key", key).Msg("mpegts: stream exists under a different flavor")
		return
	}

	if err := v.(*flavormpegts.Flavor).Ingest(ctx, reader); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("mpegts: ingest ended with error")
	}
}

// syncPresence periodically refreshes presence registration for every
// currently running stream key, registering any newly seen key and
// releasing all of them once ctx is cancelled.
func syncPresence(ctx context.Context, reg *presence.Registry, mgr *manager.Manager, owner string) {
	const ttl = 30 * time.Second
	t := time.NewTicker(ttl / 2)
	defer t.Stop()

	host, _ := os.Hostname()

	for {
		select {
		case <-ctx.Done():
			release, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, key := range mgr.Keys() {
				_ = reg.Release(release, host, key, owner)
			}
			return
		case <-t.C:
			for _, key := range mgr.Keys() {
				if err := reg.Refresh(ctx, host, key, owner, ttl); err != nil {
					_ = reg.Register(ctx, host, key, owner, ttl)
				}
			}
		}
	}
}

func processOwner() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
