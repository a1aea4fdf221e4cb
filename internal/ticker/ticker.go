// Package ticker implements the per-passive-client timed driver that pulls
// frames from storage through the stream actor and pushes them to that
// client at real-time pace (spec §2 item 6, §4.4).
//
// Like the stream actor itself, a Ticker is a single goroutine with a
// message-driven mailbox (spec §9: "in a cooperative async model these are
// futures; with threads they are condition variables or reply channels") —
// grounded on the same channel-mailbox shape the teacher's
// internal/rtmp/conn.Connection uses for its read/write loop, scaled down
// to one timer instead of a socket.
package ticker

import (
	"time"

	"github.com/nsavage/streamcore/internal/frame"
)

// ReadFrameFunc pulls the next frame from the owning actor's storage,
// mirroring the read_frame(client, key) request (spec §4.1).
type ReadFrameFunc func(key string) (fr frame.Frame, nextKey string, eof bool)

// DeliverFunc pushes a frame read by the ticker to its client.
type DeliverFunc func(fr frame.Frame)

// EOFFunc is invoked once storage is exhausted, so the owner can unsubscribe
// or stop the client the way a live source reaching its end would.
type EOFFunc func()

type cmdKind uint8

const (
	cmdPlaySetup cmdKind = iota
	cmdPause
	cmdResume
	cmdSeek
	cmdStop
)

type command struct {
	kind     cmdKind
	bufferMS int
	key      string
	newDTS   int64
}

// Ticker drives one passive client. Create with New and Start; stop with
// Stop.
type Ticker struct {
	read    ReadFrameFunc
	deliver DeliverFunc
	onEOF   EOFFunc

	cmds chan command
	done chan struct{}
}

// New constructs a Ticker around its read, deliver and end-of-storage
// callbacks. It does not run until Start is called.
func New(read ReadFrameFunc, deliver DeliverFunc, onEOF EOFFunc) *Ticker {
	return &Ticker{
		read:    read,
		deliver: deliver,
		onEOF:   onEOF,
		cmds:    make(chan command, 8),
		done:    make(chan struct{}),
	}
}

// Start begins the driver loop in its own goroutine. startKey is the
// storage key to begin reading from (empty means "first frame"); bufferMS
// is the pre-push window drained as fast as possible before real-time
// pacing begins (spec §4.4).
func (t *Ticker) Start(startKey string, bufferMS int) {
	go t.run(startKey, bufferMS)
}

// PlaySetup changes the pre-push buffer size at runtime (spec §4.1
// play_setup forwarded to the ticker for passive clients). It does not
// change which tracks are delivered.
func (t *Ticker) PlaySetup(bufferMS int) {
	t.send(command{kind: cmdPlaySetup, bufferMS: bufferMS})
}

// Pause halts frame delivery without losing position (spec §4.1 pause).
func (t *Ticker) Pause() { t.send(command{kind: cmdPause}) }

// Resume restarts delivery at the current position (spec §4.1 resume).
func (t *Ticker) Resume() { t.send(command{kind: cmdResume}) }

// Seek rebases the ticker to key/newDTS, resetting its real-time pacing
// baseline (spec §4.1 seek).
func (t *Ticker) Seek(key string, newDTS int64) {
	t.send(command{kind: cmdSeek, key: key, newDTS: newDTS})
}

// Stop terminates the driver goroutine. Safe to call more than once.
func (t *Ticker) Stop() {
	select {
	case t.cmds <- command{kind: cmdStop}:
	case <-t.done:
	}
}

func (t *Ticker) send(c command) {
	select {
	case t.cmds <- c:
	case <-t.done:
	}
}

// now is a var so tests can inject deterministic timing without the banned
// Date.now()-style nondeterminism leaking into actor logic elsewhere.
var now = time.Now

func (t *Ticker) run(startKey string, bufferMS int) {
	defer close(t.done)

	key := startKey
	paused := false
	haveBase := false
	var baseDTS int64
	var startedAt time.Time

	for {
		if paused {
			cmd, stopped := t.waitForCommand()
			if stopped {
				return
			}
			if t.applyCommand(cmd, &key, &bufferMS, &paused, &haveBase, &baseDTS, &startedAt) {
				return
			}
			continue
		}

		fr, next, eof := t.read(key)
		if eof {
			if t.onEOF != nil {
				t.onEOF()
			}
			return
		}

		if !haveBase {
			baseDTS = fr.DTS
			startedAt = now()
			haveBase = true
		}

		targetOffset := time.Duration(fr.DTS-baseDTS) * time.Millisecond
		bufferOffset := time.Duration(bufferMS) * time.Millisecond
		target := startedAt.Add(targetOffset - bufferOffset)
		if delay := target.Sub(now()); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case cmd := <-t.cmds:
				timer.Stop()
				if t.applyCommand(cmd, &key, &bufferMS, &paused, &haveBase, &baseDTS, &startedAt) {
					return
				}
				continue
			}
		}

		t.deliver(fr)
		if next == "" {
			// An empty next key means fr was the last stored frame; reading
			// "" again would restart from the first frame.
			if t.onEOF != nil {
				t.onEOF()
			}
			return
		}
		key = next
	}
}

func (t *Ticker) waitForCommand() (command, bool) {
	cmd := <-t.cmds
	return cmd, cmd.kind == cmdStop
}

// applyCommand mutates the loop's local state for a received command and
// reports whether the loop should terminate.
func (t *Ticker) applyCommand(cmd command, key *string, bufferMS *int, paused, haveBase *bool, baseDTS *int64, startedAt *time.Time) bool {
	switch cmd.kind {
	case cmdStop:
		return true
	case cmdPause:
		*paused = true
	case cmdResume:
		*paused = false
		*haveBase = false // resume re-bases pacing at the current position
	case cmdPlaySetup:
		*bufferMS = cmd.bufferMS
	case cmdSeek:
		*key = cmd.key
		*haveBase = false
	}
	return false
}
