// Package badgerstore is the persistent, keyed storage.Adapter a file
// flavor hands the stream actor as its "format" (spec §6 storage-adapter
// contract). Unlike internal/storage/timeshift's in-memory ring, frames
// written here survive process restarts.
package badgerstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/oklog/ulid/v2"

	"github.com/nsavage/streamcore/internal/frame"
	"github.com/nsavage/streamcore/internal/storage"
)

const keyPrefix = "frame:"

// Store is a Badger-backed storage.Adapter. Keys are ULIDs, which sort
// lexically in insertion order, so a prefix scan walks frames in write
// order without a separate index (spec §6: "keys are opaque to the actor;
// the adapter defines their ordering").
type Store struct {
	db *badger.DB
}

// Open opens (creating if absent) a Badger database at path, mirroring the
// teacher-adjacent OpenBadgerStore's DefaultOptions-with-logger-disabled
// shape.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func frameKey(id string) []byte { return []byte(keyPrefix + id) }

func trimKey(raw []byte) string { return strings.TrimPrefix(string(raw), keyPrefix) }

// WriteFrame persists fr under a freshly minted ULID key (spec §6
// write_frame: "the adapter assigns the key").
func (s *Store) WriteFrame(fr frame.Frame) error {
	id := ulid.Make().String()
	fr.Key = id
	fr.NextKey = ""
	buf, err := json.Marshal(fr)
	if err != nil {
		return fmt.Errorf("badgerstore: marshal frame: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(frameKey(id), buf)
	})
}

// ReadFrame resolves key to the frame it names, plus the key immediately
// following it. An empty key means "start of stream" (spec §6 read_frame).
func (s *Store) ReadFrame(key string) (frame.Frame, string, error) {
	var fr frame.Frame
	var nextKey string

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		if key == "" {
			it.Seek(prefix)
		} else {
			it.Seek(frameKey(key))
		}
		if !it.ValidForPrefix(prefix) {
			return storage.ErrEOF
		}

		item := it.Item()
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &fr)
		}); err != nil {
			return fmt.Errorf("badgerstore: unmarshal frame: %w", err)
		}

		it.Next()
		if it.ValidForPrefix(prefix) {
			nextKey = trimKey(it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return frame.Frame{}, "", err
	}

	fr.NextKey = nextKey
	return fr, nextKey, nil
}

// Seek resolves dts to the first keyframe at or after it; if none exists,
// it falls back to the nearest keyframe strictly before dts (spec §9 Open
// Question, resolved the same way internal/storage/timeshift resolves it).
// dir is accepted for API symmetry with the ring adapter but does not
// change this resolution policy.
func (s *Store) Seek(dts int64, dir storage.SeekDirection) (string, int64, bool) {
	var afterKey string
	var afterDTS int64
	var haveAfter bool

	var beforeKey string
	var beforeDTS int64
	var haveBefore bool

	_ = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var fr frame.Frame
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &fr)
			}); err != nil {
				continue
			}
			if fr.Flavor != frame.FlavorKeyframe {
				continue
			}
			key := trimKey(it.Item().KeyCopy(nil))
			if fr.DTS >= dts {
				afterKey, afterDTS, haveAfter = key, fr.DTS, true
				return nil
			}
			beforeKey, beforeDTS, haveBefore = key, fr.DTS, true
		}
		return nil
	})

	if haveAfter {
		return afterKey, afterDTS, true
	}
	if haveBefore {
		return beforeKey, beforeDTS, true
	}
	return "", 0, false
}

// Properties reports storage-level introspection: duration in ms spanning
// the first and last stored frame, and the total frame count.
func (s *Store) Properties() map[string]any {
	var first, last int64
	var count int64
	haveFirst := false

	_ = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var fr frame.Frame
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &fr)
			}); err != nil {
				continue
			}
			if !haveFirst {
				first = fr.DTS
				haveFirst = true
			}
			last = fr.DTS
			count++
		}
		return nil
	})

	return map[string]any{
		"duration":    last - first,
		"frame_count": count,
	}
}

var _ storage.Adapter = (*Store)(nil)
