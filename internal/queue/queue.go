// Package queue implements the file-system message queue (spec §4.B):
// three directories under the state home, atomic same-filesystem
// renames between them, and crash recovery by sweeping processing/ back
// to incoming/ on startup. Grounded on the teacher's internal/bus
// message-shape conventions (bus/types.go InboundMessage/OutboundMessage)
// and internal/channels/manager.go's dispatch-loop style, but the
// transport itself — files instead of an in-process channel bus — is
// new: this spec's queue must survive a process restart, which the
// teacher's in-memory bus does not attempt.
package queue

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tinyagi/tinyagi/internal/store"
)

// Spooler owns the incoming/processing/outgoing directories under one
// state home root.
type Spooler struct {
	incoming   string
	processing string
	outgoing   string
}

// New builds a Spooler rooted at the given directories.
func New(incoming, processing, outgoing string) *Spooler {
	return &Spooler{incoming: incoming, processing: processing, outgoing: outgoing}
}

// Recover moves every file left in processing/ back to incoming/,
// implementing the crash-recovery invariant from spec §4.B.
func (s *Spooler) Recover() error {
	entries, err := os.ReadDir(s.processing)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read processing dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		src := filepath.Join(s.processing, e.Name())
		dst := filepath.Join(s.incoming, e.Name())
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("recover %s: %w", e.Name(), err)
		}
	}
	return nil
}

// ListIncoming returns every *.json file in incoming/, sorted by mtime
// ascending (spec §4.N: "List *.json in incoming/, sort by mtime").
func (s *Spooler) ListIncoming() ([]string, error) {
	entries, err := os.ReadDir(s.incoming)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read incoming dir: %w", err)
	}

	type fileInfo struct {
		name  string
		mtime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: e.Name(), mtime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mtime.Before(files[j].mtime) })

	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.name
	}
	return out, nil
}

// Claim atomically moves incoming/name to processing/name. If the
// rename fails the file is left in incoming for retry (spec §4.N step 1).
func (s *Spooler) Claim(name string) (string, error) {
	src := filepath.Join(s.incoming, name)
	dst := filepath.Join(s.processing, name)
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("claim %s: %w", name, err)
	}
	return dst, nil
}

// Release moves a claimed file back to incoming/ after a handler
// exception (spec §4.N step 10).
func (s *Spooler) Release(name string) error {
	src := filepath.Join(s.processing, name)
	dst := filepath.Join(s.incoming, name)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	return nil
}

// Complete removes a claimed file from processing/ once it has been
// fully handled.
func (s *Spooler) Complete(name string) error {
	path := filepath.Join(s.processing, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("complete %s: %w", name, err)
	}
	return nil
}

// ReadEnvelope parses a claimed file's contents as a MessageEnvelope.
func (s *Spooler) ReadEnvelope(name string) (*store.MessageEnvelope, error) {
	path := filepath.Join(s.processing, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read envelope %s: %w", name, err)
	}
	var env store.MessageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse envelope %s: %w", name, err)
	}
	return &env, nil
}

// PeekIncoming parses an incoming (not yet claimed) file without moving
// it, used by the scheduler loop to determine the effective agentId
// before enqueueing into a per-agent pipeline (spec §4.N step "Peek the
// file to determine its effective agentId").
func (s *Spooler) PeekIncoming(name string) (*store.MessageEnvelope, error) {
	path := filepath.Join(s.incoming, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("peek %s: %w", name, err)
	}
	var env store.MessageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse peeked envelope %s: %w", name, err)
	}
	return &env, nil
}

// WriteOutgoing serializes env and writes it to outgoing/ under the
// naming convention from spec §6: "<channel>_<msgId>_<ts>.json" except
// heartbeat, which uses "<msgId>.json" directly.
func (s *Spooler) WriteOutgoing(env *store.MessageEnvelope) error {
	var name string
	if env.Channel == "heartbeat" {
		name = env.MessageID + ".json"
	} else {
		name = fmt.Sprintf("%s_%s_%d.json", env.Channel, env.MessageID, time.Now().UnixMilli())
	}
	return s.writeJSON(s.outgoing, name, env)
}

// WriteInternal writes an internal (team re-enqueue) message into
// incoming/, named "internal_<convId>_<target>_<ts>_<rand>.json" per
// spec §6.
func (s *Spooler) WriteInternal(convID, target string, env *store.MessageEnvelope) error {
	name := fmt.Sprintf("internal_%s_%s_%d_%04d.json", convID, target, time.Now().UnixMilli(), rand.Intn(10000))
	return s.writeJSON(s.incoming, name, env)
}

// writeJSON writes to a temp file in dir and renames it into place so a
// watcher reading dir never observes a torn file (spec §4.B: same-
// filesystem rename is the only atomicity story this spooler relies on).
func (s *Spooler) writeJSON(dir, name string, env *store.MessageEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

// Watch returns an fsnotify watcher on incoming/ so callers can react
// to new files immediately instead of waiting for the next 1 s poll
// tick; the poll tick remains the source of truth (spec §4.N) and this
// is purely a latency optimization, matching the teacher's fsnotify use
// for config hot-reload (internal/config) adapted here to the queue
// directory.
func (s *Spooler) Watch() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := w.Add(s.incoming); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch incoming dir: %w", err)
	}
	return w, nil
}
