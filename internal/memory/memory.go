// Package memory is the reference MemoryWriter/MemoryReader implementation
// spec §6 names as "depended on, not implemented [by the core]": a JSONL
// append log, one line per task-snapshot write, used to repopulate the Task
// Registry on startup without re-emitting Event Bus history.
//
// Grounded on haricheung-agentic-shell's internal/tasklog.Registry — one
// append-only file per task, sole-writer discipline, nil-safe methods — with
// the JSONL-of-structured-events shape replaced by JSONL-of-task-snapshots
// (this package upserts whole snapshots, not incremental stage events; the
// stage-by-stage detail that tasklog.Event records is closer to what the
// Event Bus ring buffer already retains in this architecture).
package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/taskforge/orchestrator/internal/types"
)

// Store is a JSONL-backed MemoryWriter/MemoryReader: one file holding one
// JSON object per line, each line the latest known snapshot for some task at
// the time it was written. Get/List replay the file and keep only the last
// line seen per task id, so repeated Write calls for the same task are an
// append-only upsert despite the file being append-only on disk.
type Store struct {
	mu   sync.Mutex
	path string
}

// Open returns a Store backed by path, creating the containing directory if
// absent. The file itself is created lazily on the first Write.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("memory: create dir for %s: %w", path, err)
	}
	return &Store{path: path}, nil
}

// Write upserts snapshot by appending it as a new JSONL line (spec §6:
// "called on every transition"). Older lines for the same task id are left
// in place; List/Get only ever surface the most recent one.
func (s *Store) Write(snapshot *types.Task) error {
	if snapshot == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("memory: open %s: %w", s.path, err)
	}
	defer f.Close()

	line, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("memory: marshal task %s: %w", snapshot.ID, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("memory: append task %s: %w", snapshot.ID, err)
	}
	return nil
}

// replay reads every line of the backing file and returns the last snapshot
// seen per task id, preserving first-seen order for determinism. A missing
// file is treated as an empty store.
func (s *Store) replay() ([]*types.Task, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: open %s: %w", s.path, err)
	}
	defer f.Close()

	byID := make(map[string]*types.Task)
	order := make([]string, 0)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var t types.Task
		if err := json.Unmarshal(line, &t); err != nil {
			return nil, fmt.Errorf("memory: decode line: %w", err)
		}
		if _, seen := byID[t.ID]; !seen {
			order = append(order, t.ID)
		}
		cp := t
		byID[t.ID] = &cp
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("memory: scan %s: %w", s.path, err)
	}

	out := make([]*types.Task, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

// Get returns the most recently written snapshot for taskID, or nil if
// unknown.
func (s *Store) Get(taskID string) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.replay()
	if err != nil {
		return nil, err
	}
	for _, t := range all {
		if t.ID == taskID {
			return t, nil
		}
	}
	return nil, nil
}

// List returns up to limit snapshots (spec §6: "used on startup bootstrap to
// repopulate the Registry"), in first-write order. limit <= 0 returns all.
func (s *Store) List(limit int) ([]*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.replay()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit >= len(all) {
		return all, nil
	}
	return all[:limit], nil
}

// Bootstrap replays every snapshot in the store into sink (typically
// *registry.Registry.Update), the startup path spec §6 describes: "repopulate
// the Registry without re-emitting events".
func (s *Store) Bootstrap(sink func(*types.Task)) error {
	all, err := s.List(0)
	if err != nil {
		return err
	}
	for _, t := range all {
		sink(t)
	}
	return nil
}
