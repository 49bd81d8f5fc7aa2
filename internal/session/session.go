// Package session ties the context store and wire bus/recorder together
// for one session directory (spec §3's Session data model, §6's persisted
// file layout): `<share>/sessions/<id>/context.jsonl`, `wire.jsonl`, and
// their rotated predecessors.
//
// Grounded on the teacher's session ownership idiom (internal/sessions
// wires a store and an event log per conversation, e.g. memory.go +
// tool_events.go), adapted onto this module's contextstore.Store and
// wire.Bus/FileRecorder instead of the teacher's Postgres-backed stores.
package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agentcore/soul/internal/contextstore"
	"github.com/agentcore/soul/internal/wire"
)

// Session owns one conversation's context store and wire bus/recorder.
// Its RevertToWithMessage rotates both file families together: the context
// store's rotate hook calls the recorder's Rotate, so context.<n>.jsonl and
// wire.<n>.jsonl always land on matching indices (spec §3: "plus rotated
// variants context.<n>.jsonl after a clear or revert").
type Session struct {
	ID      string
	WorkDir string
	Dir     string

	Store *contextstore.Store
	Bus   *wire.Bus

	recorder *wire.FileRecorder
}

// Open creates (if absent) shareDir/sessions/id and opens its context store
// and wire bus/recorder.
func Open(shareDir, id, workDir string, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Join(shareDir, "sessions", id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: mkdir %s: %w", dir, err)
	}

	store, err := contextstore.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("session: open context store: %w", err)
	}

	recorder, err := wire.OpenFileRecorder(dir, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("session: open wire recorder: %w", err)
	}

	bus := wire.New(logger)
	bus.SetRecorder(recorder)
	store.SetRotateHook(recorder.Rotate)

	return &Session{
		ID:       id,
		WorkDir:  workDir,
		Dir:      dir,
		Store:    store,
		Bus:      bus,
		recorder: recorder,
	}, nil
}

// RevertToWithMessage satisfies internal/toolset/dmail's reverter
// interface. The underlying store call already triggers the rotate hook
// installed in Open, so wire.jsonl rotates in lockstep automatically.
func (s *Session) RevertToWithMessage(id int, userMessage string) error {
	return s.Store.RevertToWithMessage(id, userMessage)
}

// Close shuts down the wire bus (flushing any pending merge fragment and
// closing every subscriber), closes the recorder (draining its write
// queue), then closes the context store.
func (s *Session) Close() error {
	s.Bus.Shutdown()
	if err := s.recorder.Close(); err != nil {
		_ = s.Store.Close()
		return fmt.Errorf("session: close wire recorder: %w", err)
	}
	if err := s.Store.Close(); err != nil {
		return fmt.Errorf("session: close context store: %w", err)
	}
	return nil
}
