package contextstore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/agentcore/soul/pkg/message"
)

// IoError wraps an underlying filesystem failure (spec §7 taxonomy).
type IoError struct {
	Op    string
	Cause error
}

func (e *IoError) Error() string { return fmt.Sprintf("contextstore: %s: %v", e.Op, e.Cause) }
func (e *IoError) Unwrap() error { return e.Cause }

// ErrCheckpointNotFound is returned by RevertTo when no such checkpoint id
// exists in the current file.
var ErrCheckpointNotFound = errors.New("contextstore: checkpoint not found")

// CheckpointNotFound is the typed form callers can match on with errors.As.
type CheckpointNotFound struct{ ID int }

func (e *CheckpointNotFound) Error() string {
	return fmt.Sprintf("contextstore: checkpoint %d not found", e.ID)
}
func (e *CheckpointNotFound) Unwrap() error { return ErrCheckpointNotFound }

const baseName = "context"

var rotationPattern = regexp.MustCompile(`^context\.(\d+)\.jsonl$`)

// Store is the append-only JSONL history for one session. Only one writer
// may be active at a time (spec §3 invariants: "Concurrent writers are
// forbidden; only one active turn per session"); Store itself serializes
// calls with an internal mutex so a single process never corrupts the file,
// but does not coordinate across processes.
type Store struct {
	mu       sync.Mutex
	dir      string
	f        *os.File
	w        *bufio.Writer
	onRotate func() error
}

// SetRotateHook installs fn to run every time the current file is rotated
// away (Clear, RevertTo, RevertToWithMessage, CompactPrefix all rotate).
// internal/session uses this to keep wire.jsonl's rotation in lockstep with
// context.jsonl's, without every call site having to remember to do it
// itself.
func (s *Store) SetRotateHook(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRotate = fn
}

// Open opens (creating if absent) the current context.jsonl under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &IoError{Op: "mkdir", Cause: err}
	}
	s := &Store{dir: dir}
	if err := s.openCurrent(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) currentPath() string { return filepath.Join(s.dir, baseName+".jsonl") }

func (s *Store) openCurrent() error {
	f, err := os.OpenFile(s.currentPath(), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return &IoError{Op: "open", Cause: err}
	}
	s.f = f
	s.w = bufio.NewWriter(f)
	return nil
}

// Close flushes and closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	if err := s.w.Flush(); err != nil {
		return &IoError{Op: "flush", Cause: err}
	}
	err := s.f.Close()
	s.f = nil
	s.w = nil
	if err != nil {
		return &IoError{Op: "close", Cause: err}
	}
	return nil
}

// Append writes one entry, newline-terminated, and flushes immediately so a
// crash never loses an acknowledged append (spec §4.2: "atomic append-then-
// flush; never partial writes").
func (s *Store) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(e)
}

func (s *Store) appendLocked(e Entry) error {
	raw, err := e.MarshalJSON()
	if err != nil {
		return &IoError{Op: "marshal", Cause: err}
	}
	raw = append(raw, '\n')
	if _, err := s.w.Write(raw); err != nil {
		return &IoError{Op: "write", Cause: err}
	}
	if err := s.w.Flush(); err != nil {
		return &IoError{Op: "flush", Cause: err}
	}
	if err := s.f.Sync(); err != nil {
		return &IoError{Op: "sync", Cause: err}
	}
	return nil
}

// readAllLocked decodes every entry currently on disk, in order.
func (s *Store) readAllLocked() ([]Entry, error) {
	if err := s.w.Flush(); err != nil {
		return nil, &IoError{Op: "flush", Cause: err}
	}
	data, err := os.ReadFile(s.currentPath())
	if err != nil {
		return nil, &IoError{Op: "read", Cause: err}
	}
	return decodeLines(data)
}

func decodeLines(data []byte) ([]Entry, error) {
	var entries []Entry
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1
			if len(line) == 0 {
				continue
			}
			var e Entry
			if err := e.UnmarshalJSON(line); err != nil {
				return nil, &message.MessageParseError{Cause: err}
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Snapshot returns every non-marker message currently in the current file,
// in write order.
func (s *Store) Snapshot() ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.readAllLocked()
	if err != nil {
		return nil, err
	}
	out := make([]message.Message, 0, len(entries))
	for _, e := range entries {
		if e.Message != nil {
			out = append(out, *e.Message)
		}
	}
	return out, nil
}

// AppendCheckpoint generates the next checkpoint id (max existing + 1),
// appends it, and returns it.
func (s *Store) AppendCheckpoint() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.readAllLocked()
	if err != nil {
		return 0, err
	}
	next := 1
	for _, e := range entries {
		if e.Checkpoint != nil && e.Checkpoint.ID >= next {
			next = e.Checkpoint.ID + 1
		}
	}
	if err := s.appendLocked(CheckpointEntry(next)); err != nil {
		return 0, err
	}
	return next, nil
}

// RecordUsage appends a `_usage` marker line.
func (s *Store) RecordUsage(tokenCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(UsageEntry(tokenCount))
}

// LatestUsage returns the token count of the most recently recorded
// `_usage` entry in the current file. ok is false if none has been
// recorded yet.
func (s *Store) LatestUsage() (tokenCount int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.readAllLocked()
	if err != nil {
		return 0, false
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Usage != nil {
			return entries[i].Usage.TokenCount, true
		}
	}
	return 0, false
}

// nextRotationIndex scans the directory for context.<n>.jsonl and returns
// one greater than the maximum existing n (spec §4.2 rotation rule).
func (s *Store) nextRotationIndex() (int, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, &IoError{Op: "readdir", Cause: err}
	}
	max := 0
	for _, f := range files {
		if m := rotationPattern.FindStringSubmatch(f.Name()); m != nil {
			n, _ := strconv.Atoi(m[1])
			if n > max {
				max = n
			}
		}
	}
	return max + 1, nil
}

// rotateLocked renames the current file to context.<n>.jsonl (n = next
// unused index) and opens a fresh, empty current file. The caller must hold
// s.mu. rotateLocked itself flushes and closes s.f before the rename, since
// renaming an open-for-write handle is not reliable across platforms in
// this codebase's target set; it then reopens a new handle at the same path.
func (s *Store) rotateLocked() error {
	if err := s.w.Flush(); err != nil {
		return &IoError{Op: "flush", Cause: err}
	}
	if err := s.f.Close(); err != nil {
		return &IoError{Op: "close", Cause: err}
	}
	n, err := s.nextRotationIndex()
	if err != nil {
		return err
	}
	rotated := filepath.Join(s.dir, fmt.Sprintf("%s.%d.jsonl", baseName, n))
	if err := os.Rename(s.currentPath(), rotated); err != nil {
		return &IoError{Op: "rename", Cause: err}
	}
	if err := s.openCurrent(); err != nil {
		return err
	}
	if s.onRotate != nil {
		if err := s.onRotate(); err != nil {
			return &IoError{Op: "wire-rotate", Cause: err}
		}
	}
	return nil
}

// Clear rotates the current file away and starts a new, empty current file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotateLocked()
}

// systemNoticeText is the synthetic message body injected by RevertTo.
func systemNoticeText(checkpointID int) string {
	return fmt.Sprintf("<system>CHECKPOINT %d</system>", checkpointID)
}

// revertToLocked rotates the current file away intact and rewrites a new
// current file holding the prefix up to and including the given
// checkpoint's line. Caller holds s.mu.
func (s *Store) revertToLocked(id int) error {
	entries, err := s.readAllLocked()
	if err != nil {
		return err
	}

	cut := -1
	for i, e := range entries {
		if e.Checkpoint != nil && e.Checkpoint.ID == id {
			cut = i
			break
		}
	}
	if cut == -1 {
		return &CheckpointNotFound{ID: id}
	}

	prefix := entries[:cut+1]

	if err := s.rotateLocked(); err != nil {
		return err
	}

	for _, e := range prefix {
		if err := s.appendLocked(e); err != nil {
			return err
		}
	}
	return nil
}

// RevertTo rotates the current file away intact, then writes a new current
// file containing the prefix up to and including the given checkpoint's
// line, optionally appending a synthetic user notice (spec §4.2, scenario 4
// in §8).
func (s *Store) RevertTo(id int, addUserNotice bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.revertToLocked(id); err != nil {
		return err
	}
	if addUserNotice {
		notice := message.Text(message.RoleUser, systemNoticeText(id))
		if err := s.appendLocked(MessageEntry(notice)); err != nil {
			return err
		}
	}
	return nil
}

// CompactPrefix replaces the summarizable middle of the history with a
// single synthetic message, preserving a leading system-prompt message (if
// any) and the most recent preserveRecentMessages messages (spec §4.6 step
// 2/4). summary is inserted where the dropped range began; it carries the
// compaction marker via its Name field ("compaction_summary") since
// Message has no separate metadata map. Returns the number of messages
// dropped; 0 means there was nothing worth compacting and the file is left
// untouched.
func (s *Store) CompactPrefix(summary message.Message, preserveRecentMessages int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAllLocked()
	if err != nil {
		return 0, err
	}

	var msgPositions []int
	for i, e := range entries {
		if e.Message != nil {
			msgPositions = append(msgPositions, i)
		}
	}
	n := len(msgPositions)

	systemCount := 0
	if n > 0 && entries[msgPositions[0]].Message.Role == message.RoleSystem {
		systemCount = 1
	}

	recentStart := n - preserveRecentMessages
	if recentStart < systemCount {
		recentStart = systemCount
	}
	dropStart := systemCount
	dropEnd := recentStart
	if dropStart >= dropEnd {
		return 0, nil
	}

	firstDroppedEntry := msgPositions[dropStart]
	lastDroppedEntry := msgPositions[dropEnd-1]

	summary.Name = "compaction_summary"

	var rebuilt []Entry
	rebuilt = append(rebuilt, entries[:firstDroppedEntry]...)
	rebuilt = append(rebuilt, MessageEntry(summary))
	rebuilt = append(rebuilt, entries[lastDroppedEntry+1:]...)

	if err := s.rotateLocked(); err != nil {
		return 0, err
	}
	for _, e := range rebuilt {
		if err := s.appendLocked(e); err != nil {
			return 0, err
		}
	}
	return dropEnd - dropStart, nil
}

// RevertToWithMessage reverts to checkpoint id exactly like RevertTo, then
// appends userMessage as a new user message rather than the fixed system
// notice text (spec §4.7, the send_dmail tool's checkpoint-rewind-plus-
// follow-up behavior).
func (s *Store) RevertToWithMessage(id int, userMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.revertToLocked(id); err != nil {
		return err
	}
	notice := message.Text(message.RoleUser, userMessage)
	return s.appendLocked(MessageEntry(notice))
}
