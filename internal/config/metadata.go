package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MetadataFileName is the JSON session-registry file persisted alongside
// config.toml (spec §6: "<share>/kimi.json").
const MetadataFileName = "kimi.json"

// SessionMetadata is one entry in the session registry (spec §6:
// "{session_id, work_dir, last_updated, …}").
type SessionMetadata struct {
	SessionID   string    `json:"session_id"`
	WorkDir     string    `json:"work_dir"`
	LastUpdated time.Time `json:"last_updated"`
}

// Metadata is the on-disk shape of kimi.json: a registry of known sessions
// keyed by session id, used by --continue to resolve "most recently
// touched session in this work dir" without scanning every sessions/
// subdirectory.
type Metadata struct {
	Sessions map[string]SessionMetadata `json:"sessions"`
}

// LoadMetadata reads shareDir/kimi.json, returning an empty Metadata if the
// file does not yet exist.
func LoadMetadata(shareDir string) (*Metadata, error) {
	path := filepath.Join(shareDir, MetadataFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Metadata{Sessions: map[string]SessionMetadata{}}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if meta.Sessions == nil {
		meta.Sessions = map[string]SessionMetadata{}
	}
	return &meta, nil
}

// Save writes the registry back to shareDir/kimi.json.
func (m *Metadata) Save(shareDir string) error {
	path := filepath.Join(shareDir, MetadataFileName)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Touch records sessionID as the most recently updated session for
// workDir. cmd/soul calls it once per run, when the session is opened.
func (m *Metadata) Touch(sessionID, workDir string, now time.Time) {
	m.Sessions[sessionID] = SessionMetadata{SessionID: sessionID, WorkDir: workDir, LastUpdated: now}
}

// MostRecentForWorkDir returns the session id most recently touched for
// workDir, used to resolve --continue. ok is false when none exists.
func (m *Metadata) MostRecentForWorkDir(workDir string) (sessionID string, ok bool) {
	var latest time.Time
	for id, entry := range m.Sessions {
		if entry.WorkDir != workDir {
			continue
		}
		if !ok || entry.LastUpdated.After(latest) {
			sessionID, ok, latest = id, true, entry.LastUpdated
		}
	}
	return sessionID, ok
}
