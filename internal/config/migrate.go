package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// LegacyConfigName and CurrentConfigName are the two config file names
// searched for under the share directory (spec §6).
const (
	LegacyConfigName  = "config.json"
	CurrentConfigName = "config.toml"
)

// MigrateLegacy reads shareDir/config.json (if present) and re-emits it as
// shareDir/config.toml, preserving keys, when config.toml does not already
// exist. It is a no-op (returning "", nil) when no migration is needed.
// Grounded on the teacher's JSON5-capable loader parseRawBytes switch,
// inverted here into a one-shot migration instead of an ongoing dual-format
// reader: spec §6 only requires migrating once, not parsing JSON on every
// load.
func MigrateLegacy(shareDir string) (migratedTo string, err error) {
	legacyPath := filepath.Join(shareDir, LegacyConfigName)
	currentPath := filepath.Join(shareDir, CurrentConfigName)

	if _, err := os.Stat(currentPath); err == nil {
		return "", nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("config: stat %s: %w", currentPath, err)
	}

	data, err := os.ReadFile(legacyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("config: read %s: %w", legacyPath, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", fmt.Errorf("config: parse legacy %s: %w", legacyPath, err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(raw); err != nil {
		return "", fmt.Errorf("config: re-encode legacy config as TOML: %w", err)
	}

	if err := os.WriteFile(currentPath, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("config: write %s: %w", currentPath, err)
	}
	return currentPath, nil
}
