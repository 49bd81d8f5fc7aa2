package config

import (
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"
)

func TestMigrateLegacyConvertsJSONToTOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, LegacyConfigName, `{"version":1,"llm":{"default_provider":"anthropic"}}`)

	migratedTo, err := MigrateLegacy(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, CurrentConfigName), migratedTo)

	var decoded map[string]any
	_, err = toml.DecodeFile(migratedTo, &decoded)
	require.NoError(t, err)
	llm := decoded["llm"].(map[string]any)
	require.Equal(t, "anthropic", llm["default_provider"])
}

func TestMigrateLegacyNoOpWhenCurrentAlreadyExists(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, LegacyConfigName, `{"version":1}`)
	writeFile(t, dir, CurrentConfigName, "version = 1\n")

	migratedTo, err := MigrateLegacy(dir)
	require.NoError(t, err)
	require.Empty(t, migratedTo)
}

func TestMigrateLegacyNoOpWhenNeitherExists(t *testing.T) {
	dir := t.TempDir()
	migratedTo, err := MigrateLegacy(dir)
	require.NoError(t, err)
	require.Empty(t, migratedTo)
}

func TestMigrateLegacyRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, LegacyConfigName, `{not json`)

	_, err := MigrateLegacy(dir)
	require.Error(t, err)
}
