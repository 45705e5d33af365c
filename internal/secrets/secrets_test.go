// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoadDatabaseURL(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, DatabaseURL, "  postgres://crates@db/crates_io  \n", 0o600)
	writeFile(t, dir, ".gitkeep", "", 0o600)
	writeFile(t, dir, "empty", " \n\t", 0o600)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o700))

	core, logs := observer.New(zap.WarnLevel)
	got, err := Load(dir, zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{DatabaseURL: "postgres://crates@db/crates_io"}, got)
	assert.Zero(t, logs.Len(), "private files load without warnings")
}

func TestLoadMissingDirectory(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadWarnsOnLoosePermissions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, DatabaseURL, "postgres://x", 0o644)
	require.NoError(t, os.Chmod(filepath.Join(dir, DatabaseURL), 0o644))

	core, logs := observer.New(zap.WarnLevel)
	got, err := Load(dir, zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, "postgres://x", got[DatabaseURL], "loose secrets still load")

	warned := logs.FilterMessage("secret is readable by other users").All()
	require.Len(t, warned, 1)
	assert.Equal(t, filepath.Join(dir, DatabaseURL), warned[0].ContextMap()["path"])
}

func TestLoadWarnsOnUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	dir := t.TempDir()
	writeFile(t, dir, DatabaseURL, "postgres://x", 0o000)

	core, logs := observer.New(zap.WarnLevel)
	got, err := Load(dir, zap.New(core))
	require.NoError(t, err)
	assert.NotContains(t, got, DatabaseURL)

	warned := logs.FilterMessage("could not read secret").All()
	require.Len(t, warned, 1)
	assert.Equal(t, DatabaseURL, warned[0].ContextMap()["key"])
}

func writeFile(t *testing.T, dir, name, content string, perm os.FileMode) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), perm))
}
