// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/crates-admin/internal/batch"
	"github.com/pdiddy/crates-admin/pkg/types"
)

func TestSecretDefault(t *testing.T) {
	loadedSecrets = map[string]string{"database-url": "postgres://secret"}
	t.Cleanup(func() { loadedSecrets = nil })

	assert.Equal(t, "postgres://flag", secretDefault("database-url", "postgres://flag"))
	assert.Equal(t, "postgres://secret", secretDefault("database-url", ""))
	assert.Equal(t, "", secretDefault("missing", ""))
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "error"} {
		l, err := newLogger(level)
		require.NoError(t, err, level)
		require.NotNil(t, l)
	}
	_, err := newLogger("loud")
	require.Error(t, err)
}

func TestNewDriverAssumeYes(t *testing.T) {
	var out strings.Builder
	d := newDriver(types.BatchConfig{AssumeYes: true, MetricsFile: "m.prom"}, strings.NewReader(""), &out, &out)
	ok, err := d.Confirm.Confirm("continue?")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, d.Metrics)
	assert.Empty(t, out.String(), "no prompt is printed with --yes")
}

func TestNewDriverPrompts(t *testing.T) {
	var out strings.Builder
	d := newDriver(types.BatchConfig{}, strings.NewReader("n\n"), &out, &out)
	ok, err := d.Confirm.Confirm("continue?")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, d.Metrics)
	assert.Contains(t, out.String(), "continue? (y/n): ")
}

func TestNormalizePhase(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "3", "f", "foo")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	unsorted := `{"name":"foo","vers":"1.0.0","deps":[` +
		`{"name":"zed","req":"^1","features":[],"optional":false,"default_features":true,"target":null,"kind":"normal"},` +
		`{"name":"abc","req":"^1","features":[],"optional":false,"default_features":true,"target":null,"kind":"normal"}` +
		`],"cksum":"00","features":{},"yanked":false,"links":null}` + "\n\n"
	require.NoError(t, os.WriteFile(path, []byte(unsorted), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "config.json"), []byte(`{"dl":"x"}`), 0o644))

	t.Run("declined leaves files alone", func(t *testing.T) {
		var out strings.Builder
		require.NoError(t, normalizePhase(&out, batch.Always(false), root))
		assert.Contains(t, out.String(), "found 1 crates")
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, unsorted, string(data))
	})

	t.Run("confirmed rewrites", func(t *testing.T) {
		var out strings.Builder
		require.NoError(t, normalizePhase(&out, batch.Always(true), root))
		assert.Contains(t, out.String(), "normalized 1 files")
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Less(t, strings.Index(string(data), `"abc"`), strings.Index(string(data), `"zed"`))
		assert.False(t, strings.HasSuffix(string(data), "\n\n"))

		cfg, err := os.ReadFile(filepath.Join(root, "config.json"))
		require.NoError(t, err)
		assert.Equal(t, `{"dl":"x"}`, string(cfg))
	})

	t.Run("parse failure aborts", func(t *testing.T) {
		bad := filepath.Join(root, "3", "b", "bar")
		require.NoError(t, os.MkdirAll(filepath.Dir(bad), 0o755))
		require.NoError(t, os.WriteFile(bad, []byte("{oops\n"), 0o644))
		err := normalizePhase(&strings.Builder{}, batch.Always(true), root)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "phase 1")
	})
}
