// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package gitrepo

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockExecutor records calls and returns configured responses.
type mockExecutor struct {
	outputs map[string]string // "git arg1 arg2" -> stdout
	calls   []string
}

func (m *mockExecutor) Output(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	key := name + " " + strings.Join(args, " ")
	m.calls = append(m.calls, key)
	out, ok := m.outputs[key]
	if !ok {
		return nil, errors.New("command failed: " + key)
	}
	return []byte(out), nil
}

func newTestRepo(t *testing.T, outputs map[string]string) (*Repository, *mockExecutor) {
	t.Helper()
	if outputs == nil {
		outputs = map[string]string{}
	}
	outputs["git rev-parse --git-dir"] = ".git\n"
	m := &mockExecutor{outputs: outputs}
	r, err := open(context.Background(), t.TempDir(), m, nil)
	require.NoError(t, err)
	return r, m
}

func TestOpen(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := open(context.Background(), filepath.Join(t.TempDir(), "nope"), &mockExecutor{}, nil)
		require.Error(t, err)
	})

	t.Run("not a repository", func(t *testing.T) {
		_, err := open(context.Background(), t.TempDir(), &mockExecutor{}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is not a git repository")
	})

	t.Run("repository", func(t *testing.T) {
		r, _ := newTestRepo(t, nil)
		assert.NotEmpty(t, r.Dir())
	})
}

func TestHeadOID(t *testing.T) {
	r, _ := newTestRepo(t, map[string]string{
		"git rev-parse HEAD": "0123456789abcdef0123456789abcdef01234567\n",
	})
	oid, err := r.HeadOID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef01234567", oid)
}

func TestCheckout(t *testing.T) {
	r, m := newTestRepo(t, map[string]string{
		"git checkout --quiet v1": "",
	})
	require.NoError(t, r.Checkout(context.Background(), "v1"))
	assert.Contains(t, m.calls, "git checkout --quiet v1")

	err := r.Checkout(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checking out missing")

	require.Error(t, r.Checkout(context.Background(), ""))
}

func TestFilesModifiedSince(t *testing.T) {
	tests := []struct {
		name  string
		since string
		key   string
		out   string
		want  []string
	}{
		{
			name: "all tracked files",
			key:  "git ls-tree -r -z --name-only HEAD",
			out:  "config.json\x003/s/syn\x00se/rd/serde\x00",
			want: []string{"config.json", "3/s/syn", "se/rd/serde"},
		},
		{
			name:  "changed since revision",
			since: "abc123",
			key:   "git diff --name-only -z abc123 HEAD",
			out:   "se/rd/serde\x00",
			want:  []string{"se/rd/serde"},
		},
		{
			name:  "nothing changed",
			since: "HEAD",
			key:   "git diff --name-only -z HEAD HEAD",
			out:   "",
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRepo(t, map[string]string{tt.key: tt.out})
			got, err := r.FilesModifiedSince(context.Background(), tt.since)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilesModifiedSinceError(t *testing.T) {
	r, _ := newTestRepo(t, nil)
	_, err := r.FilesModifiedSince(context.Background(), "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing files")
}

func TestIndexFile(t *testing.T) {
	r, _ := newTestRepo(t, nil)
	assert.Equal(t, filepath.Join(r.Dir(), "se", "rd", "serde"), r.IndexFile("serde"))
	assert.Equal(t, filepath.Join(r.Dir(), "3", "s", "syn"), r.IndexFile("Syn"))
}
