// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/crates-admin/internal/batch"
	"github.com/pdiddy/crates-admin/internal/index"
	"github.com/pdiddy/crates-admin/internal/registry"
	"github.com/pdiddy/crates-admin/internal/registry/registrytest"
)

func strPtr(s string) *string { return &s }

// writeIndexFile writes lines to the sharded location of name under root.
func writeIndexFile(t *testing.T, root, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(root, index.RelativeIndexFile(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func line(name, vers, links string) string {
	l := `null`
	if links != "" {
		l = `"` + links + `"`
	}
	return `{"name":"` + name + `","vers":"` + vers + `","deps":[],"cksum":"00","features":{},"yanked":false,"links":` + l + `}`
}

// fakeRepo serves files from a directory without running git.
type fakeRepo struct {
	root     string
	files    []string
	head     string
	checkout []string
	listErr  error
}

func (r *fakeRepo) Checkout(ctx context.Context, rev string) error {
	r.checkout = append(r.checkout, rev)
	return nil
}

func (r *fakeRepo) HeadOID(ctx context.Context) (string, error) { return r.head, nil }

func (r *fakeRepo) FilesModifiedSince(ctx context.Context, since string) ([]string, error) {
	return r.files, r.listErr
}

func (r *fakeRepo) IndexFile(name string) string {
	return filepath.Join(r.root, index.RelativeIndexFile(name))
}

// --- ImportFile ---

func TestImportFileIsIdempotent(t *testing.T) {
	store := registrytest.NewStore(t)
	registrytest.AddCrate(t, store, "openssl-sys",
		registrytest.Version{Num: "0.9.0"},
		registrytest.Version{Num: "0.9.1"},
		registrytest.Version{Num: "0.9.2", Links: strPtr("openssl")},
	)
	path := writeIndexFile(t, t.TempDir(), "openssl-sys",
		line("openssl-sys", "0.9.0", "openssl"),
		line("openssl-sys", "0.9.1", ""),
		line("openssl-sys", "0.9.2", "openssl"),
	)
	ctx := context.Background()

	res, err := ImportFile(ctx, store, path)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Records)
	assert.Equal(t, []Edit{{ID: "openssl-sys#0.9.0", Rows: 1}}, res.Edits)

	res, err = ImportFile(ctx, store, path)
	require.NoError(t, err)
	assert.Empty(t, res.Edits, "second import must change nothing")

	_, ok := registrytest.Links(t, store, "openssl-sys", "0.9.1")
	assert.False(t, ok, "records without links never touch the database")
}

func TestImportFileRollsBackOnParseError(t *testing.T) {
	store := registrytest.NewStore(t)
	registrytest.AddCrate(t, store, "foo", registrytest.Version{Num: "1.0.0"})
	path := writeIndexFile(t, t.TempDir(), "foo",
		line("foo", "1.0.0", "foo"),
		`{"name":"foo","vers":`,
	)

	_, err := ImportFile(context.Background(), store, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)

	var pe *index.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)

	_, ok := registrytest.Links(t, store, "foo", "1.0.0")
	assert.False(t, ok, "update from line 1 must be rolled back")
}

func TestImportFileRollsBackOnUnknownVersion(t *testing.T) {
	store := registrytest.NewStore(t)
	registrytest.AddCrate(t, store, "foo", registrytest.Version{Num: "1.0.0"})
	path := writeIndexFile(t, t.TempDir(), "foo",
		line("foo", "1.0.0", "foo"),
		line("foo", "2.0.0", "foo"),
	)

	_, err := ImportFile(context.Background(), store, path)
	require.ErrorIs(t, err, registry.ErrNotFound)
	assert.Contains(t, err.Error(), "foo#2.0.0")

	_, ok := registrytest.Links(t, store, "foo", "1.0.0")
	assert.False(t, ok)
}

func TestImportFileRollsBackWhenAnUpdateFails(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	store := registry.New(sqlx.NewDb(mockDB, "sqlmock"), nil)

	path := writeIndexFile(t, t.TempDir(), "foo",
		line("foo", "1.0.0", "a"),
		line("foo", "1.1.0", "a"),
	)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT v.id FROM versions`).
		WithArgs("foo", "1.0.0").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec(`UPDATE versions SET links`).
		WithArgs("a", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT v.id FROM versions`).
		WithArgs("foo", "1.1.0").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectExec(`UPDATE versions SET links`).
		WithArgs("a", int64(2)).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	res, err := ImportFile(context.Background(), store, path)
	require.Error(t, err)
	assert.Empty(t, res.Edits, "no edits are reported for a rolled back file")
	assert.Contains(t, err.Error(), "foo#1.1.0")
	assert.Contains(t, err.Error(), "id: 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImportFileMissing(t *testing.T) {
	store := registrytest.NewStore(t)
	_, err := ImportFile(context.Background(), store, filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// --- ImportJob ---

func TestImportJobIsolatesFailures(t *testing.T) {
	store := registrytest.NewStore(t)
	for _, name := range []string{"aaaa", "bbbb", "cccc"} {
		registrytest.AddCrate(t, store, name, registrytest.Version{Num: "1.0.0"}, registrytest.Version{Num: "1.1.0"})
	}
	root := t.TempDir()
	writeIndexFile(t, root, "aaaa", line("aaaa", "1.0.0", "a"), line("aaaa", "1.1.0", "a"))
	bad := writeIndexFile(t, root, "bbbb", line("bbbb", "1.0.0", "b"), `{not json`)
	writeIndexFile(t, root, "cccc", line("cccc", "1.0.0", "c"))

	repo := &fakeRepo{
		root: root,
		head: "deadbeef",
		files: []string{
			"config.json",
			".github/workflows/ci.yml",
			"aa/aa/aaaa",
			"bb/bb/bbbb",
			"cc/cc/cccc",
			"dd/dd/dddd",
		},
	}
	job := &ImportJob{Repo: repo, DB: store, Revision: "v2"}

	var out strings.Builder
	d := &batch.Driver{Sink: batch.NewWriterSink(&out, false), Confirm: batch.Always(true)}
	summary, err := d.Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, []string{"v2"}, repo.checkout)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped, "dddd was deleted from the tree")
	require.Len(t, summary.Failures, 1)
	assert.Contains(t, summary.Failures[0].Error, bad)

	text := out.String()
	assert.Contains(t, text, "HEAD is at deadbeef\n")
	assert.Contains(t, text, "found 4 crates\n")
	assert.Contains(t, text, "edited 1 rows for aaaa#1.0.0\n")
	assert.Contains(t, text, "edited 1 rows for aaaa#1.1.0\n")
	assert.Contains(t, text, "edited 1 rows for cccc#1.0.0\n")
	assert.NotContains(t, text, "edited 1 rows for bbbb")

	_, ok := registrytest.Links(t, store, "bbbb", "1.0.0")
	assert.False(t, ok, "failed file must leave the database untouched")
	links, ok := registrytest.Links(t, store, "cccc", "1.0.0")
	require.True(t, ok)
	assert.Equal(t, "c", links)
}

func TestImportJobMarksTransientFailures(t *testing.T) {
	tests := []struct {
		name      string
		updateErr error
		transient bool
	}{
		{"deadlock", &pgconn.PgError{Code: pgerrcode.DeadlockDetected, Message: "deadlock detected"}, true},
		{"constraint violation", &pgconn.PgError{Code: pgerrcode.CheckViolation, Message: "check violation"}, false},
		{"plain error", errors.New("disk full"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockDB, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer mockDB.Close()
			store := registry.New(sqlx.NewDb(mockDB, "sqlmock"), nil)

			root := t.TempDir()
			writeIndexFile(t, root, "foo", line("foo", "1.0.0", "a"))
			job := &ImportJob{Repo: &fakeRepo{root: root}, DB: store}

			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT v.id FROM versions`).
				WithArgs("foo", "1.0.0").
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
			mock.ExpectExec(`UPDATE versions SET links`).
				WithArgs("a", int64(7)).
				WillReturnError(tt.updateErr)
			mock.ExpectRollback()

			var out strings.Builder
			err = job.Process(context.Background(), "3/f/foo", batch.NewWriterSink(&out, false))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.updateErr)
			assert.Equal(t, tt.transient, strings.HasSuffix(err.Error(), "(transient, safe to re-run)"))
			assert.Equal(t, tt.transient, registry.IsTransient(err))
			assert.NotContains(t, out.String(), "edited")
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestImportJobDiscoverError(t *testing.T) {
	repo := &fakeRepo{listErr: errors.New("bad revision")}
	job := &ImportJob{Repo: repo, Since: "nope"}
	d := &batch.Driver{Confirm: batch.Always(true)}
	_, err := d.Run(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad revision")
}

func TestSkipPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"config.json", true},
		{".github/workflows/ci.yml", true},
		{"se/rd/serde", false},
		{"3/s/syn", false},
		{"se/.rd/serde", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, skipPath(tt.path))
		})
	}
}

// --- regeneration ---

func TestRegenerateCrateRoundTrip(t *testing.T) {
	store := registrytest.NewStore(t)
	registrytest.AddCrate(t, store, "openssl-sys",
		registrytest.Version{Num: "0.10.0", Checksum: "bb", Links: strPtr("openssl")},
		registrytest.Version{Num: "0.9.0", Checksum: "aa"},
	)
	root := t.TempDir()
	ctx := context.Background()

	path, err := RegenerateCrate(ctx, store.DB(), root, "openssl-sys")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "op", "en", "openssl-sys"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	recs, err := index.ParseRecords(strings.NewReader(string(data)))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "0.9.0", recs[0].Vers)
	assert.Equal(t, "0.10.0", recs[1].Vers)

	res, err := ImportFile(ctx, store, path)
	require.NoError(t, err)
	assert.Empty(t, res.Edits, "a regenerated file carries nothing new")

	// Normalizing a regenerated file changes nothing.
	require.NoError(t, index.NormalizeFile(path))
	again, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestRegenerateCrateOverwrites(t *testing.T) {
	store := registrytest.NewStore(t)
	registrytest.AddCrate(t, store, "foo", registrytest.Version{Num: "1.0.0", Checksum: "aa"})
	root := t.TempDir()
	path := writeIndexFile(t, root, "foo", "stale garbage", "more garbage")

	_, err := RegenerateCrate(context.Background(), store.DB(), root, "foo")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "garbage")
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
}

func TestRegenerateJob(t *testing.T) {
	store := registrytest.NewStore(t)
	registrytest.AddCrate(t, store, "serde", registrytest.Version{Num: "1.0.0"})
	registrytest.AddCrate(t, store, "a", registrytest.Version{Num: "0.1.0"})
	root := t.TempDir()

	t.Run("all crates", func(t *testing.T) {
		var out strings.Builder
		d := &batch.Driver{Sink: batch.NewWriterSink(&out, false), Confirm: batch.Always(true)}
		summary, err := d.Run(context.Background(), &RegenerateJob{DB: store.DB(), Root: root})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Processed)
		assert.FileExists(t, filepath.Join(root, "se", "rd", "serde"))
		assert.FileExists(t, filepath.Join(root, "1", "a"))
		assert.Contains(t, out.String(), "found 2 crates")
	})

	t.Run("unknown crate is isolated", func(t *testing.T) {
		d := &batch.Driver{Confirm: batch.Always(true)}
		job := &RegenerateJob{DB: store.DB(), Root: root, Crates: []string{"missing", "serde"}}
		summary, err := d.Run(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Processed)
		assert.Equal(t, 1, summary.Failed)
		assert.Contains(t, summary.Failures[0].Error, "crate missing not found")
	})
}
