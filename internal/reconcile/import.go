// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reconcile moves data between the index tree and the registry
// database: importing fields the database is missing from index files, and
// regenerating index files from the database.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/pdiddy/crates-admin/internal/batch"
	"github.com/pdiddy/crates-admin/internal/index"
	"github.com/pdiddy/crates-admin/internal/registry"
	"github.com/pdiddy/crates-admin/pkg/types"
)

// Transactor runs fn inside a single database transaction, committing when
// fn returns nil and rolling back otherwise.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// Edit is one record whose import changed the database.
type Edit struct {
	ID   string
	Rows int64
}

// FileResult describes a committed file import.
type FileResult struct {
	Path    string
	Records int
	Edits   []Edit
}

// ImportFile reconciles every record of the index file at path against the
// database in one transaction. Either every qualifying update commits or
// none does. Edits are only returned after a successful commit.
func ImportFile(ctx context.Context, db Transactor, path string) (FileResult, error) {
	result := FileResult{Path: path}

	f, err := os.Open(path)
	if err != nil {
		return FileResult{Path: path}, fmt.Errorf("importing %s: %w", path, err)
	}
	defer f.Close()

	err = db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return index.ScanRecords(f, func(rec types.IndexRecord) error {
			result.Records++
			n, err := registry.ImportLinks(ctx, tx, rec)
			if err != nil {
				return err
			}
			if n > 0 {
				result.Edits = append(result.Edits, Edit{ID: rec.ID(), Rows: n})
			}
			return nil
		})
	})
	if err != nil {
		return FileResult{Path: path}, fmt.Errorf("importing %s: %w", path, err)
	}
	return result, nil
}

// Repository is a checkout of the index that can list changed files.
type Repository interface {
	Checkout(ctx context.Context, rev string) error
	HeadOID(ctx context.Context) (string, error)
	FilesModifiedSince(ctx context.Context, since string) ([]string, error)
	IndexFile(name string) string
}

// ImportJob imports links from index files changed in a git checkout.
type ImportJob struct {
	Repo Repository
	DB   Transactor

	// Revision, when set, is checked out before discovery.
	Revision string
	// Since limits discovery to files changed between Since and HEAD.
	// Empty means every tracked file.
	Since string
}

func (j *ImportJob) Name() string   { return "git-import" }
func (j *ImportJob) Prompt() string { return "continue?" }

// Discover checks out the requested revision and lists changed index files.
func (j *ImportJob) Discover(ctx context.Context, sink batch.Sink) ([]string, error) {
	if j.Revision != "" {
		if err := j.Repo.Checkout(ctx, j.Revision); err != nil {
			return nil, err
		}
	}
	oid, err := j.Repo.HeadOID(ctx)
	if err != nil {
		return nil, err
	}
	sink.Printf("HEAD is at %s", oid)

	files, err := j.Repo.FilesModifiedSince(ctx, j.Since)
	if err != nil {
		return nil, err
	}
	var units []string
	for _, file := range files {
		if !skipPath(file) {
			units = append(units, file)
		}
	}
	return units, nil
}

// Process imports the index file for the crate named by unit's base name.
// A file deleted since discovery is skipped.
func (j *ImportJob) Process(ctx context.Context, unit string, sink batch.Sink) error {
	file := j.Repo.IndexFile(path.Base(unit))
	if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
		return batch.Skip("skipping %s", file)
	}

	res, err := ImportFile(ctx, j.DB, file)
	if err != nil {
		if registry.IsTransient(err) {
			return fmt.Errorf("%w (transient, safe to re-run)", err)
		}
		return err
	}
	for _, e := range res.Edits {
		sink.Printf("edited %d rows for %s", e.Rows, e.ID)
	}
	return nil
}

// skipPath reports whether any element of a slash-separated tree path is
// excluded from import.
func skipPath(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if part != "" && index.DefaultSkip(part) {
			return true
		}
	}
	return false
}
