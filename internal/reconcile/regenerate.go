// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reconcile

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jmoiron/sqlx"

	"github.com/pdiddy/crates-admin/internal/batch"
	"github.com/pdiddy/crates-admin/internal/index"
	"github.com/pdiddy/crates-admin/internal/registry"
)

// RegenerateCrate rewrites the index file for crate name under root from
// the database, creating parent directories and replacing any existing
// content. It returns the path written.
func RegenerateCrate(ctx context.Context, q sqlx.ExtContext, root, name string) (string, error) {
	data, err := registry.IndexMetadata(ctx, q, name)
	if err != nil {
		return "", fmt.Errorf("regenerating %s: %w", name, err)
	}
	path := filepath.Join(root, index.RelativeIndexFile(name))
	if err := index.WriteFile(path, data); err != nil {
		return "", fmt.Errorf("regenerating %s: %w", name, err)
	}
	return path, nil
}

// RegenerateJob rewrites index files from the database, one crate per unit.
type RegenerateJob struct {
	DB   sqlx.ExtContext
	Root string

	// Crates limits the run to these names. Empty means every crate in the
	// database.
	Crates []string
}

func (j *RegenerateJob) Name() string { return "regenerate-index" }

func (j *RegenerateJob) Prompt() string {
	return "phase 2 - regenerate index from database, continue?"
}

// Discover returns the requested crates or every crate name in the
// database, ordered by name.
func (j *RegenerateJob) Discover(ctx context.Context, sink batch.Sink) ([]string, error) {
	if len(j.Crates) > 0 {
		return append([]string(nil), j.Crates...), nil
	}
	names, err := registry.ListCrateNames(ctx, j.DB)
	if err != nil {
		return nil, fmt.Errorf("listing crates: %w", err)
	}
	return names, nil
}

func (j *RegenerateJob) Process(ctx context.Context, name string, sink batch.Sink) error {
	_, err := RegenerateCrate(ctx, j.DB, j.Root, name)
	return err
}
