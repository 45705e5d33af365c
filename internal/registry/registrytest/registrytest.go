// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package registrytest builds throwaway SQLite registries for tests.
package registrytest

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pdiddy/crates-admin/internal/registry"
	"github.com/pdiddy/crates-admin/pkg/types"
)

// Version describes a version row to insert.
type Version struct {
	Num      string
	Checksum string
	Yanked   bool
	Links    *string
	Features map[string][]string
	Deps     []Dep
}

// Dep describes a dependency row. Crate must already exist.
type Dep struct {
	Crate           string
	Req             string
	Optional        bool
	DefaultFeatures bool
	Features        []string
	Target          *string
	Kind            int
	ExplicitName    *string
}

// NewStore opens a fresh SQLite registry with the schema applied.
func NewStore(t *testing.T) *registry.Store {
	t.Helper()
	cfg := types.DatabaseConfig{URL: "sqlite://" + filepath.Join(t.TempDir(), "registry.db")}
	store, err := registry.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

// AddCrate inserts a crate and its versions, returning the crate id.
func AddCrate(t *testing.T, store *registry.Store, name string, versions ...Version) int64 {
	t.Helper()
	db := store.DB()
	res, err := db.Exec(`INSERT INTO crates (name) VALUES (?)`, name)
	require.NoError(t, err)
	crateID, err := res.LastInsertId()
	require.NoError(t, err)

	for _, v := range versions {
		features := v.Features
		if features == nil {
			features = map[string][]string{}
		}
		featuresJSON, err := json.Marshal(features)
		require.NoError(t, err)

		res, err := db.Exec(
			`INSERT INTO versions (crate_id, num, checksum, yanked, links, features) VALUES (?, ?, ?, ?, ?, ?)`,
			crateID, v.Num, v.Checksum, v.Yanked, nullString(v.Links), string(featuresJSON))
		require.NoError(t, err)
		versionID, err := res.LastInsertId()
		require.NoError(t, err)

		for _, d := range v.Deps {
			depFeatures := d.Features
			if depFeatures == nil {
				depFeatures = []string{}
			}
			depFeaturesJSON, err := json.Marshal(depFeatures)
			require.NoError(t, err)

			_, err = db.Exec(
				`INSERT INTO dependencies (version_id, crate_id, req, optional, default_features, features, target, kind, explicit_name)
				 VALUES (?, (SELECT id FROM crates WHERE name = ?), ?, ?, ?, ?, ?, ?, ?)`,
				versionID, d.Crate, d.Req, d.Optional, d.DefaultFeatures, string(depFeaturesJSON),
				nullString(d.Target), d.Kind, nullString(d.ExplicitName))
			require.NoError(t, err)
		}
	}
	return crateID
}

// Links returns the stored links value for name#vers; ok is false when NULL.
func Links(t *testing.T, store *registry.Store, name, vers string) (links string, ok bool) {
	t.Helper()
	var v sql.NullString
	err := store.DB().Get(&v,
		`SELECT v.links FROM versions v INNER JOIN crates c ON c.id = v.crate_id WHERE c.name = ? AND v.num = ?`,
		name, vers)
	require.NoError(t, err)
	return v.String, v.Valid
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
