// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/mod/semver"

	"github.com/pdiddy/crates-admin/internal/index"
	"github.com/pdiddy/crates-admin/pkg/types"
)

// Crate is a crate row.
type Crate struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

type versionRow struct {
	ID          int64          `db:"id"`
	Num         string         `db:"num"`
	Checksum    string         `db:"checksum"`
	Yanked      bool           `db:"yanked"`
	Links       sql.NullString `db:"links"`
	Features    string         `db:"features"`
	RustVersion sql.NullString `db:"rust_version"`
}

type dependencyRow struct {
	VersionID       int64          `db:"version_id"`
	CrateName       string         `db:"crate_name"`
	Req             string         `db:"req"`
	Optional        bool           `db:"optional"`
	DefaultFeatures bool           `db:"default_features"`
	Features        string         `db:"features"`
	Target          sql.NullString `db:"target"`
	Kind            int            `db:"kind"`
	ExplicitName    sql.NullString `db:"explicit_name"`
}

// dependencyKinds maps the dependencies.kind column to its index name.
var dependencyKinds = []types.DependencyKind{types.KindNormal, types.KindBuild, types.KindDev}

// ListCrateNames returns every crate name, sorted.
func ListCrateNames(ctx context.Context, q sqlx.ExtContext) ([]string, error) {
	var names []string
	if err := sqlx.SelectContext(ctx, q, &names, `SELECT name FROM crates ORDER BY name`); err != nil {
		return nil, fmt.Errorf("listing crates: %w", err)
	}
	return names, nil
}

// CrateByName loads the crate with exactly this name.
func CrateByName(ctx context.Context, q sqlx.ExtContext, name string) (Crate, error) {
	var c Crate
	err := sqlx.GetContext(ctx, q, &c, q.Rebind(`SELECT id, name FROM crates WHERE name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return Crate{}, &NotFoundError{Name: name}
	}
	if err != nil {
		return Crate{}, fmt.Errorf("loading crate %s: %w", name, err)
	}
	return c, nil
}

// IndexRecords derives the index records for every version of c in
// ascending semver order, with dependencies in canonical order.
func (c Crate) IndexRecords(ctx context.Context, q sqlx.ExtContext) ([]types.IndexRecord, error) {
	versionFeatures, depFeatures := "v.features", "d.features"
	if isPostgres(q) {
		versionFeatures, depFeatures = "v.features::text", "array_to_json(d.features)::text"
	}

	var versions []versionRow
	err := sqlx.SelectContext(ctx, q, &versions, q.Rebind(
		`SELECT v.id, v.num, v.checksum, v.yanked, v.links, `+versionFeatures+` AS features, v.rust_version
		 FROM versions v WHERE v.crate_id = ?`), c.ID)
	if err != nil {
		return nil, fmt.Errorf("loading versions of %s: %w", c.Name, err)
	}

	var deps []dependencyRow
	err = sqlx.SelectContext(ctx, q, &deps, q.Rebind(
		`SELECT d.version_id, c.name AS crate_name, d.req, d.optional, d.default_features,
		        `+depFeatures+` AS features, d.target, d.kind, d.explicit_name
		 FROM dependencies d
		 INNER JOIN versions v ON v.id = d.version_id
		 INNER JOIN crates c ON c.id = d.crate_id
		 WHERE v.crate_id = ?`), c.ID)
	if err != nil {
		return nil, fmt.Errorf("loading dependencies of %s: %w", c.Name, err)
	}

	byVersion := make(map[int64][]types.Dependency, len(versions))
	for _, d := range deps {
		dep, err := d.toDependency()
		if err != nil {
			return nil, fmt.Errorf("dependency %s of %s: %w", d.CrateName, c.Name, err)
		}
		byVersion[d.VersionID] = append(byVersion[d.VersionID], dep)
	}

	sort.SliceStable(versions, func(i, j int) bool {
		return compareVersions(versions[i].Num, versions[j].Num) < 0
	})

	recs := make([]types.IndexRecord, 0, len(versions))
	for _, v := range versions {
		rec, err := v.toRecord(c.Name, byVersion[v.ID])
		if err != nil {
			return nil, fmt.Errorf("version %s#%s: %w", c.Name, v.Num, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// IndexMetadata returns the full index file contents for the named crate.
func IndexMetadata(ctx context.Context, q sqlx.ExtContext, name string) ([]byte, error) {
	c, err := CrateByName(ctx, q, name)
	if err != nil {
		return nil, err
	}
	recs, err := c.IndexRecords(ctx, q)
	if err != nil {
		return nil, err
	}
	return index.EncodeRecords(recs)
}

func (v versionRow) toRecord(name string, deps []types.Dependency) (types.IndexRecord, error) {
	var all map[string][]string
	if v.Features != "" {
		if err := json.Unmarshal([]byte(v.Features), &all); err != nil {
			return types.IndexRecord{}, fmt.Errorf("parsing features: %w", err)
		}
	}
	features, features2 := splitFeatures(all)

	index.SortDeps(deps)
	yanked := v.Yanked
	rec := types.IndexRecord{
		Name:      name,
		Vers:      v.Num,
		Deps:      deps,
		Cksum:     v.Checksum,
		Features:  features,
		Features2: features2,
		Yanked:    &yanked,
	}
	if v.Links.Valid {
		links := v.Links.String
		rec.Links = &links
	}
	if v.RustVersion.Valid {
		rec.RustVersion = v.RustVersion.String
	}
	if features2 != nil {
		rec.V = 2
	}
	return rec, nil
}

func (d dependencyRow) toDependency() (types.Dependency, error) {
	dep := types.Dependency{
		Name:            d.CrateName,
		Req:             d.Req,
		Features:        []string{},
		Optional:        d.Optional,
		DefaultFeatures: d.DefaultFeatures,
	}
	if d.Features != "" {
		if err := json.Unmarshal([]byte(d.Features), &dep.Features); err != nil {
			return types.Dependency{}, fmt.Errorf("parsing features: %w", err)
		}
	}
	if d.Target.Valid {
		target := d.Target.String
		dep.Target = &target
	}
	if d.Kind < 0 || d.Kind >= len(dependencyKinds) {
		return types.Dependency{}, fmt.Errorf("unknown dependency kind %d", d.Kind)
	}
	kind := dependencyKinds[d.Kind]
	dep.Kind = &kind
	if d.ExplicitName.Valid && d.ExplicitName.String != "" {
		dep.Name = d.ExplicitName.String
		dep.Package = d.CrateName
	}
	return dep, nil
}

// splitFeatures moves features that use the "dep:" or "?/" syntax into a
// second map, which older clients ignore. features2 is nil when empty.
func splitFeatures(all map[string][]string) (features, features2 map[string][]string) {
	features = make(map[string][]string, len(all))
	for name, values := range all {
		if usesNewSyntax(values) {
			if features2 == nil {
				features2 = make(map[string][]string)
			}
			features2[name] = values
			continue
		}
		features[name] = values
	}
	return features, features2
}

func usesNewSyntax(values []string) bool {
	for _, v := range values {
		if strings.HasPrefix(v, "dep:") || strings.Contains(v, "?/") {
			return true
		}
	}
	return false
}

// compareVersions orders by semver precedence and falls back to the raw
// string for versions that compare equal (build metadata) or do not parse.
func compareVersions(a, b string) int {
	if c := semver.Compare("v"+a, "v"+b); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}
