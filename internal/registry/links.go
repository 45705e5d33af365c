// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pdiddy/crates-admin/pkg/types"
)

// VersionID returns the versions.id row for crate name at version vers.
// A missing row is reported as *NotFoundError.
func VersionID(ctx context.Context, q sqlx.ExtContext, name, vers string) (int64, error) {
	var id int64
	err := sqlx.GetContext(ctx, q, &id, q.Rebind(
		`SELECT v.id FROM versions v
		 INNER JOIN crates c ON c.id = v.crate_id
		 WHERE c.name = ? AND v.num = ?`), name, vers)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &NotFoundError{Name: name, Version: vers}
	}
	if err != nil {
		return 0, fmt.Errorf("resolving %s#%s: %w", name, vers, err)
	}
	return id, nil
}

// UpdateLinks sets versions.links on row id only when it is currently NULL
// and returns the number of rows changed. A row that already has a value,
// equal or not, is left alone and reports 0.
func UpdateLinks(ctx context.Context, q sqlx.ExtContext, id int64, links string) (int64, error) {
	res, err := q.ExecContext(ctx, q.Rebind(
		`UPDATE versions SET links = ? WHERE id = ? AND links IS NULL`), links, id)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ImportLinks copies rec.Links into the database when the stored value is
// NULL. Records without links are skipped before any query runs. Running it
// again after a successful import is a no-op.
func ImportLinks(ctx context.Context, q sqlx.ExtContext, rec types.IndexRecord) (int64, error) {
	if rec.Links == nil {
		return 0, nil
	}

	id, err := VersionID(ctx, q, rec.Name, rec.Vers)
	if err != nil {
		return 0, fmt.Errorf("updating crate %s: %w", rec.ID(), err)
	}

	n, err := UpdateLinks(ctx, q, id, *rec.Links)
	if err != nil {
		return 0, fmt.Errorf("updating links of %s (id: %d): %w", rec.ID(), id, err)
	}
	return n, nil
}
