package recording

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/oszuidwest/zwfm-cliprec/internal/util"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// CatalogFile is the name of the catalog database inside the storage directory.
const CatalogFile = "catalog.db"

const schema = `
CREATE TABLE IF NOT EXISTS recordings (
	file       TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	duration   REAL NOT NULL
);`

// catalog persists recording metadata. Rows are keyed by file name relative
// to the storage directory so the directory can be moved.
type catalog struct {
	db *sql.DB
}

// row is one catalog entry.
type row struct {
	File      string
	Name      string
	CreatedAt time.Time
	Duration  float64
}

func openCatalog(path string) (*catalog, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, util.WrapError("open catalog", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		util.SafeClose(db, "catalog")
		return nil, util.WrapError("create catalog schema", err)
	}
	return &catalog{db: db}, nil
}

func (c *catalog) all(ctx context.Context) ([]row, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT file, name, created_at, duration FROM recordings`)
	if err != nil {
		return nil, util.WrapError("query catalog", err)
	}
	defer util.SafeCloseFunc(rows, "catalog rows")()

	var out []row
	for rows.Next() {
		var r row
		var created int64
		if err := rows.Scan(&r.File, &r.Name, &created, &r.Duration); err != nil {
			return nil, util.WrapError("scan catalog row", err)
		}
		r.CreatedAt = time.Unix(0, created)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, util.WrapError("read catalog", err)
	}
	return out, nil
}

// insert adds r and reports whether a row was written. An existing row for
// the same file is left untouched.
func (c *catalog) insert(ctx context.Context, r row) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO recordings (file, name, created_at, duration) VALUES (?, ?, ?, ?)`,
		r.File, r.Name, r.CreatedAt.UnixNano(), r.Duration)
	if err != nil {
		return false, fmt.Errorf("%w: %w", types.ErrStorageWriteFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, util.WrapError("read catalog result", err)
	}
	return n > 0, nil
}

func (c *catalog) remove(ctx context.Context, file string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM recordings WHERE file = ?`, file); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStorageWriteFailure, err)
	}
	return nil
}

func (c *catalog) rename(ctx context.Context, file, name string) error {
	if _, err := c.db.ExecContext(ctx, `UPDATE recordings SET name = ? WHERE file = ?`, name, file); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStorageWriteFailure, err)
	}
	return nil
}

func (c *catalog) Close() error {
	return c.db.Close()
}
