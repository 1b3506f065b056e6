// Package prefix implements Pahkat's tarball/prefix platform store: xz+tar
// extraction into a user-chosen prefix directory, tracked in a local SQLite
// database (spec §4.7 "Prefix backend"), ported from
// original_source/pahkat-client-core/src/package_store/prefix.rs with the
// connection-pool setup grounded on a-h-depot's store/store.go
// newSqliteStore.
package prefix

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS packages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL UNIQUE,
	version TEXT NOT NULL,
	installed_on TEXT NOT NULL,
	updated_on TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS packages_files (
	package_id INTEGER NOT NULL REFERENCES packages(id),
	file_path TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS packages_dependencies (
	package_id INTEGER NOT NULL REFERENCES packages(id),
	dependency_id TEXT NOT NULL
);
`

// db wraps a pooled sqlite connection for the prefix package database
// (spec §4.7: "packages / packages_files / packages_dependencies tables").
type db struct {
	pool *sqlitex.Pool
}

func openDB(path string) (*db, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		Flags:    sqlite.OpenReadWrite | sqlite.OpenCreate,
		PoolSize: 4,
	})
	if err != nil {
		return nil, fmt.Errorf("prefix store: opening database: %w", err)
	}
	conn, err := pool.Take(context.Background())
	if err != nil {
		return nil, fmt.Errorf("prefix store: acquiring connection: %w", err)
	}
	defer pool.Put(conn)
	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		return nil, fmt.Errorf("prefix store: applying schema: %w", err)
	}
	return &db{pool: pool}, nil
}

func (d *db) Close() error {
	return d.pool.Close()
}

// record mirrors original_source's PackageDbRecord: a package URL (without
// query params), its installed version, the files it unpacked, and the
// dependency ids recorded at install time.
type record struct {
	id           int64
	url          string
	version      string
	installedOn  string
	updatedOn    string
	files        []string
	dependencies []string
}

func (d *db) findByURL(ctx context.Context, url string) (*record, error) {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer d.pool.Put(conn)

	var rec *record
	err = sqlitex.Execute(conn, `SELECT id, url, version, installed_on, updated_on FROM packages WHERE url = ?`, &sqlitex.ExecOptions{
		Args: []interface{}{url},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			rec = &record{
				id:          stmt.GetInt64("id"),
				url:         stmt.GetText("url"),
				version:     stmt.GetText("version"),
				installedOn: stmt.GetText("installed_on"),
				updatedOn:   stmt.GetText("updated_on"),
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	err = sqlitex.Execute(conn, `SELECT file_path FROM packages_files WHERE package_id = ?`, &sqlitex.ExecOptions{
		Args: []interface{}{rec.id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			rec.files = append(rec.files, stmt.GetText("file_path"))
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	err = sqlitex.Execute(conn, `SELECT dependency_id FROM packages_dependencies WHERE package_id = ?`, &sqlitex.ExecOptions{
		Args: []interface{}{rec.id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			rec.dependencies = append(rec.dependencies, stmt.GetText("dependency_id"))
			return nil
		},
	})
	return rec, err
}

// save replaces any existing row for rec.url with rec's files and
// dependencies, inside one transaction (spec §4.7: "transactional packages
// row replace").
func (d *db) save(ctx context.Context, rec *record) error {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer d.pool.Put(conn)

	endFn := sqlitex.Transaction(conn)
	defer endFn(&err)

	now := time.Now().UTC().Format(time.RFC3339)

	var existingID int64 = -1
	if err = sqlitex.Execute(conn, `SELECT id FROM packages WHERE url = ?`, &sqlitex.ExecOptions{
		Args: []interface{}{rec.url},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			existingID = stmt.GetInt64("id")
			return nil
		},
	}); err != nil {
		return err
	}

	if existingID >= 0 {
		if err = sqlitex.Execute(conn, `DELETE FROM packages_files WHERE package_id = ?`, &sqlitex.ExecOptions{Args: []interface{}{existingID}}); err != nil {
			return err
		}
		if err = sqlitex.Execute(conn, `DELETE FROM packages_dependencies WHERE package_id = ?`, &sqlitex.ExecOptions{Args: []interface{}{existingID}}); err != nil {
			return err
		}
		// installed_on is left untouched on an update, only updated_on advances
		// (original_source's replace_pkg: ON CONFLICT(url) DO UPDATE SET
		// version=excluded.version, updated_on=excluded.updated_on).
		if err = sqlitex.Execute(conn, `UPDATE packages SET version = ?, updated_on = ? WHERE id = ?`, &sqlitex.ExecOptions{Args: []interface{}{rec.version, now, existingID}}); err != nil {
			return err
		}
		rec.id = existingID
		rec.updatedOn = now
	} else {
		if err = sqlitex.Execute(conn, `INSERT INTO packages (url, version, installed_on, updated_on) VALUES (?, ?, ?, ?)`, &sqlitex.ExecOptions{Args: []interface{}{rec.url, rec.version, now, now}}); err != nil {
			return err
		}
		rec.id = conn.LastInsertRowID()
		rec.installedOn = now
		rec.updatedOn = now
	}

	for _, f := range rec.files {
		if err = sqlitex.Execute(conn, `INSERT INTO packages_files (package_id, file_path) VALUES (?, ?)`, &sqlitex.ExecOptions{Args: []interface{}{rec.id, f}}); err != nil {
			return err
		}
	}
	for _, depID := range rec.dependencies {
		if err = sqlitex.Execute(conn, `INSERT INTO packages_dependencies (package_id, dependency_id) VALUES (?, ?)`, &sqlitex.ExecOptions{Args: []interface{}{rec.id, depID}}); err != nil {
			return err
		}
	}
	return nil
}

func (d *db) delete(ctx context.Context, rec *record) error {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer d.pool.Put(conn)

	endFn := sqlitex.Transaction(conn)
	defer endFn(&err)

	if err = sqlitex.Execute(conn, `DELETE FROM packages WHERE id = ?`, &sqlitex.ExecOptions{Args: []interface{}{rec.id}}); err != nil {
		return err
	}
	if err = sqlitex.Execute(conn, `DELETE FROM packages_files WHERE package_id = ?`, &sqlitex.ExecOptions{Args: []interface{}{rec.id}}); err != nil {
		return err
	}
	err = sqlitex.Execute(conn, `DELETE FROM packages_dependencies WHERE package_id = ?`, &sqlitex.ExecOptions{Args: []interface{}{rec.id}})
	return err
}

func (d *db) allInstalledURLs(ctx context.Context) (map[string]string, error) {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer d.pool.Put(conn)

	out := make(map[string]string)
	err = sqlitex.Execute(conn, `SELECT url, version FROM packages`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out[stmt.GetText("url")] = stmt.GetText("version")
			return nil
		},
	})
	return out, err
}
