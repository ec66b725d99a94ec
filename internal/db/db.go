package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// pragmas for every connection. WAL lets a second taskdeck window read the
// session while this one writes it.
const pragmas = "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

// DB is the local taskdeck store: the shared client storage that carries the
// session, plus the board snapshot cache.
type DB struct {
	*sql.DB
	path string
}

// Open creates path's directory if needed, opens the sqlite file and brings
// its schema up to date.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir for %s: %w", path, err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path+"?"+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// one connection, so writes from this process queue instead of hitting SQLITE_BUSY
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := upgrade(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("upgrade %s: %w", path, err)
	}
	return &DB{DB: conn, path: path}, nil
}

// upgrade applies any pending embedded migrations. The provider keeps goose
// quiet and off its package globals, so tests can open stores in parallel.
func upgrade(conn *sql.DB) error {
	dir, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, conn, dir)
	if err != nil {
		return err
	}
	_, err = p.Up(context.Background())
	return err
}

// Path is the file this store was opened from.
func (db *DB) Path() string { return db.path }

// Transaction runs fn in a transaction and commits it when fn returns nil.
func (db *DB) Transaction(fn func(*sql.Tx) error) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
