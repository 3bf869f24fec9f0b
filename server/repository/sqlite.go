package repository

import (
	"database/sql"
	"fmt"
	"regexp"
	"sync"

	"github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3_relay"

var registerOnce sync.Once

func regex(re, s string) (bool, error) {
	return regexp.MatchString(re, s)
}

// OpenSQLite opens path with a driver that understands the REGEXP operator
// and makes sure the rooms table exists.
func OpenSQLite(path string) (*sql.DB, error) {
	registerOnce.Do(func() {
		sql.Register(driverName,
			&sqlite3.SQLiteDriver{
				ConnectHook: func(conn *sqlite3.SQLiteConn) error {
					return conn.RegisterFunc("regexp", regex, true)
				},
			})
	})
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite: %w", err)
	}
	// writes are serialised by sqlite anyway; one connection keeps :memory: shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating schema: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	key        TEXT PRIMARY KEY CHECK (key REGEXP '^\w+$'),
	owner      TEXT NOT NULL,
	topic      TEXT NOT NULL DEFAULT '',
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS rooms_expires_at ON rooms (expires_at);
`
