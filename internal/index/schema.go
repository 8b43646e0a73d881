// Package index loads the provenance tracking table into an immutable
// in-memory index keyed by provenance key.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/provscan/internal/apperr"
)

const (
	DefaultPath  = "/var/db/SystemPolicyConfiguration/ExecPolicy"
	DefaultTable = "provenance_tracking"
)

// SchemaSQL mirrors the columns read from the tracking table. The system
// owns the real schema; this one is used to build fixtures.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS provenance_tracking (
	pk                 INTEGER PRIMARY KEY,
	url                TEXT NOT NULL,
	bundle_id          TEXT,
	cdhash             TEXT,
	team_identifier    TEXT,
	signing_identifier TEXT,
	flags              INTEGER,
	timestamp          INTEGER NOT NULL,
	link_pk            INTEGER
);
`

// Load opens the database at path read-only, reads every row of table
// once and returns the resulting index. There is no partial result: any
// failure yields a *apperr.DatabaseError.
func Load(ctx context.Context, path, table string) (*Index, error) {
	conn, err := openReadOnly(path)
	if err != nil {
		return nil, &apperr.DatabaseError{Path: path, Err: err}
	}
	defer conn.Close()

	records, err := readAll(ctx, conn, table)
	if err != nil {
		return nil, &apperr.DatabaseError{Path: path, Err: err}
	}
	return New(records), nil
}

func openReadOnly(path string) (*sql.DB, error) {
	dsn := (&url.URL{Scheme: "file", Path: path, RawQuery: "mode=ro"}).String()
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	return conn, nil
}
