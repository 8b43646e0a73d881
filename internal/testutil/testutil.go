// Package testutil provides shared test helpers for provenance databases
// and scan trees.
package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/provscan/internal/index"
	"github.com/starford/provscan/internal/models"
	"github.com/starford/provscan/internal/tag"
)

// ProvenanceDB writes records into a fresh SQLite database carrying the
// tracking table and returns its path. The file is removed on cleanup.
func ProvenanceDB(t *testing.T, records ...models.Record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ExecPolicy")

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Exec(index.SchemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	stmt, err := conn.Prepare(`
		INSERT INTO provenance_tracking
			(pk, url, bundle_id, cdhash, team_identifier, signing_identifier, flags, timestamp, link_pk)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.Exec(int64(r.PK), r.URL, r.BundleID, r.CDHash, r.TeamIdentifier,
			r.SigningIdentifier, r.Flags, r.Timestamp, r.LinkPK); err != nil {
			t.Fatalf("insert %s: %v", r.PK, err)
		}
	}
	return path
}

// ChromeKey is the key of ChromeRecord.
var ChromeKey = tag.Key(int64(-0x41777ec5935fa5f5)) // 0xbe88813a6ca05a0b

// ChromeRecord is a representative row for a browser download.
func ChromeRecord() models.Record {
	return models.Record{
		PK:             ChromeKey,
		URL:            "/Applications/Google Chrome.app",
		BundleID:       sql.NullString{String: "com.google.Chrome", Valid: true},
		TeamIdentifier: sql.NullString{String: "EQHXZ8M8AV", Valid: true},
		Timestamp:      1732247128,
	}
}

// Tree creates the given relative files (with empty content) under a new
// temporary directory and returns its path.
func Tree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		p := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}
