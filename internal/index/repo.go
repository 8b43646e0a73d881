package index

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/starford/provscan/internal/models"
	"github.com/starford/provscan/internal/tag"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidTable reports whether name can be used as an unquoted table name.
func ValidTable(name string) bool {
	return identRe.MatchString(name)
}

// readAll scans every row of table into records, in table order.
func readAll(ctx context.Context, conn *sql.DB, table string) ([]models.Record, error) {
	if !ValidTable(table) {
		return nil, fmt.Errorf("index: invalid table name %q", table)
	}
	rows, err := conn.QueryContext(ctx, `
		SELECT pk, url, bundle_id, cdhash, team_identifier, signing_identifier,
		       flags, timestamp, link_pk
		FROM `+table)
	if err != nil {
		return nil, fmt.Errorf("index: query %s: %w", table, err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		var (
			r  models.Record
			pk int64
		)
		if err := rows.Scan(&pk, &r.URL, &r.BundleID, &r.CDHash, &r.TeamIdentifier,
			&r.SigningIdentifier, &r.Flags, &r.Timestamp, &r.LinkPK); err != nil {
			return nil, fmt.Errorf("index: scan row: %w", err)
		}
		r.PK = tag.Key(pk)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: iterate rows: %w", err)
	}
	return out, nil
}
