// Package models defines the domain types for provscan.
package models

import (
	"database/sql"

	"github.com/starford/provscan/internal/tag"
)

// UnknownCreator is reported when a decoded key has no matching record.
const UnknownCreator = "unknown"

// Record is one row of the provenance tracking table.
type Record struct {
	PK                tag.Key
	URL               string
	BundleID          sql.NullString
	CDHash            sql.NullString
	TeamIdentifier    sql.NullString
	SigningIdentifier sql.NullString
	Flags             sql.NullInt64
	Timestamp         int64
	LinkPK            sql.NullInt64
}

// ScanResult is emitted for every examined entry that carries a tag.
// Fields are declared in sorted JSON-name order; optional fields are
// omitted when absent.
type ScanResult struct {
	BundleID          string `json:"bundleId,omitempty"`
	Creator           string `json:"creator"`
	FilePath          string `json:"filePath"`
	PK                string `json:"pk"`
	SigningIdentifier string `json:"signingIdentifier,omitempty"`
	TeamIdentifier    string `json:"teamIdentifier,omitempty"`
	Timestamp         *int64 `json:"timestamp,omitempty"`
}

// NewScanResult joins a file path and key with the record found for the
// key, if any.
func NewScanResult(path string, key tag.Key, rec *Record) ScanResult {
	res := ScanResult{
		Creator:  UnknownCreator,
		FilePath: path,
		PK:       key.String(),
	}
	if rec == nil {
		return res
	}
	ts := rec.Timestamp
	res.Creator = rec.URL
	res.BundleID = rec.BundleID.String
	res.TeamIdentifier = rec.TeamIdentifier.String
	res.SigningIdentifier = rec.SigningIdentifier.String
	res.Timestamp = &ts
	return res
}

// RecordDetail is the lookup-by-key representation served by the HTTP and
// MCP surfaces.
type RecordDetail struct {
	PK                string         `json:"pk"`
	URL               string         `json:"url"`
	BundleID          string         `json:"bundleId,omitempty"`
	CDHash            string         `json:"cdhash,omitempty"`
	TeamIdentifier    string         `json:"teamIdentifier,omitempty"`
	SigningIdentifier string         `json:"signingIdentifier,omitempty"`
	Flags             *int64         `json:"flags,omitempty"`
	Timestamp         int64          `json:"timestamp"`
	LinkPK            string         `json:"linkPk,omitempty"`
	Chain             []RecordDetail `json:"chain,omitempty"`
}

// Detail converts r into its serializable form without chain.
func (r Record) Detail() RecordDetail {
	d := RecordDetail{
		PK:                r.PK.String(),
		URL:               r.URL,
		BundleID:          r.BundleID.String,
		CDHash:            r.CDHash.String,
		TeamIdentifier:    r.TeamIdentifier.String,
		SigningIdentifier: r.SigningIdentifier.String,
		Timestamp:         r.Timestamp,
	}
	if r.Flags.Valid {
		f := r.Flags.Int64
		d.Flags = &f
	}
	if r.LinkPK.Valid {
		d.LinkPK = tag.Key(r.LinkPK.Int64).String()
	}
	return d
}
