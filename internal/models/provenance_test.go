package models

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/starford/provscan/internal/tag"
)

func TestNewScanResult_Unknown(t *testing.T) {
	res := NewScanResult("/tmp/a", tag.Key(1), nil)
	if res.Creator != UnknownCreator {
		t.Errorf("creator = %q", res.Creator)
	}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"creator":"unknown","filePath":"/tmp/a","pk":"0x0000000000000001"}`
	if string(data) != want {
		t.Errorf("json = %s\nwant   %s", data, want)
	}
}

func TestNewScanResult_ChromeExample(t *testing.T) {
	key, err := tag.ParseKey("0xbe88813a6ca05a0b")
	if err != nil {
		t.Fatal(err)
	}
	rec := &Record{
		PK:             key,
		URL:            "/Applications/Google Chrome.app",
		BundleID:       sql.NullString{String: "com.google.Chrome", Valid: true},
		TeamIdentifier: sql.NullString{String: "EQHXZ8M8AV", Valid: true},
		Timestamp:      1732247128,
	}
	data, err := json.Marshal(NewScanResult("/Users/x/Downloads/file.dmg", key, rec))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"bundleId":"com.google.Chrome","creator":"/Applications/Google Chrome.app",` +
		`"filePath":"/Users/x/Downloads/file.dmg","pk":"0xbe88813a6ca05a0b",` +
		`"teamIdentifier":"EQHXZ8M8AV","timestamp":1732247128}`
	if string(data) != want {
		t.Errorf("json = %s\nwant   %s", data, want)
	}
}

func TestRecordDetail(t *testing.T) {
	r := Record{
		PK:        5,
		URL:       "/usr/bin/curl",
		Flags:     sql.NullInt64{Int64: 3, Valid: true},
		Timestamp: 10,
		LinkPK:    sql.NullInt64{Int64: 4, Valid: true},
	}
	d := r.Detail()
	if d.LinkPK != "0x0000000000000004" {
		t.Errorf("linkPk = %q", d.LinkPK)
	}
	if d.Flags == nil || *d.Flags != 3 {
		t.Errorf("flags = %v", d.Flags)
	}
	if d.BundleID != "" {
		t.Errorf("bundleId = %q, want empty", d.BundleID)
	}
}
