package index

import (
	"github.com/starford/provscan/internal/models"
	"github.com/starford/provscan/internal/tag"
)

// Lookuper resolves provenance keys. Consumers depend on this rather than
// on *Index so tests can supply their own tables.
type Lookuper interface {
	Lookup(key tag.Key) (models.Record, bool)
	Chain(key tag.Key) []models.Record
	Len() int
}

// Verify *Index satisfies Lookuper at compile time.
var _ Lookuper = (*Index)(nil)

// Index is an immutable key → record map. It is safe for concurrent use
// without locking because nothing mutates it after New returns.
type Index struct {
	records map[tag.Key]models.Record
}

// New builds an index from records. Later duplicates of a key replace
// earlier ones.
func New(records []models.Record) *Index {
	m := make(map[tag.Key]models.Record, len(records))
	for _, r := range records {
		m[r.PK] = r
	}
	return &Index{records: m}
}

// Lookup returns the record for key, if present.
func (ix *Index) Lookup(key tag.Key) (models.Record, bool) {
	r, ok := ix.records[key]
	return r, ok
}

// Len returns the number of distinct keys.
func (ix *Index) Len() int {
	return len(ix.records)
}

// Chain returns the record for key followed by every record reached
// through link_pk. It stops at the first missing link or at a key already
// visited.
func (ix *Index) Chain(key tag.Key) []models.Record {
	var out []models.Record
	seen := make(map[tag.Key]struct{})
	for {
		if _, dup := seen[key]; dup {
			return out
		}
		seen[key] = struct{}{}
		r, ok := ix.records[key]
		if !ok {
			return out
		}
		out = append(out, r)
		if !r.LinkPK.Valid {
			return out
		}
		key = tag.Key(r.LinkPK.Int64)
	}
}
