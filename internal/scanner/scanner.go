// Package scanner correlates provenance tags on files with the records of
// the provenance index.
package scanner

import (
	"errors"
	"io"
	"log/slog"

	"github.com/starford/provscan/internal/apperr"
	"github.com/starford/provscan/internal/index"
	"github.com/starford/provscan/internal/models"
	"github.com/starford/provscan/internal/storage"
	"github.com/starford/provscan/internal/tag"
)

// Kind classifies what was found on a single entry.
type Kind int

const (
	Tagged Kind = iota
	Absent
	Malformed
	AccessError
)

func (k Kind) String() string {
	switch k {
	case Tagged:
		return "tagged"
	case Absent:
		return "absent"
	case Malformed:
		return "malformed"
	case AccessError:
		return "access_error"
	default:
		return "unknown"
	}
}

// Outcome is the result of probing one entry. Key is set only for Tagged;
// Err is set for every other kind.
type Outcome struct {
	Path string
	Kind Kind
	Key  tag.Key
	Err  error
}

// Scanner runs the per-entry pipeline: read attribute, decode, look up.
// It holds no mutable state and may be shared between goroutines.
type Scanner struct {
	store   storage.Provider
	index   index.Lookuper
	attr    string
	workers int
	dirs    bool
	logger  *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithAttribute overrides the extended attribute name.
func WithAttribute(name string) Option {
	return func(s *Scanner) {
		s.attr = name
	}
}

// WithWorkers sets how many entries are probed concurrently during a
// tree scan. Values below 2 scan sequentially.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		s.workers = n
	}
}

// WithIncludeDirs controls whether Watch reports directories. It should
// match the traversal option of the store.
func WithIncludeDirs(include bool) Option {
	return func(s *Scanner) {
		s.dirs = include
	}
}

// WithLogger sets the logger that receives per-entry failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = l
	}
}

// New creates a Scanner over store and ix.
func New(store storage.Provider, ix index.Lookuper, opts ...Option) *Scanner {
	s := &Scanner{
		store:   store,
		index:   ix,
		attr:    storage.DefaultAttribute,
		workers: 1,
		dirs:    true,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Probe reads and decodes the tag of path without consulting the index.
func (s *Scanner) Probe(path string) Outcome {
	raw, err := s.store.Attribute(path, s.attr)
	switch {
	case errors.Is(err, apperr.ErrAttributeAbsent):
		return Outcome{Path: path, Kind: Absent, Err: err}
	case err != nil:
		return Outcome{Path: path, Kind: AccessError, Err: err}
	}
	key, err := tag.Decode(raw)
	if err != nil {
		return Outcome{Path: path, Kind: Malformed, Err: err}
	}
	return Outcome{Path: path, Kind: Tagged, Key: key}
}

// ScanOne resolves the provenance of a single entry. The returned error
// matches apperr.ErrAttributeAbsent, apperr.ErrMalformedAttribute or
// apperr.ErrAttributeAccess. A key without a record is not an error.
func (s *Scanner) ScanOne(path string) (models.ScanResult, error) {
	o := s.Probe(path)
	if o.Kind != Tagged {
		return models.ScanResult{}, o.Err
	}
	return s.resolve(path, o.Key), nil
}

// Chain returns the record for key and every record it links to.
func (s *Scanner) Chain(key tag.Key) []models.Record {
	return s.index.Chain(key)
}

func (s *Scanner) resolve(path string, key tag.Key) models.ScanResult {
	if rec, ok := s.index.Lookup(key); ok {
		return models.NewScanResult(path, key, &rec)
	}
	return models.NewScanResult(path, key, nil)
}
