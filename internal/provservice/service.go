// Package provservice answers provenance queries for the HTTP and MCP
// surfaces on top of a shared scanner and index.
package provservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/provscan/internal/apperr"
	"github.com/starford/provscan/internal/index"
	"github.com/starford/provscan/internal/models"
	"github.com/starford/provscan/internal/scanner"
	"github.com/starford/provscan/internal/tag"
)

// TreeResult is the response payload for a directory scan.
type TreeResult struct {
	Results []models.ScanResult `json:"results"`
	Visited int                 `json:"visited"`
	Skipped int                 `json:"skipped"`
}

// IndexInfo describes the loaded index.
type IndexInfo struct {
	Records int `json:"records"`
}

// Service coordinates scanner and index operations.
type Service struct {
	scanner  *scanner.Scanner
	index    index.Lookuper
	root     string // absolute; relative queries are joined to it
	realRoot string // root with symlinks resolved; queries must stay under it
}

// NewService creates a new provenance service. Paths passed to Scan and
// ScanTree must resolve under root, after following symlinks; relative
// paths are joined to it.
func NewService(sc *scanner.Scanner, ix index.Lookuper, root string) (*Service, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("provservice: resolve root: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("provservice: resolve root: %w", err)
	}
	return &Service{scanner: sc, index: ix, root: abs, realRoot: realRoot}, nil
}

// resolve follows every symlink in p. A missing tail is appended to the
// resolved form of its deepest existing ancestor.
func resolve(p string) (string, error) {
	var rest []string
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		rest = append([]string{filepath.Base(p)}, rest...)
		p = parent
	}
}

func within(p, root string) bool {
	return root == string(os.PathSeparator) || p == root ||
		strings.HasPrefix(p, root+string(os.PathSeparator))
}

// safePath resolves p against the service root and rejects any path that
// leaves it, lexically or through a symlink. The unresolved path is
// returned so a symlink is still scanned as itself.
func (s *Service) safePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: path is required", apperr.ErrInvalidPath)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	abs := filepath.Clean(p)
	resolved, err := resolve(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", apperr.ErrInvalidPath, p, err)
	}
	if !within(resolved, s.realRoot) {
		return "", fmt.Errorf("%w: %s escapes %s", apperr.ErrInvalidPath, p, s.root)
	}
	return abs, nil
}

// Scan resolves the provenance of one entry.
func (s *Service) Scan(_ context.Context, path string) (*models.ScanResult, error) {
	abs, err := s.safePath(path)
	if err != nil {
		return nil, err
	}
	res, err := s.scanner.ScanOne(abs)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ScanTree scans every entry under path.
func (s *Service) ScanTree(ctx context.Context, path string) (*TreeResult, error) {
	abs, err := s.safePath(path)
	if err != nil {
		return nil, err
	}
	results, st, err := s.scanner.ScanTree(ctx, abs)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []models.ScanResult{}
	}
	return &TreeResult{Results: results, Visited: st.Visited, Skipped: st.Failed}, nil
}

// Record returns the record for key with its link chain.
func (s *Service) Record(_ context.Context, key tag.Key) (*models.RecordDetail, error) {
	chain := s.index.Chain(key)
	if len(chain) == 0 {
		return nil, apperr.ErrNotFound
	}
	d := chain[0].Detail()
	for _, r := range chain[1:] {
		d.Chain = append(d.Chain, r.Detail())
	}
	return &d, nil
}

// Info reports index statistics.
func (s *Service) Info() IndexInfo {
	return IndexInfo{Records: s.index.Len()}
}
