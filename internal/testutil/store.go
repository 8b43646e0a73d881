package testutil

import (
	"sync"
	"syscall"

	"github.com/starford/provscan/internal/apperr"
	"github.com/starford/provscan/internal/storage"
)

// Store serves extended attributes from memory and enumerates the real
// tree, so tests can tag files on any file system.
type Store struct {
	*storage.FS

	mu    sync.Mutex
	attrs map[string][]byte
	errs  map[string]syscall.Errno
	reads map[string]int
}

var _ storage.Provider = (*Store)(nil)

// NewStore creates an empty in-memory attribute store.
func NewStore(includeDirs bool) *Store {
	return &Store{
		FS:    storage.NewFS(storage.Options{IncludeDirs: includeDirs}),
		attrs: make(map[string][]byte),
		errs:  make(map[string]syscall.Errno),
		reads: make(map[string]int),
	}
}

// Set assigns the attribute value of path.
func (s *Store) Set(path string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[path] = value
}

// Fail makes attribute reads of path fail with errno.
func (s *Store) Fail(path string, errno syscall.Errno) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[path] = errno
}

// Reads returns how many times path's attribute was read.
func (s *Store) Reads(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[path]
}

// Attribute implements storage.Provider. The name is ignored.
func (s *Store) Attribute(path, _ string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[path]++
	if errno, ok := s.errs[path]; ok {
		return nil, &apperr.AccessError{Path: path, Errno: errno}
	}
	v, ok := s.attrs[path]
	if !ok {
		return nil, apperr.ErrAttributeAbsent
	}
	return v, nil
}
