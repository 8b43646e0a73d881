package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/starford/provscan/internal/apperr"
)

// Options controls traversal and attribute resolution.
type Options struct {
	// IncludeDirs visits directories as entries in addition to
	// descending into them.
	IncludeDirs bool
	// FollowSymlinks reads a symlink's attribute through its target.
	// Symlinked directories are never descended either way.
	FollowSymlinks bool
}

// FS implements Provider backed by the local file system.
type FS struct {
	opts Options
}

// NewFS creates a new FS provider.
func NewFS(opts Options) *FS {
	return &FS{opts: opts}
}

// Attribute reads the named extended attribute of path. The value is
// sized with a probe call first; if it grows before the read the probe
// is repeated.
func (f *FS) Attribute(path, name string) ([]byte, error) {
	get := unix.Lgetxattr
	if f.opts.FollowSymlinks {
		get = unix.Getxattr
	}
	for {
		n, err := get(path, name, nil)
		if err != nil {
			return nil, classify(path, err)
		}
		if n == 0 {
			return []byte{}, nil
		}
		buf := make([]byte, n)
		n, err = get(path, name, buf)
		if errors.Is(err, unix.ERANGE) {
			continue
		}
		if err != nil {
			return nil, classify(path, err)
		}
		return buf[:n], nil
	}
}

// classify maps a getxattr failure onto the attribute error taxonomy.
func classify(path string, err error) error {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return fmt.Errorf("%w: %s: %v", apperr.ErrAttributeAccess, path, err)
	}
	if errno == errNoAttr {
		return apperr.ErrAttributeAbsent
	}
	return &apperr.AccessError{Path: path, Errno: errno}
}

// Walk visits root and everything beneath it in lexical order. A root
// that is a symlink to a directory is resolved first; symlinks found
// during the walk are visited but not descended. Directories that
// cannot be read are reported to fn and skipped.
func (f *FS) Walk(root string, fn WalkFunc) error {
	info, err := os.Lstat(root)
	if err != nil {
		return fmt.Errorf("storage: stat root: %w", err)
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		if target, statErr := os.Stat(root); statErr == nil && target.IsDir() {
			resolved, err := filepath.EvalSymlinks(root)
			if err != nil {
				return fmt.Errorf("storage: resolve root: %w", err)
			}
			root = resolved
		}
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if d != nil && d.IsDir() {
				walkErr = &ListError{Path: p, Seen: f.opts.IncludeDirs, Err: walkErr}
			}
			if err := fn(p, walkErr); err != nil {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() && !f.opts.IncludeDirs {
			return nil
		}
		return fn(p, nil)
	})
}
