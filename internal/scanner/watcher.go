package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/provscan/internal/models"
	"github.com/starford/provscan/internal/tag"
)

// Watch starts an fsnotify watcher on root and re-probes entries as they
// are created, written or have their attributes changed (which fsnotify
// reports as Chmod) until ctx is cancelled. emit is called when an entry
// gains a tag or its key changes; repeated events for an unchanged key
// are suppressed.
//
// New directories created at runtime are added to the watch list and
// their contents probed.
func (s *Scanner) Watch(ctx context.Context, root string, emit func(models.ScanResult)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := s.addDirsRecursive(w, root); err != nil {
		return err
	}

	s.logger.Info("watcher: started", slog.String("root", root))

	seen := make(map[string]tag.Key)

	observe := func(path string) {
		o := s.Probe(path)
		switch o.Kind {
		case Tagged:
			if prev, ok := seen[path]; ok && prev == o.Key {
				return
			}
			seen[path] = o.Key
			emit(s.resolve(path, o.Key))
		case Absent:
			delete(seen, path)
		default:
			s.logger.Warn("watcher: entry skipped",
				slog.String("path", path),
				slog.String("kind", o.Kind.String()),
				slog.String("error", o.Err.Error()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Lstat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := s.addDirsRecursive(w, ev.Name); addErr != nil {
						s.logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					// Entries may have landed before the watch was added.
					_ = s.store.Walk(ev.Name, func(p string, walkErr error) error {
						if walkErr == nil {
							observe(p)
						}
						return nil
					})
					continue
				}
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Chmod) != 0:
				if !s.dirs {
					if info, statErr := os.Lstat(ev.Name); statErr == nil && info.IsDir() {
						continue
					}
				}
				observe(ev.Name)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(seen, ev.Name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
// A root that is a plain file is watched on its own. Only a failure on
// root itself is returned; subdirectories that cannot be read or watched
// are logged and skipped.
func (s *Scanner) addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && path != root {
			return nil
		}
		if err == nil {
			err = w.Add(path)
		}
		if err == nil {
			return nil
		}
		if path == root {
			return err
		}
		s.logger.Warn("watcher: directory skipped",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if d != nil && d.IsDir() {
			return fs.SkipDir
		}
		return nil
	})
}
