package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/starford/provscan/internal/models"
	"github.com/starford/provscan/internal/storage"
)

// Stats summarizes a tree scan. Visited counts each entry once, even a
// directory that was probed and then could not be listed; such a
// directory also counts as Failed.
type Stats struct {
	Visited int
	Tagged  int
	Absent  int
	Failed  int
}

// Walk scans every entry under root and calls emit for each tagged one,
// in completion order. Untagged entries are skipped silently; every other
// per-entry failure is logged and counted but never stops the walk. Only
// a failure to open root or cancellation of ctx returns an error.
//
// emit is never called concurrently.
func (s *Scanner) Walk(ctx context.Context, root string, emit func(models.ScanResult)) (Stats, error) {
	var st Stats
	if s.workers < 2 {
		err := s.store.Walk(root, func(p string, walkErr error) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if walkErr != nil {
				s.handle(Outcome{Path: p, Kind: AccessError, Err: walkErr}, &st, emit)
				return nil
			}
			s.handle(s.Probe(p), &st, emit)
			return nil
		})
		if err != nil {
			return st, fmt.Errorf("scanner: walk %s: %w", root, err)
		}
		return st, nil
	}

	outcomes := make(chan Outcome, s.workers)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for o := range outcomes {
			s.handle(o, &st, emit)
		}
	}()

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	walkErr := s.store.Walk(root, func(p string, err error) error {
		if ctxErr := gCtx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			outcomes <- Outcome{Path: p, Kind: AccessError, Err: err}
			return nil
		}
		g.Go(func() error {
			outcomes <- s.Probe(p)
			return nil
		})
		return nil
	})
	_ = g.Wait() // probes never fail; the walk error carries cancellation
	close(outcomes)
	<-done

	if walkErr != nil {
		return st, fmt.Errorf("scanner: walk %s: %w", root, walkErr)
	}
	return st, nil
}

// ScanTree collects the results of Walk sorted by file path.
func (s *Scanner) ScanTree(ctx context.Context, root string) ([]models.ScanResult, Stats, error) {
	var out []models.ScanResult
	st, err := s.Walk(ctx, root, func(r models.ScanResult) {
		out = append(out, r)
	})
	if err != nil {
		return nil, st, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out, st, nil
}

func (s *Scanner) handle(o Outcome, st *Stats, emit func(models.ScanResult)) {
	var listErr *storage.ListError
	if !errors.As(o.Err, &listErr) || !listErr.Seen {
		st.Visited++
	}
	switch o.Kind {
	case Tagged:
		st.Tagged++
		emit(s.resolve(o.Path, o.Key))
	case Absent:
		st.Absent++
	default:
		st.Failed++
		s.logger.Warn("scan: entry skipped",
			slog.String("path", o.Path),
			slog.String("kind", o.Kind.String()),
			slog.String("error", o.Err.Error()))
	}
}
