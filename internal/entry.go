// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/provscan/internal/api"
	"github.com/starford/provscan/internal/apperr"
	"github.com/starford/provscan/internal/index"
	"github.com/starford/provscan/internal/mcpserver"
	"github.com/starford/provscan/internal/models"
	"github.com/starford/provscan/internal/output"
	"github.com/starford/provscan/internal/provservice"
	"github.com/starford/provscan/internal/scanner"
	"github.com/starford/provscan/internal/sse"
	"github.com/starford/provscan/internal/storage"
)

// session is the state shared by every command once the store is loaded.
type session struct {
	cfg     *Config
	logger  *slog.Logger
	index   *index.Index
	scanner *scanner.Scanner
}

func newApplication(opts ...Option) (*application, error) {
	app := &application{
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		version: "dev",
		euid:    os.Geteuid,
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) newLogger() *slog.Logger {
	hopts := &slog.HandlerOptions{Level: a.config.App.LogLevel}
	var h slog.Handler
	if a.config.App.LogFormat == LogFormatText {
		h = slog.NewTextHandler(a.stderr, hopts)
	} else {
		h = slog.NewJSONHandler(a.stderr, hopts)
	}
	return slog.New(h)
}

// start checks privileges, loads the provenance store and builds the
// scanner. Both failures are fatal for every command.
func (a *application) start(ctx context.Context) (*session, error) {
	cfg := a.config
	logger := a.newLogger()
	slog.SetDefault(logger)

	if cfg.Scan.RequireRoot && a.euid() != 0 {
		return nil, apperr.ErrPrivilegeRequired
	}

	ix, err := index.Load(ctx, cfg.Database.Path, cfg.Database.Table)
	if err != nil {
		return nil, err
	}
	logger.Info("Provenance store loaded",
		slog.String("path", cfg.Database.Path),
		slog.Int("records", ix.Len()))

	store := storage.NewFS(storage.Options{
		IncludeDirs:    cfg.Scan.IncludeDirs,
		FollowSymlinks: cfg.Scan.FollowSymlinks,
	})
	sc := scanner.New(store, ix,
		scanner.WithAttribute(cfg.Attribute.Name),
		scanner.WithWorkers(cfg.Scan.Workers),
		scanner.WithIncludeDirs(cfg.Scan.IncludeDirs),
		scanner.WithLogger(logger),
	)
	return &session{cfg: cfg, logger: logger, index: ix, scanner: sc}, nil
}

// RunScan resolves the provenance of path. A file yields exactly one
// result or an error; a directory yields every tagged entry beneath it.
func RunScan(ctx context.Context, path string, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	rt, err := app.start(ctx)
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	p := output.NewPrinter(app.stdout, rt.cfg.App.Output, rt.index)

	if !info.IsDir() {
		res, err := rt.scanner.ScanOne(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := p.Add(res); err != nil {
			return err
		}
		return p.Flush(true)
	}

	var writeErr error
	st, err := rt.scanner.Walk(ctx, path, func(r models.ScanResult) {
		if err := p.Add(r); err != nil && writeErr == nil {
			writeErr = err
		}
	})
	if err != nil {
		return err
	}
	if writeErr != nil {
		return fmt.Errorf("scan: write results: %w", writeErr)
	}
	rt.logger.Info("Scan complete",
		slog.String("root", path),
		slog.Int("visited", st.Visited),
		slog.Int("tagged", st.Tagged),
		slog.Int("absent", st.Absent),
		slog.Int("failed", st.Failed))
	return p.Flush(false)
}

// RunWatch reports every tagged entry under path and then keeps
// reporting entries as they are tagged or re-tagged until ctx ends.
func RunWatch(ctx context.Context, path string, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	rt, err := app.start(ctx)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := output.NewPrinter(app.stdout, rt.cfg.App.Output, rt.index)
	emit := func(r models.ScanResult) {
		if err := p.Stream(r); err != nil {
			rt.logger.Error("write result failed", slog.String("error", err.Error()))
		}
	}

	if _, err := rt.scanner.Walk(ctx, path, emit); err != nil {
		return err
	}
	return rt.scanner.Watch(ctx, path, emit)
}

// RunServe starts the HTTP API. Queries are confined to root. When
// watchPath is set, newly tagged entries beneath it are pushed to SSE
// subscribers.
func RunServe(ctx context.Context, root, watchPath string, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	rt, err := app.start(ctx)
	if err != nil {
		return err
	}
	cfg := rt.cfg
	logger := rt.logger

	svc, err := provservice.NewService(rt.scanner, rt.index, root)
	if err != nil {
		return err
	}

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHTTPHandler(svc, broker, cfg.Auth),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	if watchPath != "" {
		g.Go(func() error {
			return rt.scanner.Watch(gCtx, watchPath, broker.PublishResult)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server",
			slog.String("address", cfg.App.HTTP.Address()),
			slog.String("root", root))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

func newHTTPHandler(svc *provservice.Service, broker *sse.Broker, auth AuthConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, map[string]any{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, map[string]any{"status": "ok", "records": svc.Info().Records})
	})

	r.Mount("/api", api.NewRouter(svc, auth.AuthEnabled(), auth.Token, broker))
	return r
}

func writeStatus(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = output.WriteJSON(w, body)
}

// RunMCP serves the MCP tools on stdin/stdout. Queries are confined to
// root.
func RunMCP(ctx context.Context, root string, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	rt, err := app.start(ctx)
	if err != nil {
		return err
	}
	svc, err := provservice.NewService(rt.scanner, rt.index, root)
	if err != nil {
		return err
	}
	rt.logger.Info("Starting MCP server", slog.String("root", root))
	return mcpserver.New(svc, app.version).ServeStdio()
}
