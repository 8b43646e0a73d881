package provservice

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/provscan/internal/apperr"
	"github.com/starford/provscan/internal/index"
	"github.com/starford/provscan/internal/models"
	"github.com/starford/provscan/internal/scanner"
	"github.com/starford/provscan/internal/storage"
	"github.com/starford/provscan/internal/testutil"
)

func testService(t *testing.T, root string) *Service {
	t.Helper()
	rec := testutil.ChromeRecord()
	rec.LinkPK = sql.NullInt64{Int64: 5, Valid: true}
	ix := index.New([]models.Record{rec, {PK: 5, URL: "/usr/bin/ditto", Timestamp: 1}})
	sc := scanner.New(storage.NewFS(storage.Options{}), ix)
	svc, err := NewService(sc, ix, root)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestSafePath(t *testing.T) {
	root := t.TempDir()
	svc := testService(t, root)

	if p, err := svc.safePath("a/b"); err != nil || p != filepath.Join(root, "a/b") {
		t.Errorf("relative: %q, %v", p, err)
	}
	if p, err := svc.safePath(root); err != nil || p != root {
		t.Errorf("root itself: %q, %v", p, err)
	}
	for _, bad := range []string{"", "../x", "/etc/passwd", root + "/../other"} {
		if _, err := svc.safePath(bad); !errors.Is(err, apperr.ErrInvalidPath) {
			t.Errorf("safePath(%q) err = %v, want ErrInvalidPath", bad, err)
		}
	}
}

func TestSafePath_FilesystemRootAllowsAll(t *testing.T) {
	svc := testService(t, "/")
	if _, err := svc.safePath("/etc/hosts"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestScan_UntaggedFile(t *testing.T) {
	root := testutil.Tree(t, "plain")
	svc := testService(t, root)
	_, err := svc.Scan(context.Background(), "plain")
	if err == nil {
		t.Fatal("expected error for untagged file")
	}
	if errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("err = %v", err)
	}
}

func TestScanTree_EmptyResultsNotNil(t *testing.T) {
	root := testutil.Tree(t, "a", "b")
	svc := testService(t, root)
	tr, err := svc.ScanTree(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Results == nil || len(tr.Results) != 0 {
		t.Errorf("results = %#v", tr.Results)
	}
}

func TestScanTree_MissingRoot(t *testing.T) {
	root := t.TempDir()
	svc := testService(t, root)
	_, err := svc.ScanTree(context.Background(), "gone")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestRecord_WithChain(t *testing.T) {
	svc := testService(t, "/")
	d, err := svc.Record(context.Background(), testutil.ChromeKey)
	if err != nil {
		t.Fatal(err)
	}
	if d.URL != "/Applications/Google Chrome.app" || d.LinkPK != "0x0000000000000005" {
		t.Errorf("detail = %+v", d)
	}
	if len(d.Chain) != 1 || d.Chain[0].URL != "/usr/bin/ditto" {
		t.Errorf("chain = %+v", d.Chain)
	}
	if _, err := svc.Record(context.Background(), 12345); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing key err = %v", err)
	}
	if svc.Info().Records != 2 {
		t.Errorf("info = %+v", svc.Info())
	}
}

// escapeFixture builds a root holding symlinks into a sibling directory
// with a tagged-looking file, plus one link that stays inside root.
func escapeFixture(t *testing.T) (root, outside string) {
	t.Helper()
	base := t.TempDir()
	root = filepath.Join(base, "root")
	outside = filepath.Join(base, "elsewhere")
	for _, d := range []string{filepath.Join(root, "inner"), outside} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range []string{filepath.Join(outside, "secret.dmg"), filepath.Join(root, "inner", "ok.dmg")} {
		if err := os.WriteFile(f, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	links := map[string]string{
		"dirlink":  outside,
		"filelink": filepath.Join(outside, "secret.dmg"),
		"local":    filepath.Join(root, "inner"),
	}
	for name, target := range links {
		if err := os.Symlink(target, filepath.Join(root, name)); err != nil {
			t.Fatal(err)
		}
	}
	return root, outside
}

func TestSafePath_SymlinkOutOfRoot(t *testing.T) {
	root, _ := escapeFixture(t)
	svc := testService(t, root)

	for _, p := range []string{"dirlink", "dirlink/secret.dmg", "dirlink/missing", "filelink"} {
		if _, err := svc.safePath(p); !errors.Is(err, apperr.ErrInvalidPath) {
			t.Errorf("safePath(%q) err = %v, want ErrInvalidPath", p, err)
		}
	}
	if _, err := svc.ScanTree(context.Background(), "dirlink"); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("ScanTree through escaping link err = %v", err)
	}
	if _, err := svc.Scan(context.Background(), "filelink"); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("Scan through escaping link err = %v", err)
	}
}

func TestSafePath_SymlinkInsideRoot(t *testing.T) {
	root, _ := escapeFixture(t)
	svc := testService(t, root)

	p, err := svc.safePath("local/ok.dmg")
	if err != nil {
		t.Fatalf("link inside root rejected: %v", err)
	}
	if p != filepath.Join(root, "local", "ok.dmg") {
		t.Errorf("path = %q, want the unresolved form", p)
	}
	tr, err := svc.ScanTree(context.Background(), "local")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Visited == 0 {
		t.Error("nothing visited under an in-root link")
	}
}

func TestSafePath_SymlinkedRoot(t *testing.T) {
	root, _ := escapeFixture(t)
	alias := filepath.Join(t.TempDir(), "alias")
	if err := os.Symlink(root, alias); err != nil {
		t.Fatal(err)
	}
	svc := testService(t, alias)

	if _, err := svc.safePath("inner/ok.dmg"); err != nil {
		t.Errorf("path under symlinked root rejected: %v", err)
	}
	if _, err := svc.safePath(filepath.Join(root, "inner")); err != nil {
		t.Errorf("resolved form of root rejected: %v", err)
	}
	if _, err := svc.safePath("dirlink"); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("escaping link under symlinked root err = %v", err)
	}
}
