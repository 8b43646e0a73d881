package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/starford/provscan/internal/apperr"
	"github.com/starford/provscan/internal/index"
	"github.com/starford/provscan/internal/models"
	"github.com/starford/provscan/internal/provservice"
	"github.com/starford/provscan/internal/scanner"
	"github.com/starford/provscan/internal/sse"
	"github.com/starford/provscan/internal/tag"
	"github.com/starford/provscan/internal/testutil"
)

const testAttr = "user.provscan.test"

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Database.Path = testutil.ProvenanceDB(t, testutil.ChromeRecord())
	cfg.Attribute.Name = testAttr
	cfg.Scan.RequireRoot = false
	return cfg
}

// tagFile sets the test attribute, skipping when the file system has no
// user xattrs.
func tagFile(t *testing.T, path string, value []byte) {
	t.Helper()
	err := unix.Setxattr(path, testAttr, value, 0)
	if errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.EOPNOTSUPP) {
		t.Skipf("user xattrs unsupported here: %v", err)
	}
	if err != nil {
		t.Fatalf("Setxattr: %v", err)
	}
}

func TestRunScan_ConfigRequired(t *testing.T) {
	if err := RunScan(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestRunScan_PrivilegeCheckedFirst(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "missing.db")

	err := RunScan(context.Background(), t.TempDir(),
		WithConfig(cfg), WithStderr(&bytes.Buffer{}), withEUID(func() int { return 501 }))
	if !errors.Is(err, apperr.ErrPrivilegeRequired) {
		t.Fatalf("err = %v, want ErrPrivilegeRequired", err)
	}
}

func TestRunScan_RootPassesPrivilegeCheck(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scan.RequireRoot = true
	cfg.App.Output = "json"

	var stdout bytes.Buffer
	err := RunScan(context.Background(), t.TempDir(),
		WithConfig(cfg), WithStdout(&stdout), WithStderr(&bytes.Buffer{}), withEUID(func() int { return 0 }))
	if err != nil {
		t.Fatal(err)
	}
}

func TestRunScan_DatabaseErrorIsFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "missing.db")

	var stdout bytes.Buffer
	err := RunScan(context.Background(), t.TempDir(),
		WithConfig(cfg), WithStdout(&stdout), WithStderr(&bytes.Buffer{}))
	if !errors.Is(err, apperr.ErrDatabase) {
		t.Fatalf("err = %v, want ErrDatabase", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("no results may be written on a fatal error: %q", stdout.String())
	}
}

func TestRunScan_EmptyDirectoryJSON(t *testing.T) {
	cfg := testConfig(t)
	cfg.App.Output = "json"
	root := testutil.Tree(t, "a.txt", "sub/b.txt")

	var stdout, stderr bytes.Buffer
	err := RunScan(context.Background(), root,
		WithConfig(cfg), WithStdout(&stdout), WithStderr(&stderr))
	if err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "[]\n" {
		t.Errorf("stdout = %q, want empty array", stdout.String())
	}
}

func TestRunScan_DirectoryJSON(t *testing.T) {
	cfg := testConfig(t)
	cfg.App.Output = "json"
	cfg.Scan.Workers = 4
	root := testutil.Tree(t, "z.dmg", "a.dmg", "plain.txt", "bad.bin")
	tagFile(t, filepath.Join(root, "z.dmg"), tag.Encode(testutil.ChromeKey))
	tagFile(t, filepath.Join(root, "a.dmg"), tag.Encode(7))
	tagFile(t, filepath.Join(root, "bad.bin"), []byte{1})

	var stdout, stderr bytes.Buffer
	err := RunScan(context.Background(), root,
		WithConfig(cfg), WithStdout(&stdout), WithStderr(&stderr))
	if err != nil {
		t.Fatal(err)
	}

	var got []models.ScanResult
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("stdout is not one JSON document: %v\n%s", err, stdout.String())
	}
	if len(got) != 2 {
		t.Fatalf("results = %+v", got)
	}
	if got[0].FilePath != filepath.Join(root, "a.dmg") || got[0].Creator != models.UnknownCreator {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Creator != "/Applications/Google Chrome.app" {
		t.Errorf("second = %+v", got[1])
	}
	if !strings.Contains(stderr.String(), "bad.bin") {
		t.Errorf("malformed entry not logged: %s", stderr.String())
	}
}

func TestRunScan_SingleFileText(t *testing.T) {
	cfg := testConfig(t)
	root := testutil.Tree(t, "f.dmg")
	path := filepath.Join(root, "f.dmg")
	tagFile(t, path, tag.Encode(testutil.ChromeKey))

	var stdout bytes.Buffer
	err := RunScan(context.Background(), path,
		WithConfig(cfg), WithStdout(&stdout), WithStderr(&bytes.Buffer{}))
	if err != nil {
		t.Fatal(err)
	}
	want := path + ": /Applications/Google Chrome.app [pk 0xbe88813a6ca05a0b] " +
		"bundle=com.google.Chrome team=EQHXZ8M8AV time=2024-11-22T03:45:28Z\n"
	if stdout.String() != want {
		t.Errorf("stdout = %q\nwant %q", stdout.String(), want)
	}
}

func TestRunScan_SingleFileAbsent(t *testing.T) {
	cfg := testConfig(t)
	root := testutil.Tree(t, "probe", "plain.txt")
	// Confirms user xattrs work before relying on ENODATA.
	tagFile(t, filepath.Join(root, "probe"), []byte{0})

	err := RunScan(context.Background(), filepath.Join(root, "plain.txt"),
		WithConfig(cfg), WithStdout(&bytes.Buffer{}), WithStderr(&bytes.Buffer{}))
	if !errors.Is(err, apperr.ErrAttributeAbsent) {
		t.Fatalf("err = %v, want ErrAttributeAbsent", err)
	}
}

func TestRunScan_SingleFileMalformedIsFatal(t *testing.T) {
	cfg := testConfig(t)
	root := testutil.Tree(t, "short")
	path := filepath.Join(root, "short")
	tagFile(t, path, []byte{1, 2, 3})

	err := RunScan(context.Background(), path,
		WithConfig(cfg), WithStdout(&bytes.Buffer{}), WithStderr(&bytes.Buffer{}))
	if !errors.Is(err, apperr.ErrMalformedAttribute) {
		t.Fatalf("err = %v, want ErrMalformedAttribute", err)
	}
}

func TestRunScan_MissingPath(t *testing.T) {
	cfg := testConfig(t)
	err := RunScan(context.Background(), filepath.Join(t.TempDir(), "nope"),
		WithConfig(cfg), WithStderr(&bytes.Buffer{}))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not exist", err)
	}
}

func TestRunWatch_InitialScanThenCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.App.Output = "json"
	root := testutil.Tree(t, "f.dmg")
	tagFile(t, filepath.Join(root, "f.dmg"), tag.Encode(testutil.ChromeKey))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var stdout bytes.Buffer
	if err := RunWatch(ctx, root, WithConfig(cfg), WithStdout(&stdout), WithStderr(&bytes.Buffer{})); err != nil {
		t.Fatal(err)
	}
	var res models.ScanResult
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &res); err != nil {
		t.Fatalf("want one JSON line, got %q: %v", stdout.String(), err)
	}
	if res.PK != "0xbe88813a6ca05a0b" {
		t.Errorf("result = %+v", res)
	}
}

func TestHTTPHandler(t *testing.T) {
	root := testutil.Tree(t, "f.dmg")
	store := testutil.NewStore(false)
	store.Set(filepath.Join(root, "f.dmg"), tag.Encode(testutil.ChromeKey))
	ix := index.New([]models.Record{testutil.ChromeRecord()})
	svc, err := provservice.NewService(scanner.New(store, ix), ix, root)
	if err != nil {
		t.Fatal(err)
	}
	broker := sse.NewBroker(time.Second)
	defer broker.Close()

	h := newHTTPHandler(svc, broker, AuthConfig{Mode: AuthModeToken, Token: "secret"})

	tests := []struct {
		target string
		token  string
		want   int
		body   string
	}{
		{"/health/live", "", http.StatusOK, `"status": "ok"`},
		{"/health/ready", "", http.StatusOK, `"records": 1`},
		{"/api/index", "", http.StatusUnauthorized, "unauthorized"},
		{"/api/scan?path=f.dmg", "secret", http.StatusOK, "com.google.Chrome"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
			if !strings.Contains(w.Body.String(), tt.body) {
				t.Errorf("body = %s, want substring %s", w.Body, tt.body)
			}
		})
	}
}
