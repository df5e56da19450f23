package integrations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matzehuels/debcrate/pkg/cache"
	"github.com/matzehuels/debcrate/pkg/errors"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewClient(fc, "test:", time.Hour, map[string]string{"User-Agent": "debcrate-test"})
}

func TestGetDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "debcrate-test" {
			t.Errorf("User-Agent = %q", got)
		}
		w.Write([]byte(`{"name":"serde"}`))
	}))
	defer srv.Close()

	c := newTestClient(t)
	var out struct {
		Name string `json:"name"`
	}
	if err := c.Get(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if out.Name != "serde" {
		t.Errorf("Name = %q", out.Name)
	}
}

func TestGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t)
	err := c.Get(context.Background(), srv.URL, &struct{}{})
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Fatalf("error = %v, want NOT_FOUND", err)
	}
}

func TestCachedSkipsFetchOnHit(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	calls := 0
	fetch := func(v *string) func() error {
		return func() error {
			calls++
			*v = "fetched"
			return nil
		}
	}

	var first string
	if err := c.Cached(ctx, "key", false, &first, fetch(&first)); err != nil {
		t.Fatal(err)
	}
	var second string
	if err := c.Cached(ctx, "key", false, &second, fetch(&second)); err != nil {
		t.Fatal(err)
	}

	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1", calls)
	}
	if second != "fetched" {
		t.Errorf("cached value = %q", second)
	}
}

func TestCachedRefreshBypassesCache(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	calls := 0
	var v string
	fetch := func() error {
		calls++
		v = "fetched"
		return nil
	}

	for range 2 {
		if err := c.Cached(ctx, "key", true, &v, fetch); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 2 {
		t.Errorf("fetch calls = %d, want 2", calls)
	}
}

func TestDownload(t *testing.T) {
	const payload = "crate archive bytes"
	// SHA-256 of payload.
	const sum = "9751f20ef787a4f1c903dfa4e5109ad3aa9d3c9d10ce1d968e9d6f6211ebe2b2"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := newTestClient(t)
	dest := filepath.Join(t.TempDir(), "pkg-1.0.0.crate")

	if err := c.Download(context.Background(), srv.URL, dest, sum); err != nil {
		t.Fatalf("Download error: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != payload {
		t.Errorf("downloaded %q", data)
	}
}

func TestDownloadChecksumMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tampered"))
	}))
	defer srv.Close()

	c := newTestClient(t)
	dest := filepath.Join(t.TempDir(), "pkg-1.0.0.crate")

	err := c.Download(context.Background(), srv.URL, dest, "00deadbeef")
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("error = %v, want INVALID_INPUT", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("dest exists after failed download")
	}
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t)
	dest := filepath.Join(t.TempDir(), "out")

	if err := c.Download(context.Background(), srv.URL, dest, ""); err != nil {
		t.Fatalf("Download error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}
