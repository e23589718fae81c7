package convert_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bdobrica/markbridge/internal/bridge/convert"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// --- formats -----------------------------------------------------------------

func TestConvertPlainText(t *testing.T) {
	path := writeFile(t, "notes.md", []byte("# My Notes\n\nsome text\n"))

	title, text, err := convert.New(nil).Convert(context.Background(), path)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if title != "My Notes" {
		t.Errorf("title = %q, want %q", title, "My Notes")
	}
	if !strings.Contains(text, "some text") {
		t.Errorf("text missing body: %q", text)
	}
}

func TestConvertHTML(t *testing.T) {
	path := writeFile(t, "page.html", []byte(
		`<html><head><title>Page Title</title><style>p{}</style></head>`+
			`<body><p>Hello world</p><script>var hidden = 1;</script></body></html>`))

	title, text, err := convert.New(nil).Convert(context.Background(), path)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if title != "Page Title" {
		t.Errorf("title = %q, want %q", title, "Page Title")
	}
	if !strings.Contains(text, "Hello world") {
		t.Errorf("text missing body: %q", text)
	}
	if strings.Contains(text, "hidden") {
		t.Errorf("script content leaked into text: %q", text)
	}
}

func TestConvertCSV(t *testing.T) {
	path := writeFile(t, "table.csv", []byte("name,age\nalice,30\nbob,41\n"))

	title, text, err := convert.New(nil).Convert(context.Background(), path)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if title != "table" {
		t.Errorf("title = %q, want %q", title, "table")
	}
	for _, want := range []string{"| name | age |", "| --- | --- |", "| alice | 30 |"} {
		if !strings.Contains(text, want) {
			t.Errorf("table missing %q:\n%s", want, text)
		}
	}
}

func TestConvertJSON(t *testing.T) {
	path := writeFile(t, "data.json", []byte(`{"k":"v"}`))

	_, text, err := convert.New(nil).Convert(context.Background(), path)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !strings.HasPrefix(text, "```json\n") {
		t.Errorf("expected fenced block, got %q", text)
	}
}

// --- failure modes -----------------------------------------------------------

func TestConvertMissingFile(t *testing.T) {
	if _, _, err := convert.New(nil).Convert(context.Background(), "/no/such/file.txt"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestConvertDirectory(t *testing.T) {
	if _, _, err := convert.New(nil).Convert(context.Background(), t.TempDir()); err == nil {
		t.Error("expected error for directory source")
	}
}

func TestConvertBinaryContent(t *testing.T) {
	path := writeFile(t, "blob.txt", []byte{0xff, 0xfe, 0x00, 0x01})
	if _, _, err := convert.New(nil).Convert(context.Background(), path); err == nil {
		t.Error("expected error for non-UTF-8 content")
	}
}

// --- URIs --------------------------------------------------------------------

func TestConvertHTTPURI(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Remote</title></head><body>fetched</body></html>`))
	}))
	t.Cleanup(ts.Close)

	title, text, err := convert.New(nil).Convert(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if title != "Remote" {
		t.Errorf("title = %q, want %q", title, "Remote")
	}
	if !strings.Contains(text, "fetched") {
		t.Errorf("text missing body: %q", text)
	}
}

func TestConvertHTTPErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	t.Cleanup(ts.Close)

	if _, _, err := convert.New(nil).Convert(context.Background(), ts.URL); err == nil {
		t.Error("expected error for 404 response")
	}
}

// --- cache -------------------------------------------------------------------

func TestCacheRoundTrip(t *testing.T) {
	cache, err := convert.OpenCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	ctx := context.Background()
	if _, _, ok := cache.Get(ctx, "src", "fp"); ok {
		t.Fatal("expected miss on empty cache")
	}
	cache.Put(ctx, "src", "fp", "title", "body")
	title, body, ok := cache.Get(ctx, "src", "fp")
	if !ok || title != "title" || body != "body" {
		t.Errorf("Get = (%q, %q, %v)", title, body, ok)
	}
	if _, _, ok := cache.Get(ctx, "src", "other"); ok {
		t.Error("expected miss for different fingerprint")
	}
}

func TestConverterPopulatesCache(t *testing.T) {
	cache, err := convert.OpenCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	path := writeFile(t, "doc.txt", []byte("cached contents"))
	c := convert.New(cache)

	if _, _, err := c.Convert(context.Background(), path); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	// A second conversion of the unchanged document must produce the same
	// result through the cache path.
	_, text, err := c.Convert(context.Background(), path)
	if err != nil {
		t.Fatalf("Convert (cached): %v", err)
	}
	if !strings.Contains(text, "cached contents") {
		t.Errorf("cached text = %q", text)
	}
}
