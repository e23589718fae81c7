// Package convert turns a local file or an http(s) URI into a document title
// and a markdown-flavoured text body. It is a plain stateless collaborator of
// the prompt handlers; conversion failures come back as descriptive errors,
// never panics.
package convert

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	defaultFetchTimeout = 15 * time.Second

	// maxDocumentBytes caps fetched and local documents so one conversion
	// cannot exhaust memory.
	maxDocumentBytes = 16 * 1024 * 1024 // 16 MiB
)

// Converter converts documents. The zero value is not usable; construct with
// New. A nil cache disables caching.
type Converter struct {
	httpClient *http.Client
	cache      *Cache
}

// New creates a Converter. cache may be nil.
func New(cache *Cache) *Converter {
	return &Converter{
		httpClient: &http.Client{Timeout: defaultFetchTimeout},
		cache:      cache,
	}
}

// Convert reads the document at src (a local path or an http(s) URI) and
// returns its title (may be empty) and markdown text content.
func (c *Converter) Convert(ctx context.Context, src string) (title, text string, err error) {
	data, name, err := c.load(ctx, src)
	if err != nil {
		return "", "", err
	}

	fingerprint := ""
	if c.cache != nil {
		sum := sha256.Sum256(data)
		fingerprint = hex.EncodeToString(sum[:])
		if t, body, ok := c.cache.Get(ctx, src, fingerprint); ok {
			return t, body, nil
		}
	}

	title, text, err = render(name, data)
	if err != nil {
		return "", "", fmt.Errorf("convert %q: %w", src, err)
	}

	if c.cache != nil {
		c.cache.Put(ctx, src, fingerprint, title, text)
	}
	return title, text, nil
}

// load fetches the raw document bytes plus a name to derive the format from.
func (c *Converter) load(ctx context.Context, src string) ([]byte, string, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return c.fetch(ctx, src)
	}

	info, err := os.Stat(src)
	if err != nil {
		return nil, "", fmt.Errorf("stat %q: %w", src, err)
	}
	if info.IsDir() {
		return nil, "", fmt.Errorf("%q is a directory, not a document", src)
	}
	if info.Size() > maxDocumentBytes {
		return nil, "", fmt.Errorf("%q exceeds the %d byte document limit", src, maxDocumentBytes)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, "", fmt.Errorf("read %q: %w", src, err)
	}
	return data, filepath.Base(src), nil
}

func (c *Converter) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("parse URI %q: %w", rawURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request for %q: %w", rawURL, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %q: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch %q: server returned %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body of %q: %w", rawURL, err)
	}
	if len(data) > maxDocumentBytes {
		return nil, "", fmt.Errorf("%q exceeds the %d byte document limit", rawURL, maxDocumentBytes)
	}

	name := path.Base(u.Path)
	if !strings.Contains(name, ".") {
		// No usable extension in the path; fall back to the content type.
		ct := resp.Header.Get("Content-Type")
		switch {
		case strings.Contains(ct, "text/html"):
			name = "document.html"
		case strings.Contains(ct, "text/csv"):
			name = "document.csv"
		case strings.Contains(ct, "application/json"):
			name = "document.json"
		default:
			name = "document.txt"
		}
	}
	return data, name, nil
}

// render dispatches on the document's extension.
func render(name string, data []byte) (title, text string, err error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return renderHTML(data)
	case ".csv":
		return renderCSV(name, data)
	case ".json":
		return renderJSON(name, data)
	default:
		return renderText(data)
	}
}

// renderText passes plain text and markdown through untouched, using the
// first top-level heading as the title when one exists.
func renderText(data []byte) (string, string, error) {
	if !utf8.Valid(data) {
		return "", "", fmt.Errorf("document is not valid UTF-8 text")
	}
	body := string(data)
	title := ""
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if after, ok := strings.CutPrefix(trimmed, "# "); ok {
			title = strings.TrimSpace(after)
		}
		break
	}
	return title, body, nil
}

// renderHTML extracts the <title> and the visible text of an HTML document.
func renderHTML(data []byte) (string, string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("parse HTML: %w", err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	// The <title> element hangs off <head>, which walk skips for body text.
	return findTitle(doc), sb.String(), nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// renderCSV turns a CSV document into a markdown table, treating the first
// record as the header row.
func renderCSV(name string, data []byte) (string, string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return "", "", fmt.Errorf("parse CSV: %w", err)
	}
	if len(records) == 0 {
		return strings.TrimSuffix(name, filepath.Ext(name)), "", nil
	}

	var sb strings.Builder
	writeRow := func(fields []string) {
		sb.WriteString("|")
		for _, f := range fields {
			sb.WriteString(" ")
			sb.WriteString(strings.ReplaceAll(f, "|", "\\|"))
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}
	writeRow(records[0])
	sb.WriteString("|")
	for range records[0] {
		sb.WriteString(" --- |")
	}
	sb.WriteString("\n")
	for _, rec := range records[1:] {
		writeRow(rec)
	}
	return strings.TrimSuffix(name, filepath.Ext(name)), sb.String(), nil
}

// renderJSON validates the document and wraps it in a fenced code block.
func renderJSON(name string, data []byte) (string, string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(data), "", "  "); err != nil {
		return "", "", fmt.Errorf("parse JSON: %w", err)
	}
	text := "```json\n" + buf.String() + "\n```\n"
	return strings.TrimSuffix(name, filepath.Ext(name)), text, nil
}
