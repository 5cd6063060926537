// Package source loads the document to translate and splits it into
// sentences.
//
// A location is either a local file or an http(s) URL. HTML is reduced to its
// main article text with go-readability after furigana (ruby <rt>/<rp>
// annotations) has been stripped, so "漢字<rt>かんじ</rt>" does not come out
// as "漢字かんじ".
package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/ikawaha/kagome/v2/filter"
)

// MaxBodySize caps how much of a remote document is read.
const MaxBodySize = 10 << 20

var (
	reRT = regexp.MustCompile(`(?is)<rt[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?is)<rp[^>]*>.*?</rp>`)
)

// Loader fetches and splits documents.
type Loader struct {
	client *http.Client
}

// Option is a functional option for Loader.
type Option func(*Loader)

// WithHTTPClient replaces the client used for remote documents.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// NewLoader returns a Loader with a 30 second HTTP timeout.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{client: &http.Client{Timeout: 30 * time.Second}}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load reads location and returns its sentences in document order.
func Load(ctx context.Context, location string) ([]string, error) {
	return NewLoader().Load(ctx, location)
}

// Load reads location and returns its sentences in document order.
func (l *Loader) Load(ctx context.Context, location string) ([]string, error) {
	text, err := l.Text(ctx, location)
	if err != nil {
		return nil, err
	}
	return Split(text), nil
}

// Text returns the plain text of location.
func (l *Loader) Text(ctx context.Context, location string) (string, error) {
	if u, err := url.Parse(location); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return l.fetch(ctx, u)
	}

	data, err := os.ReadFile(location)
	if err != nil {
		return "", fmt.Errorf("source: read %q: %w", location, err)
	}
	switch strings.ToLower(filepath.Ext(location)) {
	case ".html", ".htm", ".xhtml":
		abs, _ := filepath.Abs(location)
		return extractArticle(data, &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)})
	}
	return string(data), nil
}

func (l *Loader) fetch(ctx context.Context, u *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("source: build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("source: fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("source: fetch %s: status %d", u, resp.StatusCode)
	}
	if resp.ContentLength > MaxBodySize {
		return "", fmt.Errorf("source: fetch %s: content length %d exceeds %d bytes", u, resp.ContentLength, MaxBodySize)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return "", fmt.Errorf("source: read body: %w", err)
	}
	if len(body) > MaxBodySize {
		return "", fmt.Errorf("source: fetch %s: body exceeds %d bytes", u, MaxBodySize)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/plain" {
		return string(body), nil
	}
	return extractArticle(body, u)
}

// StripRuby removes ruby text and ruby parentheses from HTML.
func StripRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, nil)
	return reRP.ReplaceAll(cleaned, nil)
}

func extractArticle(html []byte, u *url.URL) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(StripRuby(html)), u)
	if err != nil {
		return "", fmt.Errorf("source: extract article: %w", err)
	}
	return article.TextContent, nil
}

// Split breaks text into sentences on 。！？ (and their ASCII forms) and on
// blank lines. Surrounding whitespace is trimmed and empty sentences dropped.
func Split(text string) []string {
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), MaxBodySize)
	sc.Split(filter.ScanSentences)

	var out []string
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			out = append(out, s)
		}
	}
	return out
}
