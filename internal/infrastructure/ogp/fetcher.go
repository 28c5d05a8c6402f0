// Package ogp fetches Open Graph metadata from article pages with a
// fallback ladder for origins that omit OGP tags.
package ogp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ArticleStock/internal/domain"
	"ArticleStock/internal/ports"
)

const userAgent = "ArticleStockBot/1.0"

// Fetcher retrieves a page once and extracts title/description/image.
// Idempotent and side-effect-free; the pipeline does not retry it.
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	logger   *slog.Logger
}

var _ ports.MetadataFetcher = (*Fetcher)(nil)

// NewFetcher wires an HTTP client; timeout defaults to 10s and the body
// cap to 10MB when zero values are passed.
func NewFetcher(client *http.Client, timeout time.Duration, maxBytes int64, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	return &Fetcher{client: client, timeout: timeout, maxBytes: maxBytes, logger: logger}
}

// Fetch issues a single GET and walks the extraction ladder. Any network
// error, timeout, non-success status, or size violation is recovered into
// a result with the untitled sentinel and the failure reason.
func (f *Fetcher) Fetch(ctx context.Context, url string) domain.Metadata {
	body, err := f.fetchHTML(ctx, url)
	if err != nil {
		f.warn("metadata fetch failed", "url", url, "error", err)
		return domain.Metadata{Title: domain.UntitledTitle, Reason: err.Error()}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		f.warn("metadata parse failed", "url", url, "error", err)
		return domain.Metadata{Title: domain.UntitledTitle, Reason: fmt.Sprintf("parse document: %v", err)}
	}

	meta := extract(doc)
	f.debug("metadata fetched", "url", url, "title", meta.Title)
	return meta
}

func (f *Fetcher) fetchHTML(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	// Some origins reject Go's default agent outright.
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("origin returned %s", resp.Status)
	}

	if header := resp.Header.Get("Content-Length"); header != "" {
		if length, convErr := strconv.ParseInt(header, 10, 64); convErr == nil && length > f.maxBytes {
			return "", fmt.Errorf("content size %d exceeds %d byte cap", length, f.maxBytes)
		}
	}

	// Read one byte past the cap so an undeclared oversized body is caught
	// without buffering it whole.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return "", fmt.Errorf("content exceeds %d byte cap", f.maxBytes)
	}

	return string(body), nil
}

// extract applies the ladder: og:title falls back to <title>, then the
// untitled sentinel; og:description falls back to the description meta
// tag; og:image has no fallback.
func extract(doc *goquery.Document) domain.Metadata {
	meta := domain.Metadata{Fetched: true}

	meta.Title, _ = doc.Find(`meta[property="og:title"]`).First().Attr("content")
	meta.Title = strings.TrimSpace(meta.Title)
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if meta.Title == "" {
		meta.Title = domain.UntitledTitle
	}

	meta.Description, _ = doc.Find(`meta[property="og:description"]`).First().Attr("content")
	meta.Description = strings.TrimSpace(meta.Description)
	if meta.Description == "" {
		desc, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
		meta.Description = strings.TrimSpace(desc)
	}

	meta.Image, _ = doc.Find(`meta[property="og:image"]`).First().Attr("content")
	meta.Image = strings.TrimSpace(meta.Image)

	return meta
}

func (f *Fetcher) warn(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Warn(msg, args...)
	}
}

func (f *Fetcher) debug(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}
