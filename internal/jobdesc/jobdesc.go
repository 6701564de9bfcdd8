// Package jobdesc fetches a job posting and reduces it to the plain text used
// as a generate request's job description.
package jobdesc

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"resumeforge/internal/config"
	"resumeforge/internal/errors"
	"resumeforge/internal/observability"
)

// Defaults used when the configuration leaves a field empty
const (
	DefaultTimeout   = 15 * time.Second
	DefaultUserAgent = "resumeforge/1.0"
	DefaultMaxBytes  = 2 << 20
)

// noise is removed before any text is read
const noise = "script, style, noscript, template, svg, nav, header, footer, aside, form, iframe, .cookie-banner, .advertisement"

// postingSelectors are tried in order; the first match holds the posting
var postingSelectors = []string{
	".job-description",
	"#job-description",
	".job-details",
	".posting-content",
	"[data-testid='job-description']",
	"[itemprop='description']",
	"main",
	"article",
	"#content",
	".content",
}

// Fetcher downloads job postings
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	logger    *errors.Logger
	metrics   *observability.Metrics
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithHTTPClient replaces the instrumented default client
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithMetrics counts fetches
func WithMetrics(m *observability.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// New creates a Fetcher from the jobFetch configuration
func New(cfg config.JobFetchConfig, logger *errors.Logger, opts ...Option) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	f := &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		userAgent: userAgent,
		maxBytes:  maxBytes,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads rawURL and returns the posting text. HTML pages are stripped
// of markup and navigation; text/plain bodies are returned as is.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (text string, err error) {
	defer func() {
		f.metrics.RecordJobFetch(ctx, err == nil)
	}()

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fetchError(rawURL, "job URL must be an absolute http or https URL", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fetchError(rawURL, "failed to create request", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html, text/plain;q=0.9")

	f.logger.Debug("Fetching job posting", "url", u.Redacted())

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fetchError(rawURL, "HTTP request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fetchError(rawURL, fmt.Sprintf("HTTP status %d", resp.StatusCode), nil).
			WithContext("status", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", fetchError(rawURL, "failed to read response body", err)
	}
	if int64(len(body)) > f.maxBytes {
		return "", fetchError(rawURL, fmt.Sprintf("posting exceeds %d bytes", f.maxBytes), nil)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch mediaType {
	case "text/plain":
		text = cleanWhitespace(string(body))
	case "", "text/html", "application/xhtml+xml":
		text, err = ExtractText(string(body))
		if err != nil {
			return "", fetchError(rawURL, "failed to parse HTML", err)
		}
	default:
		return "", fetchError(rawURL, fmt.Sprintf("unsupported content type %s", mediaType), nil)
	}

	if text == "" {
		return "", fetchError(rawURL, "page contains no readable text", nil)
	}
	f.logger.Debug("Fetched job posting", "url", u.Redacted(), "chars", len(text))
	return text, nil
}

// ExtractText parses an HTML page and returns the text of its posting body.
// Block elements end a line so list items and paragraphs stay separated.
func ExtractText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find(noise).Remove()
	doc.Find("br, p, li, div, h1, h2, h3, h4, h5, h6, tr, section").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	content := doc.Find("body")
	for _, selector := range postingSelectors {
		if sel := doc.Find(selector); sel.Length() > 0 {
			content = sel.First()
			break
		}
	}

	return cleanWhitespace(content.Text()), nil
}

func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

func fetchError(rawURL, message string, cause error) *errors.AppError {
	return errors.NewValidationError(errors.ErrCodeJobFetchFailed, message, cause).
		WithContext("url", rawURL)
}
