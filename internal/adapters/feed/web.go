package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/net/html"

	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/pkg/logger"
)

// WebPage defaults.
const (
	defaultFetchTimeout = 30 * time.Second
	maxBodyBytes        = 5 * 1024 * 1024
	maxTextBytes        = 10 * 1024
	userAgent           = "resonance/1.0 (+feed)"
)

// skipTags hold no readable content.
var skipTags = map[string]bool{ //nolint:gochecknoglobals // fixed lookup
	"script": true, "style": true, "nav": true,
	"header": true, "footer": true, "aside": true,
	"noscript": true, "iframe": true, "svg": true,
}

// WebPage fetches a set of pages every poll and emits the readable text of
// each page whose content changed since the previous poll.
type WebPage struct {
	urls   []string
	client *http.Client
	logger logger.Logger

	mu      sync.Mutex
	markers map[string]uint64
}

// WebOption applies a configuration option to a WebPage.
type WebOption func(*WebPage)

// WithHTTPClient sets the client used for fetching.
func WithHTTPClient(c *http.Client) WebOption {
	return func(w *WebPage) {
		if c != nil {
			w.client = c
		}
	}
}

// WithFetchTimeout sets the per-request timeout of the default client.
func WithFetchTimeout(d time.Duration) WebOption {
	return func(w *WebPage) {
		if d > 0 {
			w.client = &http.Client{Timeout: d}
		}
	}
}

// WithWebLogger sets the adapter logger.
func WithWebLogger(l logger.Logger) WebOption {
	return func(w *WebPage) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWebPage creates a WebPage over urls. URLs without a scheme get https.
func NewWebPage(urls []string, opts ...WebOption) (*WebPage, error) {
	w := &WebPage{
		client:  &http.Client{Timeout: defaultFetchTimeout},
		logger:  logger.Named("web"),
		markers: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, raw := range urls {
		u, err := normalizeURL(raw)
		if err != nil {
			return nil, err
		}
		w.urls = append(w.urls, u)
	}
	return w, nil
}

// Name implements Adapter.
func (w *WebPage) Name() string { return "web" }

// URLs returns the watched pages.
func (w *WebPage) URLs() []string {
	return append([]string(nil), w.urls...)
}

// Poll implements Adapter. A page that fails to fetch is logged and retried
// on the next poll; the error is only returned when every page failed.
func (w *WebPage) Poll(ctx context.Context) ([]model.Item, error) {
	var (
		items    []model.Item
		failures int
		lastErr  error
	)
	for _, u := range w.urls {
		text, published, err := w.fetch(ctx, u)
		if err != nil {
			failures++
			lastErr = err
			w.logger.Warn(ctx, "page fetch failed", logger.String("url", u), logger.Error(err))
			continue
		}
		sum := xxhash.Sum64String(text)

		w.mu.Lock()
		prev, seen := w.markers[u]
		w.markers[u] = sum
		w.mu.Unlock()
		if seen && prev == sum {
			continue
		}
		items = append(items, model.Item{Text: text, SourceLabel: sourceLabel(u), PublishedAt: published})
	}
	if len(w.urls) > 0 && failures == len(w.urls) {
		return nil, fmt.Errorf("all %d pages failed: %w", failures, lastErr)
	}
	return items, nil
}

func (w *WebPage) fetch(ctx context.Context, u string) (string, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("%w: %d", ErrFetchStatus, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("read body: %w", err)
	}

	text := ExtractText(string(body))
	if text == "" {
		return "", time.Time{}, ErrNoText
	}

	published := time.Now().UTC()
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, perr := http.ParseTime(lm); perr == nil {
			published = t.UTC()
		}
	}
	return text, published, nil
}

// ExtractText parses HTML and returns its readable text with whitespace
// collapsed, truncated to 10 KiB.
func ExtractText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text := strings.Join(strings.Fields(sb.String()), " ")
	if len(text) > maxTextBytes {
		cut := maxTextBytes
		for cut > 0 && !isRuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return strings.TrimSpace(text)
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrBadURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrBadURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrBadURL)
	}
	return u.String(), nil
}

func sourceLabel(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "web"
	}
	return "web:" + parsed.Host
}
