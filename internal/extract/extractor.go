package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

const (
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	DefaultMaxRedirects = 5
	DefaultTimeout      = 15 * time.Second

	maxBodyBytes = 5 << 20
)

// Config controls how pages are fetched.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
	Rules        []Rule
	// HTTPClient is used for requests when set. Its redirect policy is
	// replaced; redirects are always followed by the extractor itself.
	HTTPClient *http.Client
}

// Page is the cleaned and sectioned content of a fetched document.
type Page struct {
	URL         string
	Title       string
	ContentType string
	Redirects   int
	Sections    []Section
}

// Text renders the page sections for transmission to the model.
func (p *Page) Text() string {
	return Render(p.Sections)
}

// Extractor fetches web documents and cuts them into legal sections.
type Extractor struct {
	client       *http.Client
	timeout      time.Duration
	maxRedirects int
	userAgent    string
	sectioner    *Sectioner
}

// New creates an Extractor. Zero-valued fields of cfg take their defaults.
func New(cfg Config) *Extractor {
	var client http.Client
	if cfg.HTTPClient != nil {
		client = *cfg.HTTPClient
	}
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	e := &Extractor{
		client:       &client,
		timeout:      cfg.Timeout,
		maxRedirects: cfg.MaxRedirects,
		userAgent:    cfg.UserAgent,
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.maxRedirects <= 0 {
		e.maxRedirects = DefaultMaxRedirects
	}
	if e.userAgent == "" {
		e.userAgent = DefaultUserAgent
	}
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules
	}
	e.sectioner = NewSectioner(rules)
	return e
}

// NormalizeURL prepends https:// to scheme-less input and checks that the
// result is an absolute http(s) URL.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u.String(), nil
}

// Extract fetches rawURL, following at most the configured number of
// redirects, and returns its sectioned text. All failures are *FetchError.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*Page, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	doc, err := e.fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	text, title, err := decode(doc.body, doc.contentType)
	if err != nil {
		return nil, &FetchError{URL: doc.url, Err: err}
	}

	page := &Page{
		URL:         doc.url,
		Title:       title,
		ContentType: doc.contentType,
		Redirects:   doc.redirects,
		Sections:    e.sectioner.Find(text),
	}
	slog.Debug("page extracted",
		"url", page.URL,
		"redirects", page.Redirects,
		"bytes", len(doc.body),
		"sections", len(page.Sections),
	)
	return page, nil
}

type document struct {
	url         string
	contentType string
	redirects   int
	body        []byte
}

func (e *Extractor) fetch(ctx context.Context, target string) (*document, error) {
	current := target
	for hops := 0; ; hops++ {
		resp, err := e.get(ctx, current)
		if err != nil {
			return nil, &FetchError{URL: current, Err: err}
		}

		if loc := resp.Header.Get("Location"); isRedirect(resp.StatusCode) && loc != "" {
			resp.Body.Close()
			if hops >= e.maxRedirects {
				return nil, &FetchError{URL: target, Err: fmt.Errorf("%w: more than %d", ErrTooManyRedirects, e.maxRedirects)}
			}
			next, err := resolveLocation(current, loc)
			if err != nil {
				return nil, &FetchError{URL: current, Err: err}
			}
			slog.Debug("following redirect", "from", current, "to", next, "status", resp.StatusCode)
			current = next
			continue
		}

		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, &FetchError{URL: current, Err: fmt.Errorf("%w %d", ErrUnexpectedStatus, resp.StatusCode)}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, &FetchError{URL: current, Err: fmt.Errorf("reading body: %w", err)}
		}
		return &document{
			url:         current,
			contentType: resp.Header.Get("Content-Type"),
			redirects:   hops,
			body:        body,
		}, nil
	}
}

func (e *Extractor) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
	return e.client.Do(req)
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}

func resolveLocation(base, location string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	loc, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parsing Location %q: %w", location, err)
	}
	return b.ResolveReference(loc).String(), nil
}

// decode turns a response body into cleaned text and the document title.
func decode(body []byte, contentType string) (text, title string, err error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/pdf" || bytes.HasPrefix(body, []byte("%PDF-")) {
		raw, err := pdfText(body)
		if err != nil {
			return "", "", err
		}
		return collapseWhitespace(strings.ToValidUTF8(raw, "")), "", nil
	}

	html := toUTF8(body, contentType)
	return StripMarkup(html), pageTitle(html), nil
}

// toUTF8 decodes body using the charset from the Content-Type header or the
// document's meta tags. Undecodable input is passed through as is.
func toUTF8(body []byte, contentType string) string {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return strings.ToValidUTF8(string(body), "")
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return strings.ToValidUTF8(string(body), "")
	}
	return strings.ToValidUTF8(string(decoded), "")
}

func pageTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return collapseWhitespace(doc.Find("title").First().Text())
}
