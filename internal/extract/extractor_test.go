package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const offerPage = `<html><head><title> Магазин
 «Пример» </title><style>body{}</style></head>
<body><h1>Публичная оферта</h1><p>Продавец обязуется передать товар покупателю.</p>
<script>track()</script></body></html>`

func TestExtract_HTML(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, offerPage)
	}))
	defer srv.Close()

	page, err := New(Config{}).Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, DefaultUserAgent)
	}
	if gotLang == "" {
		t.Error("Accept-Language not set")
	}
	if page.Title != "Магазин «Пример»" {
		t.Errorf("Title = %q, want %q", page.Title, "Магазин «Пример»")
	}
	if len(page.Sections) != 1 || page.Sections[0].Label != LabelOffer {
		t.Fatalf("sections = %v, want [OFFER]", labels(page.Sections))
	}
	text := page.Text()
	if !strings.HasPrefix(text, "ОФЕРТА:\n") {
		t.Errorf("Text() = %q, want ОФЕРТА header", text)
	}
	if strings.Contains(text, "track()") || strings.Contains(text, "body{}") {
		t.Errorf("script or style leaked into text: %q", text)
	}
}

func TestExtract_FollowsRelativeRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/middle", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/middle", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "final")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<p>privacy policy</p>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	page, err := New(Config{}).Extract(context.Background(), srv.URL+"/start")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if page.URL != srv.URL+"/final" {
		t.Errorf("URL = %q, want %q", page.URL, srv.URL+"/final")
	}
	if page.Redirects != 2 {
		t.Errorf("Redirects = %d, want 2", page.Redirects)
	}
}

func TestExtract_RedirectCycle(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "/a", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := New(Config{}).Extract(context.Background(), srv.URL+"/a")
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("err = %v, want ErrTooManyRedirects", err)
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %T, want *FetchError", err)
	}
	if got := hits.Load(); got != DefaultMaxRedirects+1 {
		t.Errorf("requests = %d, want %d", got, DefaultMaxRedirects+1)
	}
}

func TestExtract_RedirectLimitIsInclusive(t *testing.T) {
	mux := http.NewServeMux()
	for i := 0; i < 3; i++ {
		next := fmt.Sprintf("/r%d", i+1)
		mux.HandleFunc(fmt.Sprintf("/r%d", i), func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, next, http.StatusTemporaryRedirect)
		})
	}
	mux.HandleFunc("/r3", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "done")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	if _, err := New(Config{MaxRedirects: 3}).Extract(context.Background(), srv.URL+"/r0"); err != nil {
		t.Errorf("3 redirects with limit 3: %v", err)
	}
	_, err := New(Config{MaxRedirects: 2}).Extract(context.Background(), srv.URL+"/r0")
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Errorf("3 redirects with limit 2: err = %v, want ErrTooManyRedirects", err)
	}
}

func TestExtract_RedirectWithoutLocationIsFinal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultipleChoices)
		fmt.Fprint(w, "pick one")
	}))
	defer srv.Close()

	page, err := New(Config{}).Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := page.Text(); got != "pick one" {
		t.Errorf("Text() = %q, want %q", got, "pick one")
	}
}

func TestExtract_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := New(Config{}).Extract(context.Background(), srv.URL)
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("err = %v, want ErrUnexpectedStatus", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error %q does not name the status", err)
	}
}

func TestExtract_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(Config{}).Extract(context.Background(), addr)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.URL != addr {
		t.Errorf("FetchError.URL = %q, want %q", fe.URL, addr)
	}
}

func TestExtract_Windows1251(t *testing.T) {
	body := append([]byte("<html><body><p>"), cp1251("Политика конфиденциальности магазина")...)
	body = append(body, []byte("</p></body></html>")...)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1251")
		w.Write(body)
	}))
	defer srv.Close()

	page, err := New(Config{}).Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(page.Sections) != 1 || page.Sections[0].Label != LabelPrivacy {
		t.Fatalf("sections = %v, want [PRIVACY]", labels(page.Sections))
	}
	if want := "Политика конфиденциальности магазина"; page.Sections[0].Text != want {
		t.Errorf("Text = %q, want %q", page.Sections[0].Text, want)
	}
}

func TestExtract_BrokenPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4 not really a pdf")
	}))
	defer srv.Close()

	_, err := New(Config{}).Extract(context.Background(), srv.URL)
	if !errors.Is(err, ErrUnreadableDocument) {
		t.Fatalf("err = %v, want ErrUnreadableDocument", err)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"example.com", "https://example.com", false},
		{"  shop.ru/offer  ", "https://shop.ru/offer", false},
		{"http://example.com/a?b=c", "http://example.com/a?b=c", false},
		{"ftp://example.com", "", true},
		{"https://", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeURL(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidURL) {
			t.Errorf("NormalizeURL(%q) err = %v, want ErrInvalidURL", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// cp1251 encodes the Cyrillic letters and ASCII of s as windows-1251.
func cp1251(s string) []byte {
	var out []byte
	for _, r := range s {
		switch {
		case r >= 'А' && r <= 'я':
			out = append(out, byte(0xC0+(r-'А')))
		case r < 0x80:
			out = append(out, byte(r))
		}
	}
	return out
}
