package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kalambet/doccheck/internal/extract"
	"github.com/kalambet/doccheck/internal/llm"
	"github.com/kalambet/doccheck/internal/metrics"
)

type fakeGateway struct {
	calls   atomic.Int32
	content string
	report  llm.Report
	err     error
	panics  bool
}

func (g *fakeGateway) Invoke(_ context.Context, systemPrompt, userContent string) (llm.Report, error) {
	g.calls.Add(1)
	if g.panics {
		panic("boom")
	}
	g.content = userContent
	return g.report, g.err
}

func (g *fakeGateway) Describe(context.Context) (llm.BackendInfo, error) {
	return llm.BackendInfo{Protocol: "fake"}, nil
}

var longText = strings.Repeat("Продавец обязуется передать товар. ", 5)

func TestRun_Success(t *testing.T) {
	gw := &fakeGateway{report: llm.Report{Text: "Риск низкий", JobID: "thread_1"}}
	c := NewChecker(extract.New(extract.Config{}), gw, nil)

	res := c.Run(context.Background(), CheckRequest{Content: "\x00  " + longText + "\r\n", RequesterID: "u1"})
	if !res.Success {
		t.Fatalf("Success = false, error %q", res.ErrorMessage)
	}
	if res.ReportText != "Риск низкий" || res.JobID != "thread_1" {
		t.Errorf("result = %+v", res)
	}
	want := llm.InstructionPrefix + strings.TrimSpace(longText)
	if gw.content != want {
		t.Errorf("gateway content = %q, want %q", gw.content, want)
	}
}

func TestRun_RejectsShortInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"empty", "", "required"},
		{"whitespace", "   \n\t", "required"},
		{"short", "short", "too short"},
		{"short after normalization", "\x00\x01" + strings.Repeat("a", 49) + "\x7F", "too short"},
		{"control chars only", strings.Repeat("\x01", 80), "too short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{}
			res := NewChecker(extract.New(extract.Config{}), gw, nil).Run(context.Background(), CheckRequest{Content: tt.content, RequesterID: "u1"})
			if res.Success {
				t.Fatal("Success = true, want false")
			}
			if res.Failure != FailureValidation {
				t.Errorf("Failure = %v, want FailureValidation", res.Failure)
			}
			if !strings.Contains(res.ErrorMessage, tt.wantMsg) {
				t.Errorf("ErrorMessage = %q, want it to contain %q", res.ErrorMessage, tt.wantMsg)
			}
			if n := gw.calls.Load(); n != 0 {
				t.Errorf("gateway calls = %d, want 0", n)
			}
		})
	}
}

func TestRun_ExactlyMinimumLength(t *testing.T) {
	gw := &fakeGateway{report: llm.Report{Text: "ok"}}
	res := NewChecker(nil, gw, nil).Run(context.Background(), CheckRequest{Content: strings.Repeat("ю", MinContentChars)})
	if !res.Success {
		t.Errorf("%d characters rejected: %q", MinContentChars, res.ErrorMessage)
	}
}

func TestRun_URLWithOffer(t *testing.T) {
	page := "<html><head><title>Магазин</title></head><body><h1>Публичная оферта</h1><p>" +
		strings.Repeat("Покупатель оплачивает товар. ", 150) + "</p></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	gw := &fakeGateway{report: llm.Report{Text: "report"}}
	res := NewChecker(extract.New(extract.Config{}), gw, nil).Run(context.Background(), CheckRequest{Content: URLPrefix + srv.URL})
	if !res.Success {
		t.Fatalf("Success = false, error %q", res.ErrorMessage)
	}
	if !strings.HasPrefix(gw.content, llm.InstructionPrefix+"Источник: "+srv.URL) {
		t.Errorf("gateway content missing source header: %q", gw.content[:120])
	}
	if !strings.Contains(gw.content, "Заголовок: Магазин") {
		t.Error("gateway content missing page title")
	}
	if !strings.Contains(gw.content, "ОФЕРТА:\n") {
		t.Error("gateway content missing OFFER section")
	}
	if strings.Contains(gw.content, "ПОЛИТИКА КОНФИДЕНЦИАЛЬНОСТИ:") {
		t.Error("unexpected PRIVACY section")
	}
}

func TestRun_URLUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	gw := &fakeGateway{}
	res := NewChecker(extract.New(extract.Config{}), gw, nil).Run(context.Background(), CheckRequest{Content: URLPrefix + addr})
	if res.Success || res.Failure != FailureValidation {
		t.Fatalf("result = %+v, want validation failure", res)
	}
	if res.ErrorMessage != "content unreachable or too short" {
		t.Errorf("ErrorMessage = %q", res.ErrorMessage)
	}
	if gw.calls.Load() != 0 {
		t.Error("gateway called for unreachable page")
	}
}

func TestRun_URLTooShort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<p>Coming soon</p>")
	}))
	defer srv.Close()

	gw := &fakeGateway{}
	res := NewChecker(extract.New(extract.Config{}), gw, nil).Run(context.Background(), CheckRequest{Content: URLPrefix + srv.URL})
	if res.ErrorMessage != "content unreachable or too short" {
		t.Errorf("ErrorMessage = %q, want content unreachable or too short", res.ErrorMessage)
	}
	if gw.calls.Load() != 0 {
		t.Error("gateway called for short page")
	}
}

func TestRun_URLSectionTitlesDoNotCount(t *testing.T) {
	tests := []struct {
		name    string
		filler  int
		success bool
	}{
		// With the "ОФЕРТА:\n" title the rendered text is 100 characters.
		{"92 characters of section text", 75, false},
		{"100 characters of section text", 83, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := "<p>Публичная оферта " + strings.Repeat("а", tt.filler) + "</p>"
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, page)
			}))
			defer srv.Close()

			gw := &fakeGateway{report: llm.Report{Text: "report"}}
			res := NewChecker(extract.New(extract.Config{}), gw, nil).Run(context.Background(), CheckRequest{Content: URLPrefix + srv.URL})
			if res.Success != tt.success {
				t.Fatalf("Success = %v, want %v (error %q)", res.Success, tt.success, res.ErrorMessage)
			}
			if !tt.success {
				if res.ErrorMessage != "content unreachable or too short" {
					t.Errorf("ErrorMessage = %q", res.ErrorMessage)
				}
				if gw.calls.Load() != 0 {
					t.Error("gateway called for short page")
				}
			}
		})
	}
}

func TestRun_InvalidURL(t *testing.T) {
	gw := &fakeGateway{}
	res := NewChecker(extract.New(extract.Config{}), gw, nil).Run(context.Background(), CheckRequest{Content: URLPrefix + "ftp://example.com"})
	if res.Failure != FailureValidation || !strings.Contains(res.ErrorMessage, "invalid URL") {
		t.Errorf("result = %+v, want invalid URL validation failure", res)
	}
}

func TestRun_ModelErrorVerbatim(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer srv.Close()

	rec := metrics.New()
	gw := llm.NewChatClient(llm.ChatConfig{BaseURL: srv.URL, APIKey: "k"})
	res := NewChecker(nil, gw, rec).Run(context.Background(), CheckRequest{Content: longText})

	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if res.ErrorMessage != "Groq API: rate limited" {
		t.Errorf("ErrorMessage = %q, want %q", res.ErrorMessage, "Groq API: rate limited")
	}
	if res.Failure != FailureModel {
		t.Errorf("Failure = %v, want FailureModel", res.Failure)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("backend requests = %d, want 1", n)
	}

	want := `
# HELP doccheck_model_errors_total Total number of model backend errors by kind
# TYPE doccheck_model_errors_total counter
doccheck_model_errors_total{kind="backend_error"} 1
`
	if err := testutil.GatherAndCompare(rec.Gatherer(), strings.NewReader(want), "doccheck_model_errors_total"); err != nil {
		t.Error(err)
	}
}

func TestRun_UnexpectedGatewayError(t *testing.T) {
	gw := &fakeGateway{err: errors.New("socket closed")}
	res := NewChecker(nil, gw, nil).Run(context.Background(), CheckRequest{Content: longText})
	if res.Success || res.Failure != FailureInternal {
		t.Errorf("result = %+v, want internal failure", res)
	}
}

func TestRun_RecoversPanic(t *testing.T) {
	rec := metrics.New()
	gw := &fakeGateway{panics: true}
	res := NewChecker(nil, gw, rec).Run(context.Background(), CheckRequest{Content: longText})
	if res.Success || res.Failure != FailureInternal {
		t.Fatalf("result = %+v, want internal failure", res)
	}
	if res.ErrorMessage == "" {
		t.Error("ErrorMessage empty")
	}

	want := `
# HELP doccheck_checks_total Total number of document checks by source and outcome
# TYPE doccheck_checks_total counter
doccheck_checks_total{outcome="internal_error",source="text"} 1
`
	if err := testutil.GatherAndCompare(rec.Gatherer(), strings.NewReader(want), "doccheck_checks_total"); err != nil {
		t.Error(err)
	}
}
