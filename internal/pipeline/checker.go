// Package pipeline turns a check request into a compliance report: it
// resolves URLs into page excerpts, applies the length policy and calls the
// model gateway.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/doccheck/internal/extract"
	"github.com/kalambet/doccheck/internal/llm"
	"github.com/kalambet/doccheck/internal/metrics"
	"github.com/kalambet/doccheck/internal/textnorm"
)

var (
	errEmpty       = &ValidationError{Message: "document text is required"}
	errUnreachable = &ValidationError{Message: "content unreachable or too short"}
	errTooShort    = &ValidationError{Message: fmt.Sprintf("document text is too short (minimum %d characters)", MinContentChars)}
)

// Checker runs document checks. It holds no per-request state and is safe
// for concurrent use.
type Checker struct {
	extractor *extract.Extractor
	gateway   llm.Gateway
	metrics   *metrics.Recorder
}

// NewChecker creates a Checker. rec may be nil.
func NewChecker(extractor *extract.Extractor, gateway llm.Gateway, rec *metrics.Recorder) *Checker {
	return &Checker{
		extractor: extractor,
		gateway:   gateway,
		metrics:   rec,
	}
}

// Run checks one document:
//  1. Reject empty content
//  2. Resolve URL content into rendered page sections
//  3. Normalize the text and enforce the minimum length
//  4. Invoke the model gateway with the compliance prompt
//
// Every failure, including a panic, is returned as an unsuccessful result.
func (c *Checker) Run(ctx context.Context, req CheckRequest) (res CheckResult) {
	checkID := uuid.NewString()
	source := metrics.SourceText
	if strings.HasPrefix(req.Content, URLPrefix) {
		source = metrics.SourceURL
	}
	log := slog.With("check_id", checkID, "user_id", req.RequesterID, "source", source)

	start := time.Now()
	done := c.metrics.CheckStarted()
	defer func() {
		if r := recover(); r != nil {
			log.Error("check panicked", "panic", r, "stack", string(debug.Stack()))
			res = failed(FailureInternal, "internal error")
		}
		done()
		c.metrics.ObserveCheck(source, outcome(res), time.Since(start))
		log.Info("check finished",
			"success", res.Success,
			"job_id", res.JobID,
			"duration", time.Since(start),
		)
	}()

	content, err := c.prepare(ctx, req, log)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			log.Info("check rejected", "reason", ve.Message)
			return failed(FailureValidation, ve.Message)
		}
		log.Error("preparing content", "error", err)
		return failed(FailureInternal, err.Error())
	}

	report, err := c.gateway.Invoke(ctx, llm.SystemPrompt, llm.InstructionPrefix+content)
	if err != nil {
		if me, ok := llm.IsModelError(err); ok {
			c.metrics.ModelError(string(me.Kind))
			log.Warn("model call failed", "kind", me.Kind, "error", err, "job_id", report.JobID)
			res = failed(FailureModel, me.Message)
			res.JobID = report.JobID
			return res
		}
		log.Error("model call failed", "error", err)
		return failed(FailureInternal, err.Error())
	}

	return CheckResult{
		Success:    true,
		ReportText: report.Text,
		JobID:      report.JobID,
	}
}

// prepare returns the normalized text to send to the model, or a
// *ValidationError when the request cannot be checked.
func (c *Checker) prepare(ctx context.Context, req CheckRequest, log *slog.Logger) (string, error) {
	if strings.TrimSpace(req.Content) == "" {
		return "", errEmpty
	}

	text := req.Content
	if rest, ok := strings.CutPrefix(req.Content, URLPrefix); ok {
		var err error
		text, err = c.fromURL(ctx, rest, log)
		if err != nil {
			return "", err
		}
	}

	text = textnorm.Normalize(text)
	if textnorm.Length(text) < MinContentChars {
		return "", errTooShort
	}
	return text, nil
}

func (c *Checker) fromURL(ctx context.Context, rawURL string, log *slog.Logger) (string, error) {
	target, err := extract.NormalizeURL(rawURL)
	if err != nil {
		return "", &ValidationError{Message: fmt.Sprintf("invalid URL %q", strings.TrimSpace(rawURL))}
	}

	page, err := c.extractor.Extract(ctx, target)
	if err != nil {
		var fe *extract.FetchError
		if errors.As(err, &fe) {
			log.Warn("fetching page", "url", target, "error", err)
			return "", errUnreachable
		}
		return "", fmt.Errorf("extracting %s: %w", target, err)
	}

	n := excerptLength(page.Sections)
	if n < MinExtractedChars {
		log.Warn("page text too short", "url", page.URL, "chars", n)
		return "", errUnreachable
	}
	log.Debug("page extracted", "url", page.URL, "title", page.Title, "sections", len(page.Sections), "chars", n)

	return sourceHeader(page) + page.Text(), nil
}

// excerptLength counts the extracted characters of sections. Rendered
// section titles are not page content and do not count.
func excerptLength(sections []extract.Section) int {
	n := 0
	for _, sec := range sections {
		n += textnorm.Length(sec.Text)
	}
	return n
}

// sourceHeader names the page a text came from so the model can cite it.
func sourceHeader(page *extract.Page) string {
	var b strings.Builder
	b.WriteString("Источник: " + page.URL + "\n")
	if page.Title != "" {
		b.WriteString("Заголовок: " + page.Title + "\n")
	}
	b.WriteString("\n")
	return b.String()
}

func outcome(res CheckResult) string {
	switch {
	case res.Success:
		return metrics.OutcomeSuccess
	case res.Failure == FailureValidation:
		return metrics.OutcomeValidation
	case res.Failure == FailureModel:
		return metrics.OutcomeModel
	default:
		return metrics.OutcomeInternal
	}
}
