package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfText returns the plain text of a PDF document, page by page. Pages
// whose text cannot be read are skipped. The pdf package panics on some
// malformed inputs; those are reported as ErrUnreadableDocument.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: pdf: %v", ErrUnreadableDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pdf: %v", ErrUnreadableDocument, err)
	}

	var b strings.Builder
	for n := 1; n <= reader.NumPage(); n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			slog.Debug("skipping unreadable pdf page", "page", n, "error", err)
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: pdf has no extractable text", ErrUnreadableDocument)
	}
	return b.String(), nil
}
