// Package resume provides text extraction for uploaded resumes and job
// descriptions.
//
// It uses ledongthuc/pdf (BSD-3, pure Go, no CGO) for PDF extraction and
// passes plain text through unchanged. This is a separate subpackage so the
// PDF dependency is only pulled in by users who need document support.
package resume

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	cadre "github.com/cadrehq/cadre"
)

// Extractor implements cadre.ResumeExtractor for PDF and plain-text input.
type Extractor struct{}

// NewExtractor creates a resume extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

var _ cadre.ResumeExtractor = (*Extractor)(nil)

// pdfMagic is the header every PDF file starts with.
var pdfMagic = []byte("%PDF-")

// ExtractText returns the plain text of a document. PDF input is extracted
// page by page; valid UTF-8 input is returned trimmed; anything else is
// rejected.
func (e *Extractor) ExtractText(content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("empty document")
	}
	if bytes.HasPrefix(content, pdfMagic) {
		return extractPDF(content)
	}
	if utf8.Valid(content) {
		return strings.TrimSpace(string(content)), nil
	}
	return "", fmt.Errorf("unsupported document format")
}

// extractPDF extracts text from every readable page, skipping pages that
// cannot be parsed.
func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var text strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue // skip unreadable pages
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if text.Len() > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(pageText)
	}

	out := strings.TrimSpace(text.String())
	if out == "" {
		return "", fmt.Errorf("no extractable text in pdf")
	}
	return out, nil
}
