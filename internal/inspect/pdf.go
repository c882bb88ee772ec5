// Package inspect derives page counts, text excerpts, and preview images from
// uploaded documents.
package inspect

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	pdf "github.com/ledongthuc/pdf"
)

// PDFSummary describes a parsed PDF.
type PDFSummary struct {
	PageCount int
	// Excerpt holds the leading text of the document, whitespace-collapsed
	// and cut at a rune boundary.
	Excerpt string
}

// SummarizePDF counts pages and extracts up to maxExcerpt bytes of text.
// Pages whose text cannot be decoded are skipped.
func SummarizePDF(data []byte, maxExcerpt int) (summary PDFSummary, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			summary, err = PDFSummary{}, fmt.Errorf("parse pdf: %v", r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return PDFSummary{}, fmt.Errorf("new pdf reader: %w", err)
	}
	summary = PDFSummary{PageCount: doc.NumPage()}

	var builder strings.Builder
	for page := 1; page <= summary.PageCount && builder.Len() < maxExcerpt; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(strings.Join(strings.Fields(content), " "))
	}
	summary.Excerpt = truncate(strings.TrimSpace(builder.String()), maxExcerpt)
	return summary, nil
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
