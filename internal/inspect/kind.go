package inspect

import "strings"

// Kind selects what inspection a document receives.
type Kind int

const (
	KindNone Kind = iota
	KindPDF
	KindImage
)

// KindOf maps a MIME type to its inspection kind.
func KindOf(mimeType string) Kind {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mimeType)), ";")
	switch {
	case base == "application/pdf":
		return KindPDF
	case base == "image/jpeg", base == "image/png", base == "image/gif", base == "image/bmp", base == "image/tiff":
		return KindImage
	}
	return KindNone
}
