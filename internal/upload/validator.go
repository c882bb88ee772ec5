package upload

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// FileInfo is the metadata the validator inspects.
type FileInfo struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
	MimeType  string `json:"mimeType,omitempty"`
}

// Policy bounds which files are admitted. A zero MaxSizeBytes disables the
// size check; empty pattern and extension lists together disable the type
// check.
type Policy struct {
	MaxSizeBytes        int64
	AllowedMimePatterns []string
	AllowedExtensions   []string
}

// Validate checks f against p and returns a *ValidationError carrying every
// failed reason, or nil when the file is admitted.
//
// The type check is a union: a file passes when either its extension or its
// MIME type is allowed, since browsers frequently send one without the other.
func Validate(f FileInfo, p Policy) error {
	var reasons []string
	if p.MaxSizeBytes > 0 && f.SizeBytes > p.MaxSizeBytes {
		reasons = append(reasons, fmt.Sprintf("file size %s exceeds the %s limit",
			humanize.IBytes(uint64(f.SizeBytes)), humanize.IBytes(uint64(p.MaxSizeBytes))))
	}
	if !p.typeAllowed(f) {
		reasons = append(reasons, fmt.Sprintf("file type not allowed (extension %q, mime type %q)",
			extensionOf(f.Name), f.MimeType))
	}
	if len(reasons) > 0 {
		return &ValidationError{Reasons: reasons}
	}
	return nil
}

func (p Policy) typeAllowed(f FileInfo) bool {
	if len(p.AllowedExtensions) == 0 && len(p.AllowedMimePatterns) == 0 {
		return true
	}
	ext := extensionOf(f.Name)
	if ext != "" {
		for _, allowed := range p.AllowedExtensions {
			if strings.EqualFold(normalizeExtension(allowed), ext) {
				return true
			}
		}
	}
	for _, pattern := range p.AllowedMimePatterns {
		if MatchMime(pattern, f.MimeType) {
			return true
		}
	}
	return false
}

// MatchMime reports whether mimeType satisfies pattern. Patterns match exactly
// (ignoring case and parameters), or by major type when the subtype is a
// wildcard as in "image/*". "*" and "*/*" match any non-empty type.
func MatchMime(pattern, mimeType string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	actual := baseMime(mimeType)
	if pattern == "" || actual == "" {
		return false
	}
	if pattern == "*" || pattern == "*/*" {
		return true
	}
	major, minor, ok := strings.Cut(pattern, "/")
	if !ok {
		return false
	}
	if minor == "*" {
		actualMajor, _, ok := strings.Cut(actual, "/")
		return ok && actualMajor == major
	}
	return actual == pattern
}

func baseMime(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(v); err == nil {
		return parsed
	}
	base, _, _ := strings.Cut(v, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

func extensionOf(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

func normalizeExtension(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}
