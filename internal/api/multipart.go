package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/dharsanguruparan/clientdesk/internal/lifecycle"
	"github.com/dharsanguruparan/clientdesk/internal/upload"
)

const (
	fileField     = "file"
	maxFieldBytes = 4 << 10
	// multipartSlack covers boundaries and form fields around the file.
	multipartSlack = 1 << 20
)

// tempUpload is a multipart file spooled to disk so the tracker can read it
// with a known size.
type tempUpload struct {
	f           *os.File
	path        string
	size        int64
	contentType string
	filename    string
}

func (t *tempUpload) Close() {
	t.f.Close()
	os.Remove(t.path)
}

// File rewinds the spooled copy and describes it for the tracker.
func (t *tempUpload) File() (upload.File, error) {
	if _, err := t.f.Seek(0, io.SeekStart); err != nil {
		return upload.File{}, fmt.Errorf("rewind temp file: %w", err)
	}
	return upload.File{
		FileInfo: upload.FileInfo{Name: t.filename, SizeBytes: t.size, MimeType: t.contentType},
		Body:     t.f,
	}, nil
}

// readMultipart spools the "file" part to a temp file and collects every
// other part as a form value. The caller owns the returned upload.
func (s *Server) readMultipart(w http.ResponseWriter, r *http.Request) (*tempUpload, map[string]string, error) {
	limit := s.cfg.Uploads.MaxFileBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartSlack)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: expecting multipart form", lifecycle.ErrInvalidInput)
	}
	fields := make(map[string]string)
	var tmp *tempUpload
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if tmp != nil {
				tmp.Close()
			}
			return nil, nil, fmt.Errorf("%w: read multipart: %v", lifecycle.ErrInvalidInput, err)
		}
		if part.FormName() == fileField && tmp == nil {
			tmp, err = persistTemp(part, limit)
		} else {
			err = readField(part, fields)
		}
		part.Close()
		if err != nil {
			if tmp != nil {
				tmp.Close()
			}
			return nil, nil, err
		}
	}
	if tmp == nil {
		return nil, nil, fmt.Errorf("%w: missing %q part", lifecycle.ErrInvalidInput, fileField)
	}
	return tmp, fields, nil
}

func readField(part *multipart.Part, fields map[string]string) error {
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return fmt.Errorf("%w: read field %s: %v", lifecycle.ErrInvalidInput, part.FormName(), err)
	}
	if len(data) > maxFieldBytes {
		return fmt.Errorf("%w: field %s is too long", lifecycle.ErrInvalidInput, part.FormName())
	}
	fields[part.FormName()] = strings.TrimSpace(string(data))
	return nil
}

// persistTemp copies part to disk, refusing anything larger than limit. The
// declared part content type is kept; the tracker sniffs when it is absent.
func persistTemp(part *multipart.Part, limit int64) (*tempUpload, error) {
	tmpFile, err := os.CreateTemp("", "clientdesk-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	written, err := io.Copy(tmpFile, io.LimitReader(part, limit+1))
	if err == nil && written > limit {
		err = &upload.ValidationError{Reasons: []string{
			fmt.Sprintf("file exceeds the %s limit", humanize.IBytes(uint64(limit))),
		}}
	}
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		var verr *upload.ValidationError
		if errors.As(err, &verr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read file: %v", lifecycle.ErrInvalidInput, err)
	}
	contentType := part.Header.Get("Content-Type")
	if contentType == "application/octet-stream" {
		contentType = ""
	}
	return &tempUpload{
		f:           tmpFile,
		path:        tmpFile.Name(),
		size:        written,
		contentType: contentType,
		filename:    part.FileName(),
	}, nil
}
