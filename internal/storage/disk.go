package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dharsanguruparan/clientdesk/internal/lifecycle"
	"github.com/dharsanguruparan/clientdesk/internal/upload"
)

// DiskObjects is an object store rooted in a local directory, one
// subdirectory per bucket. It stands in for S3 in local mode.
type DiskObjects struct {
	root string
}

var _ upload.ObjectStore = (*DiskObjects)(nil)

// NewDiskObjects creates root if needed.
func NewDiskObjects(root string) (*DiskObjects, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create object root: %w", err)
	}
	return &DiskObjects{root: root}, nil
}

// PutObject copies obj.Body to disk, reporting the bytes written so far to
// progress after every chunk. It returns the object key within bucket.
func (d *DiskObjects) PutObject(ctx context.Context, bucket, folder string, obj upload.Object, progress func(sent int64)) (string, error) {
	key := upload.ObjectKey(folder, obj.Name)
	if err := d.write(ctx, bucket, key, obj, progress); err != nil {
		return "", err
	}
	return key, nil
}

// WriteObject stores obj under exactly key, replacing any existing object.
func (d *DiskObjects) WriteObject(ctx context.Context, bucket, key string, obj upload.Object) error {
	return d.write(ctx, bucket, key, obj, nil)
}

func (d *DiskObjects) write(ctx context.Context, bucket, key string, obj upload.Object, progress func(sent int64)) error {
	full, err := d.resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("create object: %w", err)
	}

	src := &countingReader{ctx: ctx, r: obj.Body, progress: progress}
	_, err = io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(full)
		return fmt.Errorf("write object %s: %w", key, err)
	}
	return nil
}

// GetObject opens a stored object.
func (d *DiskObjects) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := d.resolve(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("object %s/%s: %w", bucket, key, lifecycle.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	return f, nil
}

// DeleteObject removes a stored object. Missing objects are not an error.
func (d *DiskObjects) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := d.resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func (d *DiskObjects) resolve(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid bucket %q", bucket)
	}
	base := filepath.Join(d.root, bucket)
	full := filepath.Join(base, filepath.FromSlash(key))
	if !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return full, nil
}

type countingReader struct {
	ctx      context.Context
	r        io.Reader
	sent     int64
	progress func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.r.Read(p)
	if n > 0 {
		c.sent += int64(n)
		if c.progress != nil {
			c.progress(c.sent)
		}
	}
	return n, err
}
