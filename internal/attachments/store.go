// Package attachments stores uploaded files on local disk and hands back a
// reference string.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"fintrack/internal/core"
)

type LocalStore struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

func NewLocalStore(dir string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalStore{dir: dir, maxBytes: maxBytes, now: time.Now}, nil
}

// Save writes r under a name derived from originalName and returns the
// reference. Uploads larger than the configured limit are rejected.
func (s *LocalStore) Save(ctx context.Context, originalName string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := fmt.Sprintf("%d_%s", s.now().UnixMilli(), SanitizeName(originalName))
	path := filepath.Join(s.dir, ref)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create attachment: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		os.Remove(path)
		return "", fmt.Errorf("write attachment: %w", err)
	case closeErr != nil:
		os.Remove(path)
		return "", fmt.Errorf("close attachment: %w", closeErr)
	case n > s.maxBytes:
		os.Remove(path)
		return "", core.NewValidationError("file", fmt.Sprintf("file too large (max %d bytes)", s.maxBytes))
	}
	return ref, nil
}

// Delete removes the file behind ref. Missing files are not an error.
func (s *LocalStore) Delete(ref string) error {
	if ref == "" || ref != filepath.Base(ref) {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}

// Handler serves stored files by reference. Directory listings are refused.
func (s *LocalStore) Handler() http.Handler {
	files := http.FileServer(http.Dir(s.dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// SanitizeName keeps the base name of an uploaded file, replaces whitespace
// with underscores and drops characters that are unsafe in paths.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune('_')
		case r == '/' || r == ':' || r == 0 || unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}
