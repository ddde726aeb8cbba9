package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// maxNameLen caps a sanitized file name, extension included. Well below
// common filesystem limits so the full key stays portable.
const maxNameLen = 100

// LocalFileStorage implements FileStorage on a local directory tree.
//
// Keys look like "2026/08/23/{entityID}/{safeName}": a date partition to
// bound directory fan-out, then the entity id, then the sanitized file
// name. Writes go through a temp file in the target directory followed by
// a rename, so a reader never observes a partially written file. Two
// concurrent saves deriving the same key race at the rename; the last one
// to complete wins, which is the intended re-upload/replace behavior.
type LocalFileStorage struct {
	root string
}

// NewLocalFileStorage creates the adapter rooted at rootPath, creating the
// directory (and any parents) if absent.
func NewLocalFileStorage(rootPath string) (*LocalFileStorage, error) {
	if strings.TrimSpace(rootPath) == "" {
		rootPath = "./storage"
	}
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalFileStorage{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *LocalFileStorage) Root() string { return s.root }

func (s *LocalFileStorage) Save(ctx context.Context, entityID, filename string, r io.Reader) (string, error) {
	name := sanitizeFileName(filename)
	entity := sanitizeSegment(entityID)

	now := time.Now().UTC()
	relDir := filepath.Join(now.Format("2006"), now.Format("01"), now.Format("02"), entity)
	absDir := filepath.Join(s.root, relDir)
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("create storage directory: %w", err)
	}

	finalPath := filepath.Join(absDir, name)
	tmp, err := os.CreateTemp(absDir, name+".tmp*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	if err := writeAll(ctx, tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}

	// Same-directory rename: the commit point. The new content becomes
	// visible in one step, replacing any previous file under this key.
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("publish file: %w", err)
	}

	return filepath.ToSlash(filepath.Join(relDir, name)), nil
}

func (s *LocalFileStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	absPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *LocalFileStorage) Delete(_ context.Context, key string) error {
	absPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (s *LocalFileStorage) Exists(key string) bool {
	absPath, err := s.resolve(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(absPath)
	return err == nil && !info.IsDir()
}

// resolve maps a key to an absolute path strictly inside the root, or
// returns ErrInvalidKey. Traversal is rejected here, before any
// filesystem access.
func (s *LocalFileStorage) resolve(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" || filepath.IsAbs(trimmed) || strings.HasPrefix(trimmed, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := filepath.Clean(filepath.FromSlash(trimmed))
	for _, segment := range strings.Split(cleaned, string(filepath.Separator)) {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	absPath := filepath.Join(s.root, cleaned)
	rel, err := filepath.Rel(s.root, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return absPath, nil
}

// writeAll copies r into f, honoring ctx cancellation between reads.
func writeAll(ctx context.Context, f *os.File, r io.Reader) error {
	if _, err := io.Copy(f, &ctxReader{ctx: ctx, r: r}); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("save cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeFileName reduces an untrusted file name to a single safe path
// segment, capped at maxNameLen with the extension preserved.
func sanitizeFileName(name string) string {
	// Treat both separator styles as separators so a Windows-style path
	// reduces to its last segment.
	flat := strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := filepath.Base(filepath.FromSlash(flat))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "file"
	}
	if len(base) > maxNameLen {
		ext := filepath.Ext(base)
		if len(ext) >= maxNameLen {
			ext = ""
		}
		base = base[:maxNameLen-len(ext)] + ext
	}
	return base
}

// sanitizeSegment cleans an entity id for use as a directory name.
func sanitizeSegment(id string) string {
	seg := unsafeChars.ReplaceAllString(strings.TrimSpace(id), "_")
	seg = strings.Trim(seg, "._")
	if seg == "" {
		return "unknown"
	}
	if len(seg) > maxNameLen {
		seg = seg[:maxNameLen]
	}
	return seg
}

var _ FileStorage = (*LocalFileStorage)(nil)
