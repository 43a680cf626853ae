package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// FilePersister stores artifacts such as screenshots.
type FilePersister interface {
	Persist(ctx context.Context, path string, data io.Reader) error
}

// DirPersister writes artifacts to disk. Relative paths are placed under
// Dir, or the working directory when Dir is empty. A file is written to a
// temporary name first so that readers never see a partial artifact.
type DirPersister struct {
	Dir string
}

// Persist writes data to path, replacing any existing file.
func (p *DirPersister) Persist(ctx context.Context, path string, data io.Reader) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("persisting %q: %w", path, err)
	}

	dst := filepath.Clean(path)
	if p.Dir != "" && !filepath.IsAbs(dst) {
		dst = filepath.Join(p.Dir, dst)
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("creating %q: %w", dst, err)
	}
	_, err = io.Copy(tmp, data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing %q: %w", dst, err)
	}

	return nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SafeFileName turns an arbitrary label, such as a test name or an XPath,
// into a file name that is safe on every platform.
func SafeFileName(label, ext string) string {
	name := strings.Trim(unsafeFileChars.ReplaceAllString(label, "_"), "_")
	if len(name) > 100 {
		name = name[:100]
	}
	if name == "" {
		name = "unnamed"
	}
	return name + ext
}
