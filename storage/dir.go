package storage

import (
	"fmt"
	"os"
	"strings"
)

// Dir manages a temporary directory, such as a browser's user data
// directory, that is removed when the browser goes away.
type Dir struct {
	Dir    string
	remove bool
}

// Make creates a new temporary directory in tmpDir with the given prefix.
// If dir is not empty, it is used as is and never removed by Cleanup.
func (d *Dir) Make(tmpDir, prefix, dir string) error {
	if dir != "" {
		d.Dir = dir
		return nil
	}
	if !strings.HasSuffix(prefix, "*") {
		prefix += "*"
	}
	var err error
	if d.Dir, err = os.MkdirTemp(tmpDir, prefix); err != nil {
		return fmt.Errorf("creating a temporary directory: %w", err)
	}
	d.remove = true

	return nil
}

// Cleanup removes the temporary directory if Make created it.
// It is safe to call more than once.
func (d *Dir) Cleanup() error {
	if d == nil || !d.remove || d.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(d.Dir); err != nil {
		return fmt.Errorf("removing %q: %w", d.Dir, err)
	}
	d.remove = false

	return nil
}
