// Package blob stores uploaded and exported files on the local filesystem.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tabledock/internal/core"
)

// maxCollisions bounds the numeric suffixes tried for one name.
const maxCollisions = 10000

// Dir is a core.BlobStore rooted at a directory.
type Dir struct {
	root string
}

var _ core.BlobStore = (*Dir)(nil)

// NewDir creates root if needed and returns a store over it.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", root, err)
	}
	return &Dir{root: root}, nil
}

// Save writes r to a new file. When name is taken the stored name gets a
// numeric suffix before its extension: report.csv, report1.csv, report2.csv.
func (d *Dir) Save(ctx context.Context, name string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	stored, f, err := d.createUnique(clean(name))
	if err != nil {
		return "", 0, err
	}

	n, err := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(d.Path(stored))
		return "", 0, fmt.Errorf("write %s: %w", stored, err)
	}
	return stored, n, nil
}

func (d *Dir) createUnique(name string) (string, *os.File, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for i := 1; i <= maxCollisions; i++ {
		f, err := os.OpenFile(d.Path(candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return candidate, f, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", nil, fmt.Errorf("create %s: %w", candidate, err)
		}
		candidate = stem + strconv.Itoa(i) + ext
	}
	return "", nil, fmt.Errorf("no free name for %s", name)
}

// Create opens name for writing, replacing any existing file.
func (d *Dir) Create(name string) (io.WriteCloser, error) {
	f, err := os.Create(d.Path(clean(name)))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	return f, nil
}

func (d *Dir) Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(d.Path(clean(name)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("file %s: %w", name, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// Remove deletes name. A missing file is not an error.
func (d *Dir) Remove(name string) error {
	err := os.Remove(d.Path(clean(name)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// Path returns the filesystem path of name.
func (d *Dir) Path(name string) string {
	return filepath.Join(d.root, clean(name))
}

// clean reduces name to a single path element so callers cannot escape
// the root.
func clean(name string) string {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return "file"
	}
	return base
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
