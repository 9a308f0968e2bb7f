// Package file reads pipeline input from the local filesystem (or any mount
// that looks like one).
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/RobertDonnan/ufo-notebook/internal/datasource"
)

// Local is a file, or a directory of part files, on local disk.
type Local struct{ path string }

var (
	_ datasource.Source      = (*Local)(nil)
	_ datasource.Partitioned = (*Local)(nil)
)

// NewLocal returns a Local bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the bound path.
func (l *Local) Path() string { return l.path }

// Open opens the path for sequential reading. It fails for directories; use
// Parts for those.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	if st, err := f.Stat(); err == nil && st.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: is a directory", l.path)
	}
	adviseSequential(f)
	return f, nil
}

// Parts returns the path itself when it is a file. For a directory it
// returns the regular files inside it in name order, skipping names that
// start with "_" or "." (markers such as _SUCCESS and hidden files).
func (l *Local) Parts(ctx context.Context) ([]datasource.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", l.path, err)
	}
	if !st.IsDir() {
		return []datasource.Source{l}, nil
	}

	entries, err := os.ReadDir(l.path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", l.path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		n := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(n, "_") || strings.HasPrefix(n, ".") {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]datasource.Source, len(names))
	for i, n := range names {
		out[i] = NewLocal(filepath.Join(l.path, n))
	}
	return out, nil
}
