// Package csvdir writes a table as a directory of CSV part files, the layout
// distributed engines use for exports:
//
//	<dest>/part-00000.csv
//	<dest>/part-00001.csv
//	<dest>/_SUCCESS
//
// Writes replace the destination. Content is staged in a sibling directory and
// swapped in with renames, so readers see the old export or the new one and
// never a mix of both.
//
// Cells are read back as written except for line endings inside a field:
// the CSV reader folds "\r\n" to "\n", so a text cell holding CRLF reloads
// with LF only.
package csvdir

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

// SuccessMarker is written last, once every part is complete.
const SuccessMarker = "_SUCCESS"

// Options controls the written files.
type Options struct {
	// Header writes the column names as the first row of every part.
	Header bool

	// Comma is the field delimiter; ',' when zero.
	Comma rune

	// MaxRowsPerFile splits output into parts of at most this many rows.
	// Zero or less writes a single part.
	MaxRowsPerFile int
}

// Result describes a finished export.
type Result struct {
	Dir   string
	Parts []string
	Rows  int
}

// newID names staging directories; tests replace it.
var newID = func() string { return uuid.NewString() }

// Write exports t to dest, replacing anything already there. Failures are
// reported as table.ErrIO.
func Write(ctx context.Context, t *table.Table, dest string, opt Options) (Result, error) {
	dest = filepath.Clean(dest)
	parent, base := filepath.Dir(dest), filepath.Base(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return Result{}, table.IOError("export", dest, err)
	}

	id := newID()
	stage := filepath.Join(parent, fmt.Sprintf(".%s-%s.tmp", base, id))
	if err := os.Mkdir(stage, 0o755); err != nil {
		return Result{}, table.IOError("export", dest, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(stage)
		}
	}()

	parts, err := writeParts(ctx, t, stage, opt)
	if err != nil {
		return Result{}, table.IOError("export", dest, err)
	}
	if err := os.WriteFile(filepath.Join(stage, SuccessMarker), nil, 0o644); err != nil {
		return Result{}, table.IOError("export", dest, err)
	}
	if err := swap(stage, dest, filepath.Join(parent, fmt.Sprintf(".%s-%s.old", base, id))); err != nil {
		return Result{}, table.IOError("export", dest, err)
	}
	committed = true

	for i, p := range parts {
		parts[i] = filepath.Join(dest, p)
	}
	return Result{Dir: dest, Parts: parts, Rows: t.Len()}, nil
}

// swap moves stage to dest. An existing dest is moved aside first and
// restored if the second rename fails.
func swap(stage, dest, trash string) error {
	st, err := os.Stat(dest)
	switch {
	case os.IsNotExist(err):
		return os.Rename(stage, dest)
	case err != nil:
		return err
	case !st.IsDir():
		// A plain file in the way is replaced as well.
		if err := os.Remove(dest); err != nil {
			return err
		}
		return os.Rename(stage, dest)
	}

	if err := os.Rename(dest, trash); err != nil {
		return err
	}
	if err := os.Rename(stage, dest); err != nil {
		if rerr := os.Rename(trash, dest); rerr != nil {
			log.Printf("csvdir: restore previous export dir=%s err=%v", dest, rerr)
		}
		return err
	}
	if err := os.RemoveAll(trash); err != nil {
		log.Printf("csvdir: remove previous export dir=%s err=%v", trash, err)
	}
	return nil
}

func writeParts(ctx context.Context, t *table.Table, dir string, opt Options) ([]string, error) {
	per := opt.MaxRowsPerFile
	if per <= 0 || per > t.Len() {
		per = t.Len()
	}

	var names []string
	for lo := 0; lo == 0 || lo < t.Len(); lo += per {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hi := min(lo+per, t.Len())
		name := fmt.Sprintf("part-%05d.csv", len(names))
		if err := writePart(filepath.Join(dir, name), t, lo, hi, opt); err != nil {
			return nil, err
		}
		names = append(names, name)
		if per == 0 {
			break
		}
	}
	return names, nil
}

func writePart(path string, t *table.Table, lo, hi int, opt Options) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	if opt.Comma != 0 {
		w.Comma = opt.Comma
	}
	if opt.Header {
		if err := w.Write(t.Names()); err != nil {
			return err
		}
	}
	rec := make([]string, t.Width())
	for _, row := range t.Rows()[lo:hi] {
		for i, v := range row {
			rec[i] = table.FormatCell(v)
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
