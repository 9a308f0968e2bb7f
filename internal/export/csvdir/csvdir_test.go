package csvdir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/RobertDonnan/ufo-notebook/internal/datasource/file"
	csvparser "github.com/RobertDonnan/ufo-notebook/internal/parser/csv"
	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

func sightings(n int) *table.Table {
	rows := make([][]any, n)
	for i := range rows {
		var lat any = 47.6 + float64(i)/10
		if i%3 == 0 {
			lat = nil
		}
		rows[i] = []any{"US", int64(2000 + i), time.Date(2004, 4, 27, 0, 0, 0, 0, time.UTC), lat, "a, \"quoted\" note"}
	}
	return table.MustNew([]table.Column{
		{Name: "Country", Type: table.Text},
		{Name: "Year", Type: table.Int},
		{Name: "date_documented", Type: table.Date},
		{Name: "latitude", Type: table.Double},
		{Name: "Description", Type: table.Text},
	}, rows)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir %s: %v", dir, err)
	}
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

// TestWrite_RoundTrip exports then loads with the same header option and
// expects the same names and non-null cells as text.
func TestWrite_RoundTrip(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "transformed", "ufo")
	in := sightings(5)

	res, err := Write(context.Background(), in, dest, Options{Header: true})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if res.Rows != 5 || len(res.Parts) != 1 {
		t.Fatalf("Result = %+v, want 5 rows in 1 part", res)
	}
	if diff := cmp.Diff([]string{"_SUCCESS", "part-00000.csv"}, listDir(t, dest)); diff != "" {
		t.Fatalf("dir mismatch (-want +got):\n%s", diff)
	}

	parts, err := file.NewLocal(dest).Parts(context.Background())
	if err != nil {
		t.Fatalf("Parts: %v", err)
	}
	back, err := csvparser.NewParser(csvparser.Options{Header: true}).ParseParts(context.Background(), parts)
	if err != nil {
		t.Fatalf("ParseParts: %v", err)
	}
	if diff := cmp.Diff(in.Names(), back.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	for i, row := range in.Rows() {
		for j, v := range row {
			var want any
			if v != nil {
				want = table.FormatCell(v)
			}
			if got := back.Row(i)[j]; got != want {
				t.Fatalf("cell %d,%d = %v, want %v", i, j, got, want)
			}
		}
	}
}

// TestWrite_QuotedCellsReload pins which awkward text cells survive an export
// and reload: separators, quotes and LF do, CRLF comes back as LF.
func TestWrite_QuotedCellsReload(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "ufo")
	in := table.MustNew(table.TextColumns("comments"), [][]any{
		{"bright, fast"},
		{`it said "hello"`},
		{"line one\nline two"},
		{"line one\r\nline two"},
	})
	if _, err := Write(context.Background(), in, dest, Options{Header: true}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	parts, err := file.NewLocal(dest).Parts(context.Background())
	if err != nil {
		t.Fatalf("Parts: %v", err)
	}
	back, err := csvparser.NewParser(csvparser.Options{Header: true}).ParseParts(context.Background(), parts)
	if err != nil {
		t.Fatalf("ParseParts: %v", err)
	}
	want := [][]any{
		{"bright, fast"},
		{`it said "hello"`},
		{"line one\nline two"},
		{"line one\nline two"},
	}
	if diff := cmp.Diff(want, back.Rows()); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_OverwriteLeavesNothingBehind(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "ufo")

	if _, err := Write(context.Background(), sightings(10), dest, Options{Header: true, MaxRowsPerFile: 3}); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	if got := len(listDir(t, dest)); got != 5 {
		t.Fatalf("first export has %d entries, want 4 parts + _SUCCESS", got)
	}
	if err := os.WriteFile(filepath.Join(dest, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Write(context.Background(), sightings(2), dest, Options{Header: false}); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if diff := cmp.Diff([]string{"_SUCCESS", "part-00000.csv"}, listDir(t, dest)); diff != "" {
		t.Fatalf("dir after overwrite (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"ufo"}, listDir(t, root)); diff != "" {
		t.Fatalf("staging left behind (-want +got):\n%s", diff)
	}
}

func TestWrite_SplitsParts(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "ufo")
	res, err := Write(context.Background(), sightings(7), dest, Options{Header: true, MaxRowsPerFile: 3})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	var names []string
	for _, p := range res.Parts {
		names = append(names, filepath.Base(p))
	}
	if diff := cmp.Diff([]string{"part-00000.csv", "part-00001.csv", "part-00002.csv"}, names); diff != "" {
		t.Fatalf("parts mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_EmptyTableStillWritesAPart(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "ufo")
	empty := table.MustNew(table.TextColumns("Country"), nil)
	if _, err := Write(context.Background(), empty, dest, Options{Header: true}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dest, "part-00000.csv"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(b) != "Country\n" {
		t.Fatalf("part = %q, want header only", b)
	}
}

func TestWrite_UnwritableDestination(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "mnt")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Write(context.Background(), sightings(1), filepath.Join(blocker, "ufo"), Options{})
	if !errors.Is(err, table.ErrIO) {
		t.Fatalf("err = %v, want ErrIO", err)
	}
}

func TestWrite_CanceledContext(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Write(ctx, sightings(3), filepath.Join(root, "ufo"), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := listDir(t, root); len(got) != 0 {
		t.Fatalf("entries after failed write: %v", got)
	}
}
