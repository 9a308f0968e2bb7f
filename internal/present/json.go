package present

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

// JSONDir writes each presentation to its own file under Dir. Map
// presentations are written as a GeoJSON FeatureCollection (.geojson),
// everything else as a column/row document (.json).
type JSONDir struct {
	Dir    string
	Indent bool
}

type jsonDoc struct {
	RunID       string    `json:"run_id"`
	Name        string    `json:"name"`
	Hint        Hint      `json:"hint"`
	GeneratedAt string    `json:"generated_at"`
	Columns     []jsonCol `json:"columns"`
	Rows        [][]any   `json:"rows"`
}

type jsonCol struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type featureCollection struct {
	Type     string    `json:"type"`
	Name     string    `json:"name"`
	RunID    string    `json:"run_id"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string         `json:"type"`
	Geometry   point          `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Present implements Sink.
func (j *JSONDir) Present(ctx context.Context, p Presentation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(j.Dir, 0o755); err != nil {
		return table.IOError("present", j.Dir, err)
	}

	hint := Resolve(p)
	var (
		doc any
		ext = ".json"
	)
	if fc, ok := geoJSON(p); ok && hint == HintMap {
		doc, ext = fc, ".geojson"
	} else {
		doc = tableDoc(p, hint)
	}

	path := filepath.Join(j.Dir, Slug(p.Name)+ext)
	if err := writeJSON(path, doc, j.Indent); err != nil {
		return table.IOError("present", path, err)
	}
	return nil
}

func tableDoc(p Presentation, hint Hint) jsonDoc {
	cols := p.Table.Columns()
	doc := jsonDoc{
		RunID:       p.RunID,
		Name:        p.Name,
		Hint:        hint,
		GeneratedAt: p.At.UTC().Format(time.RFC3339),
		Columns:     make([]jsonCol, len(cols)),
		Rows:        make([][]any, 0, p.Table.Len()),
	}
	for i, c := range cols {
		doc.Columns[i] = jsonCol{Name: c.Name, Type: c.Type.String()}
	}
	for _, r := range p.Table.Rows() {
		out := make([]any, len(r))
		for i, v := range r {
			out[i] = JSONValue(v)
		}
		doc.Rows = append(doc.Rows, out)
	}
	return doc
}

// geoJSON converts the rows of a point table. Rows without both coordinates
// are left out. GeoJSON orders coordinates longitude first.
func geoJSON(p Presentation) (featureCollection, bool) {
	lat, lon, _, ok := Points(p.Table)
	if !ok {
		return featureCollection{}, false
	}
	names := p.Table.Names()
	fc := featureCollection{Type: "FeatureCollection", Name: p.Name, RunID: p.RunID, Features: []feature{}}
	for _, r := range p.Table.Rows() {
		la, ok1 := Float(r[lat])
		lo, ok2 := Float(r[lon])
		if !ok1 || !ok2 {
			continue
		}
		props := make(map[string]any, len(r)-2)
		for i, v := range r {
			if i != lat && i != lon {
				props[names[i]] = JSONValue(v)
			}
		}
		fc.Features = append(fc.Features, feature{
			Type:       "Feature",
			Geometry:   point{Type: "Point", Coordinates: [2]float64{lo, la}},
			Properties: props,
		})
	}
	return fc, true
}

// JSONValue converts a cell for JSON encoding: dates become their text form
// and non-finite doubles become null.
func JSONValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Format(table.DateLayout)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	}
	return v
}

func writeJSON(path string, doc any, indent bool) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	enc := json.NewEncoder(f)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(doc); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Slug turns a presentation name into a file name stem.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "presentation"
	}
	return s
}
