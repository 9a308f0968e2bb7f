package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"

	"github.com/RobertDonnan/ufo-notebook/internal/config"
	"github.com/RobertDonnan/ufo-notebook/internal/present"
	"github.com/RobertDonnan/ufo-notebook/internal/present/kafkasink"
	"github.com/RobertDonnan/ufo-notebook/internal/table"

	_ "github.com/RobertDonnan/ufo-notebook/internal/storage/sqlite"
)

const sightingsCSV = `Date_time,date_documented,Year,Month,Hour,Season,Country_Code,Country,Region,Locale,latitude,longitude,UFO_shape,length_of_encounter_seconds,Encounter_Duration,Description
1949-10-10 20:30:00,2004-04-27,1949,10,20,Autumn,USA,United States,Texas,San Marcos,29.8830556,-97.9411111,Cylinder,2700,45 minutes,This event took place in early fall
1956-10-10 21:00:00,2004-01-22,1956,10,21,Autumn,USA,United States,Alabama,Edna,28.9783333,-96.6458333,Circle,20,20,My older brother and twin sister
1960-10-10 20:00:00,2004-01-22,1960,10,20,Autumn,CAN,Canada,Saskatchewan,Regina,,-104.6,Light,1800,1800,A bright light
1961-10-10 19:00:00,not a date,1961,10,19,Autumn,USA,United States,Iowa,Ames,42.03,-93.62,Circle,abc,3,Short glow
`

type recordingSink struct {
	mu   sync.Mutex
	seen []present.Presentation
}

func (r *recordingSink) Present(_ context.Context, p present.Presentation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, p)
	return nil
}

func (r *recordingSink) byName(name string) (present.Presentation, bool) {
	for _, p := range r.seen {
		if p.Name == name {
			return p, true
		}
	}
	return present.Presentation{}, false
}

type failingSink struct{}

func (failingSink) Present(context.Context, present.Presentation) error {
	return errors.New("widget unavailable")
}

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ufo-sightings-transformed.csv")
	if err := os.WriteFile(path, []byte(sightingsCSV), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func notebookSpec(input, out1, out2 string) config.Pipeline {
	q := func(name string, group string, agg map[string]any, hint string) any {
		return map[string]any{
			"name":         name,
			"group_by":     []any{group},
			"aggregations": []any{agg},
			"hint":         hint,
		}
	}
	locations := config.Options{
		"name":            "locations",
		"filter_not_null": []any{"latitude", "longitude"},
		"select":          []any{"latitude", "longitude", "Country"},
		"hint":            "map",
	}
	return config.Pipeline{
		Job:    "ufo_sightings",
		Source: config.Source{Kind: "file", File: config.SourceFile{Path: input}},
		Parser: config.Parser{Kind: "csv", Options: config.Options{"header": "true"}},
		Steps: []config.Step{
			{Kind: config.StepShow, Options: config.Options{"limit": float64(15)}},
			{Kind: config.StepSchema, Options: config.Options{}},
			{Kind: config.StepCast, Options: config.Options{"column": "Encounter_Duration", "type": "int"}},
			{Kind: config.StepCast, Options: config.Options{"column": "Year", "type": "int"}},
			{Kind: config.StepCast, Options: config.Options{"column": "date_documented", "type": "date"}},
			{Kind: config.StepExport, Options: config.Options{"path": out1, "header": "true"}},
			{Kind: config.StepAggregate, Options: config.Options{"queries": []any{
				q("sightings per country", "Country", map[string]any{"func": "count", "as": "CountOfSightings"}, ""),
				q("avg encounter per shape", "UFO_shape", map[string]any{"func": "avg", "column": "length_of_encounter_seconds", "as": "AvgEncounterLength"}, ""),
				q("longest encounter per country", "Country", map[string]any{"func": "max", "column": "length_of_encounter_seconds", "as": "Longest_Encounter_Seconds"}, "bar"),
			}}},
			{Kind: config.StepPresent, Options: locations},
			{Kind: config.StepCast, Options: config.Options{"column": "latitude", "type": "double"}},
			{Kind: config.StepCast, Options: config.Options{"column": "longitude", "type": "double"}},
			{Kind: config.StepExport, Options: config.Options{"path": out2, "header": true}},
			{Kind: config.StepPresent, Options: locations},
		},
	}
}

func TestRun_NotebookFlow(t *testing.T) {
	for _, engine := range []string{"memory", "sqlite"} {
		t.Run(engine, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			out1, out2 := filepath.Join(dir, "transformed", "ufo"), filepath.Join(dir, "ufo_data", "ufo")
			spec := notebookSpec(writeInput(t), out1, out2)
			spec.Engine = config.Engine{Kind: engine, BatchSize: 2}

			eng, closeEngine, err := NewEngine(ctx, spec.Engine, spec.Job)
			if err != nil {
				t.Fatalf("NewEngine: %v", err)
			}
			defer closeEngine()

			at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
			rec := &recordingSink{}
			p := New(spec,
				WithEngine(eng),
				WithSinks(present.Named{Name: "rec", Sink: rec}),
				WithClock(clockwork.NewFakeClockAt(at)),
				WithRunID("run-1"),
			)
			if err := p.Run(ctx); err != nil {
				t.Fatalf("Run: %v", err)
			}

			var names []string
			for _, pr := range rec.seen {
				names = append(names, pr.Name)
				if pr.RunID != "run-1" || !pr.At.Equal(at) {
					t.Fatalf("presentation %q run=%q at=%v", pr.Name, pr.RunID, pr.At)
				}
			}
			want := []string{
				"show", "schema",
				"sightings per country", "avg encounter per shape", "longest encounter per country",
				"locations", "locations",
			}
			if diff := cmp.Diff(want, names); diff != "" {
				t.Fatalf("presentations mismatch (-want +got):\n%s", diff)
			}

			counts, _ := rec.byName("sightings per country")
			if diff := cmp.Diff([][]any{{"United States", int64(3)}, {"Canada", int64(1)}}, counts.Table.Rows()); diff != "" {
				t.Fatalf("count rows mismatch (-want +got):\n%s", diff)
			}
			longest, _ := rec.byName("longest encounter per country")
			if longest.Hint != present.HintBar {
				t.Fatalf("longest hint = %q", longest.Hint)
			}
			if diff := cmp.Diff([][]any{{"United States", 2700.0}, {"Canada", 1800.0}}, longest.Table.Rows()); diff != "" {
				t.Fatalf("longest rows mismatch (-want +got):\n%s", diff)
			}

			// Both location presentations drop the row without latitude.
			first, last := rec.seen[5], rec.seen[6]
			if first.Table.Len() != 3 || last.Table.Len() != 3 {
				t.Fatalf("locations rows = %d, %d; want 3", first.Table.Len(), last.Table.Len())
			}
			if first.Table.Columns()[0].Type != table.Text || last.Table.Columns()[0].Type != table.Double {
				t.Fatalf("latitude types = %v, %v", first.Table.Columns()[0].Type, last.Table.Columns()[0].Type)
			}

			for _, dir := range []string{out1, out2} {
				back, err := p.Load(ctx, dir, config.Options{"header": true})
				if err != nil {
					t.Fatalf("reload %s: %v", dir, err)
				}
				if back.Len() != 4 {
					t.Fatalf("reload %s: rows = %d", dir, back.Len())
				}
			}
			reloaded, _ := p.Load(ctx, out1, config.Options{})
			if v, _ := reloaded.Value(3, "date_documented"); v != nil {
				t.Fatalf("unparseable date exported as %v, want empty", v)
			}
			if v, _ := reloaded.Value(0, "Encounter_Duration"); v != nil {
				t.Fatalf("Encounter_Duration of %q exported as %v, want empty", "45 minutes", v)
			}
		})
	}
}

func TestRun_StopsOnSchemaError(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	spec := config.Pipeline{
		Job:    "ufo_sightings",
		Source: config.Source{Kind: "file", File: config.SourceFile{Path: writeInput(t)}},
		Steps: []config.Step{
			{Kind: config.StepCast, Options: config.Options{"column": "Shape", "type": "int"}},
			{Kind: config.StepExport, Options: config.Options{"path": out}},
		},
	}
	err := New(spec).Run(context.Background())
	if !errors.Is(err, table.ErrSchema) {
		t.Fatalf("Run err = %v, want ErrSchema", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatalf("export ran after failed step: %v", statErr)
	}
}

func TestRun_AggregateSchemaError(t *testing.T) {
	spec := config.Pipeline{
		Job:    "ufo_sightings",
		Source: config.Source{Kind: "file", File: config.SourceFile{Path: writeInput(t)}},
		Steps: []config.Step{
			{Kind: config.StepAggregate, Options: config.Options{"queries": []any{
				map[string]any{"name": "bad", "group_by": []any{"Planet"}, "aggregations": []any{map[string]any{"func": "count"}}},
			}}},
		},
	}
	rec := &recordingSink{}
	err := New(spec, WithSinks(present.Named{Name: "rec", Sink: rec})).Run(context.Background())
	if !errors.Is(err, table.ErrSchema) {
		t.Fatalf("Run err = %v, want ErrSchema", err)
	}
	if len(rec.seen) != 0 {
		t.Fatalf("presented %d tables after failure", len(rec.seen))
	}
}

func TestRun_HTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ufo.csv" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, sightingsCSV)
	}))
	defer srv.Close()

	rec := &recordingSink{}
	spec := config.Pipeline{
		Job:    "ufo_sightings",
		Source: config.Source{Kind: "http", HTTP: config.SourceHTTP{URL: srv.URL + "/ufo.csv"}},
		Steps:  []config.Step{{Kind: config.StepSchema}},
	}
	if err := New(spec, WithSinks(present.Named{Name: "rec", Sink: rec})).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.seen) != 1 || rec.seen[0].Table.Len() != 16 {
		t.Fatalf("schema presentation = %+v", rec.seen)
	}

	spec.Source.HTTP.URL = srv.URL + "/missing"
	if err := New(spec).Run(context.Background()); !errors.Is(err, table.ErrIO) {
		t.Fatalf("Run err = %v, want ErrIO", err)
	}
}

func TestRun_MissingSourceIsIOError(t *testing.T) {
	spec := config.Pipeline{
		Job:    "ufo_sightings",
		Source: config.Source{Kind: "file", File: config.SourceFile{Path: filepath.Join(t.TempDir(), "nope.csv")}},
	}
	if err := New(spec).Run(context.Background()); !errors.Is(err, table.ErrIO) {
		t.Fatalf("Run err = %v, want ErrIO", err)
	}
}

func TestPresent_SinkFailureIsNotFatal(t *testing.T) {
	rec := &recordingSink{}
	spec := config.Pipeline{
		Job:    "ufo_sightings",
		Source: config.Source{Kind: "file", File: config.SourceFile{Path: writeInput(t)}},
		Steps:  []config.Step{{Kind: config.StepShow, Options: config.Options{"limit": float64(2)}}},
	}
	p := New(spec, WithSinks(
		present.Named{Name: "broken", Sink: failingSink{}},
		present.Named{Name: "rec", Sink: rec},
	))
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.seen) != 1 || rec.seen[0].Table.Len() != 2 {
		t.Fatalf("healthy sink saw %+v", rec.seen)
	}
}

func TestCastAndFilter(t *testing.T) {
	p := New(config.Pipeline{Job: "t"})
	in := table.MustNew(table.TextColumns("Country", "UFO_shape", "dur"), [][]any{
		{"US", "circle", "30"},
		{"US", "disk", "abc"},
	})
	out, err := p.CastColumn(in, "dur", table.Int)
	if err != nil {
		t.Fatalf("CastColumn: %v", err)
	}
	want := [][]any{{"US", "circle", int64(30)}, {"US", "disk", nil}}
	if diff := cmp.Diff(want, out.Rows()); diff != "" {
		t.Fatalf("cast rows mismatch (-want +got):\n%s", diff)
	}

	kept, err := p.FilterNotNull(out, "dur")
	if err != nil {
		t.Fatalf("FilterNotNull: %v", err)
	}
	if kept.Len() != 1 || kept.Len() > out.Len() {
		t.Fatalf("FilterNotNull rows = %d", kept.Len())
	}
	if _, err := p.FilterNotNull(out, "latitude"); !errors.Is(err, table.ErrSchema) {
		t.Fatalf("FilterNotNull unknown column err = %v", err)
	}
	if _, err := p.Select(out, "Country", "Planet"); !errors.Is(err, table.ErrSchema) {
		t.Fatalf("Select unknown column err = %v", err)
	}
}

func TestNewSinks(t *testing.T) {
	sinks, closeFn, err := NewSinks(nil, os.Stdout)
	if err != nil {
		t.Fatalf("NewSinks(nil): %v", err)
	}
	closeFn()
	if len(sinks) != 1 || sinks[0].Name != "console" {
		t.Fatalf("default sinks = %+v", sinks)
	}

	if _, _, err := NewSinks([]config.Display{{Kind: "widget"}}, os.Stdout); err == nil {
		t.Fatalf("NewSinks(widget): want error")
	}

	sinks, closeFn, err = NewSinks([]config.Display{
		{Kind: "json", Options: config.Options{"dir": t.TempDir()}},
		{Kind: "console", Options: config.Options{"name": "terminal", "max_rows": float64(5)}},
	}, os.Stdout)
	if err != nil {
		t.Fatalf("NewSinks: %v", err)
	}
	defer closeFn()
	if sinks[0].Name != "json" || sinks[1].Name != "terminal" {
		t.Fatalf("sinks = %+v", sinks)
	}
}

func TestNewEngine_UnknownKind(t *testing.T) {
	if _, _, err := NewEngine(context.Background(), config.Engine{Kind: "duckdb"}, "t"); err == nil {
		t.Fatalf("NewEngine(duckdb): want error")
	}
}

func TestNewSinks_KafkaClosedOnFailure(t *testing.T) {
	orig := newKafkaSink
	defer func() { newKafkaSink = orig }()

	var closed int
	var got kafkasink.Config
	newKafkaSink = func(cfg kafkasink.Config) (present.Sink, func() error, error) {
		got = cfg
		return &recordingSink{}, func() error { closed++; return nil }, nil
	}

	_, _, err := NewSinks([]config.Display{
		{Kind: "kafka", Options: config.Options{"brokers": []any{"k1:9092", "k2:9092"}, "topic": "ufo-presentations"}},
		{Kind: "widget"},
	}, os.Stdout)
	if err == nil {
		t.Fatalf("NewSinks: want error")
	}
	if closed != 1 {
		t.Fatalf("kafka sink closed %d times, want 1", closed)
	}
	want := kafkasink.Config{Brokers: []string{"k1:9092", "k2:9092"}, Topic: "ufo-presentations"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("kafka config mismatch (-want +got):\n%s", diff)
	}
}
