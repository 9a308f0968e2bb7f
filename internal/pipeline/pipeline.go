// Package pipeline runs the UFO sightings job: load a delimited file, cast
// columns, export, aggregate and present, as an ordered list of configured
// steps over an immutable table.
//
// Every operation returns a new table; the current table of a run only
// changes on load and cast steps. Sink failures are logged and counted but
// never fail a run; IO and schema errors abort it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/RobertDonnan/ufo-notebook/internal/aggregate"
	"github.com/RobertDonnan/ufo-notebook/internal/config"
	"github.com/RobertDonnan/ufo-notebook/internal/datasource"
	"github.com/RobertDonnan/ufo-notebook/internal/datasource/file"
	"github.com/RobertDonnan/ufo-notebook/internal/datasource/httpds"
	"github.com/RobertDonnan/ufo-notebook/internal/export/csvdir"
	"github.com/RobertDonnan/ufo-notebook/internal/metrics"
	csvparser "github.com/RobertDonnan/ufo-notebook/internal/parser/csv"
	"github.com/RobertDonnan/ufo-notebook/internal/present"
	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

// Pipeline holds what one run needs: the configured steps, the aggregate
// engine and the display sinks.
type Pipeline struct {
	spec   config.Pipeline
	job    string
	runID  string
	clock  clockwork.Clock
	engine aggregate.Engine
	sinks  *present.Multi
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithEngine sets the aggregate engine. The default is aggregate.Memory.
func WithEngine(e aggregate.Engine) Option { return func(p *Pipeline) { p.engine = e } }

// WithSinks sets the display sinks. The default is no sinks.
func WithSinks(sinks ...present.Named) Option {
	return func(p *Pipeline) { p.sinks.Sinks = sinks }
}

// WithClock replaces the wall clock used for step timings and presentation
// timestamps.
func WithClock(c clockwork.Clock) Option { return func(p *Pipeline) { p.clock = c } }

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option { return func(p *Pipeline) { p.runID = id } }

// New builds a pipeline for spec.
func New(spec config.Pipeline, opts ...Option) *Pipeline {
	p := &Pipeline{
		spec:   spec,
		job:    spec.Job,
		runID:  uuid.NewString(),
		clock:  clockwork.NewRealClock(),
		engine: aggregate.Memory{},
		sinks:  &present.Multi{},
	}
	for _, o := range opts {
		o(p)
	}
	p.sinks.OnError = func(sink string, err error) {
		log.Printf("present: sink=%s err=%v", sink, err)
		metrics.RecordSinkFailure(p.job, sink)
	}
	return p
}

// RunID identifies this run in presentations.
func (p *Pipeline) RunID() string { return p.runID }

// Load reads the file, export directory or http(s) URL at path into an
// all-text table. opts are the parser options (header, comma, trim_space,
// lazy_quotes, normalize_headers). Any failure to reach or read the input is
// table.ErrIO.
func (p *Pipeline) Load(ctx context.Context, path string, opts config.Options) (*table.Table, error) {
	src, err := p.source(path)
	if err != nil {
		return nil, table.IOError("load", path, err)
	}
	parts, err := src.Parts(ctx)
	if err != nil {
		return nil, table.IOError("load", path, err)
	}
	if len(parts) == 0 {
		return nil, table.IOError("load", path, errors.New("no part files"))
	}

	parser := csvparser.NewParser(csvparser.Options{
		Header:           opts.Bool("header", true),
		Comma:            opts.Rune("comma", ','),
		TrimSpace:        opts.Bool("trim_space", false),
		LazyQuotes:       opts.Bool("lazy_quotes", false),
		NormalizeHeaders: opts.Bool("normalize_headers", false),
	})
	t, err := parser.ParseParts(ctx, parts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, table.IOError("load", path, err)
	}

	metrics.RecordRow(p.job, metrics.RowsLoaded, int64(t.Len()))
	log.Printf("load: path=%s parts=%d rows=%d columns=%d", path, len(parts), t.Len(), t.Width())
	return t, nil
}

func (p *Pipeline) source(path string) (datasource.Partitioned, error) {
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		return file.NewLocal(path), nil
	}
	h := p.spec.Source.HTTP
	src, err := httpds.New(httpds.Config{
		URL:        path,
		MaxRetries: h.MaxRetries,
		Timeout:    time.Duration(h.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// CastColumn casts one column of t. Cells that do not parse become null and
// are counted, never reported as errors. An unknown column is
// table.ErrSchema.
func (p *Pipeline) CastColumn(t *table.Table, column string, target table.Type, opts ...table.CastOption) (*table.Table, error) {
	before, err := t.NullCount(column)
	if err != nil {
		return nil, err
	}
	out, err := t.CastColumn(column, target, opts...)
	if err != nil {
		return nil, err
	}
	after, _ := out.NullCount(column)
	if lost := after - before; lost > 0 {
		metrics.RecordRow(p.job, metrics.RowsCastNulls, int64(lost))
		log.Printf("cast: column=%s type=%s cast_nulls=%d", column, target, lost)
	}
	return out, nil
}

// ExportCSV writes t to a directory of CSV part files at path, replacing
// whatever was there. opts: header (default true), comma, max_rows_per_file.
func (p *Pipeline) ExportCSV(ctx context.Context, t *table.Table, path string, opts config.Options) error {
	res, err := csvdir.Write(ctx, t, path, csvdir.Options{
		Header:         opts.Bool("header", true),
		Comma:          opts.Rune("comma", ','),
		MaxRowsPerFile: opts.Int("max_rows_per_file", 0),
	})
	if err != nil {
		return err
	}
	metrics.RecordRow(p.job, metrics.RowsExported, int64(res.Rows))
	log.Printf("export: dir=%s parts=%d rows=%d", res.Dir, len(res.Parts), res.Rows)
	return nil
}

// Aggregate runs q on the configured engine.
func (p *Pipeline) Aggregate(ctx context.Context, t *table.Table, q aggregate.Query) (*table.Table, error) {
	return p.engine.Aggregate(ctx, t, q)
}

// FilterNotNull keeps rows where every listed column is non-null.
func (p *Pipeline) FilterNotNull(t *table.Table, columns ...string) (*table.Table, error) {
	out, err := t.FilterNotNull(columns...)
	if err != nil {
		return nil, err
	}
	if dropped := t.Len() - out.Len(); dropped > 0 {
		metrics.RecordRow(p.job, metrics.RowsFilteredOut, int64(dropped))
	}
	return out, nil
}

// Select projects t onto columns, in the given order.
func (p *Pipeline) Select(t *table.Table, columns ...string) (*table.Table, error) {
	return t.Select(columns...)
}

// Present hands t to every sink. Failures are logged and counted only.
func (p *Pipeline) Present(ctx context.Context, name string, t *table.Table, hint present.Hint) {
	_ = p.sinks.Present(ctx, present.Presentation{
		RunID: p.runID,
		Name:  name,
		Hint:  hint,
		Table: t,
		At:    p.clock.Now(),
	})
}

// Run loads the configured source and executes the steps in order. The
// first IO or schema error aborts the run.
func (p *Pipeline) Run(ctx context.Context) error {
	start := p.clock.Now()
	log.Printf("pipeline: job=%s run_id=%s source=%s steps=%d", p.job, p.runID, p.spec.Source.Location(), len(p.spec.Steps))

	var cur *table.Table
	err := p.step("load", func() error {
		t, err := p.Load(ctx, p.spec.Source.Location(), p.spec.Parser.Options)
		cur = t
		return err
	})
	if err != nil {
		return err
	}

	for i, s := range p.spec.Steps {
		err := p.step(s.Kind, func() error {
			next, err := p.runStep(ctx, cur, s)
			if next != nil {
				cur = next
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("steps[%d] %s: %w", i, s.Kind, err)
		}
	}

	log.Printf("pipeline: job=%s completed rows=%d in %s", p.job, cur.Len(), p.clock.Since(start).Truncate(time.Millisecond))
	return nil
}

// step times fn and records it.
func (p *Pipeline) step(kind string, fn func() error) error {
	start := p.clock.Now()
	err := fn()
	d := p.clock.Since(start)
	metrics.RecordStep(p.job, kind, err, d)
	if err != nil {
		log.Printf("step: kind=%s failed after %s: %v", kind, d.Truncate(time.Millisecond), err)
		return err
	}
	log.Printf("step: kind=%s done in %s", kind, d.Truncate(time.Millisecond))
	return nil
}
