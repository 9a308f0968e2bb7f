package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/RobertDonnan/ufo-notebook/internal/aggregate"
	"github.com/RobertDonnan/ufo-notebook/internal/config"
	"github.com/RobertDonnan/ufo-notebook/internal/present"
	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

// DefaultShowLimit is the row count of a show step without a limit.
const DefaultShowLimit = 20

// runStep executes one configured step against cur. It returns the new
// current table for steps that replace it, nil otherwise.
func (p *Pipeline) runStep(ctx context.Context, cur *table.Table, s config.Step) (*table.Table, error) {
	o := s.Options
	switch s.Kind {
	case config.StepCast:
		typ, err := table.ParseType(o.String("type", ""))
		if err != nil {
			return nil, err
		}
		var opts []table.CastOption
		if layout := o.String("layout", ""); layout != "" {
			opts = append(opts, table.WithLayout(layout))
		}
		return p.CastColumn(cur, o.String("column", ""), typ, opts...)

	case config.StepExport:
		return nil, p.ExportCSV(ctx, cur, o.String("path", ""), o)

	case config.StepShow:
		p.Present(ctx, o.String("name", "show"), cur.Head(o.Int("limit", DefaultShowLimit)), present.HintList)
		return nil, nil

	case config.StepSchema:
		p.Present(ctx, o.String("name", "schema"), cur.Schema(), present.HintList)
		return nil, nil

	case config.StepAggregate:
		return nil, p.aggregateStep(ctx, cur, o.List("queries"))

	case config.StepPresent:
		return nil, p.presentStep(ctx, cur, o)

	default:
		return nil, fmt.Errorf("unknown step kind %q", s.Kind)
	}
}

// aggregateStep runs the queries concurrently over the same table and
// presents the results in configured order once all have finished.
func (p *Pipeline) aggregateStep(ctx context.Context, cur *table.Table, specs []config.Options) error {
	queries := make([]aggregate.Query, len(specs))
	for i, o := range specs {
		q, err := config.QueryFromOptions(o)
		if err != nil {
			return fmt.Errorf("queries[%d]: %w", i, err)
		}
		// Schema problems surface before any engine work starts.
		if err := q.Validate(cur); err != nil {
			return fmt.Errorf("query %q: %w", q.Name, err)
		}
		queries[i] = q
	}

	results := make([]*table.Table, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			out, err := p.Aggregate(gctx, cur, q)
			if err != nil {
				return fmt.Errorf("query %q: %w", q.Name, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, q := range queries {
		hint, _ := present.ParseHint(q.Hint)
		name := q.Name
		if name == "" {
			name = fmt.Sprintf("aggregate %d", i)
		}
		p.Present(ctx, name, results[i], hint)
	}
	return nil
}

// presentStep derives a view of cur (filter, project, limit) and presents it.
// The current table is left as it was.
func (p *Pipeline) presentStep(ctx context.Context, cur *table.Table, o config.Options) error {
	view := cur
	var err error
	if cols := o.StringSlice("filter_not_null"); len(cols) > 0 {
		if view, err = p.FilterNotNull(view, cols...); err != nil {
			return err
		}
	}
	if cols := o.StringSlice("select"); len(cols) > 0 {
		if view, err = p.Select(view, cols...); err != nil {
			return err
		}
	}
	if n := o.Int("limit", 0); n > 0 {
		view = view.Head(n)
	}
	hint, err := present.ParseHint(o.String("hint", ""))
	if err != nil {
		return err
	}
	p.Present(ctx, o.String("name", "present"), view, hint)
	return nil
}
