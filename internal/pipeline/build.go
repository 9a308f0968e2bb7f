package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/RobertDonnan/ufo-notebook/internal/aggregate"
	"github.com/RobertDonnan/ufo-notebook/internal/config"
	"github.com/RobertDonnan/ufo-notebook/internal/present"
	"github.com/RobertDonnan/ufo-notebook/internal/present/kafkasink"
	"github.com/RobertDonnan/ufo-notebook/internal/storage"
)

// Test seams.
var (
	newRepository = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return storage.New(ctx, cfg)
	}
	newKafkaSink = func(cfg kafkasink.Config) (present.Sink, func() error, error) {
		s, err := kafkasink.New(cfg)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
)

// NewEngine returns the aggregate engine for cfg and a function releasing
// it. SQL kinds need their backend registered, typically by importing
// storage/all from main.
func NewEngine(ctx context.Context, cfg config.Engine, job string) (aggregate.Engine, func(), error) {
	switch cfg.Kind {
	case "", "memory":
		return aggregate.Memory{}, func() {}, nil
	}
	repo, err := newRepository(ctx, storage.Config{Kind: cfg.Kind, DSN: cfg.DSN})
	if err != nil {
		return nil, nil, fmt.Errorf("engine %s: %w", cfg.Kind, err)
	}
	log.Printf("engine: kind=%s batch_size=%d", cfg.Kind, cfg.BatchSize)
	return storage.NewSQLEngine(repo, job, cfg.BatchSize), repo.Close, nil
}

// NewSinks builds the configured display sinks. An empty list means a single
// console sink on stdout. The returned function closes sinks that hold
// connections.
func NewSinks(ds []config.Display, stdout io.Writer) ([]present.Named, func(), error) {
	if len(ds) == 0 {
		ds = []config.Display{{Kind: "console"}}
	}
	var (
		sinks   []present.Named
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Printf("present: close err=%v", err)
			}
		}
	}

	for i, d := range ds {
		name := d.Options.String("name", d.Kind)
		switch d.Kind {
		case "console":
			sinks = append(sinks, present.Named{Name: name, Sink: present.NewConsole(stdout, d.Options.Int("max_rows", present.DefaultMaxRows))})
		case "json":
			sinks = append(sinks, present.Named{Name: name, Sink: &present.JSONDir{
				Dir:    d.Options.String("dir", ""),
				Indent: d.Options.Bool("indent", false),
			}})
		case "kafka":
			s, closeFn, err := newKafkaSink(kafkasink.Config{
				Brokers: d.Options.StringSlice("brokers"),
				Topic:   d.Options.String("topic", ""),
			})
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("display[%d]: %w", i, err)
			}
			closers = append(closers, closeFn)
			sinks = append(sinks, present.Named{Name: name, Sink: s})
		default:
			closeAll()
			return nil, nil, fmt.Errorf("display[%d]: unknown kind %q", i, d.Kind)
		}
	}
	return sinks, closeAll, nil
}
