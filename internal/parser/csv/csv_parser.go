// Package csv reads delimited text into a table.Table of text columns.
//
// Input may span several parts (an export directory); the header is taken
// from the first part and the header row of every later part is skipped.
// Empty cells load as null. Rows shorter than the header are padded with
// nulls and longer rows are truncated.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/RobertDonnan/ufo-notebook/internal/datasource"
	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

// Options configures the parser. The zero value reads comma-separated input
// without a header.
type Options struct {
	// Header treats the first row of each part as column names.
	Header bool

	// Comma is the field delimiter; ',' when zero.
	Comma rune

	// TrimSpace trims surrounding whitespace from every field.
	TrimSpace bool

	// LazyQuotes tolerates stray quotes inside unquoted fields.
	LazyQuotes bool

	// NormalizeHeaders rewrites header names into lowercase ASCII
	// identifiers (accents stripped, separators as underscores).
	NormalizeHeaders bool
}

// Parser turns sources into tables according to Options.
type Parser struct{ opt Options }

// NewParser constructs a Parser.
func NewParser(opt Options) *Parser { return &Parser{opt: opt} }

// ParseParts reads every part in order into one table.
func (p *Parser) ParseParts(ctx context.Context, parts []datasource.Source) (*table.Table, error) {
	var (
		names []string
		rows  [][]any
	)
	for i, src := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rc, err := src.Open(ctx)
		if err != nil {
			return nil, err
		}
		names, rows, err = p.read(rc, names, rows, i == 0)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
	}

	return table.New(table.TextColumns(names...), rows)
}

// Parse reads a single stream.
func (p *Parser) Parse(r io.Reader) (*table.Table, error) {
	names, rows, err := p.read(r, nil, nil, true)
	if err != nil {
		return nil, err
	}
	return table.New(table.TextColumns(names...), rows)
}

// read appends the records of r to rows. On the first part the column names
// are established; later parts reuse them.
func (p *Parser) read(r io.Reader, names []string, rows [][]any, first bool) ([]string, [][]any, error) {
	cr := csv.NewReader(r)
	if p.opt.Comma != 0 {
		cr.Comma = p.opt.Comma
	}
	cr.LazyQuotes = p.opt.LazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	if p.opt.Header {
		h, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return names, rows, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv header: %w", err)
		}
		if first {
			names = p.headerNames(h)
		} else if len(h) != len(names) {
			log.Printf("csv: part header has %d fields, first part had %d", len(h), len(names))
		}
	}

	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv record %d: %w", line, err)
		}
		if names == nil {
			names = positionalNames(len(rec))
		}
		n := min(len(rec), len(names))
		row := make([]any, len(names))
		for i := 0; i < n; i++ {
			v := rec[i]
			if p.opt.TrimSpace {
				v = strings.TrimSpace(v)
			}
			if v != "" {
				row[i] = v
			}
		}
		rows = append(rows, row)
	}
	return names, rows, nil
}

// headerNames cleans a header row: BOM removal, optional normalisation,
// "_c<i>" for blank names and position suffixes for every duplicated name.
// Names that are unique in the file are kept; a suffixed name that would
// collide with one gets a further "_<k>".
func (p *Parser) headerNames(h []string) []string {
	out := make([]string, len(h))
	counts := make(map[string]int, len(h))
	for i, name := range h {
		if i == 0 {
			name = StripBOM(name)
		}
		if p.opt.TrimSpace {
			name = strings.TrimSpace(name)
		}
		if p.opt.NormalizeHeaders {
			name = NormalizeFieldName(name)
		}
		if name == "" {
			name = "_c" + strconv.Itoa(i)
		}
		out[i] = name
		counts[name]++
	}
	taken := make(map[string]bool, len(out))
	for _, name := range out {
		if counts[name] == 1 {
			taken[name] = true
		}
	}
	for i, name := range out {
		if counts[name] == 1 {
			continue
		}
		cand := name + strconv.Itoa(i)
		for k := 1; taken[cand]; k++ {
			cand = name + strconv.Itoa(i) + "_" + strconv.Itoa(k)
		}
		taken[cand] = true
		out[i] = cand
	}
	return out
}

func positionalNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "_c" + strconv.Itoa(i)
	}
	return out
}
