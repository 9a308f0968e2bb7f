// Package datasource defines where pipeline input bytes come from.
package datasource

import (
	"context"
	"io"
)

// Source opens one readable unit of input.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Partitioned is a Source made of several parts that are read in order, such
// as a directory written by an export.
type Partitioned interface {
	Parts(ctx context.Context) ([]Source, error)
}
