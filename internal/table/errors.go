package table

import (
	"errors"
	"fmt"
)

var (
	// ErrIO marks failures reaching a source or writing a destination.
	ErrIO = errors.New("io error")

	// ErrSchema marks a reference to a column the table does not have.
	ErrSchema = errors.New("schema error")
)

// IOError wraps err so that errors.Is(err, ErrIO) holds and the operation and
// path stay visible in the message.
func IOError(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIO, op, path, err)
}

func unknownColumn(name string) error {
	return fmt.Errorf("%w: unknown column %q", ErrSchema, name)
}
