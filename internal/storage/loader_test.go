package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// TestLoadBatches_Basic checks rows are grouped into batches and the total is
// the sum of what copyFn reported.
func TestLoadBatches_Basic(t *testing.T) {
	t.Parallel()

	in := make(chan []any, 8)
	for i := 0; i < 7; i++ {
		in <- []any{int64(i), "US"}
	}
	close(in)

	var calls int32
	copyFn := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		atomic.AddInt32(&calls, 1)
		return int64(len(rows)), nil
	}

	total, err := LoadBatches(context.Background(), "test", []string{"c0", "c1"}, in, 3, copyFn)
	if err != nil {
		t.Fatalf("LoadBatches: %v", err)
	}
	if total != 7 {
		t.Fatalf("total = %d, want 7", total)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("copyFn calls = %d, want 3 (3+3+1)", got)
	}
}

func TestLoadBatches_ErrorPropagation(t *testing.T) {
	t.Parallel()

	in := make(chan []any, 5)
	for i := 0; i < 5; i++ {
		in <- []any{i}
	}
	close(in)

	wantErr := errors.New("copy failed")
	var batches int
	copyFn := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		batches++
		if batches == 2 {
			return 0, wantErr
		}
		return int64(len(rows)), nil
	}

	total, err := LoadBatches(context.Background(), "test", []string{"c0"}, in, 2, copyFn)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
}

func TestLoadBatches_ContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan []any) // never closed
	errCh := make(chan error, 1)
	go func() {
		_, err := LoadBatches(ctx, "test", []string{"c0"}, in, 2,
			func(context.Context, []string, [][]any) (int64, error) { return 0, nil })
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("LoadBatches did not return after cancel")
	}
}

func TestLoadBatches_BadArguments(t *testing.T) {
	t.Parallel()

	nop := func(context.Context, []string, [][]any) (int64, error) { return 0, nil }
	if _, err := LoadBatches(context.Background(), "test", nil, nil, 0, nop); err == nil {
		t.Fatalf("batchSize 0: want error")
	}
	if _, err := LoadBatches(context.Background(), "test", nil, nil, 1, nil); err == nil {
		t.Fatalf("nil copyFn: want error")
	}
	if _, err := LoadRows(context.Background(), "test", nil, nil, -1, nop); err == nil {
		t.Fatalf("LoadRows batchSize -1: want error")
	}
}

func TestLoadRows(t *testing.T) {
	t.Parallel()

	rows := make([][]any, 10)
	for i := range rows {
		rows[i] = []any{int64(i)}
	}
	var seen []int64
	total, err := LoadRows(context.Background(), "test", []string{"c0"}, rows, 4,
		func(_ context.Context, _ []string, batch [][]any) (int64, error) {
			for _, r := range batch {
				seen = append(seen, r[0].(int64))
			}
			return int64(len(batch)), nil
		})
	if err != nil || total != 10 {
		t.Fatalf("LoadRows = %d, %v; want 10, nil", total, err)
	}
	for i, v := range seen {
		if v != int64(i) {
			t.Fatalf("row %d = %d; rows reordered", i, v)
		}
	}
}
