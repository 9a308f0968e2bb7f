package httpds

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestOpen_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "Country\nUSA\n")
	}))
	defer srv.Close()

	s, err := New(Config{URL: srv.URL, MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rc, err := s.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "Country\nUSA\n" || calls.Load() != 3 {
		t.Fatalf("body=%q calls=%d", b, calls.Load())
	}
}

func TestOpen_FinalStatusNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s, _ := New(Config{URL: srv.URL, MaxRetries: 5})
	if _, err := s.Open(context.Background()); err == nil {
		t.Fatalf("Open: want error for 404")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestOpen_ExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s, _ := New(Config{URL: srv.URL, MaxRetries: 1, InitialBackoff: time.Millisecond})
	if _, err := s.Open(context.Background()); err == nil {
		t.Fatalf("Open: want error after retries")
	}
}

func TestOpen_CanceledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s, _ := New(Config{URL: srv.URL, MaxRetries: 2, InitialBackoff: time.Hour})
	fake := clockwork.NewFakeClock()
	s.clock = fake

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Open(ctx)
		done <- err
	}()
	if err := fake.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("BlockUntilContext: %v", err)
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Open err = %v, want context.Canceled", err)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 500 * time.Millisecond},
		{64, 500 * time.Millisecond},
	}
	for _, tc := range tests {
		if got := backoff(100*time.Millisecond, tc.retry, 500*time.Millisecond); got != tc.want {
			t.Fatalf("backoff(%d) = %s, want %s", tc.retry, got, tc.want)
		}
	}
}

func TestNew_RequiresURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("New: want error")
	}
}
