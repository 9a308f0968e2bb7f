package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/RobertDonnan/ufo-notebook/internal/storage"
	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

func TestRegistrationUsesNewRepositoryHook(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var (
		gotDSN string
		closed bool
	)
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		gotDSN = cfg.DSN
		return &Repository{}, func() { closed = true }, nil
	}

	const dsn = "postgres://etl@localhost:5432/ufo"
	repo, err := storage.New(context.Background(), storage.Config{Kind: "postgres", DSN: dsn})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	if gotDSN != dsn {
		t.Fatalf("DSN = %q, want %q", gotDSN, dsn)
	}
	if repo.Dialect().Name != "postgres" {
		t.Fatalf("Dialect = %q, want postgres", repo.Dialect().Name)
	}
	repo.Close()
	if !closed {
		t.Fatalf("Close did not call the cleanup function")
	}
}

func TestRegistrationPropagatesErrors(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	boom := errors.New("connection refused")
	newRepository = func(context.Context, Config) (*Repository, func(), error) {
		return nil, nil, boom
	}
	if _, err := storage.New(context.Background(), storage.Config{Kind: "postgres"}); !errors.Is(err, boom) {
		t.Fatalf("storage.New err = %v, want %v", err, boom)
	}
}

func TestMapType(t *testing.T) {
	want := map[table.Type]string{
		table.Text:   "TEXT",
		table.Int:    "BIGINT",
		table.Double: "DOUBLE PRECISION",
		table.Date:   "DATE",
		table.Bool:   "BOOLEAN",
	}
	for typ, w := range want {
		if got := MapType(typ); got != w {
			t.Fatalf("MapType(%s) = %q, want %q", typ, got, w)
		}
	}
}

func TestIdentifierAndDetail(t *testing.T) {
	if got := identifier("public.ufo_scratch"); len(got) != 2 || got[0] != "public" {
		t.Fatalf("identifier = %v", got)
	}
	if got := identifier("ufo"); len(got) != 1 {
		t.Fatalf("identifier = %v", got)
	}

	err := pgDetail(&pgconn.PgError{Message: "bad", Detail: "Key (c0) is null", Code: "23502"})
	if !strings.Contains(err.Error(), "23502") || !strings.Contains(err.Error(), "Key (c0)") {
		t.Fatalf("pgDetail = %v", err)
	}
	plain := errors.New("plain")
	if pgDetail(plain) != plain {
		t.Fatalf("pgDetail changed an error without detail")
	}
}

func TestNewRepositoryRejectsEmptyDSN(t *testing.T) {
	if _, _, err := NewRepository(context.Background(), Config{}); err == nil {
		t.Fatalf("NewRepository with empty DSN: want error")
	}
}
