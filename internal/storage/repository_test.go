package storage

import (
	"context"
	"strings"
	"testing"
)

func TestRegisterAndNew(t *testing.T) {
	var got Config
	Register("fake-registry", func(_ context.Context, cfg Config) (Repository, error) {
		got = cfg
		return newFakeRepo(), nil
	})

	repo, err := New(context.Background(), Config{Kind: "fake-registry", DSN: "x"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer repo.Close()
	if got.DSN != "x" {
		t.Fatalf("factory cfg.DSN = %q, want x", got.DSN)
	}

	found := false
	for _, k := range Kinds() {
		if k == "fake-registry" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Kinds() = %v, missing fake-registry", Kinds())
	}
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(context.Background(), Config{Kind: "oracle"})
	if err == nil || !strings.Contains(err.Error(), `"oracle"`) {
		t.Fatalf("New(oracle) err = %v, want unknown kind error", err)
	}
}
