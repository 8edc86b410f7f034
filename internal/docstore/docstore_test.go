package docstore

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	mem, err := Open(ctx, Options{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if mem.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %s", mem.Driver())
	}

	lite, err := Open(ctx, Options{SQLitePath: filepath.Join(t.TempDir(), "docs.db")})
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer func() { _ = lite.Close() }()
	if lite.Driver() != DriverSQLite {
		t.Fatalf("expected sqlite as the default driver, got %s", lite.Driver())
	}

	if _, err := Open(ctx, Options{Driver: "mongo"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
