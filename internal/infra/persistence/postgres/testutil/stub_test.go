package testutil

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"testing"
)

func TestStubRecordsExecsAndReplaysRows(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO documents (collection, id) VALUES ($1,$2)", []driver.NamedValue{{Value: "c"}, {Value: "x"}}); err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
	if len(conn.Execs) != 1 || len(conn.Args[0]) != 2 {
		t.Fatalf("expected recorded exec with args, got %v %v", conn.Execs, conn.Args)
	}

	conn.Rows = [][]driver.Value{{[]byte(`{"_id":"x"}`)}}
	rows, err := conn.QueryContext(ctx, "SELECT payload FROM documents WHERE collection = $1", nil)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	defer func() { _ = rows.Close() }()
	if cols := rows.Columns(); len(cols) != 1 || cols[0] != "payload" {
		t.Fatalf("unexpected columns %v", cols)
	}
	dest := make([]driver.Value, 1)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(dest[0].([]byte)) != `{"_id":"x"}` {
		t.Fatalf("unexpected row %v", dest)
	}
	if err := rows.Next(dest); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	if len(conn.Statements()) != 2 {
		t.Fatalf("expected two statements, got %v", conn.Statements())
	}
}

func TestStubFailureToggles(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailPing = true
	if err := conn.Ping(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
	conn.FailBegin = true
	if _, err := conn.Begin(); err == nil {
		t.Fatalf("expected begin failure")
	}
	conn.ExecErr = errors.New("boom")
	if _, err := conn.ExecContext(ctx, "CREATE TABLE x (id TEXT)", nil); err != nil {
		t.Fatalf("DDL should bypass ExecErr: %v", err)
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO x (id) VALUES ($1)", nil); err == nil {
		t.Fatalf("expected exec failure")
	}
	if _, err := conn.QueryContext(ctx, "UPDATE x SET id = 1", nil); err == nil {
		t.Fatalf("expected parse failure for non-select")
	}
}
