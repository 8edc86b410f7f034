package submission

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"crossgeno/internal/docstore"
	"crossgeno/pkg/domain"
)

func exampleTable() domain.Table {
	return domain.Table{
		domain.RowOf("m1", "chr1", "m2", "chr2"),
		domain.RowOf("m1", "10", "m2", "20"),
		domain.RowOf("id", "ParentA"),
		domain.RowOf("id", "ParentB"),
		domain.RowOf("id", "Prog1", "m1", "AA", "m2", "AB"),
	}
}

func crossTable(parentA, parentB string) domain.Table {
	return domain.Table{
		domain.RowOf("m1", "chr1"),
		domain.RowOf("m1", "10"),
		domain.RowOf("id", parentA),
		domain.RowOf("id", parentB),
		domain.RowOf("id", "Prog1", "m1", "AA"),
	}
}

// wideTable has n markers and two accessions whose names contain dots.
func wideTable(n int) domain.Table {
	chrom := make([]string, 0, 2*n)
	pos := make([]string, 0, 2*n)
	p1 := []string{"id", "P.1"}
	p2 := []string{"id", "P.2"}
	for i := 0; i < n; i++ {
		m := fmt.Sprintf("m%02d", i)
		chrom = append(chrom, m, fmt.Sprintf("chr%d", i%7+1))
		pos = append(pos, m, fmt.Sprintf("%d", i*5))
		p1 = append(p1, m, "AA")
		p2 = append(p2, m, "AB")
	}
	return domain.Table{
		domain.RowOf(chrom...),
		domain.RowOf(pos...),
		domain.RowOf("id", "ParentA"),
		domain.RowOf("id", "ParentB"),
		domain.RowOf(p1...),
		domain.RowOf(p2...),
	}
}

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("%s-%d", prefix, n.Add(1)) }
}

// faultStore counts writes and injects failures in front of a real store.
type faultStore struct {
	docstore.Store

	mu      sync.Mutex
	inserts int
	updates int
	deletes int

	failInsert func(collection string, doc docstore.Document) error
	failUpdate func(collection string, filter docstore.Filter) error
	failDelete func(collection string, filter docstore.Filter) error
}

func newFaultStore() *faultStore {
	return &faultStore{Store: docstore.NewMemory()}
}

func (f *faultStore) InsertOne(ctx context.Context, collection string, doc docstore.Document) error {
	f.mu.Lock()
	f.inserts++
	fail := f.failInsert
	f.mu.Unlock()
	if fail != nil {
		if err := fail(collection, doc); err != nil {
			return err
		}
	}
	return f.Store.InsertOne(ctx, collection, doc)
}

func (f *faultStore) UpdateOne(ctx context.Context, collection string, filter docstore.Filter, doc docstore.Document) (int64, error) {
	f.mu.Lock()
	f.updates++
	fail := f.failUpdate
	f.mu.Unlock()
	if fail != nil {
		if err := fail(collection, filter); err != nil {
			return 0, err
		}
	}
	return f.Store.UpdateOne(ctx, collection, filter, doc)
}

func (f *faultStore) DeleteOne(ctx context.Context, collection string, filter docstore.Filter) (int64, error) {
	f.mu.Lock()
	f.deletes++
	fail := f.failDelete
	f.mu.Unlock()
	if fail != nil {
		if err := fail(collection, filter); err != nil {
			return 0, err
		}
	}
	return f.Store.DeleteOne(ctx, collection, filter)
}

func (f *faultStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts + f.updates + f.deletes
}

type logEntry struct {
	level string
	msg   string
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *recordingLogger) has(level, substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && strings.Contains(e.msg, substr) {
			return true
		}
	}
	return false
}

func newTestService(t *testing.T, store docstore.Store, settings Settings, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithIDGenerator(sequentialIDs("pop"))}, opts...)
	return NewService(store, settings, opts...)
}
