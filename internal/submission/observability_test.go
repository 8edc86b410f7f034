package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"crossgeno/internal/blob"
	"crossgeno/internal/docstore"
	"crossgeno/pkg/domain"
)

func TestPrometheusRecorderCountsOutcomes(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)
	svc := newTestService(t, docstore.NewMemory(), Settings{}, WithMetricsRecorder(rec))

	if _, err := svc.Submit(ctx, exampleTable()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Submit(ctx, exampleTable()[:2]); err == nil {
		t.Fatalf("expected short table to fail")
	}

	checks := []struct {
		op, status string
		want       float64
	}{
		{OpSubmit, "success", 1},
		{OpSubmit, "error", 1},
		{opPersist, "success", 1},
		{opUpsertVariety, "success", 2},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(rec.operations.WithLabelValues(c.op, c.status)); got != c.want {
			t.Fatalf("%s/%s: expected %v, got %v", c.op, c.status, c.want, got)
		}
	}
	if n := testutil.CollectAndCount(rec.durations, "crossgeno_operation_duration_seconds"); n != 3 {
		t.Fatalf("expected 3 histogram series, got %d", n)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	types := make(map[string]dto.MetricType, len(families))
	for _, mf := range families {
		types[mf.GetName()] = mf.GetType()
	}
	if types["crossgeno_operations_total"] != dto.MetricType_COUNTER || types["crossgeno_operation_duration_seconds"] != dto.MetricType_HISTOGRAM {
		t.Fatalf("unexpected metric types %v", types)
	}
}

func TestOTelTracerRecordsSpans(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	svc := newTestService(t, docstore.NewMemory(), Settings{}, WithTracer(NewOTelTracer(provider)))

	if _, err := svc.Submit(ctx, exampleTable()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Submit(ctx, domain.Table{}); err == nil {
		t.Fatalf("expected empty table to fail")
	}

	spans := recorder.Ended()
	var submits []sdktrace.ReadOnlySpan
	var persistParent string
	for _, span := range spans {
		switch span.Name() {
		case "crossgeno." + OpSubmit:
			submits = append(submits, span)
		case "crossgeno." + opPersist:
			persistParent = span.Parent().SpanID().String()
		}
	}
	if len(submits) != 2 {
		t.Fatalf("expected 2 submit spans, got %d", len(submits))
	}
	if submits[0].Status().Code != codes.Ok || submits[1].Status().Code != codes.Error {
		t.Fatalf("unexpected statuses %v, %v", submits[0].Status(), submits[1].Status())
	}
	if persistParent != submits[0].SpanContext().SpanID().String() {
		t.Fatalf("persist span should be a child of the submit span")
	}
}

func TestSpanLogWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := ClockFunc(func() time.Time {
		now = now.Add(2 * time.Millisecond)
		return now
	})
	log := NewSpanLog(&buf, clock)

	_, span := log.Start(context.Background(), "submit")
	span.End(errors.New("boom"))

	recs := log.Records()
	if len(recs) != 1 || recs[0].Status != "error" || recs[0].Error != "boom" || recs[0].DurationMS != 2 {
		t.Fatalf("unexpected records %+v", recs)
	}
	var decoded SpanRecord
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if decoded.Operation != "submit" {
		t.Fatalf("unexpected line %s", buf.String())
	}
}

func TestSubmitArchivesRawTable(t *testing.T) {
	ctx := context.Background()
	archive := blob.NewMemory()
	svc := newTestService(t, docstore.NewMemory(), Settings{}, WithArchive(archive))

	out, err := svc.Submit(ctx, exampleTable())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	info, rc, err := archive.Get(ctx, ArchiveKey(out.ID))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if info.Metadata[domain.FieldPopulationName] != "ParentA x ParentB" || info.Metadata[domain.FieldParts] != "1" {
		t.Fatalf("unexpected metadata %v", info.Metadata)
	}
	table, err := domain.DecodeTable(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("DecodeTable: %v", err)
	}
	if len(table) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(table))
	}
	if v, _ := table[4].Get("m2"); v != "AB" {
		t.Fatalf("archived row lost data: %s", body)
	}
}

func TestArchiveFailureOnlyWarns(t *testing.T) {
	ctx := context.Background()
	archive := blob.NewMemory()
	if _, err := archive.Put(ctx, ArchiveKey("pop-1"), strings.NewReader("taken"), blob.PutOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	logger := &recordingLogger{}
	svc := newTestService(t, docstore.NewMemory(), Settings{}, WithArchive(archive), WithLogger(logger))

	out, err := svc.Submit(ctx, exampleTable())
	if err != nil || !out.Succeeded {
		t.Fatalf("archive failure must not fail the submission: %+v %v", out, err)
	}
	if !logger.has("warn", "not archived") {
		t.Fatalf("expected a warning, got %+v", logger.entries)
	}
}

func TestLoadSubmissionTableReadsArchive(t *testing.T) {
	ctx := context.Background()
	archive := blob.NewMemory()
	svc := newTestService(t, docstore.NewMemory(), Settings{}, WithArchive(archive))

	out, err := svc.Submit(ctx, exampleTable())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	info, err := archive.Head(ctx, ArchiveKey(out.ID))
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if info.Metadata[MetaEntity] != string(domain.EntityPopulation) {
		t.Fatalf("unexpected metadata %v", info.Metadata)
	}
	table, err := svc.LoadSubmissionTable(ctx, out.ID)
	if err != nil {
		t.Fatalf("LoadSubmissionTable: %v", err)
	}
	if len(table) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(table))
	}
	if id, _ := table[2].ID(); id != "ParentA" {
		t.Fatalf("unexpected parent row %q", id)
	}
	if _, err := svc.LoadSubmissionTable(ctx, "pop-404"); !errors.Is(err, ErrSubmissionNotArchived) {
		t.Fatalf("expected ErrSubmissionNotArchived, got %v", err)
	}
}

func TestLoadSubmissionTableRejectsForeignObject(t *testing.T) {
	ctx := context.Background()
	archive := blob.NewMemory()
	if _, err := archive.Put(ctx, ArchiveKey("pop-9"), strings.NewReader(`[]`), blob.PutOptions{
		Metadata: map[string]string{MetaEntity: "variety"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newTestService(t, docstore.NewMemory(), Settings{}, WithArchive(archive))
	if _, err := svc.LoadSubmissionTable(ctx, "pop-9"); err == nil || !strings.Contains(err.Error(), "not a population submission") {
		t.Fatalf("expected entity mismatch, got %v", err)
	}

	bare := newTestService(t, docstore.NewMemory(), Settings{})
	if _, err := bare.LoadSubmissionTable(ctx, "pop-9"); !errors.Is(err, ErrArchiveDisabled) {
		t.Fatalf("expected ErrArchiveDisabled, got %v", err)
	}
}
