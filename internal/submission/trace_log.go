package submission

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// SpanRecord is one finished operation written by SpanLog.
type SpanRecord struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// SpanLog is a Tracer that appends one JSON line per finished operation to a
// writer and keeps the records for inspection. It needs no collector, which
// suits batch runs of the submit command.
type SpanLog struct {
	mu      sync.Mutex
	clock   Clock
	enc     *json.Encoder
	records []SpanRecord
}

var _ Tracer = (*SpanLog)(nil)

// NewSpanLog writes to w; a nil w only retains records.
func NewSpanLog(w io.Writer, clock Clock) *SpanLog {
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	l := &SpanLog{clock: clock}
	if w != nil {
		l.enc = json.NewEncoder(w)
	}
	return l
}

// Records returns a copy of the finished spans.
func (l *SpanLog) Records() []SpanRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]SpanRecord(nil), l.records...)
}

// Start implements Tracer.
func (l *SpanLog) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &logSpan{log: l, operation: operation, started: l.clock.Now().UTC()}
}

type logSpan struct {
	log       *SpanLog
	operation string
	started   time.Time
}

func (s *logSpan) End(err error) {
	rec := SpanRecord{
		Operation:  s.operation,
		Status:     "success",
		DurationMS: float64(s.log.clock.Now().Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
	}
	if err != nil {
		rec.Status = "error"
		rec.Error = err.Error()
	}
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	s.log.records = append(s.log.records, rec)
	if s.log.enc != nil {
		_ = s.log.enc.Encode(rec)
	}
}
