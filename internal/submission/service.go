// Package submission accepts parental-cross genotype tables, persists the
// resulting population documents and maintains the variety index.
package submission

import (
	"context"
	"fmt"
	"time"

	"crossgeno/internal/blob"
	"crossgeno/internal/docstore"
	"crossgeno/internal/genotype"
	"crossgeno/pkg/domain"
)

// Default collection names.
const (
	DefaultPopulationsCollection = "populations"
	DefaultVarietiesCollection   = "varieties"
)

// Operation names reported to metrics and tracing.
const (
	OpSubmit              = "submit"
	OpLoadPopulation      = "load_population"
	OpVarietyPopulations  = "variety_populations"
	OpLoadSubmissionTable = "load_submission_table"
	opPersist             = "persist_population"
	opUpsertVariety       = "upsert_variety"
	opArchive             = "archive_submission"
)

// Settings carries the service configuration.
type Settings struct {
	PopulationsCollection string
	VarietiesCollection   string
	MaxDocumentBytes      int
	Accessions            genotype.Normalizer
	VarietyAttempts       int
}

// Outcome reports the result of one submission. Diagnostic is set whenever
// Succeeded is false.
type Outcome struct {
	ID             string `json:"id,omitempty"`
	PopulationName string `json:"population_name,omitempty"`
	ParentA        string `json:"parent_a,omitempty"`
	ParentB        string `json:"parent_b,omitempty"`
	Parts          int    `json:"parts,omitempty"`
	Succeeded      bool   `json:"succeeded"`
	Diagnostic     string `json:"diagnostic,omitempty"`
}

// Service coordinates building, persisting and indexing submissions.
type Service struct {
	store    docstore.Store
	settings Settings
	persist  Persister
	variety  VarietyIndex
	builder  genotype.Builder

	logger  Logger
	clock   Clock
	metrics MetricsRecorder
	tracer  Tracer
	newID   func() string
	archive blob.Store
}

// NewService wires a service over store.
func NewService(store docstore.Store, settings Settings, opts ...Option) *Service {
	if settings.PopulationsCollection == "" {
		settings.PopulationsCollection = DefaultPopulationsCollection
	}
	if settings.VarietiesCollection == "" {
		settings.VarietiesCollection = DefaultVarietiesCollection
	}
	if settings.MaxDocumentBytes <= 0 {
		settings.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	if settings.VarietyAttempts <= 0 {
		settings.VarietyAttempts = DefaultVarietyAttempts
	}
	s := &Service{
		store:    store,
		settings: settings,
		persist: Persister{
			Store:            store,
			Collection:       settings.PopulationsCollection,
			MaxDocumentBytes: settings.MaxDocumentBytes,
		},
		variety: VarietyIndex{
			Store:       store,
			Collection:  settings.VarietiesCollection,
			MaxAttempts: settings.VarietyAttempts,
		},
		builder: genotype.Builder{Accessions: settings.Accessions},
		logger:  noopLogger{},
		clock:   ClockFunc(time.Now),
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		newID:   defaultID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settings returns the effective configuration.
func (s *Service) Settings() Settings { return s.settings }

func (s *Service) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	started := s.clock.Now()
	err := fn(ctx)
	s.metrics.Observe(ctx, operation, err == nil, s.clock.Now().Sub(started))
	span.End(err)
	return err
}

// Submit classifies and builds table, persists the population document and
// appends its id to both parents' variety records. Classification, build and
// persistence errors leave nothing written. A variety indexing error is
// returned with Outcome.ID set: the population stays stored and the outcome
// reports the submission as failed.
func (s *Service) Submit(ctx context.Context, table domain.Table) (Outcome, error) {
	var out Outcome
	err := s.run(ctx, OpSubmit, func(ctx context.Context) error {
		var err error
		out, err = s.submit(ctx, table)
		return err
	})
	if err != nil {
		out.Succeeded = false
		out.Diagnostic = err.Error()
	}
	return out, err
}

func (s *Service) submit(ctx context.Context, table domain.Table) (Outcome, error) {
	classified, err := genotype.Classify(table)
	if err != nil {
		s.logger.Warn("submission rejected", "error", err)
		return Outcome{}, err
	}
	id := s.newID()
	doc, err := s.builder.Build(id, classified)
	if err != nil {
		s.logger.Warn("submission rejected", "error", err)
		return Outcome{}, err
	}
	out := Outcome{
		ID:             doc.ID,
		PopulationName: doc.PopulationName,
		ParentA:        doc.ParentA,
		ParentB:        doc.ParentB,
	}

	var res PersistResult
	err = s.run(ctx, opPersist, func(ctx context.Context) error {
		var err error
		res, err = s.persist.Persist(ctx, doc)
		return err
	})
	if err != nil {
		s.logger.Error("population not stored", "population", doc.PopulationName, "error", err)
		return Outcome{}, err
	}
	out.Parts = res.Parts
	s.logger.Info("population stored",
		"id", doc.ID, "population", doc.PopulationName, "markers", len(doc.Markers), "parts", res.Parts, "bytes", res.Bytes)

	for _, parent := range []string{doc.ParentA, doc.ParentB} {
		err := s.run(ctx, opUpsertVariety, func(ctx context.Context) error {
			return s.variety.Upsert(ctx, parent, doc.ID)
		})
		if err != nil {
			s.logger.Error("variety index not updated", "id", doc.ID, "variety", parent, "error", err)
			s.archiveTable(ctx, doc, res, table)
			return out, fmt.Errorf("population %s stored, variety %q not indexed: %w", doc.ID, parent, err)
		}
	}
	out.Succeeded = true
	s.archiveTable(ctx, doc, res, table)
	return out, nil
}

func (s *Service) archiveTable(ctx context.Context, doc *domain.PopulationDocument, res PersistResult, table domain.Table) {
	if s.archive == nil {
		return
	}
	err := s.run(ctx, opArchive, func(ctx context.Context) error {
		return archiveSubmission(ctx, s.archive, doc, res.Parts, table)
	})
	if err != nil {
		s.logger.Warn("submission not archived", "id", doc.ID, "error", err)
	}
}
