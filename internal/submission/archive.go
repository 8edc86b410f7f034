package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"

	"crossgeno/internal/blob"
	"crossgeno/pkg/domain"
)

// ArchivePrefix is the blob key prefix for raw submission tables.
const ArchivePrefix = "submissions"

// MetaEntity is the archive metadata key naming the archived entity type.
const MetaEntity = "entity"

var (
	// ErrArchiveDisabled is returned by archive reads on a service built
	// without WithArchive.
	ErrArchiveDisabled = errors.New("submission archive not configured")
	// ErrSubmissionNotArchived is returned when no raw table is stored for an id.
	ErrSubmissionNotArchived = errors.New("submission not archived")
)

// ArchiveKey is the blob key holding the raw table of population id.
func ArchiveKey(id string) string {
	return path.Join(ArchivePrefix, id+".json")
}

func archiveSubmission(ctx context.Context, store blob.Store, doc *domain.PopulationDocument, parts int, table domain.Table) error {
	payload, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("encode table: %w", err)
	}
	_, err = store.Put(ctx, ArchiveKey(doc.ID), bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			MetaEntity:                 string(domain.EntityPopulation),
			domain.FieldPopulationName: doc.PopulationName,
			domain.FieldParts:          strconv.Itoa(parts),
		},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", ArchiveKey(doc.ID), err)
	}
	return nil
}

// LoadSubmissionTable returns the raw table archived for population id.
func (s *Service) LoadSubmissionTable(ctx context.Context, id string) (domain.Table, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	var table domain.Table
	err := s.run(ctx, OpLoadSubmissionTable, func(ctx context.Context) error {
		info, rc, err := s.archive.Get(ctx, ArchiveKey(id))
		if errors.Is(err, blob.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrSubmissionNotArchived, id)
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", ArchiveKey(id), err)
		}
		defer rc.Close()
		if entity := info.Metadata[MetaEntity]; entity != "" && entity != string(domain.EntityPopulation) {
			return fmt.Errorf("%s holds a %s, not a population submission", ArchiveKey(id), entity)
		}
		table, err = domain.DecodeTable(rc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}
