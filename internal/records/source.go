// Package records defines the contract of the external record store the
// service indexes, plus an in-memory implementation.
package records

import (
	"context"

	"records-rag/internal/models"
)

// Source is the system of record. Implementations wrap their failures with
// models.ErrNotFound or models.ErrConnectivity.
type Source interface {
	// ListIDs returns the identifiers of the records matching q, in the
	// order the store returns them.
	ListIDs(ctx context.Context, q models.Query) ([]string, error)

	// FetchBytes returns the raw content of a file record.
	FetchBytes(ctx context.Context, id string) ([]byte, error)

	// FetchMetadata returns the requested fields of record id in entity.
	FetchMetadata(ctx context.Context, id string, fields []string, entity string) (models.Metadata, error)

	// FetchLinked returns selectField of every entity record whose
	// parentField equals value.
	FetchLinked(ctx context.Context, parentField, value, entity, selectField string) ([]models.Metadata, error)
}
