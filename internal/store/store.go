// Package store defines the collection contract shared by the semantic
// (chromemdb) and exact (db) backends.
package store

import (
	"context"
	"fmt"
	"strconv"

	"records-rag/internal/models"
)

// Document is one indexed unit. ID is local to the collection and unrelated
// to the record identifier carried in Metadata.
type Document struct {
	ID       string
	Content  string
	Metadata models.Metadata
}

// Hit is a ranked query match.
type Hit struct {
	Document
	// Distance is the embedding distance to the query, lower is closer.
	// Exact backends report 0.
	Distance float32
}

// QueryRequest selects and ranks units.
type QueryRequest struct {
	// Text is embedded and compared against units by semantic backends.
	Text string
	// Window caps the number of hits. Zero or more than the collection
	// holds means all.
	Window int
	// Contains, when set, keeps only units whose content contains it.
	// Exact backends require it.
	Contains string
	// Where, when set, keeps only units whose metadata matches.
	Where *Filter
}

// Collection is an independently queryable index of units.
type Collection interface {
	Name() string
	Count(ctx context.Context) (int, error)
	// Add inserts units. Any id already present fails the whole call with
	// a *DuplicateIDError.
	Add(ctx context.Context, docs []Document) error
	// Query returns matches best first.
	Query(ctx context.Context, req QueryRequest) ([]Hit, error)
	// Delete removes every unit matching where and reports how many.
	Delete(ctx context.Context, where *Filter) (int, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// DuplicateIDError reports an Add colliding with stored ids.
type DuplicateIDError struct {
	Collection string
	IDs        []string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("collection %s: duplicate ids %v", e.Collection, e.IDs)
}

type Status int

const (
	StatusEmpty Status = iota
	StatusPopulated
)

func (s Status) String() string {
	if s == StatusPopulated {
		return "populated"
	}
	return "empty"
}

// StatusOf reports whether c holds any unit.
func StatusOf(ctx context.Context, c Collection) (Status, error) {
	n, err := c.Count(ctx)
	if err != nil {
		return StatusEmpty, err
	}
	if n > 0 {
		return StatusPopulated, nil
	}
	return StatusEmpty, nil
}

// AssignIDs numbers docs sequentially from the collection's current count,
// skipping any id still taken (deletes can leave ids at or above the
// count).
func AssignIDs(ctx context.Context, c Collection, docs []Document) error {
	next, err := c.Count(ctx)
	if err != nil {
		return err
	}
	for i := range docs {
		for {
			id := strconv.Itoa(next)
			next++
			taken, err := c.Exists(ctx, id)
			if err != nil {
				return err
			}
			if !taken {
				docs[i].ID = id
				break
			}
		}
	}
	return nil
}

// FromModels turns chunker output into units without ids.
func FromModels(docs []models.Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = Document{Content: d.Text, Metadata: d.Metadata}
	}
	return out
}
