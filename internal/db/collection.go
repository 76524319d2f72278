package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"

	"records-rag/internal/models"
	"records-rag/internal/store"
)

// Collection is an exact collection: substring containment over unit
// content, ranked by insertion order.
type Collection struct {
	db   *bun.DB
	name string
}

var _ store.Collection = (*Collection)(nil)

func NewCollection(db *bun.DB, name string) *Collection {
	return &Collection{db: db, name: name}
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) Count(ctx context.Context) (int, error) {
	n, err := c.db.NewSelect().Model((*Unit)(nil)).Where("collection = ?", c.name).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.name, err)
	}
	return n, nil
}

func (c *Collection) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := c.db.NewSelect().
		Model((*Unit)(nil)).
		Where("collection = ?", c.name).
		Where("unit_id = ?", id).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("lookup %s/%s: %w", c.name, id, err)
	}
	return ok, nil
}

// Add inserts docs in one transaction, refusing the batch if any id is
// already stored.
func (c *Collection) Add(ctx context.Context, docs []store.Document) error {
	if len(docs) == 0 {
		return nil
	}
	ids := make([]string, len(docs))
	units := make([]Unit, len(docs))
	seen := make(map[string]bool, len(docs))
	var dups []string
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("%w: document without id", models.ErrInvalidInput)
		}
		if seen[d.ID] {
			dups = append(dups, d.ID)
		}
		seen[d.ID] = true
		ids[i] = d.ID
		units[i] = Unit{
			Collection: c.name,
			UnitID:     d.ID,
			RecordID:   d.Metadata.ID(),
			Content:    d.Content,
			Metadata:   d.Metadata.Clone(),
		}
	}
	if len(dups) > 0 {
		return &store.DuplicateIDError{Collection: c.name, IDs: dups}
	}

	return c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var taken []string
		err := tx.NewSelect().
			Model((*Unit)(nil)).
			Column("unit_id").
			Where("collection = ?", c.name).
			Where("unit_id IN (?)", bun.In(ids)).
			Scan(ctx, &taken)
		if err != nil {
			return fmt.Errorf("check ids in %s: %w", c.name, err)
		}
		if len(taken) > 0 {
			return &store.DuplicateIDError{Collection: c.name, IDs: taken}
		}
		if _, err := tx.NewInsert().Model(&units).Exec(ctx); err != nil {
			return fmt.Errorf("insert into %s: %w", c.name, err)
		}
		return nil
	})
}

// Query returns units whose content contains req.Contains, oldest first.
func (c *Collection) Query(ctx context.Context, req store.QueryRequest) ([]store.Hit, error) {
	if req.Contains == "" {
		return nil, fmt.Errorf("%w: exact query needs a search string", models.ErrInvalidInput)
	}

	var units []Unit
	q := c.db.NewSelect().
		Model(&units).
		Where("collection = ?", c.name).
		Where(containsExpr(c.db), req.Contains).
		OrderExpr("seq ASC")
	pushed := pushDown(q, req.Where)
	if pushed && req.Window > 0 {
		q = q.Limit(req.Window)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("query %s: %w", c.name, err)
	}

	hits := make([]store.Hit, 0, len(units))
	for _, u := range units {
		if !pushed && !req.Where.Match(u.Metadata) {
			continue
		}
		hits = append(hits, store.Hit{Document: store.Document{ID: u.UnitID, Content: u.Content, Metadata: u.Metadata}})
		if req.Window > 0 && len(hits) == req.Window {
			break
		}
	}
	return hits, nil
}

// Delete removes the units matching where, every unit when where is nil.
func (c *Collection) Delete(ctx context.Context, where *store.Filter) (int, error) {
	q := c.db.NewDelete().Model((*Unit)(nil)).Where("collection = ?", c.name)
	if where != nil && !pushDown(q, where) {
		seqs, err := c.matching(ctx, where)
		if err != nil {
			return 0, err
		}
		if len(seqs) == 0 {
			return 0, nil
		}
		q = q.Where("seq IN (?)", bun.In(seqs))
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", c.name, err)
	}
	return affected(res), nil
}

func (c *Collection) matching(ctx context.Context, where *store.Filter) ([]int64, error) {
	var units []Unit
	err := c.db.NewSelect().
		Model(&units).
		Column("seq", "metadata").
		Where("collection = ?", c.name).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", c.name, err)
	}
	var seqs []int64
	for _, u := range units {
		if where.Match(u.Metadata) {
			seqs = append(seqs, u.Seq)
		}
	}
	return seqs, nil
}

// filterable is what pushDown needs from select and delete queries.
type filterable[T any] interface {
	Where(query string, args ...any) T
}

// pushDown turns a filter made only of record id clauses into SQL and
// reports whether it did. A nil filter counts as pushed.
func pushDown[T filterable[T]](q T, where *store.Filter) bool {
	if where == nil {
		return true
	}
	var ids []string
	for _, clause := range where.Clauses() {
		if clause.Field != models.FieldID {
			return false
		}
		ids = append(ids, clause.Values...)
	}
	if len(ids) == 0 {
		q.Where("1 = 0")
		return true
	}
	q.Where("record_id IN (?)", bun.In(ids))
	return true
}

func affected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
