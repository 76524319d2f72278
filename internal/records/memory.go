package records

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"records-rag/internal/models"
)

var _ Source = (*Memory)(nil)

// Memory is a Source held in process memory. Where clauses support
// conjunctions of Field='value' equalities; OrderBy is ignored and records
// come back in insertion order.
type Memory struct {
	mu      sync.RWMutex
	order   []string
	records map[string]memoryRecord
	err     error
}

type memoryRecord struct {
	entity string
	fields models.Metadata
	data   []byte
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]memoryRecord)}
}

// Put stores or replaces a record. fields must carry the Id field.
func (m *Memory) Put(entity string, fields models.Metadata, data []byte) {
	id := fields.ID()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		m.order = append(m.order, id)
	}
	m.records[id] = memoryRecord{entity: entity, fields: fields.Clone(), data: data}
}

// Remove deletes a record.
func (m *Memory) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// SetErr makes every call fail with err wrapped in models.ErrConnectivity.
// A nil err restores normal operation.
func (m *Memory) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Memory) check() error {
	if m.err != nil {
		return fmt.Errorf("%w: %w", models.ErrConnectivity, m.err)
	}
	return nil
}

func (m *Memory) ListIDs(ctx context.Context, q models.Query) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	conds, err := parseWhere(q.Where)
	if err != nil {
		return nil, err
	}

	ids := []string{}
	for _, id := range m.order {
		rec := m.records[id]
		if q.Entity != "" && rec.entity != q.Entity {
			continue
		}
		if !matches(rec.fields, conds) {
			continue
		}
		ids = append(ids, id)
		if q.Limit > 0 && len(ids) == q.Limit {
			break
		}
	}
	return ids, nil
}

func (m *Memory) FetchBytes(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	rec, ok := m.records[id]
	if !ok || rec.data == nil {
		return nil, fmt.Errorf("record %s: %w", id, models.ErrNotFound)
	}
	return rec.data, nil
}

func (m *Memory) FetchMetadata(ctx context.Context, id string, fields []string, entity string) (models.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	rec, ok := m.records[id]
	if !ok || (entity != "" && rec.entity != entity) {
		return nil, fmt.Errorf("%s %s: %w", entity, id, models.ErrNotFound)
	}
	return project(rec.fields, fields), nil
}

func (m *Memory) FetchLinked(ctx context.Context, parentField, value, entity, selectField string) ([]models.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	var out []models.Metadata
	for _, id := range m.order {
		rec := m.records[id]
		if rec.entity != entity || rec.fields[parentField] != value {
			continue
		}
		out = append(out, project(rec.fields, []string{selectField}))
	}
	return out, nil
}

func project(fields models.Metadata, names []string) models.Metadata {
	out := make(models.Metadata, len(names))
	for _, name := range names {
		out[name] = fields[name]
	}
	return out
}

type condition struct {
	field, value string
}

func parseWhere(where string) ([]condition, error) {
	where = strings.TrimSpace(where)
	if where == "" {
		return nil, nil
	}
	var conds []condition
	for _, part := range strings.Split(where, " AND ") {
		field, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("where %q: %w", where, models.ErrInvalidInput)
		}
		conds = append(conds, condition{
			field: strings.TrimSpace(field),
			value: strings.Trim(strings.TrimSpace(value), "'"),
		})
	}
	return conds, nil
}

func matches(fields models.Metadata, conds []condition) bool {
	for _, c := range conds {
		if fields[c.field] != c.value {
			return false
		}
	}
	return true
}
