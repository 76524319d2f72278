package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"records-rag/internal/models"
	"records-rag/internal/store"
)

// encryption keys for chromem exports are AES-256
const keyLength = 32

// Manager owns the chromem-go database holding the semantic collections.
type Manager struct {
	db       *chromem.DB
	dbPath   string
	compress bool

	mu          sync.Mutex
	collections map[string]*Collection
}

// NewManager opens the vector database, in memory or persisted under dbPath.
func NewManager(dbPath string, inMemory, compress bool) (*Manager, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}
	log.Debug().Str("path", dbPath).Bool("in_memory", inMemory).Msg("opened vector database")

	return &Manager{
		db:          db,
		dbPath:      dbPath,
		compress:    compress,
		collections: map[string]*Collection{},
	}, nil
}

// Collection returns the named semantic collection, creating it when
// missing. embed turns text into normalised vectors.
func (m *Manager) Collection(name string, embed chromem.EmbeddingFunc) (*Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.collections[name]; ok {
		return c, nil
	}
	c := &Collection{manager: m, name: name, embed: embed}
	if err := c.open(); err != nil {
		return nil, err
	}
	m.collections[name] = c
	return c, nil
}

// Names lists the collections present in the database.
func (m *Manager) Names() []string {
	var names []string
	for name := range m.db.ListCollections() {
		names = append(names, name)
	}
	return names
}

// DeleteCollection drops a collection with all its units. Open handles stay
// valid and see an empty collection.
func (m *Manager) DeleteCollection(name string) error {
	if err := m.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.collections[name]; ok {
		return c.open()
	}
	return nil
}

// Reset drops every collection.
func (m *Manager) Reset() error {
	for _, name := range m.Names() {
		if err := m.DeleteCollection(name); err != nil {
			return err
		}
	}
	return nil
}

// Export writes the named collections (all when none are named) to an
// encrypted backup file.
func (m *Manager) Export(filePath, encryptionKey string, names ...string) error {
	if len(encryptionKey) != keyLength {
		return fmt.Errorf("%w: encryption key must be %d bytes", models.ErrInvalidInput, keyLength)
	}
	if filePath == "" {
		return fmt.Errorf("%w: file path is required", models.ErrInvalidInput)
	}

	log.Debug().Str("file", filePath).Bool("compress", m.compress).Strs("collections", names).Msg("exporting collections")
	if err := m.db.ExportToFile(filePath, m.compress, encryptionKey, names...); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import restores collections from a backup written by Export.
func (m *Manager) Import(filePath, encryptionKey string, names ...string) error {
	if len(encryptionKey) != keyLength {
		return fmt.Errorf("%w: encryption key must be %d bytes", models.ErrInvalidInput, keyLength)
	}

	log.Debug().Str("file", filePath).Strs("collections", names).Msg("importing collections")
	if err := m.db.ImportFromFile(filePath, encryptionKey, names...); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.collections {
		if err := c.open(); err != nil {
			return err
		}
	}
	return nil
}

// Collection adapts a chromem collection to store.Collection.
type Collection struct {
	manager *Manager
	name    string
	embed   chromem.EmbeddingFunc

	// mu guards the col handle, which Delete(nil) swaps. Readers only
	// hold it to load the handle.
	mu  sync.RWMutex
	col *chromem.Collection
	// writeMu serialises writers so the id check and the add see the same
	// documents. Embedding runs under it, reads do not wait on it.
	writeMu sync.Mutex
}

var _ store.Collection = (*Collection)(nil)

func (c *Collection) open() error {
	col, err := c.manager.db.GetOrCreateCollection(c.name, nil, c.embed)
	if err != nil {
		return fmt.Errorf("failed to create/get collection %s: %w", c.name, err)
	}
	c.mu.Lock()
	c.col = col
	c.mu.Unlock()
	return nil
}

func (c *Collection) handle() *chromem.Collection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.col
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) Count(context.Context) (int, error) {
	return c.handle().Count(), nil
}

func (c *Collection) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := c.handle().GetByID(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("failed to look up %s in %s: %w", id, c.name, err)
	}
}

// isNotFound matches chromem's GetByID miss, which has no sentinel error.
func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "not found")
}

// Add embeds and stores docs. chromem overwrites on id collisions, so ids
// are checked first and the whole batch is refused on any clash.
func (c *Collection) Add(ctx context.Context, docs []store.Document) error {
	if len(docs) == 0 {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	col := c.handle()

	var dups []string
	seen := make(map[string]bool, len(docs))
	chromemDocs := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("%w: document without id", models.ErrInvalidInput)
		}
		if seen[d.ID] {
			dups = append(dups, d.ID)
			continue
		}
		_, err := col.GetByID(ctx, d.ID)
		if err == nil {
			dups = append(dups, d.ID)
			continue
		}
		if !isNotFound(err) {
			return fmt.Errorf("failed to look up %s in %s: %w", d.ID, c.name, err)
		}
		seen[d.ID] = true
		chromemDocs = append(chromemDocs, chromem.Document{
			ID:       d.ID,
			Content:  d.Content,
			Metadata: d.Metadata.Clone(),
		})
	}
	if len(dups) > 0 {
		return &store.DuplicateIDError{Collection: c.name, IDs: dups}
	}

	if err := col.AddDocuments(ctx, chromemDocs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents to %s: %w", c.name, err)
	}
	return nil
}

// Query ranks units by similarity to req.Text. Distances follow Chroma's
// squared L2 on unit vectors, 2*(1-cosine).
func (c *Collection) Query(ctx context.Context, req store.QueryRequest) ([]store.Hit, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("%w: query text is required", models.ErrInvalidInput)
	}
	col := c.handle()
	total := col.Count()
	if total == 0 {
		return nil, nil
	}
	window := req.Window
	if window <= 0 || window > total {
		window = total
	}

	// chromem's where is a conjunction of equalities. Single-value filters
	// are pushed down; anything wider is applied here over the full ranking.
	var where map[string]string
	nResults := window
	if req.Where != nil {
		if clauses := req.Where.Clauses(); len(clauses) == 1 && len(clauses[0].Values) == 1 {
			where = map[string]string{clauses[0].Field: clauses[0].Values[0]}
		} else {
			nResults = total
		}
	}
	var whereDocument map[string]string
	if req.Contains != "" {
		whereDocument = map[string]string{"$contains": req.Contains}
	}

	results, err := col.Query(ctx, req.Text, nResults, where, whereDocument)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.name, err)
	}

	hits := make([]store.Hit, 0, min(len(results), window))
	for _, r := range results {
		md := models.Metadata(r.Metadata)
		if !req.Where.Match(md) {
			continue
		}
		hits = append(hits, store.Hit{
			Document: store.Document{ID: r.ID, Content: r.Content, Metadata: md.Clone()},
			Distance: 2 * (1 - r.Similarity),
		})
		if len(hits) == window {
			break
		}
	}
	return hits, nil
}

// Delete removes every unit matching where. A nil filter empties the
// collection.
func (c *Collection) Delete(ctx context.Context, where *store.Filter) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if where == nil {
		n := c.handle().Count()
		if err := c.manager.DeleteCollection(c.name); err != nil {
			return 0, err
		}
		if err := c.open(); err != nil {
			return 0, err
		}
		return n, nil
	}

	col := c.handle()
	before := col.Count()
	for _, clause := range where.Clauses() {
		for _, v := range clause.Values {
			if err := col.Delete(ctx, map[string]string{clause.Field: v}, nil); err != nil {
				return before - col.Count(), fmt.Errorf("failed to delete from %s: %w", c.name, err)
			}
		}
	}
	return before - col.Count(), nil
}
