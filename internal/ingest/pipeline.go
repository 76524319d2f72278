// Package ingest populates the file and asset collections from the record
// source.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"records-rag/internal/models"
	"records-rag/internal/parser"
	"records-rag/internal/records"
	"records-rag/internal/store"
)

const defaultBatchSize = 100

type Kind string

const (
	KindFiles  Kind = "files"
	KindAssets Kind = "assets"
)

// Target is one collection together with how its units are shaped.
type Target struct {
	Kind Kind
	// Chunked targets split extracted text before indexing.
	Chunked bool
	Store   store.Collection
	// Entity and Fields select the metadata projection stored per unit.
	Entity string
	Fields []string
}

func (t *Target) Name() string { return t.Store.Name() }

// Collections are the four indexes the pipeline fills.
type Collections struct {
	FilesSemantic  store.Collection
	FilesExact     store.Collection
	AssetsSemantic store.Collection
	AssetsExact    store.Collection
}

type ReportStatus string

const (
	ReportIndexed ReportStatus = "indexed"
	// ReportSkipped means the collection was already populated.
	ReportSkipped ReportStatus = "skipped"
)

// Report describes one ingestion run.
type Report struct {
	Collection string
	Status     ReportStatus
	// Listed is every id the source returned, indexed or not.
	Listed []string
	// Indexed counts records that produced at least one unit.
	Indexed int
	Units   int
	// Skipped lists ids dropped by extraction or shaping.
	Skipped []string
}

type Option func(*Pipeline)

// WithBatchSize sets how many units go into one Add call.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// Pipeline resolves record ids, turns records into units and adds them.
type Pipeline struct {
	source    records.Source
	extractor parser.Extractor
	chunker   *parser.Chunker
	batchSize int

	filesSemantic  *Target
	filesExact     *Target
	assetsSemantic *Target
	assetsExact    *Target
}

func New(source records.Source, extractor parser.Extractor, chunker *parser.Chunker, cols Collections, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:    source,
		extractor: extractor,
		chunker:   chunker,
		batchSize: defaultBatchSize,
		filesSemantic: &Target{
			Kind: KindFiles, Chunked: true, Store: cols.FilesSemantic,
			Entity: models.EntityContentVersion, Fields: models.FileFields,
		},
		filesExact: &Target{
			Kind: KindFiles, Store: cols.FilesExact,
			Entity: models.EntityContentVersion, Fields: models.FileFields,
		},
		assetsSemantic: &Target{
			Kind: KindAssets, Store: cols.AssetsSemantic,
			Entity: models.EntityKnowledge, Fields: models.AssetFields,
		},
		assetsExact: &Target{
			Kind: KindAssets, Store: cols.AssetsExact,
			Entity: models.EntityKnowledge, Fields: models.AssetFields,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Targets lists the targets backed by a collection, files first.
func (p *Pipeline) Targets() []*Target {
	var out []*Target
	for _, t := range []*Target{p.filesSemantic, p.filesExact, p.assetsSemantic, p.assetsExact} {
		if t.Store != nil {
			out = append(out, t)
		}
	}
	return out
}

// Target looks a target up by collection name.
func (p *Pipeline) Target(name string) (*Target, bool) {
	for _, t := range p.Targets() {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

func (p *Pipeline) IngestFilesSemantic(ctx context.Context, q models.Query) (Report, error) {
	return p.Populate(ctx, p.filesSemantic, q)
}

func (p *Pipeline) IngestFilesExact(ctx context.Context, q models.Query) (Report, error) {
	return p.Populate(ctx, p.filesExact, q)
}

func (p *Pipeline) IngestAssetsSemantic(ctx context.Context, q models.Query) (Report, error) {
	return p.Populate(ctx, p.assetsSemantic, q)
}

func (p *Pipeline) IngestAssetsExact(ctx context.Context, q models.Query) (Report, error) {
	return p.Populate(ctx, p.assetsExact, q)
}

// IngestAll runs the four entry points in order and stops at the first
// error.
func (p *Pipeline) IngestAll(ctx context.Context, files, assets models.Query) ([]Report, error) {
	steps := []struct {
		target *Target
		query  models.Query
	}{
		{p.filesSemantic, files},
		{p.filesExact, files},
		{p.assetsSemantic, assets},
		{p.assetsExact, assets},
	}
	reports := make([]Report, 0, len(steps))
	for _, s := range steps {
		if s.target.Store == nil {
			continue
		}
		r, err := p.Populate(ctx, s.target, s.query)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Populate fills an empty target from the ids q resolves to. A populated
// target is left untouched. Source failures while listing are returned.
func (p *Pipeline) Populate(ctx context.Context, t *Target, q models.Query) (Report, error) {
	report := Report{Collection: t.Name()}

	ids, err := p.source.ListIDs(ctx, q)
	if err != nil {
		return report, fmt.Errorf("list %s ids: %w", t.Name(), err)
	}
	report.Listed = ids

	status, err := store.StatusOf(ctx, t.Store)
	if err != nil {
		return report, err
	}
	if status == store.StatusPopulated {
		log.Info().Str("collection", t.Name()).Msg("collection already populated, skipping ingestion")
		report.Status = ReportSkipped
		return report, nil
	}

	docs, built, err := p.Build(ctx, t, ids)
	report.Skipped = built.Skipped
	report.Indexed = built.Indexed
	if err != nil {
		return report, err
	}
	if err := p.Append(ctx, t, docs); err != nil {
		return report, err
	}
	report.Units = len(docs)
	report.Status = ReportIndexed

	log.Info().
		Str("collection", t.Name()).
		Int("listed", len(ids)).
		Int("indexed", report.Indexed).
		Int("units", report.Units).
		Int("skipped", len(report.Skipped)).
		Msg("ingestion finished")
	return report, nil
}

// Built summarises a Build call.
type Built struct {
	Indexed int
	Skipped []string
	// Unreachable counts skips caused by the source being unreachable
	// rather than by the record itself.
	Unreachable int
}

// Build turns ids into units without ids. Records that cannot be fetched,
// extracted or shaped are logged and skipped. Only cancellation aborts.
func (p *Pipeline) Build(ctx context.Context, t *Target, ids []string) ([]store.Document, Built, error) {
	var built Built
	var pairs []models.Document
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, built, err
		}
		doc, err := p.shape(ctx, t, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, built, ctx.Err()
			}
			log.Warn().Err(err).Str("collection", t.Name()).Str("id", id).Msg("skipping record")
			built.Skipped = append(built.Skipped, id)
			if errors.Is(err, models.ErrConnectivity) {
				built.Unreachable++
			}
			continue
		}
		built.Indexed++
		pairs = append(pairs, doc)
	}

	if t.Chunked {
		chunks, err := p.chunker.Split(pairs)
		if err != nil {
			return nil, built, err
		}
		pairs = chunks
	}
	return store.FromModels(pairs), built, nil
}

var errNoText = errors.New("no indexable text")

func (p *Pipeline) shape(ctx context.Context, t *Target, id string) (models.Document, error) {
	md, err := p.source.FetchMetadata(ctx, id, t.Fields, t.Entity)
	if err != nil {
		return models.Document{}, fmt.Errorf("fetch metadata: %w", err)
	}
	md = md.Clone()
	md[models.FieldID] = id

	var text string
	switch t.Kind {
	case KindFiles:
		data, err := p.source.FetchBytes(ctx, id)
		if err != nil {
			return models.Document{}, fmt.Errorf("fetch bytes: %w", err)
		}
		text, err = p.extractor.Extract(ctx, data, "")
		if err != nil {
			return models.Document{}, err
		}
	case KindAssets:
		text = strings.TrimSpace(md[models.FieldTitle] + " " + md[models.FieldSummary])
	default:
		return models.Document{}, fmt.Errorf("%w: target kind %q", models.ErrInvalidInput, t.Kind)
	}
	if strings.TrimSpace(text) == "" {
		return models.Document{}, errNoText
	}
	return models.Document{Text: text, Metadata: md}, nil
}

// Append numbers docs from the collection's count and adds them in
// batches. Cancellation stops between batches; added batches stay.
func (p *Pipeline) Append(ctx context.Context, t *Target, docs []store.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := store.AssignIDs(ctx, t.Store, docs); err != nil {
		return fmt.Errorf("assign ids in %s: %w", t.Name(), err)
	}
	for start := 0; start < len(docs); start += p.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+p.batchSize, len(docs))
		if err := t.Store.Add(ctx, docs[start:end]); err != nil {
			return fmt.Errorf("add to %s: %w", t.Name(), err)
		}
		log.Debug().Str("collection", t.Name()).Int("from", start).Int("to", end).Msg("added batch")
	}
	return nil
}
