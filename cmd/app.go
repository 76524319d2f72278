package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"records-rag/internal/chromemdb"
	"records-rag/internal/config"
	"records-rag/internal/db"
	"records-rag/internal/embedding"
	"records-rag/internal/helper"
	"records-rag/internal/ingest"
	"records-rag/internal/llmservice"
	"records-rag/internal/parser"
	"records-rag/internal/rag"
	"records-rag/internal/records"
	"records-rag/internal/salesforce"
	"records-rag/internal/search"
	"records-rag/internal/syncer"
)

// app is the wired service shared by the commands.
type app struct {
	cfg      *config.Config
	source   records.Source
	vectors  *chromemdb.Manager
	units    *bun.DB
	pipeline *ingest.Pipeline
	syncer   *syncer.Engine
	search   *search.Engine
	joiner   *search.Joiner
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	embedder, err := embedding.New(cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	embed := embedding.EmbeddingFunc(embedder)

	if err := helper.CreateFolder(cfg.RAG.DBPath); err != nil {
		return nil, err
	}
	vectors, err := chromemdb.NewManager(cfg.RAG.DBPath, false, cfg.RAG.Compress)
	if err != nil {
		return nil, err
	}
	filesSemantic, err := vectors.Collection(cfg.RAG.FilesSemanticCollection, embed)
	if err != nil {
		return nil, err
	}
	assetsSemantic, err := vectors.Collection(cfg.RAG.AssetsSemanticCollection, embed)
	if err != nil {
		return nil, err
	}

	units, err := db.Open(cfg.Database.DSN, cfg.Database.Debug)
	if err != nil {
		return nil, err
	}
	if err := db.InitDB(ctx, units); err != nil {
		_ = units.Close()
		return nil, err
	}
	filesExact := db.NewCollection(units, cfg.RAG.FilesExactCollection)
	assetsExact := db.NewCollection(units, cfg.RAG.AssetsExactCollection)

	source := salesforce.New(ctx, cfg.Salesforce)
	pipeline := ingest.New(source, parser.New(), parser.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap), ingest.Collections{
		FilesSemantic:  filesSemantic,
		FilesExact:     filesExact,
		AssetsSemantic: assetsSemantic,
		AssetsExact:    assetsExact,
	})
	engine := search.New(search.Collections{
		FilesSemantic:  filesSemantic,
		FilesExact:     filesExact,
		AssetsSemantic: assetsSemantic,
		AssetsExact:    assetsExact,
	}, search.Options{
		MaxDistance:       cfg.RAG.MaxDistance,
		AssetsMaxDistance: cfg.RAG.AssetsMaxDistance,
		NResults:          cfg.RAG.NResults,
		BaseURL:           cfg.RAG.BaseURL,
	})

	return &app{
		cfg:      cfg,
		source:   source,
		vectors:  vectors,
		units:    units,
		pipeline: pipeline,
		syncer:   syncer.New(source, pipeline),
		search:   engine,
		joiner:   search.NewJoiner(source),
	}, nil
}

func (a *app) Close() {
	if err := a.units.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing units database")
	}
}

// chatbot builds the RAG chatbot over the files-semantic collection.
func (a *app) chatbot() (*rag.RAG, error) {
	llm, err := llmservice.New(a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	return rag.NewRAG(a.search, llm, a.cfg.RAG.NResults), nil
}

// ingest populates every empty collection and starts tracking the file
// collections with the ids listed for them.
func (a *app) ingest(ctx context.Context) ([]ingest.Report, error) {
	reports, err := a.pipeline.IngestAll(ctx, a.cfg.Sources.Files, a.cfg.Sources.Assets)
	for _, r := range reports {
		t, ok := a.pipeline.Target(r.Collection)
		if ok && t.Kind == ingest.KindFiles {
			a.syncer.Track(t, r.Listed)
		}
	}
	return reports, err
}

// fileCollections names the collections the sync endpoints maintain.
func (a *app) fileCollections() []string {
	var names []string
	for _, t := range a.pipeline.Targets() {
		if t.Kind == ingest.KindFiles {
			names = append(names, t.Name())
		}
	}
	return names
}
