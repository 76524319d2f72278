package ingest

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"records-rag/internal/chromemdb"
	"records-rag/internal/db"
	"records-rag/internal/embedding"
	"records-rag/internal/models"
	"records-rag/internal/parser"
	"records-rag/internal/records"
	"records-rag/internal/store"
)

var png = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newCollections(t *testing.T) Collections {
	t.Helper()
	m, err := chromemdb.NewManager("", true, false)
	require.NoError(t, err)
	embed := embedding.EmbeddingFunc(embedding.NewHashEmbedder(128))
	fs, err := m.Collection("files", embed)
	require.NoError(t, err)
	as, err := m.Collection("assets", embed)
	require.NoError(t, err)

	bdb, err := db.Open(":memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bdb.Close() })
	require.NoError(t, db.InitDB(context.Background(), bdb))

	return Collections{
		FilesSemantic:  fs,
		FilesExact:     db.NewCollection(bdb, "files_exact"),
		AssetsSemantic: as,
		AssetsExact:    db.NewCollection(bdb, "assets_exact"),
	}
}

func seedSource() *records.Memory {
	src := records.NewMemory()
	src.Put(models.EntityContentVersion, models.Metadata{"Id": "F1", "Title": "Guide", "FileType": "TEXT"},
		[]byte(strings.Repeat("Onboarding steps for new staff. ", 10)))
	src.Put(models.EntityContentVersion, models.Metadata{"Id": "F2", "Title": "Logo", "FileType": "PNG"}, png)
	src.Put(models.EntityContentVersion, models.Metadata{"Id": "F3", "Title": "Policy", "FileType": "TEXT"},
		[]byte("Travel policy: book economy."))

	src.Put(models.EntityKnowledge, models.Metadata{"Id": "K1", "Title": "Expenses", "Summary": "How to claim"}, nil)
	src.Put(models.EntityKnowledge, models.Metadata{"Id": "K2", "Title": "", "Summary": ""}, nil)
	src.Put(models.EntityKnowledge, models.Metadata{"Id": "K3", "Title": "Holidays"}, nil)
	return src
}

var (
	filesQuery  = models.Query{Entity: models.EntityContentVersion}
	assetsQuery = models.Query{Entity: models.EntityKnowledge}
)

func newPipeline(t *testing.T, src records.Source, opts ...Option) (*Pipeline, Collections) {
	cols := newCollections(t)
	return New(src, parser.New(), parser.NewChunker(100, 10), cols, opts...), cols
}

func count(t *testing.T, c store.Collection) int {
	t.Helper()
	n, err := c.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestIngestFilesExact_SkipsUnsupported(t *testing.T) {
	p, cols := newPipeline(t, seedSource())

	r, err := p.IngestFilesExact(context.Background(), filesQuery)
	require.NoError(t, err)
	assert.Equal(t, ReportIndexed, r.Status)
	assert.Equal(t, []string{"F1", "F2", "F3"}, r.Listed)
	assert.Equal(t, 2, r.Indexed)
	assert.Equal(t, 2, r.Units)
	assert.Equal(t, []string{"F2"}, r.Skipped)
	assert.Equal(t, 2, count(t, cols.FilesExact))

	hits, err := cols.FilesExact.Query(context.Background(), store.QueryRequest{Contains: "economy"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "F3", hits[0].Metadata.ID())
	assert.Equal(t, "Policy", hits[0].Metadata["Title"])
	assert.Equal(t, "1", hits[0].ID)
}

func TestIngestFilesExact_SkipsMalformedPDF(t *testing.T) {
	src := seedSource()
	src.Put(models.EntityContentVersion, models.Metadata{"Id": "F4", "Title": "Broken", "FileType": "PDF"},
		[]byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\nstartxref\n9999\n%%EOF\n"))
	p, cols := newPipeline(t, src)

	r, err := p.IngestFilesExact(context.Background(), filesQuery)
	require.NoError(t, err)
	assert.Equal(t, ReportIndexed, r.Status)
	assert.Equal(t, 2, r.Indexed)
	assert.ElementsMatch(t, []string{"F2", "F4"}, r.Skipped)
	assert.Equal(t, 2, count(t, cols.FilesExact))
}

func TestIngestFilesSemantic_Chunks(t *testing.T) {
	p, cols := newPipeline(t, seedSource())

	r, err := p.IngestFilesSemantic(context.Background(), filesQuery)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Indexed)
	assert.Greater(t, r.Units, 2, "the long file is split")
	assert.Equal(t, r.Units, count(t, cols.FilesSemantic))

	for i := 0; i < r.Units; i++ {
		ok, err := cols.FilesSemantic.Exists(context.Background(), strconv.Itoa(i))
		require.NoError(t, err)
		assert.True(t, ok, "unit %d", i)
	}
}

func TestIngestAssets_TitleAndSummary(t *testing.T) {
	p, cols := newPipeline(t, seedSource())
	ctx := context.Background()

	r, err := p.IngestAssetsExact(ctx, assetsQuery)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Units)
	assert.Equal(t, []string{"K2"}, r.Skipped)

	hits, err := cols.AssetsExact.Query(ctx, store.QueryRequest{Contains: "Expenses How to claim"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "K1", hits[0].Metadata.ID())

	r, err = p.IngestAssetsSemantic(ctx, assetsQuery)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Units)
	assert.Equal(t, 2, count(t, cols.AssetsSemantic))
}

func TestPopulate_Idempotent(t *testing.T) {
	src := seedSource()
	p, cols := newPipeline(t, src)
	ctx := context.Background()

	_, err := p.IngestFilesExact(ctx, filesQuery)
	require.NoError(t, err)
	before, err := cols.FilesExact.Query(ctx, store.QueryRequest{Contains: " "})
	require.NoError(t, err)

	src.Put(models.EntityContentVersion, models.Metadata{"Id": "F4"}, []byte("late arrival"))
	r, err := p.IngestFilesExact(ctx, filesQuery)
	require.NoError(t, err)
	assert.Equal(t, ReportSkipped, r.Status)
	assert.Contains(t, r.Listed, "F4")
	assert.Zero(t, r.Units)

	after, err := cols.FilesExact.Query(ctx, store.QueryRequest{Contains: " "})
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPopulate_SourceFailurePropagates(t *testing.T) {
	src := seedSource()
	src.SetErr(errors.New("dial tcp: connection refused"))
	p, cols := newPipeline(t, src)

	_, err := p.IngestFilesExact(context.Background(), filesQuery)
	assert.ErrorIs(t, err, models.ErrConnectivity)
	assert.Zero(t, count(t, cols.FilesExact))
}

func TestPopulate_Cancelled(t *testing.T) {
	p, cols := newPipeline(t, seedSource())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.IngestFilesExact(ctx, filesQuery)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, count(t, cols.FilesExact))
}

func TestIngestAll(t *testing.T) {
	p, cols := newPipeline(t, seedSource(), WithBatchSize(1))

	reports, err := p.IngestAll(context.Background(), filesQuery, assetsQuery)
	require.NoError(t, err)
	require.Len(t, reports, 4)
	for _, r := range reports {
		assert.Equal(t, ReportIndexed, r.Status, r.Collection)
	}
	assert.Equal(t, 2, count(t, cols.FilesExact))
	assert.Equal(t, 2, count(t, cols.AssetsExact))
	assert.Equal(t, 2, count(t, cols.AssetsSemantic))
}

func TestTargetLookup(t *testing.T) {
	p, _ := newPipeline(t, seedSource())
	require.Len(t, p.Targets(), 4)

	tg, ok := p.Target("files_exact")
	require.True(t, ok)
	assert.Equal(t, KindFiles, tg.Kind)
	assert.False(t, tg.Chunked)

	tg, ok = p.Target("files")
	require.True(t, ok)
	assert.True(t, tg.Chunked)

	_, ok = p.Target("nope")
	assert.False(t, ok)
}

func TestAppend_ContinuesNumbering(t *testing.T) {
	p, cols := newPipeline(t, seedSource())
	ctx := context.Background()
	_, err := p.IngestFilesExact(ctx, filesQuery)
	require.NoError(t, err)

	tg, _ := p.Target("files_exact")
	docs := []store.Document{{Content: "extra", Metadata: models.Metadata{"Id": "F9"}}}
	require.NoError(t, p.Append(ctx, tg, docs))
	assert.Equal(t, "2", docs[0].ID)
	assert.Equal(t, 3, count(t, cols.FilesExact))
}
