package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"records-rag/internal/models"
	"records-rag/internal/store"
)

// rankedCollection returns fixed hits, applying only the filters.
type rankedCollection struct {
	name string
	hits []store.Hit
	last store.QueryRequest
	err  error
}

func (r *rankedCollection) Name() string { return r.name }

func (r *rankedCollection) Count(context.Context) (int, error) { return len(r.hits), nil }

func (r *rankedCollection) Add(context.Context, []store.Document) error { return nil }

func (r *rankedCollection) Exists(context.Context, string) (bool, error) { return false, nil }

func (r *rankedCollection) Delete(context.Context, *store.Filter) (int, error) { return 0, nil }

func (r *rankedCollection) Query(_ context.Context, req store.QueryRequest) ([]store.Hit, error) {
	r.last = req
	if r.err != nil {
		return nil, r.err
	}
	var out []store.Hit
	for _, h := range r.hits {
		if !req.Where.Match(h.Metadata) || !strings.Contains(h.Content, req.Contains) {
			continue
		}
		out = append(out, h)
		if req.Window > 0 && len(out) == req.Window {
			break
		}
	}
	return out, nil
}

func hit(id, content string, distance float32, created string) store.Hit {
	return store.Hit{
		Document: store.Document{
			Content:  content,
			Metadata: models.Metadata{"Id": id, "Title": "t-" + id, "CreatedDate": created},
		},
		Distance: distance,
	}
}

const recent = "2026-10-14T09:30:00.000+0000"

func newEngine(files, assets *rankedCollection) *Engine {
	return New(Collections{
		FilesSemantic:  files,
		FilesExact:     files,
		AssetsSemantic: assets,
		AssetsExact:    assets,
	}, Options{MaxDistance: 0.5, AssetsMaxDistance: 1.8, NResults: 4, BaseURL: "http://0.0.0.0:8000/"})
}

func TestFilesSemantic_DedupsAndCountsUniqueRecords(t *testing.T) {
	files := &rankedCollection{name: "files", hits: []store.Hit{
		hit("A", "a1", 0.10, recent),
		hit("A", "a2", 0.11, recent),
		hit("A", "a3", 0.12, recent),
		hit("B", "b1", 0.20, recent),
		hit("A", "a4", 0.21, recent),
		hit("C", "c1", 0.30, recent),
		hit("D", "d1", 0.40, recent),
	}}
	e := newEngine(files, &rankedCollection{})

	res, err := e.FilesSemantic(context.Background(), Request{Query: "q", NResults: 3})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{res[0].ID(), res[1].ID(), res[2].ID()})
	assert.Equal(t, "a1...", res[0].Preview, "first hit of a record wins")
	assert.Equal(t, "http://0.0.0.0:8000/records/download?id=A", res[0].URL)
	assert.Equal(t, 7, files.last.Window, "scans the whole collection")
	assert.Equal(t, "q", files.last.Text)
	assert.Empty(t, files.last.Contains)
}

func TestFilesSemantic_DistanceThreshold(t *testing.T) {
	files := &rankedCollection{name: "files", hits: []store.Hit{
		hit("A", "a", 0.2, recent),
		hit("B", "b", 0.49, recent),
		hit("C", "c", 0.5, recent),
		hit("D", "d", 1.3, recent),
	}}
	e := newEngine(files, &rankedCollection{})

	res, err := e.FilesSemantic(context.Background(), Request{Query: "q", NResults: 10})
	require.NoError(t, err)
	require.Len(t, res, 2)
	for _, r := range res {
		assert.Less(t, r.Distance, float32(0.5))
	}

	res, err = e.FilesSemantic(context.Background(), Request{Query: "q", NResults: 10, MaxDistance: 1.8})
	require.NoError(t, err)
	assert.Len(t, res, 4)
}

func TestAssetsSemantic_UsesAssetDistanceBound(t *testing.T) {
	assets := &rankedCollection{name: "assets", hits: []store.Hit{
		hit("K1", "Expenses How to claim", 0.3, ""),
		hit("K2", "Holidays", 1.0, ""),
		hit("K3", "Parking", 1.9, ""),
	}}
	e := newEngine(&rankedCollection{}, assets)

	res, err := e.AssetsSemantic(context.Background(), Request{Query: "q", NResults: 10})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "K2", res[1].ID())
	assert.Empty(t, res[1].URL)

	res, err = e.AssetsSemantic(context.Background(), Request{Query: "q", NResults: 10, MaxDistance: 0.5})
	require.NoError(t, err)
	assert.Len(t, res, 1, "request bound overrides the asset default")
}

func TestFilesSemantic_PreviewKeepsWholeChunk(t *testing.T) {
	long := strings.Repeat("x", 500) + "\nend"
	files := &rankedCollection{name: "files", hits: []store.Hit{hit("A", long, 0.1, recent)}}
	res, err := newEngine(files, &rankedCollection{}).FilesSemantic(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, strings.Repeat("x", 500)+"end...", res[0].Preview)
}

func TestExactSearch_NoThresholdAndPreviewLimits(t *testing.T) {
	body := strings.Repeat("é", 400) + " needle"
	files := &rankedCollection{name: "files", hits: []store.Hit{
		hit("A", "needle "+body, 0, recent),
		hit("A", "needle again", 0, recent),
		hit("B", "no match", 0, recent),
		hit("C", "line\nneedle", 0, recent),
	}}
	assets := &rankedCollection{name: "assets", hits: []store.Hit{
		hit("K", "needle "+body, 0, recent),
	}}
	e := newEngine(files, assets)

	res, err := e.FilesExact(context.Background(), Request{Query: "needle", NResults: 5})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "needle", files.last.Contains)
	assert.Equal(t, 303, len([]rune(res[0].Preview)))
	assert.Equal(t, "lineneedle...", res[1].Preview)
	assert.NotEmpty(t, res[0].URL)

	ar, err := e.AssetsExact(context.Background(), Request{Query: "needle"})
	require.NoError(t, err)
	require.Len(t, ar, 1)
	assert.Equal(t, 103, len([]rune(ar[0].Preview)))
	assert.Empty(t, ar[0].URL, "assets have no download link")
}

func TestSearch_Filters(t *testing.T) {
	files := &rankedCollection{name: "files", hits: []store.Hit{
		hit("A", "a", 0.1, recent),
		hit("B", "b", 0.2, recent),
		hit("C", "c", 0.3, recent),
	}}
	e := newEngine(files, &rankedCollection{})

	where := store.BuildFilter(map[string][]string{"Title": store.SplitValues("t-B, t-C")})
	res, err := e.FilesSemantic(context.Background(), Request{Query: "q", Where: where})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "B", res[0].ID())
	assert.Same(t, where, files.last.Where)
}

func TestSearch_TimeWindowCountsOnlyPassingResults(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	files := &rankedCollection{name: "files", hits: []store.Hit{
		hit("OLD1", "a", 0.1, "2025-01-01T00:00:00.000+0000"),
		hit("NEW1", "b", 0.2, "2026-10-15T08:00:00.000+0000"),
		hit("OLD2", "c", 0.3, "2026-09-01T00:00:00.000+0000"),
		hit("NEW2", "d", 0.4, "2026-10-14T18:00:00.000+0000"),
		hit("BAD", "e", 0.4, "yesterday"),
	}}
	e := newEngine(files, &rankedCollection{})

	res, err := e.FilesSemantic(context.Background(), Request{
		Query: "q", NResults: 2, Time: TimeWindow(true, false, false, now),
	})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "NEW1", res[0].ID())
	assert.Equal(t, "NEW2", res[1].ID())
}

func TestSearch_EmptyCollectionAndErrors(t *testing.T) {
	e := newEngine(&rankedCollection{name: "files"}, &rankedCollection{name: "assets"})

	res, err := e.AssetsSemantic(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)

	_, err = e.FilesExact(context.Background(), Request{Query: "  "})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	broken := &rankedCollection{name: "files", hits: []store.Hit{hit("A", "a", 0, recent)}, err: errors.New("boom")}
	_, err = newEngine(broken, broken).FilesSemantic(context.Background(), Request{Query: "q"})
	assert.Error(t, err)
}

func TestAssetsSemantic(t *testing.T) {
	assets := &rankedCollection{name: "assets", hits: []store.Hit{
		hit("K1", "Expenses How to claim", 0.1, recent),
		hit("K2", "Holidays", 0.9, recent),
	}}
	res, err := newEngine(&rankedCollection{}, assets).AssetsSemantic(context.Background(), Request{Query: "expenses"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "K1", res[0].ID())
	assert.Empty(t, res[0].URL)
}

func TestTimeWindow(t *testing.T) {
	now := time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC)
	assert.Nil(t, TimeWindow(false, false, false, now))
	assert.Equal(t, now.AddDate(0, 0, -1), TimeWindow(true, true, true, now).Since)
	assert.Equal(t, now.AddDate(0, -1, 0), TimeWindow(false, true, true, now).Since)
	assert.Equal(t, now.AddDate(-1, 0, 0), TimeWindow(false, false, true, now).Since)

	var none *TimeFilter
	assert.True(t, none.Match(models.Metadata{}))

	f := &TimeFilter{Since: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	assert.True(t, f.Match(models.Metadata{"CreatedDate": "2026-03-01"}))
	assert.True(t, f.Match(models.Metadata{"CreatedDate": "2026-03-02T10:00:00Z"}))
	assert.False(t, f.Match(models.Metadata{"CreatedDate": "2026-02-28T23:59:59.000+0000"}))
	assert.False(t, f.Match(models.Metadata{}))
}
