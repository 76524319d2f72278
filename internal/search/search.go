// Package search answers semantic and exact queries over the four
// collections and joins file results to their parent assets.
package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"records-rag/internal/models"
	"records-rag/internal/store"
)

// Preview lengths in runes. Zero keeps the whole unit text.
const (
	semanticPreview    = 0
	exactFilesPreview  = 300
	exactAssetsPreview = 100
)

type Collections struct {
	FilesSemantic  store.Collection
	FilesExact     store.Collection
	AssetsSemantic store.Collection
	AssetsExact    store.Collection
}

// Options are the engine defaults, overridable per request.
type Options struct {
	MaxDistance float32
	// AssetsMaxDistance bounds asset semantic search. Asset units are
	// short title and summary texts, so they sit further from queries.
	AssetsMaxDistance float32
	NResults          int
	// BaseURL prefixes file download links.
	BaseURL string
}

type Engine struct {
	cols Collections
	opts Options
}

func New(cols Collections, opts Options) *Engine {
	return &Engine{cols: cols, opts: opts}
}

// Request is one search.
type Request struct {
	Query string
	// NResults caps the number of distinct records returned.
	NResults int
	// MaxDistance is the exclusive distance bound of semantic matches.
	MaxDistance float32
	Where       *store.Filter
	Time        *TimeFilter
}

// scan describes how hits turn into results.
type scan struct {
	threshold   bool
	previewRune int
	withURL     bool
}

func (e *Engine) FilesSemantic(ctx context.Context, req Request) ([]models.Result, error) {
	return e.search(ctx, e.cols.FilesSemantic, req, false, scan{threshold: true, previewRune: semanticPreview, withURL: true})
}

func (e *Engine) AssetsSemantic(ctx context.Context, req Request) ([]models.Result, error) {
	if req.MaxDistance <= 0 {
		req.MaxDistance = e.opts.AssetsMaxDistance
	}
	return e.search(ctx, e.cols.AssetsSemantic, req, false, scan{threshold: true, previewRune: semanticPreview})
}

func (e *Engine) FilesExact(ctx context.Context, req Request) ([]models.Result, error) {
	return e.search(ctx, e.cols.FilesExact, req, true, scan{previewRune: exactFilesPreview, withURL: true})
}

func (e *Engine) AssetsExact(ctx context.Context, req Request) ([]models.Result, error) {
	return e.search(ctx, e.cols.AssetsExact, req, true, scan{previewRune: exactAssetsPreview})
}

func (e *Engine) search(ctx context.Context, c store.Collection, req Request, exact bool, sc scan) ([]models.Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: empty query", models.ErrInvalidInput)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: collection not configured", models.ErrInvalidInput)
	}
	n := req.NResults
	if n <= 0 {
		n = e.opts.NResults
	}
	maxDistance := req.MaxDistance
	if maxDistance <= 0 {
		maxDistance = e.opts.MaxDistance
	}

	// Scan the whole collection: chunks of one record can crowd the top
	// of the ranking.
	count, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []models.Result{}, nil
	}
	q := store.QueryRequest{Window: count, Where: req.Where}
	if exact {
		q.Contains = req.Query
	} else {
		q.Text = req.Query
	}
	hits, err := c.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, n)
	results := make([]models.Result, 0, n)
	for _, h := range hits {
		if len(results) >= n {
			break
		}
		id := h.Metadata.ID()
		if seen[id] {
			continue
		}
		if sc.threshold && h.Distance >= maxDistance {
			continue
		}
		if !req.Time.Match(h.Metadata) {
			continue
		}
		seen[id] = true
		r := models.Result{
			Metadata: h.Metadata.Clone(),
			Preview:  preview(h.Content, sc.previewRune),
			Distance: h.Distance,
		}
		if sc.withURL {
			r.URL = e.DownloadURL(id)
		}
		results = append(results, r)
	}

	log.Debug().
		Str("collection", c.Name()).
		Int("scanned", len(hits)).
		Int("results", len(results)).
		Msg("search finished")
	return results, nil
}

// DownloadURL links to the download endpoint for a file record.
func (e *Engine) DownloadURL(id string) string {
	return strings.TrimRight(e.opts.BaseURL, "/") + "/records/download?id=" + url.QueryEscape(id)
}

// preview cuts text to limit runes, appends an ellipsis and drops
// newlines.
func preview(text string, limit int) string {
	if limit > 0 {
		if r := []rune(text); len(r) > limit {
			text = string(r[:limit])
		}
	}
	return strings.ReplaceAll(text+"...", "\n", "")
}
