// Package syncer keeps collections in step with the record source by
// applying id deltas instead of reindexing.
package syncer

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"records-rag/internal/ingest"
	"records-rag/internal/models"
	"records-rag/internal/records"
	"records-rag/internal/store"
)

type Status string

const (
	StatusApplied Status = "applied"
	// StatusFailed means nothing changed: neither the collection nor the
	// known ids.
	StatusFailed Status = "failed"
)

// Result reports one sync pass over one collection.
type Result struct {
	Pass       string   `json:"pass"`
	Collection string   `json:"collection"`
	Status     Status   `json:"status"`
	Added      []string `json:"added,omitempty"`
	Removed    []string `json:"removed,omitempty"`
	Units      int      `json:"units"`
	Err        error    `json:"-"`
}

// state is the sync state of one collection.
type state struct {
	mu     sync.Mutex
	target *ingest.Target
	known  map[string]struct{}
}

// Engine holds the known ids of every tracked collection.
type Engine struct {
	source   records.Source
	pipeline *ingest.Pipeline

	mu     sync.RWMutex
	states map[string]*state
}

func New(source records.Source, pipeline *ingest.Pipeline) *Engine {
	return &Engine{
		source:   source,
		pipeline: pipeline,
		states:   map[string]*state{},
	}
}

// Track starts following target with the ids seen when it was ingested.
// Tracking again replaces the known ids.
func (e *Engine) Track(target *ingest.Target, ids []string) {
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}

	e.mu.Lock()
	st, ok := e.states[target.Name()]
	if !ok {
		st = &state{}
		e.states[target.Name()] = st
	}
	e.mu.Unlock()

	st.mu.Lock()
	st.target = target
	st.known = known
	st.mu.Unlock()
}

// Known returns the sorted known ids of a collection.
func (e *Engine) Known(name string) []string {
	st, err := e.state(name)
	if err != nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return sortedKeys(st.known)
}

// Collections lists the tracked collection names.
func (e *Engine) Collections() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.states))
	for name := range e.states {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (e *Engine) state(name string) (*state, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.states[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q is not tracked", models.ErrInvalidInput, name)
	}
	return st, nil
}

// SyncAdd indexes records the source lists that are not known yet.
func (e *Engine) SyncAdd(ctx context.Context, name string, q models.Query) Result {
	return e.run(ctx, name, q, true, false)
}

// SyncDelete removes the units of known records the source no longer lists.
func (e *Engine) SyncDelete(ctx context.Context, name string, q models.Query) Result {
	return e.run(ctx, name, q, false, true)
}

// Sync applies additions then removals under one lock and one listing.
func (e *Engine) Sync(ctx context.Context, name string, q models.Query) Result {
	return e.run(ctx, name, q, true, true)
}

// SyncAll runs Sync over every tracked collection.
func (e *Engine) SyncAll(ctx context.Context, q models.Query) []Result {
	var out []Result
	for _, name := range e.Collections() {
		out = append(out, e.Sync(ctx, name, q))
	}
	return out
}

func (e *Engine) run(ctx context.Context, name string, q models.Query, add, remove bool) Result {
	res := Result{Pass: uuid.NewString(), Collection: name}
	logger := log.With().Str("pass", res.Pass).Str("collection", name).Logger()

	fail := func(err error) Result {
		logger.Error().Err(err).Msg("sync failed, collection left unchanged")
		res.Status = StatusFailed
		res.Err = err
		res.Added, res.Removed, res.Units = nil, nil, 0
		return res
	}

	st, err := e.state(name)
	if err != nil {
		return fail(err)
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	current, err := e.source.ListIDs(ctx, q)
	if err != nil {
		return fail(fmt.Errorf("list ids: %w", err))
	}
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}

	var added []string
	if add {
		for _, id := range current {
			if _, ok := st.known[id]; !ok {
				added = append(added, id)
			}
		}
	}
	var removed []string
	if remove {
		for _, id := range sortedKeys(st.known) {
			if _, ok := currentSet[id]; !ok {
				removed = append(removed, id)
			}
		}
	}

	// Build before touching the collection so a source failure leaves it
	// as it was.
	var docs []store.Document
	if len(added) > 0 {
		var built ingest.Built
		docs, built, err = e.pipeline.Build(ctx, st.target, added)
		if err != nil {
			return fail(err)
		}
		if built.Unreachable > 0 {
			return fail(fmt.Errorf("fetch %d records: %w", built.Unreachable, models.ErrConnectivity))
		}
	}

	if len(removed) > 0 {
		n, err := st.target.Store.Delete(ctx, store.In(models.FieldID, removed...))
		if err != nil {
			return fail(fmt.Errorf("delete units: %w", err))
		}
		logger.Debug().Int("units", n).Strs("ids", removed).Msg("removed records")
	}
	if len(docs) > 0 {
		if err := e.pipeline.Append(ctx, st.target, docs); err != nil {
			// removals above already landed
			for _, id := range removed {
				delete(st.known, id)
			}
			// Batches before the failure may have landed. Drop them so the
			// next pass re-adds whole records; if that fails too, keep them
			// known rather than index them twice.
			n, rerr := st.target.Store.Delete(context.WithoutCancel(ctx), store.In(models.FieldID, added...))
			if rerr != nil {
				logger.Error().Err(rerr).Strs("ids", added).Msg("rollback of partial add failed")
				for _, id := range added {
					st.known[id] = struct{}{}
				}
			} else if n > 0 {
				logger.Warn().Int("units", n).Msg("rolled back partial add")
			}
			res = fail(fmt.Errorf("append units: %w", err))
			res.Removed = removed
			return res
		}
	}

	for _, id := range added {
		st.known[id] = struct{}{}
	}
	for _, id := range removed {
		delete(st.known, id)
	}

	res.Status = StatusApplied
	res.Added = added
	res.Removed = removed
	res.Units = len(docs)
	logger.Info().Int("added", len(added)).Int("removed", len(removed)).Int("units", res.Units).Msg("sync applied")
	return res
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
