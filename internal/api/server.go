// Package api serves search, sync, download and chatbot endpoints over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"records-rag/internal/models"
	"records-rag/internal/records"
	"records-rag/internal/search"
	"records-rag/internal/store"
	"records-rag/internal/syncer"
)

// Searcher runs the four searches.
type Searcher interface {
	FilesSemantic(ctx context.Context, req search.Request) ([]models.Result, error)
	AssetsSemantic(ctx context.Context, req search.Request) ([]models.Result, error)
	FilesExact(ctx context.Context, req search.Request) ([]models.Result, error)
	AssetsExact(ctx context.Context, req search.Request) ([]models.Result, error)
}

type Joiner interface {
	JoinAssets(ctx context.Context, files []models.Result) ([]models.AssetFiles, error)
}

type Syncer interface {
	SyncAdd(ctx context.Context, name string, q models.Query) syncer.Result
	SyncDelete(ctx context.Context, name string, q models.Query) syncer.Result
}

type Chatbot interface {
	Query(ctx context.Context, query string) (models.PromptResponse, error)
}

// Deps are the collaborators behind the handlers. Chatbot may be nil.
type Deps struct {
	Searcher Searcher
	Joiner   Joiner
	Syncer   Syncer
	Source   records.Source
	Chatbot  Chatbot

	// SyncCollections are synced by add_document and delete_document
	// with SyncQuery.
	SyncCollections []string
	SyncQuery       models.Query

	// Now defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	deps Deps
	mux  *http.ServeMux
}

func New(deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleHome)
	s.mux.HandleFunc("GET /semantic_search", s.handleSemanticSearch)
	s.mux.HandleFunc("GET /exact_search", s.handleExactSearch)
	s.mux.HandleFunc("GET /chatbot", s.handleChatbot)
	s.mux.HandleFunc("POST /records/add_document", s.handleAddDocument)
	s.mux.HandleFunc("DELETE /records/delete_document", s.handleDeleteDocument)
	s.mux.HandleFunc("GET /records/download", s.handleDownload)
}

// Handler returns the routes wrapped in CORS and access logging.
func (s *Server) Handler() http.Handler {
	return accessLog(cors(s.mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the Salesforce API!"})
}

type searchParams struct {
	files  search.Request
	assets search.Request
}

func (s *Server) parseSearch(r *http.Request) (searchParams, error) {
	q := r.URL.Query()
	query := q.Get("query")
	if query == "" {
		return searchParams{}, fmt.Errorf("%w: query is required", models.ErrInvalidInput)
	}
	var flags [3]bool
	for i, name := range []string{"last_day", "last_month", "last_year"} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return searchParams{}, fmt.Errorf("%w: %s must be a boolean", models.ErrInvalidInput, name)
		}
		flags[i] = b
	}

	where := store.BuildFilter(map[string][]string{
		models.FieldTitle: store.SplitValues(q.Get("files_title")),
	})
	return searchParams{
		files: search.Request{
			Query: query,
			Where: where,
			Time:  search.TimeWindow(flags[0], flags[1], flags[2], s.deps.Now()),
		},
		assets: search.Request{Query: query},
	}, nil
}

type semanticResponse struct {
	Assets []models.Result `json:"assets_results"`
	Files  []models.Result `json:"files_results"`
}

func (s *Server) handleSemanticSearch(w http.ResponseWriter, r *http.Request) {
	p, err := s.parseSearch(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	resp := semanticResponse{
		Assets: s.results(ctx, "assets semantic", p.assets, s.deps.Searcher.AssetsSemantic),
		Files:  s.results(ctx, "files semantic", p.files, s.deps.Searcher.FilesSemantic),
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExactSearch returns the matching files grouped under their assets.
func (s *Server) handleExactSearch(w http.ResponseWriter, r *http.Request) {
	p, err := s.parseSearch(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	files := s.results(ctx, "files exact", p.files, s.deps.Searcher.FilesExact)
	joined, err := s.deps.Joiner.JoinAssets(ctx, files)
	if err != nil {
		log.Error().Err(err).Msg("join assets")
	}
	if joined == nil {
		joined = []models.AssetFiles{}
	}
	writeJSON(w, http.StatusOK, joined)
}

// results runs one search, logging failures and answering an empty list.
func (s *Server) results(ctx context.Context, what string, req search.Request, fn func(context.Context, search.Request) ([]models.Result, error)) []models.Result {
	res, err := fn(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("search", what).Msg("search failed")
		return []models.Result{}
	}
	return res
}

func (s *Server) handleChatbot(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chatbot == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: "chatbot is not configured"})
		return
	}
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, fmt.Errorf("%w: query is required", models.ErrInvalidInput))
		return
	}
	resp, err := s.deps.Chatbot.Query(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	s.sync(w, r, s.deps.Syncer.SyncAdd)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	s.sync(w, r, s.deps.Syncer.SyncDelete)
}

type syncReport struct {
	syncer.Result
	Error string `json:"error,omitempty"`
}

// sync applies fn to every sync collection. Failed passes are reported in
// the body; the request itself succeeds.
func (s *Server) sync(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, models.Query) syncer.Result) {
	reports := make([]syncReport, 0, len(s.deps.SyncCollections))
	for _, name := range s.deps.SyncCollections {
		res := fn(r.Context(), name, s.deps.SyncQuery)
		rep := syncReport{Result: res}
		if res.Err != nil {
			rep.Error = res.Err.Error()
		}
		reports = append(reports, rep)
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, fmt.Errorf("%w: id is required", models.ErrInvalidInput))
		return
	}
	ctx := r.Context()
	md, err := s.deps.Source.FetchMetadata(ctx, id, models.DownloadFields, models.EntityContentVersion)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := s.deps.Source.FetchBytes(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	name := md[models.FieldTitle]
	if ext := md[models.FieldFileExtension]; ext != "" {
		name += "." + ext
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("download interrupted")
	}
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrConnectivity):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Detail: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}
