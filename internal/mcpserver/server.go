// Package mcpserver exposes the searches and the chatbot as MCP tools.
package mcpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"records-rag/internal/models"
	"records-rag/internal/search"
)

const Version = "0.1.0"

type Searcher interface {
	FilesSemantic(ctx context.Context, req search.Request) ([]models.Result, error)
	AssetsSemantic(ctx context.Context, req search.Request) ([]models.Result, error)
	FilesExact(ctx context.Context, req search.Request) ([]models.Result, error)
	AssetsExact(ctx context.Context, req search.Request) ([]models.Result, error)
}

type Chatbot interface {
	Query(ctx context.Context, query string) (models.PromptResponse, error)
}

type Server struct {
	searcher Searcher
	chatbot  Chatbot
	now      func() time.Time
	server   *mcp.Server
}

// New registers the search tools, and the ask tool when chatbot is not nil.
func New(searcher Searcher, chatbot Chatbot) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("mcp server needs a searcher")
	}
	s := &Server{
		searcher: searcher,
		chatbot:  chatbot,
		now:      time.Now,
		server:   mcp.NewServer(&mcp.Implementation{Name: "records-rag", Version: Version}, nil),
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr until ctx is
// cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		if err := httpServer.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("mcp http shutdown")
		}
	}()

	log.Info().Str("addr", addr).Msg("mcp server listening")
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
