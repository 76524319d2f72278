package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"records-rag/internal/models"
	"records-rag/internal/search"
	"records-rag/internal/store"
)

type SearchInput struct {
	Query     string   `json:"query" jsonschema:"the text to search for"`
	Exact     bool     `json:"exact,omitempty" jsonschema:"substring match instead of semantic similarity"`
	NResults  int      `json:"n_results,omitempty" jsonschema:"number of distinct records to return"`
	Titles    []string `json:"titles,omitempty" jsonschema:"only files with one of these titles"`
	LastDay   bool     `json:"last_day,omitempty" jsonschema:"only files created in the last day"`
	LastMonth bool     `json:"last_month,omitempty" jsonschema:"only files created in the last month"`
	LastYear  bool     `json:"last_year,omitempty" jsonschema:"only files created in the last year"`
}

type SearchOutput struct {
	Results []ResultOutput `json:"results"`
	Count   int            `json:"count"`
}

type ResultOutput struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Preview  string            `json:"preview"`
	URL      string            `json:"url,omitempty"`
	Distance float32           `json:"distance"`
	Metadata map[string]string `json:"metadata"`
}

type AskInput struct {
	Question string `json:"question" jsonschema:"the question to answer from the indexed files"`
}

type AskOutput struct {
	Answer  string `json:"answer"`
	Sources string `json:"sources"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_files",
		Description: "Search the indexed Salesforce files",
	}, s.handleSearchFiles)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_assets",
		Description: "Search the indexed knowledge articles",
	}, s.handleSearchAssets)
	if s.chatbot != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ask",
			Description: "Answer a question using the indexed files as context",
		}, s.handleAsk)
	}
}

func (s *Server) handleSearchFiles(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	req := search.Request{
		Query:    input.Query,
		NResults: input.NResults,
		Where:    store.BuildFilter(map[string][]string{models.FieldTitle: input.Titles}),
		Time:     search.TimeWindow(input.LastDay, input.LastMonth, input.LastYear, s.now()),
	}
	run := s.searcher.FilesSemantic
	if input.Exact {
		run = s.searcher.FilesExact
	}
	results, err := run(ctx, req)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, toOutput(results), nil
}

func (s *Server) handleSearchAssets(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	req := search.Request{Query: input.Query, NResults: input.NResults}
	run := s.searcher.AssetsSemantic
	if input.Exact {
		run = s.searcher.AssetsExact
	}
	results, err := run(ctx, req)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, toOutput(results), nil
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AskOutput, error) {
	resp, err := s.chatbot.Query(ctx, input.Question)
	if err != nil {
		return nil, AskOutput{}, err
	}
	return nil, AskOutput{Answer: resp.Content, Sources: resp.Source}, nil
}

func toOutput(results []models.Result) SearchOutput {
	out := SearchOutput{Results: make([]ResultOutput, len(results)), Count: len(results)}
	for i, r := range results {
		out.Results[i] = ResultOutput{
			ID:       r.ID(),
			Title:    r.Metadata[models.FieldTitle],
			Preview:  r.Preview,
			URL:      r.URL,
			Distance: r.Distance,
			Metadata: r.Metadata,
		}
	}
	return out
}
