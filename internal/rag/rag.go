// Package rag answers questions from the semantic file collection.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"records-rag/internal/llmservice"
	"records-rag/internal/models"
	"records-rag/internal/search"
)

const systemPrompt = "You are a helpful assistant. Use the provided context to answer the query."

// Retriever finds the file results used as context.
type Retriever interface {
	FilesSemantic(ctx context.Context, req search.Request) ([]models.Result, error)
}

type RAG struct {
	retriever Retriever
	llm       llms.Model
	nResults  int
}

func NewRAG(retriever Retriever, llm llms.Model, nResults int) *RAG {
	return &RAG{retriever: retriever, llm: llm, nResults: nResults}
}

// Query answers query from the best matching files. With no matching file
// the model is not called and the answer says so.
func (r *RAG) Query(ctx context.Context, query string) (models.PromptResponse, error) {
	resp := models.PromptResponse{Query: query}

	results, err := r.retriever.FilesSemantic(ctx, search.Request{Query: query, NResults: r.nResults})
	if err != nil {
		return resp, err
	}
	if len(results) == 0 {
		resp.Content = "No matching documents were found."
		return resp, nil
	}

	excerpts := make([]string, len(results))
	sources := make([]string, len(results))
	for i, res := range results {
		excerpts[i] = strings.TrimSuffix(res.Preview, "...")
		sources[i] = res.URL
	}
	resp.Source = strings.Join(sources, "\n")

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman,
			fmt.Sprintf(models.ContextPromptTemplate, strings.Join(excerpts, models.ContextSeparator), query)),
	}
	log.Debug().Int("excerpts", len(excerpts)).Msg("asking llm")

	out, err := llmservice.GenerateContent(ctx, r.llm, nil, messages)
	if err != nil {
		return resp, fmt.Errorf("generate answer: %w", err)
	}
	resp.Content, err = llmservice.Text(out)
	return resp, err
}
