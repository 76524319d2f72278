package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"records-rag/internal/models"
	"records-rag/internal/search"
)

type stubRetriever struct {
	results []models.Result
	err     error
	req     search.Request
}

func (s *stubRetriever) FilesSemantic(_ context.Context, req search.Request) ([]models.Result, error) {
	s.req = req
	return s.results, s.err
}

type stubModel struct {
	messages []llms.MessageContent
	answer   string
	err      error
}

func (m *stubModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.answer}}}, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestQuery_UsesRetrievedExcerpts(t *testing.T) {
	retriever := &stubRetriever{results: []models.Result{
		{Metadata: models.Metadata{"Id": "A"}, Preview: "Refunds take 5 days...", URL: "http://h/records/download?id=A"},
		{Metadata: models.Metadata{"Id": "B"}, Preview: "Contact finance...", URL: "http://h/records/download?id=B"},
	}}
	model := &stubModel{answer: "Five days."}
	r := NewRAG(retriever, model, 3)

	resp, err := r.Query(context.Background(), "How long do refunds take?")
	require.NoError(t, err)
	assert.Equal(t, "Five days.", resp.Content)
	assert.Equal(t, "How long do refunds take?", resp.Query)
	assert.Equal(t, "http://h/records/download?id=A\nhttp://h/records/download?id=B", resp.Source)
	assert.Equal(t, 3, retriever.req.NResults)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	human := model.messages[1].Parts[0].(llms.TextContent).Text
	assert.Contains(t, human, "Refunds take 5 days"+models.ContextSeparator+"Contact finance")
	assert.Contains(t, human, "Question: How long do refunds take?")
	assert.NotContains(t, human, "days...")
}

func TestQuery_NoMatchesSkipsModel(t *testing.T) {
	model := &stubModel{}
	resp, err := NewRAG(&stubRetriever{}, model, 4).Query(context.Background(), "anything")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Content)
	assert.Nil(t, model.messages)
}

func TestQuery_Errors(t *testing.T) {
	_, err := NewRAG(&stubRetriever{err: models.ErrInvalidInput}, &stubModel{}, 4).Query(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	boom := errors.New("rate limited")
	retriever := &stubRetriever{results: []models.Result{{Metadata: models.Metadata{"Id": "A"}, Preview: "x..."}}}
	_, err = NewRAG(retriever, &stubModel{err: boom}, 4).Query(context.Background(), "q")
	assert.ErrorIs(t, err, boom)
}
