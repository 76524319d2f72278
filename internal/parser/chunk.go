package parser

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"records-rag/internal/models"
)

const (
	defaultChunkSize    = 1000 // characters
	defaultChunkOverlap = 20   // characters
)

// Separators tried in order: paragraph, line, sentence, word, then hard
// character cuts.
var chunkSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits long texts into overlapping segments.
type Chunker struct {
	size     int
	overlap  int
	splitter textsplitter.TextSplitter
}

// NewChunker returns a chunker producing segments of at most size
// characters sharing overlap characters at each boundary. Non-positive
// sizes fall back to the defaults and an overlap not smaller than size is
// reduced to a quarter of it.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = defaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Chunker{
		size:    size,
		overlap: overlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators(chunkSeparators),
		),
	}
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks every document. Each chunk carries its own copy of the
// source metadata. Empty texts produce no chunks.
func (c *Chunker) Split(docs []models.Document) ([]models.Document, error) {
	var out []models.Document
	for _, doc := range docs {
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		parts, err := c.splitter.SplitText(doc.Text)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", doc.Metadata.ID(), err)
		}
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}
			out = append(out, models.Document{
				Text:     part,
				Metadata: doc.Metadata.Clone(),
			})
		}
	}
	return out, nil
}
