// Package embed wraps the Google genai SDK embedding API behind the
// Embedder seam the store consumes.
package embed

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Engine is the production Embedder backed by the Gemini embedding models.
type Engine struct {
	client *genai.Client
	model  string
}

func NewEngine(ctx context.Context, apiKey, model string) (*Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embed: api key is required")
	}
	if model == "" {
		model = "text-embedding-004"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("embed: create genai client: %w", err)
	}
	return &Engine{client: client, model: model}, nil
}

func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed: no embedding returned")
	}
	return vecs[0], nil
}

func (e *Engine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents,
		&genai.EmbedContentConfig{
			TaskType: "SEMANTIC_SIMILARITY",
		})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed: got %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if len(emb.Values) == 0 {
			return nil, fmt.Errorf("embed: empty embedding at index %d", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}

func (e *Engine) Name() string {
	return fmt.Sprintf("genai:%s", e.model)
}
