// Package embeddings generates text embeddings for document ingestion and
// similarity search, backed by the OpenAI embedding API.
package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/vectoradmin/internal/config"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrMissingAPIKey indicates no usable OpenAI credential.
	ErrMissingAPIKey = errors.New("no OpenAI API key configured")
)

// Embedder generates vectors from text. Dimensions reports the width the
// configured model produces, used as the reference side of the dimension
// gate before any upsert.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Service is the OpenAI-backed Embedder.
type Service struct {
	embedder   *embeddings.EmbedderImpl
	dimensions int
}

// New creates the embedding service. The apiKey argument takes precedence
// over cfg.APIKey so the per-deployment system setting can override the
// static configuration.
func New(cfg config.EmbeddingsConfig, apiKey string) (*Service, error) {
	if apiKey == "" {
		apiKey = cfg.APIKey
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	llm, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &Service{embedder: embedder, dimensions: cfg.Dimensions}, nil
}

// EmbedDocuments generates one vector per input text.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	return vectors, nil
}

// EmbedQuery generates a vector for one search query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrEmptyInput)
	}
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vector, nil
}

// Dimensions returns the embedding width of the configured model.
func (s *Service) Dimensions() int { return s.dimensions }

var _ Embedder = (*Service)(nil)
