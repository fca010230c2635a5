package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EmbedderConfig configures the OpenAI embeddings client.
type EmbedderConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Logger     zerolog.Logger
}

// OpenAIEmbedder turns texts into vectors with an OpenAI compatible
// embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	cfg    EmbedderConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIEmbedder validates the configuration and builds the client.
func NewOpenAIEmbedder(cfg EmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive")
	}

	return &OpenAIEmbedder{
		client: newClient(cfg.APIKey, cfg.BaseURL),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-recommender/pkg/ai/embedder"),
		logger: cfg.Logger,
	}, nil
}

// Dimensions returns the requested vector length.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// Embed sends every text in one request and returns the vectors in input order.
func (e *OpenAIEmbedder) Embed(parent context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, span := e.tracer.Start(parent, "openai.embed", trace.WithAttributes(
		attribute.String("model", e.cfg.Model),
		attribute.Int("texts", len(texts)),
	))
	defer span.End()

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.cfg.Model),
		Dimensions: e.cfg.Dimensions,
	})
	aiDuration.WithLabelValues(e.cfg.Model, "embed").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, e.fail(span, fmt.Errorf("openai embed: %w", describeAPIError(err)))
	}
	if len(resp.Data) != len(texts) {
		return nil, e.fail(span, fmt.Errorf("openai embed: got %d vectors for %d texts", len(resp.Data), len(texts)))
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, e.fail(span, fmt.Errorf("openai embed: index %d out of range", item.Index))
		}
		if len(item.Embedding) != e.cfg.Dimensions {
			return nil, e.fail(span, fmt.Errorf("openai embed: got %d dimensions, want %d", len(item.Embedding), e.cfg.Dimensions))
		}
		out[item.Index] = item.Embedding
	}

	e.logger.Debug().Int("texts", len(texts)).Int("tokens", resp.Usage.TotalTokens).Msg("embeddings created")
	return out, nil
}

func (e *OpenAIEmbedder) fail(span trace.Span, err error) error {
	aiFailures.WithLabelValues(e.cfg.Model, "embed").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func describeAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("status %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	return err
}
