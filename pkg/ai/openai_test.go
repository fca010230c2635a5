package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestOpenAIExplainerBuildsPromptAndReturnsContent(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Focus on Python first.  "},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer server.Close()

	explainer, err := NewOpenAIExplainer(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1", Logger: zerolog.Nop()})
	require.NoError(t, err)

	text, err := explainer.Explain(context.Background(), ExplanationInput{
		UserID:       "U1",
		CourseTitles: []string{"Python 1", "Python 2", "Python 3", "Python 4"},
		WeakTopics:   []string{"a", "b", "c", "d", "e", "f"},
	})
	require.NoError(t, err)
	require.Equal(t, "Focus on Python first.", text)

	require.Equal(t, "gpt-4o-mini", captured.Model)
	require.Len(t, captured.Messages, 2)
	prompt := captured.Messages[1].Content
	require.Contains(t, prompt, "Python 3")
	require.NotContains(t, prompt, "Python 4")
	require.Contains(t, prompt, "a, b, c, d, e")
	require.NotContains(t, prompt, ", f")
}

func TestOpenAIExplainerPropagatesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer server.Close()

	explainer, err := NewOpenAIExplainer(OpenAIConfig{APIKey: "k", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	_, err = explainer.Explain(context.Background(), ExplanationInput{UserID: "U1"})
	require.Error(t, err)
}

func TestNewOpenAIExplainerRequiresKey(t *testing.T) {
	_, err := NewOpenAIExplainer(OpenAIConfig{})
	require.Error(t, err)
}

func TestOpenAIEmbedderOrdersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		var body struct {
			Input      []string `json:"input"`
			Dimensions int      `json:"dimensions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, []string{"first", "second"}, body.Input)
		require.Equal(t, 2, body.Dimensions)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[{"object":"embedding","index":1,"embedding":[0,1]},{"object":"embedding","index":0,"embedding":[1,0]}],"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedder(EmbedderConfig{APIKey: "k", BaseURL: server.URL + "/v1", Dimensions: 2, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.Equal(t, 2, embedder.Dimensions())

	vectors, err := embedder.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
}

func TestOpenAIEmbedderRejectsDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1,0,0]}]}`))
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedder(EmbedderConfig{APIKey: "k", BaseURL: server.URL + "/v1", Dimensions: 2})
	require.NoError(t, err)

	_, err = embedder.Embed(context.Background(), []string{"only"})
	require.Error(t, err)
}

type flakyExplainer struct {
	calls atomic.Int32
	err   error
}

func (f *flakyExplainer) Explain(context.Context, ExplanationInput) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "ok", nil
}

func TestCircuitBreakerExplainerOpensAfterFailures(t *testing.T) {
	inner := &flakyExplainer{err: errors.New("provider down")}
	settings := DefaultBreakerSettings()
	settings.Name = "test-explainer"
	settings.MinRequests = 3
	settings.Timeout = time.Hour
	breaker := NewCircuitBreakerExplainer(inner, settings, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := breaker.Explain(context.Background(), ExplanationInput{})
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, breaker.State())

	_, err := breaker.Explain(context.Background(), ExplanationInput{})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.Equal(t, int32(3), inner.calls.Load())
}

func TestCircuitBreakerExplainerPassesThrough(t *testing.T) {
	breaker := NewCircuitBreakerExplainer(&flakyExplainer{}, DefaultBreakerSettings(), zerolog.Nop())

	text, err := breaker.Explain(context.Background(), ExplanationInput{})
	require.NoError(t, err)
	require.Equal(t, "ok", text)
	require.True(t, strings.EqualFold(breaker.State().String(), "closed"))
}
