package embed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func TestOpenAIEmbedder_Embed(t *testing.T) {
	// Given: an OpenAI-compatible server
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0,2,0]}],"model":"text-embedding-3-small"}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(OpenAIConfig{Host: srv.URL, APIKey: "sk-test"})

	// When: embedding
	vec, err := e.Embed(context.Background(), "hello")

	// Then: the vector is normalized and the width learned
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, vec)
	assert.Equal(t, 3, e.Dimensions())
	assert.Equal(t, DefaultOpenAIModel, e.ModelName())
}

func TestOpenAIEmbedder_EmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIEmbedder(OpenAIConfig{Host: srv.URL}).Embed(context.Background(), "q")
	assert.Equal(t, amanerrors.ErrCodeEmbeddingFailed, amanerrors.GetCode(err))
}

func TestOpenAIEmbedder_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewOpenAIEmbedder(OpenAIConfig{Host: srv.URL}).Embed(context.Background(), "q")
	assert.Equal(t, amanerrors.ErrCodeEmbedUnavailable, amanerrors.GetCode(err))
	assert.True(t, amanerrors.IsRetryable(err))
}
