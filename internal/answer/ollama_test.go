package answer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func fastRetry() amanerrors.RetryConfig {
	return amanerrors.RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestOllamaGenerator_Generate(t *testing.T) {
	// Given: a server that echoes a response
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "  The answer [1].\n"})
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(OllamaConfig{URL: srv.URL + "/api/generate", Model: "llama3.1", Retry: fastRetry()})

	// When: generating
	text, err := gen.Generate(context.Background(), "prompt")
	require.NoError(t, err)

	// Then: the request is non-streaming and the response is trimmed
	assert.Equal(t, "The answer [1].", text)
	assert.Equal(t, "llama3.1", got.Model)
	assert.Equal(t, "prompt", got.Prompt)
	assert.False(t, got.Stream)
}

func TestOllamaGenerator_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "ok"})
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(OllamaConfig{URL: srv.URL + "/api/generate", Retry: fastRetry()})

	text, err := gen.Generate(context.Background(), "p")

	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOllamaGenerator_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(OllamaConfig{URL: srv.URL + "/api/generate", Retry: fastRetry()})

	_, err := gen.Generate(context.Background(), "p")

	require.Error(t, err)
	assert.Equal(t, amanerrors.ErrCodeGenerationFailed, amanerrors.GetCode(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestOllamaGenerator_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gen := NewOllamaGenerator(OllamaConfig{URL: url + "/api/generate", Retry: fastRetry()})

	_, err := gen.Generate(context.Background(), "p")

	require.Error(t, err)
	assert.Equal(t, amanerrors.ErrCodeGenerationUnavailable, amanerrors.GetCode(err))
}

func TestOllamaGenerator_ModelReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.1:latest"},{"name":"qwen2:7b"}]}`))
	}))
	defer srv.Close()

	tests := []struct {
		model  string
		ready  bool
		detail string
	}{
		{"llama3.1", true, "ok"},
		{"llama3.1:latest", true, "ok"},
		{"qwen2:7b", true, "ok"},
		{"qwen2:1b", false, "model_not_downloaded: qwen2:1b"},
		{"mistral", false, "model_not_downloaded: mistral"},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			gen := NewOllamaGenerator(OllamaConfig{URL: srv.URL + "/api/generate", Model: tt.model})
			ready, detail := gen.ModelReady(context.Background())
			assert.Equal(t, tt.ready, ready)
			assert.Equal(t, tt.detail, detail)
		})
	}
}

func TestOllamaGenerator_ModelReadyUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gen := NewOllamaGenerator(OllamaConfig{URL: url + "/api/generate"})
	ready, detail := gen.ModelReady(context.Background())

	assert.False(t, ready)
	assert.Contains(t, detail, "ollama_unreachable")
}
