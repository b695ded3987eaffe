package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

const (
	// DefaultGenerateURL is the local Ollama generate endpoint.
	DefaultGenerateURL = "http://localhost:11434/api/generate"

	// DefaultGenerateModel is the default chat model.
	DefaultGenerateModel = "llama3.1"

	// DefaultGenerateTimeout bounds one generation call.
	DefaultGenerateTimeout = 180 * time.Second
)

// Generator produces an answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OllamaConfig configures the Ollama generator.
type OllamaConfig struct {
	URL     string
	Model   string
	Timeout time.Duration
	Retry   amanerrors.RetryConfig
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaGenerator calls the Ollama /api/generate endpoint without streaming.
type OllamaGenerator struct {
	client *http.Client
	config OllamaConfig
}

var _ Generator = (*OllamaGenerator)(nil)

// NewOllamaGenerator creates a generator. It does not contact the server.
func NewOllamaGenerator(cfg OllamaConfig) *OllamaGenerator {
	if cfg.URL == "" {
		cfg.URL = DefaultGenerateURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGenerateModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGenerateTimeout
	}
	if cfg.Retry == (amanerrors.RetryConfig{}) {
		cfg.Retry = amanerrors.DefaultRetryConfig()
	}
	return &OllamaGenerator{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}
}

// Model returns the configured model.
func (g *OllamaGenerator) Model() string {
	return g.config.Model
}

// URL returns the generate endpoint.
func (g *OllamaGenerator) URL() string {
	return g.config.URL
}

// Generate returns the trimmed model response. Unreachable servers and 5xx
// responses are retried with backoff.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := amanerrors.RetryWithResult(ctx, g.config.Retry, func() (string, error) {
		return g.generateOnce(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	slog.Debug("answer_generated",
		slog.String("model", g.config.Model),
		slog.Int("chars", len(text)),
		slog.Duration("took", time.Since(start)))
	return text, nil
}

func (g *OllamaGenerator) generateOnce(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: g.config.Model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", unavailable(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := fmt.Sprintf("generate returned status %d: %s", resp.StatusCode, respBody)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", amanerrors.New(amanerrors.ErrCodeGenerationUnavailable, msg, nil)
		}
		return "", amanerrors.New(amanerrors.ErrCodeGenerationFailed, msg, nil)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", amanerrors.New(amanerrors.ErrCodeGenerationFailed, "decode generate response", err)
	}
	return strings.TrimSpace(out.Response), nil
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return amanerrors.New(amanerrors.ErrCodeGenerationFailed, "generation timed out", err)
	}
	return amanerrors.New(amanerrors.ErrCodeGenerationUnavailable, "generation service unreachable", err).
		WithSuggestion("Check that Ollama is running: ollama serve")
}

// ModelReady reports whether the server is reachable and the model is
// pulled. detail is "ok", "ollama_unreachable: ..." or
// "model_not_downloaded: <model>".
func (g *OllamaGenerator) ModelReady(ctx context.Context) (bool, string) {
	tagsURL, err := tagsEndpoint(g.config.URL)
	if err != nil {
		return false, "ollama_unreachable: " + err.Error()
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tagsURL, nil)
	if err != nil {
		return false, "ollama_unreachable: " + err.Error()
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false, "ollama_unreachable: " + err.Error()
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("ollama_unreachable: status %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, "ollama_unreachable: " + err.Error()
	}

	model := g.config.Model
	for _, m := range tags.Models {
		name := strings.TrimSpace(m.Name)
		if name == model || (!strings.Contains(model, ":") && strings.HasPrefix(name, model+":")) {
			return true, "ok"
		}
	}
	return false, "model_not_downloaded: " + model
}

// tagsEndpoint derives /api/tags on the same host as the generate URL.
func tagsEndpoint(generateURL string) (string, error) {
	u, err := url.Parse(generateURL)
	if err != nil {
		return "", err
	}
	u.Path = "/api/tags"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
