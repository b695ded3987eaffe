package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/config"
)

func TestParseProvider(t *testing.T) {
	assert.Equal(t, ProviderOpenAI, ParseProvider("OpenAI"))
	assert.Equal(t, ProviderStatic, ParseProvider(" static "))
	assert.Equal(t, ProviderOllama, ParseProvider("ollama"))
	assert.Equal(t, ProviderOllama, ParseProvider("unknown"))
}

func TestNewFromConfig(t *testing.T) {
	t.Run("static is unwrapped", func(t *testing.T) {
		cfg := config.NewConfig().Embeddings
		cfg.Provider = config.ProviderStatic
		cfg.Dimensions = 64

		e, err := NewFromConfig(cfg)
		require.NoError(t, err)
		assert.IsType(t, &StaticEmbedder{}, e)
		assert.Equal(t, 64, e.Dimensions())
	})

	t.Run("ollama is cached and guarded", func(t *testing.T) {
		cfg := config.NewConfig().Embeddings

		e, err := NewFromConfig(cfg)
		require.NoError(t, err)
		cached, ok := e.(*CachedEmbedder)
		require.True(t, ok)
		guarded, ok := cached.Inner().(*GuardedEmbedder)
		require.True(t, ok)
		assert.IsType(t, &OllamaEmbedder{}, guarded.inner)
		assert.Equal(t, cfg.Model, e.ModelName())
	})

	t.Run("openai", func(t *testing.T) {
		cfg := config.NewConfig().Embeddings
		cfg.Provider = config.ProviderOpenAI
		cfg.Model = "text-embedding-3-large"

		e, err := NewProvider(cfg)
		require.NoError(t, err)
		assert.IsType(t, &OpenAIEmbedder{}, e)
		assert.Equal(t, "text-embedding-3-large", e.ModelName())
	})
}
