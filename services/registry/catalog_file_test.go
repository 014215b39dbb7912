package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-router/models"
	"github.com/upb/llm-router/services"
)

const sampleCatalog = `models:
  - provider: openai
    name: gpt-4o-mini
    input_cost_per_1k: 0.00015
    output_cost_per_1k: 0.0006
    context_window: 128000
    capabilities: [simple, moderate]
    supports_streaming: true
  - provider: anthropic
    name: claude-3-haiku
    input_cost_per_1k: 0.00025
    output_cost_per_1k: 0.00125
    context_window: 200000
    capabilities: [simple]
    supports_streaming: true
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCatalogFile(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		reg := New(zap.NewNop())
		path := writeCatalog(t, sampleCatalog)

		_, err := LoadCatalogFile(path, reg, zap.NewNop())
		require.NoError(t, err)

		assert.Len(t, reg.Models(), 2)
		d, err := reg.Get(models.ProviderOpenAI, "gpt-4o-mini")
		require.NoError(t, err)
		assert.Equal(t, 128000, d.ContextWindow)
		assert.True(t, d.HasCapability(models.CapabilityModerate))
		assert.True(t, d.SupportsStreaming)
	})

	t.Run("missing file", func(t *testing.T) {
		reg := New(zap.NewNop())
		_, err := LoadCatalogFile(filepath.Join(t.TempDir(), "absent.yaml"), reg, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("invalid descriptor", func(t *testing.T) {
		reg := New(zap.NewNop())
		path := writeCatalog(t, `models:
  - provider: openai
    name: broken
    input_cost_per_1k: 0
    output_cost_per_1k: 0.0006
    context_window: 128000
    capabilities: [simple]
`)
		_, err := LoadCatalogFile(path, reg, zap.NewNop())
		require.Error(t, err)
		assert.Equal(t, services.ErrorKindInvalidCatalog, services.KindOf(err))
		assert.Empty(t, reg.Models())
	})

	t.Run("unknown provider rejected", func(t *testing.T) {
		reg := New(zap.NewNop())
		path := writeCatalog(t, `models:
  - provider: carrierpigeon
    name: fast
    input_cost_per_1k: 0.001
    output_cost_per_1k: 0.002
    context_window: 100
    capabilities: [simple]
`)
		_, err := LoadCatalogFile(path, reg, zap.NewNop())
		require.Error(t, err)
		assert.Equal(t, services.ErrorKindInvalidCatalog, services.KindOf(err))
	})
}
