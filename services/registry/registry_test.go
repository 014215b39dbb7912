package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-router/models"
	"github.com/upb/llm-router/services"
)

func testDescriptors() []models.ModelDescriptor {
	return []models.ModelDescriptor{
		{
			Provider:          models.ProviderOpenAI,
			Name:              "gpt-4o",
			InputCostPer1K:    0.0025,
			OutputCostPer1K:   0.01,
			ContextWindow:     128000,
			Capabilities:      []models.Capability{models.CapabilitySimple, models.CapabilityModerate, models.CapabilityComplex},
			SupportsStreaming: true,
		},
		{
			Provider:          models.ProviderOpenAI,
			Name:              "gpt-4o-mini",
			InputCostPer1K:    0.00015,
			OutputCostPer1K:   0.0006,
			ContextWindow:     128000,
			Capabilities:      []models.Capability{models.CapabilitySimple, models.CapabilityModerate},
			SupportsStreaming: true,
		},
		{
			Provider:          models.ProviderAnthropic,
			Name:              "claude-3-haiku",
			InputCostPer1K:    0.00025,
			OutputCostPer1K:   0.00125,
			ContextWindow:     200000,
			Capabilities:      []models.Capability{models.CapabilitySimple},
			SupportsStreaming: true,
		},
	}
}

func TestRegistry_Load(t *testing.T) {
	t.Run("valid catalog", func(t *testing.T) {
		reg := New(zap.NewNop())
		err := reg.Load(testDescriptors())
		require.NoError(t, err)
		assert.Len(t, reg.Models(), 3)
		assert.Equal(t, uint64(1), reg.Version())
	})

	t.Run("invalid descriptor rejected", func(t *testing.T) {
		reg := New(zap.NewNop())
		bad := testDescriptors()
		bad[0].InputCostPer1K = 0

		err := reg.Load(bad)
		require.Error(t, err)
		assert.Equal(t, services.ErrorKindInvalidCatalog, services.KindOf(err))
		// The failed load must not replace the snapshot
		assert.Empty(t, reg.Models())
	})

	t.Run("duplicate descriptor rejected", func(t *testing.T) {
		reg := New(zap.NewNop())
		dup := append(testDescriptors(), testDescriptors()[0])

		err := reg.Load(dup)
		require.Error(t, err)
		assert.Equal(t, services.ErrorKindInvalidCatalog, services.KindOf(err))
	})

	t.Run("reload keeps serving on failure", func(t *testing.T) {
		reg := New(zap.NewNop())
		require.NoError(t, reg.Load(testDescriptors()))

		bad := []models.ModelDescriptor{{Provider: "openai"}}
		require.Error(t, reg.Load(bad))

		assert.Len(t, reg.Models(), 3)
		assert.Equal(t, uint64(1), reg.Version())
	})
}

func TestRegistry_ResolveForCapability(t *testing.T) {
	reg := New(zap.NewNop())
	require.NoError(t, reg.Load(testDescriptors()))

	t.Run("ranked cheapest first", func(t *testing.T) {
		ranked, err := reg.ResolveForCapability(models.CapabilitySimple)
		require.NoError(t, err)
		require.Len(t, ranked, 3)
		assert.Equal(t, "openai/gpt-4o-mini", ranked[0].ID())
		assert.Equal(t, "anthropic/claude-3-haiku", ranked[1].ID())
		assert.Equal(t, "openai/gpt-4o", ranked[2].ID())
	})

	t.Run("deterministic across calls", func(t *testing.T) {
		a, err := reg.ResolveForCapability(models.CapabilityModerate)
		require.NoError(t, err)
		b, err := reg.ResolveForCapability(models.CapabilityModerate)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("cost is monotonically non-decreasing", func(t *testing.T) {
		ranked, err := reg.ResolveForCapability(models.CapabilitySimple)
		require.NoError(t, err)
		for i := 1; i < len(ranked); i++ {
			assert.GreaterOrEqual(t, ranked[i].InputCostPer1K, ranked[i-1].InputCostPer1K)
		}
	})

	t.Run("unknown capability", func(t *testing.T) {
		_, err := reg.ResolveForCapability(models.Capability("planetary"))
		require.Error(t, err)
		assert.Equal(t, services.ErrorKindNoModelForCapability, services.KindOf(err))
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		a, err := reg.ResolveForCapability(models.CapabilitySimple)
		require.NoError(t, err)
		a[0].Name = "mutated"

		b, err := reg.ResolveForCapability(models.CapabilitySimple)
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", b[0].Name)
	})
}

func TestRegistry_RankingTieBreaks(t *testing.T) {
	reg := New(zap.NewNop())
	descriptors := []models.ModelDescriptor{
		{
			Provider:        models.ProviderOpenAI,
			Name:            "beta",
			InputCostPer1K:  0.001,
			OutputCostPer1K: 0.002,
			ContextWindow:   8000,
			Capabilities:    []models.Capability{models.CapabilitySimple},
		},
		{
			Provider:        models.ProviderOpenAI,
			Name:            "alpha",
			InputCostPer1K:  0.001,
			OutputCostPer1K: 0.002,
			ContextWindow:   8000,
			Capabilities:    []models.Capability{models.CapabilitySimple},
		},
		{
			Provider:        models.ProviderAnthropic,
			Name:            "wide",
			InputCostPer1K:  0.001,
			OutputCostPer1K: 0.002,
			ContextWindow:   32000,
			Capabilities:    []models.Capability{models.CapabilitySimple},
		},
	}
	require.NoError(t, reg.Load(descriptors))

	ranked, err := reg.ResolveForCapability(models.CapabilitySimple)
	require.NoError(t, err)

	// Equal cost: larger context window first, then name
	assert.Equal(t, "anthropic/wide", ranked[0].ID())
	assert.Equal(t, "openai/alpha", ranked[1].ID())
	assert.Equal(t, "openai/beta", ranked[2].ID())
}

func TestRegistry_Resolve(t *testing.T) {
	reg := New(zap.NewNop())
	require.NoError(t, reg.Load(testDescriptors()))

	t.Run("known model", func(t *testing.T) {
		d, err := reg.Resolve(models.ModelRef{Provider: models.ProviderOpenAI, Name: "gpt-4o-mini"})
		require.NoError(t, err)
		assert.Equal(t, 128000, d.ContextWindow)
	})

	t.Run("unknown model", func(t *testing.T) {
		_, err := reg.Resolve(models.ModelRef{Provider: models.ProviderOpenAI, Name: "gpt-9"})
		require.Error(t, err)
		assert.Equal(t, services.ErrorKindUnknownModel, services.KindOf(err))
	})
}
