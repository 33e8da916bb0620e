package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amerfu/arbiter/internal/models"
)

func def(id, provider string, tier models.Tier, domain string) models.ModelDefinition {
	return models.ModelDefinition{
		ID:              id,
		Provider:        provider,
		Tier:            tier,
		InputCostPer1K:  0.001,
		OutputCostPer1K: 0.002,
		Healthy:         true,
		Domain:          domain,
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := New(zap.NewNop())

	reg.Register(def("openai/gpt-4o", "openai", models.TierSmart, ""))

	got, ok := reg.Get("openai/gpt-4o")
	require.True(t, ok)
	assert.Equal(t, "openai", got.Provider)

	_, ok = reg.Get("OPENAI/GPT-4O")
	assert.False(t, ok, "IDs are case-sensitive")

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistryUpsertKeepsPosition(t *testing.T) {
	reg := New(zap.NewNop())
	reg.Register(def("a", "p1", models.TierFast, ""))
	reg.Register(def("b", "p2", models.TierFast, ""))
	reg.Register(def("c", "p3", models.TierFast, ""))

	// Replace "a" with new attributes; it must stay first.
	updated := def("a", "p9", models.TierSmart, "medical")
	reg.Register(updated)

	all := reg.All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, "p9", all[0].Provider)
	assert.Equal(t, models.TierSmart, all[0].Tier)
}

func TestRegistryListFilters(t *testing.T) {
	reg := New(zap.NewNop())
	reg.Register(def("fast-1", "p1", models.TierFast, ""))
	reg.Register(def("smart-1", "p1", models.TierSmart, ""))
	reg.Register(def("smart-med", "p2", models.TierSmart, "Medical"))
	reg.Register(def("reason-med", "p3", models.TierReasoning, "medical"))

	t.Run("no filter returns everything in order", func(t *testing.T) {
		all := reg.List(Filter{})
		require.Len(t, all, 4)
		assert.Equal(t, "fast-1", all[0].ID)
		assert.Equal(t, "reason-med", all[3].ID)
	})

	t.Run("tier filter", func(t *testing.T) {
		smart := reg.List(Filter{Tier: models.TierSmart})
		require.Len(t, smart, 2)
		assert.Equal(t, "smart-1", smart[0].ID)
		assert.Equal(t, "smart-med", smart[1].ID)
	})

	t.Run("domain filter is case-insensitive", func(t *testing.T) {
		med := reg.List(Filter{Domain: "MEDICAL"})
		require.Len(t, med, 2)
		assert.Equal(t, "smart-med", med[0].ID)
	})

	t.Run("filters are ANDed", func(t *testing.T) {
		both := reg.List(Filter{Tier: models.TierReasoning, Domain: "medical"})
		require.Len(t, both, 1)
		assert.Equal(t, "reason-med", both[0].ID)
	})

	t.Run("domainless models never match a domain filter", func(t *testing.T) {
		legal := reg.List(Filter{Domain: "legal"})
		assert.Empty(t, legal)
	})
}

func TestRegistryListReturnsSnapshot(t *testing.T) {
	reg := New(zap.NewNop())
	reg.Register(def("a", "p1", models.TierFast, ""))

	snapshot := reg.List(Filter{})
	require.Len(t, snapshot, 1)
	snapshot[0].Provider = "mutated"

	got, _ := reg.Get("a")
	assert.Equal(t, "p1", got.Provider, "mutating a snapshot must not touch the registry")
}

func TestRegistryClear(t *testing.T) {
	reg := New(zap.NewNop())
	reg.Register(def("a", "p1", models.TierFast, ""))
	reg.Register(def("b", "p2", models.TierSmart, ""))
	require.Equal(t, 2, reg.Len())

	reg.Clear()
	assert.Zero(t, reg.Len())
	assert.Empty(t, reg.All())

	// The registry is usable after Clear and order restarts fresh.
	reg.Register(def("c", "p3", models.TierFast, ""))
	all := reg.All()
	require.Len(t, all, 1)
	assert.Equal(t, "c", all[0].ID)
}

func TestRegistryStats(t *testing.T) {
	reg := New(zap.NewNop())
	reg.Register(def("a", "p1", models.TierFast, ""))
	reg.Register(def("b", "p1", models.TierSmart, "medical"))
	reg.Register(def("c", "p2", models.TierSmart, ""))

	stats := reg.Stats()
	assert.Equal(t, 3, stats.TotalModels)
	assert.Equal(t, 2, stats.Providers)
	assert.Equal(t, 1, stats.ByTier["fast"])
	assert.Equal(t, 2, stats.ByTier["smart"])
	assert.Equal(t, 1, stats.ByDomain["medical"])
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := New(zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := fmt.Sprintf("model-%d", j%10)
				reg.Register(def(id, "p", models.TierFast, ""))
				reg.Get(id)
				reg.List(Filter{Tier: models.TierFast})
				reg.Stats()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, reg.Len())
}
