package registry

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/upb/llm-router/models"
	"github.com/upb/llm-router/services"
)

// catalog is one immutable snapshot of the model set. Per-capability lists
// are pre-sorted at load time so resolution is a plain map read.
type catalog struct {
	byID         map[string]models.ModelDescriptor
	byCapability map[models.Capability][]models.ModelDescriptor
	version      uint64
}

// Registry answers "which models satisfy capability X, ranked for
// selection". Reads never observe a half-updated catalog: Load builds a
// complete snapshot and swaps it in with a single atomic pointer store.
type Registry struct {
	snapshot atomic.Pointer[catalog]
	validate *validator.Validate
	logger   *zap.Logger
}

// New creates an empty registry
func New(logger *zap.Logger) *Registry {
	r := &Registry{
		validate: validator.New(),
		logger:   logger,
	}
	r.snapshot.Store(&catalog{
		byID:         make(map[string]models.ModelDescriptor),
		byCapability: make(map[models.Capability][]models.ModelDescriptor),
	})
	return r
}

// Load replaces the entire catalog atomically. The current snapshot stays
// in place when any descriptor is invalid or duplicated.
func (r *Registry) Load(descriptors []models.ModelDescriptor) error {
	next := &catalog{
		byID:         make(map[string]models.ModelDescriptor, len(descriptors)),
		byCapability: make(map[models.Capability][]models.ModelDescriptor),
		version:      r.snapshot.Load().version + 1,
	}

	for _, d := range descriptors {
		if err := r.validate.Struct(d); err != nil {
			return services.NewRouteError(services.ErrorKindInvalidCatalog,
				fmt.Sprintf("descriptor %s rejected", d.ID()), err)
		}
		if _, exists := next.byID[d.ID()]; exists {
			return services.NewRouteError(services.ErrorKindInvalidCatalog,
				fmt.Sprintf("duplicate descriptor %s", d.ID()), nil)
		}
		next.byID[d.ID()] = d
		for _, c := range d.Capabilities {
			next.byCapability[c] = append(next.byCapability[c], d)
		}
	}

	for c := range next.byCapability {
		rankDescriptors(next.byCapability[c])
	}

	r.snapshot.Store(next)
	if r.logger != nil {
		r.logger.Info("catalog loaded",
			zap.Int("models", len(next.byID)),
			zap.Uint64("version", next.version))
	}
	return nil
}

// rankDescriptors orders candidates by ascending input cost, then
// descending context window (prefer headroom), then name, then provider.
// The full ordering is deterministic so repeated resolutions yield the
// same fallback chain and the same cache keys.
func rankDescriptors(ds []models.ModelDescriptor) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].InputCostPer1K != ds[j].InputCostPer1K {
			return ds[i].InputCostPer1K < ds[j].InputCostPer1K
		}
		if ds[i].ContextWindow != ds[j].ContextWindow {
			return ds[i].ContextWindow > ds[j].ContextWindow
		}
		if ds[i].Name != ds[j].Name {
			return ds[i].Name < ds[j].Name
		}
		return ds[i].Provider < ds[j].Provider
	})
}

// ResolveForCapability returns all models tagged with c, cheapest first.
func (r *Registry) ResolveForCapability(c models.Capability) ([]models.ModelDescriptor, error) {
	snap := r.snapshot.Load()
	ranked := snap.byCapability[c]
	if len(ranked) == 0 {
		return nil, services.NewRouteError(services.ErrorKindNoModelForCapability,
			fmt.Sprintf("no model satisfies capability %q", c), nil)
	}
	out := make([]models.ModelDescriptor, len(ranked))
	copy(out, ranked)
	return out, nil
}

// Get retrieves one descriptor by provider and name.
func (r *Registry) Get(provider models.Provider, name string) (models.ModelDescriptor, error) {
	snap := r.snapshot.Load()
	d, ok := snap.byID[fmt.Sprintf("%s/%s", provider, name)]
	if !ok {
		return models.ModelDescriptor{}, services.NewRouteError(services.ErrorKindUnknownModel,
			fmt.Sprintf("model %s/%s not in catalog", provider, name), nil)
	}
	return d, nil
}

// Resolve retrieves the descriptor a ref points at.
func (r *Registry) Resolve(ref models.ModelRef) (models.ModelDescriptor, error) {
	return r.Get(ref.Provider, ref.Name)
}

// Models returns every descriptor in the current snapshot, in no
// particular order.
func (r *Registry) Models() []models.ModelDescriptor {
	snap := r.snapshot.Load()
	out := make([]models.ModelDescriptor, 0, len(snap.byID))
	for _, d := range snap.byID {
		out = append(out, d)
	}
	return out
}

// Version returns the snapshot version, incremented on every Load.
func (r *Registry) Version() uint64 {
	return r.snapshot.Load().version
}
