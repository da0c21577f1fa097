package platforms

import (
	"fmt"

	"glasswallet_backend/platform/config"
)

// Registry dispatches on platform type.
type Registry struct {
	adapters map[Platform]Adapter
}

// NewRegistry builds a registry from explicit adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// NewRegistryFromConfig wires production adapters, or sandboxes for every
// platform when sandbox mode is on.
func NewRegistryFromConfig(cfg config.PixelConfig) *Registry {
	if cfg.IsPixelSandbox() {
		adapters := make([]Adapter, 0, len(All))
		for _, p := range All {
			adapters = append(adapters, NewSandboxAdapter(p, cfg.GetAPIBaseURL()))
		}
		return NewRegistry(adapters...)
	}
	return NewRegistry(
		NewMetaAdapter(cfg.GetMetaAppID(), cfg.GetMetaAppSecret(), ""),
		NewGoogleAdsAdapter(cfg.GetGoogleClientID(), cfg.GetGoogleClientSecret(), cfg.GetGoogleDeveloperToken(), "", ""),
		NewTikTokAdapter(cfg.GetTikTokAppID(), cfg.GetTikTokAppSecret(), ""),
	)
}

// Get returns the adapter for p.
func (r *Registry) Get(p Platform) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for %s", p)
	}
	return a, nil
}
