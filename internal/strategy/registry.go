package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Config bundles everything a factory needs to build a strategy: the shared
// risk parameters plus per-strategy tuning blocks.
type Config struct {
	Params      Params
	Goliath     GoliathOpts
	Momentum    MomentumOpts
	EMAGradient EMAGradientOpts
}

// Factory builds a strategy from configuration, returning an error for
// malformed parameters so evaluation never has to.
type Factory func(cfg Config) (Strategy, error)

// Registry maps strategy names to factories. Variants are registered at build
// time; there is no filesystem or reflection discovery. It is safe for
// concurrent use.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given name. If a factory with the same
// name already exists it will be replaced.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New builds a strategy by name. It returns an error when the name is not
// registered or the factory rejects the configuration.
func (r *Registry) New(name string, cfg Config) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered (available: %v)", name, r.List())
	}
	return f(cfg)
}

// List returns the names of all registered factories in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with every built-in strategy registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("goliath", func(cfg Config) (Strategy, error) {
		return NewGoliath(cfg.Params, cfg.Goliath)
	})
	r.Register("momentum", func(cfg Config) (Strategy, error) {
		return NewMomentum(cfg.Params, cfg.Momentum)
	})
	r.Register("ema_gradient", func(cfg Config) (Strategy, error) {
		return NewEMAGradient(cfg.Params, cfg.EMAGradient)
	})
	return r
}
