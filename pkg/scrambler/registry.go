package scrambler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mscrnt/scramsim/pkg/lfsr"
)

// Registry manages the available scrambler variants
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// globalRegistry is the default variant registry
var globalRegistry = &Registry{
	factories: make(map[string]Factory),
}

// NewRegistry creates a new, empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a variant to the global registry
func Register(name string, factory Factory) error {
	return globalRegistry.Register(name, factory)
}

// Get retrieves a factory from the global registry
func Get(name string) (Factory, error) {
	return globalRegistry.Get(name)
}

// List returns all variant names in the global registry
func List() []string {
	return globalRegistry.List()
}

// New builds the named variant from the global registry on reg
func New(name string, reg *lfsr.Register) (Scrambler, error) {
	return globalRegistry.New(name, reg)
}

// Infos returns metadata for every variant in the global registry
func Infos() []Info {
	return globalRegistry.Infos()
}

// Register adds a variant to the registry
func (r *Registry) Register(name string, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("scrambler factory cannot be nil")
	}
	if name == "" {
		return fmt.Errorf("scrambler name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("scrambler %q already registered", name)
	}

	r.factories[name] = factory
	return nil
}

// Get retrieves a factory by name
func (r *Registry) Get(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.factories[name]
	if !exists {
		return nil, fmt.Errorf("scrambler %q not found", name)
	}

	return factory, nil
}

// New builds the named variant on reg
func (r *Registry) New(name string, reg *lfsr.Register) (Scrambler, error) {
	if reg == nil {
		return nil, fmt.Errorf("register cannot be nil")
	}
	factory, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return factory(reg), nil
}

// List returns all registered names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Clear removes all variants from the registry
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories = make(map[string]Factory)
}

// Infos returns metadata about all variants, sorted by name
func (r *Registry) Infos() []Info {
	names := r.List()

	// Descriptions need an instance; a throwaway register is enough
	reg, err := lfsr.New(lfsr.TEST)
	if err != nil {
		return nil
	}

	infos := make([]Info, 0, len(names))
	for _, name := range names {
		s, err := r.New(name, reg)
		if err != nil {
			continue
		}
		infos = append(infos, Info{Name: s.Name(), Description: s.Description()})
	}
	return infos
}
