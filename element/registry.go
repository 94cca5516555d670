package element

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

// Properties is the untyped property bag a host passes when instantiating an
// element, keyed by the element's documented property names.
type Properties map[string]any

// DecodeProperties fills a typed config struct from a property bag. Property
// names map to json tags, unknown properties are rejected, durations decode
// from strings like "10s", and enum-like property types decode through
// their TextUnmarshaler.
func DecodeProperties(props Properties, dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      dst,
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
		),
	})
	if err != nil {
		return fmt.Errorf("building property decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(props)); err != nil {
		return fmt.Errorf("decoding properties: %w", err)
	}
	return nil
}

// Factory creates instances of one element kind.
type Factory struct {
	// Name is the host-visible element name, e.g. "ndisrc".
	Name string
	// Doc is a one-line description shown by host introspection.
	Doc string
	// New builds an element from a property bag.
	New func(props Properties) (Element, error)
}

// Registry holds the element factories a host can instantiate.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	log       *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		log:       slog.With("component", "element-registry"),
	}
}

// Register adds a factory. Registering an empty or duplicate name is an
// error.
func (r *Registry) Register(f Factory) error {
	if f.Name == "" {
		return fmt.Errorf("element factory has no name")
	}
	if f.New == nil {
		return fmt.Errorf("element factory %q has no constructor", f.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[f.Name]; exists {
		return fmt.Errorf("element factory %q already registered", f.Name)
	}
	r.factories[f.Name] = f

	r.log.Debug("registered element factory", "name", f.Name)
	return nil
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	return f, ok
}

// New instantiates the named element with the given properties.
func (r *Registry) New(name string, props Properties) (Element, error) {
	f, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("no element factory named %q", name)
	}

	el, err := f.New(props)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	return el, nil
}

// Names returns the registered element names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
