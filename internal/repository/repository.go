package repository

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"reflect"
	"sync"
)

// Version is the host ABI version checked against plugin preconditions.
const Version uint32 = 2

// PluginExtension marks loadable plugin files.
const PluginExtension = ".cocaine-plugin"

// Preconditions is returned by a plugin's optional Validation symbol and
// names the highest host version the plugin supports.
type Preconditions struct {
	Version uint32
}

// ValidationFunc is the optional plugin symbol.
type ValidationFunc func() Preconditions

// InitializeFunc is the required plugin symbol; it registers the plugin's
// factories and may fail to abort the plugin's adoption.
type InitializeFunc func(r *Repository) error

// Repository is the process-wide registry of component factories, keyed by
// the factory's compile-time category type and a type name. Plugins populate
// it during Initialize; after loading completes it is read-only.
//
// Factories are cleared before the retained plugin handles are released, so
// no factory outlives the code object it points into.
type Repository struct {
	logger *slog.Logger

	mu         sync.RWMutex
	categories map[reflect.Type]map[string]any
	plugins    []*plugin.Plugin
}

func New(logger *slog.Logger) *Repository {
	return &Repository{
		logger:     logger.With("component", "repository"),
		categories: make(map[reflect.Type]map[string]any),
	}
}

// Load enumerates dir and opens every regular file with the plugin
// extension. Per-plugin failures are logged and do not abort the rest.
func (r *Repository) Load(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("unable to load plugins from %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != PluginExtension {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := r.Open(path); err != nil {
			r.logger.Error("failed to load plugin", "plugin", path, "error", err)
		}
	}

	return nil
}

// Open loads one plugin object, validates its preconditions and runs its
// Initialize symbol. The handle of a successfully initialized plugin is
// retained for the process lifetime.
func (r *Repository) Open(path string) error {
	r.logger.Info("loading plugin", "plugin", path)

	p, err := plugin.Open(path)
	if err != nil {
		return fmt.Errorf("unable to load %s: %w", path, err)
	}

	if sym, err := p.Lookup("Validation"); err == nil {
		validate, ok := sym.(func() Preconditions)
		if !ok {
			return fmt.Errorf("unable to validate %s: Validation has type %T", path, sym)
		}
		if preconditions := validate(); preconditions.Version > Version {
			return fmt.Errorf("%w: %s requires version %d, host is %d",
				ErrVersionMismatch, path, preconditions.Version, Version)
		}
	}

	sym, err := p.Lookup("Initialize")
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMissingInitialize, path)
	}
	initialize, ok := sym.(func(*Repository) error)
	if !ok {
		return fmt.Errorf("unable to initialize %s: Initialize has type %T", path, sym)
	}

	// A failed Initialize must leave nothing behind, including factories it
	// registered before failing.
	snapshot := r.snapshot()

	r.logger.Info("initializing plugin", "plugin", path)
	if err := initialize(r); err != nil {
		r.restore(snapshot)
		return fmt.Errorf("unable to initialize %s: %w", path, err)
	}

	r.mu.Lock()
	r.plugins = append(r.plugins, p)
	r.mu.Unlock()

	return nil
}

// Close tears the repository down: category maps first, plugin handles
// after. The order matters because the factories point into plugin code.
func (r *Repository) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories = make(map[reflect.Type]map[string]any)
	r.plugins = nil
}

func (r *Repository) snapshot() map[reflect.Type]map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[reflect.Type]map[string]any, len(r.categories))
	for category, factories := range r.categories {
		inner := make(map[string]any, len(factories))
		for name, factory := range factories {
			inner[name] = factory
		}
		snap[category] = inner
	}
	return snap
}

func (r *Repository) restore(snap map[reflect.Type]map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories = snap
}

// Insert registers a factory under the category identified by its factory
// type F. It is called by plugins during Initialize.
func Insert[F any](r *Repository, name string, factory F) error {
	category := reflect.TypeOf((*F)(nil)).Elem()

	r.mu.Lock()
	defer r.mu.Unlock()

	factories, ok := r.categories[category]
	if !ok {
		factories = make(map[string]any)
		r.categories[category] = factories
	}

	if _, ok := factories[name]; ok {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateComponent, category, name)
	}

	factories[name] = factory
	r.logger.Debug("registered component", "category", category.String(), "type", name)
	return nil
}

// Get looks up the factory registered under (F, name).
func Get[F any](r *Repository, name string) (F, error) {
	var zero F
	category := reflect.TypeOf((*F)(nil)).Elem()

	r.mu.RLock()
	defer r.mu.RUnlock()

	factories, ok := r.categories[category]
	if !ok {
		return zero, fmt.Errorf("%w: category %s", ErrComponentNotFound, category)
	}

	factory, ok := factories[name]
	if !ok {
		return zero, fmt.Errorf("%w: %s/%s", ErrComponentNotFound, category, name)
	}

	return factory.(F), nil
}
