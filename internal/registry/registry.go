// Package registry owns the plugin lifecycle for the NetSage server:
// registration, API version gating, dependency ordering, init/start/stop,
// and role-based lookup for cross-plugin wiring.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/HerbHall/netsage/pkg/plugin"
	"go.uber.org/zap"
)

// entry is everything the registry tracks about one plugin.
type entry struct {
	plugin   plugin.Plugin
	info     plugin.PluginInfo
	disabled bool
}

// Registry manages the lifecycle of all registered plugins. A disabled
// optional plugin stays registered but is skipped by every lifecycle and
// lookup method; a required plugin that cannot run fails the whole server.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string // dependency order, set by Validate
	logger  *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Register adds a plugin. All registrations happen before Validate.
func (r *Registry) Register(p plugin.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := p.Info()
	if info.Name == "" {
		return fmt.Errorf("plugin has empty name")
	}
	if _, exists := r.entries[info.Name]; exists {
		return fmt.Errorf("plugin %q already registered", info.Name)
	}

	r.entries[info.Name] = &entry{plugin: p, info: info}
	r.logger.Info("plugin registered",
		zap.String("name", info.Name),
		zap.String("version", info.Version),
		zap.Int("api_version", info.APIVersion),
	)
	return nil
}

// Validate gates plugins on API version, disables optional plugins whose
// dependencies are missing or disabled (transitively), and computes the
// start order. Any problem with a required plugin is fatal.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, e := range r.entries {
		if err := checkAPIVersion(name, e.info.APIVersion, r.logger); err != nil {
			if e.info.Required {
				return err
			}
			r.logger.Warn("disabling plugin due to API version incompatibility",
				zap.String("name", name), zap.Error(err))
			e.disabled = true
		}
	}

	// Disabling one plugin can strand its dependents, so sweep until the
	// disabled set stops growing.
	for {
		disabledAny := false
		for name, e := range r.entries {
			if e.disabled {
				continue
			}
			reason := r.unmetDependency(e.info.Dependencies)
			if reason == "" {
				continue
			}
			if e.info.Required {
				return fmt.Errorf("required plugin %q cannot start: %s", name, reason)
			}
			r.logger.Warn("disabling plugin",
				zap.String("name", name), zap.String("reason", reason))
			e.disabled = true
			disabledAny = true
		}
		if !disabledAny {
			break
		}
	}

	order, err := r.sortByDependency()
	if err != nil {
		return err
	}
	r.order = order

	r.logger.Info("plugin dependency resolution complete",
		zap.Strings("start_order", order),
		zap.Int("active", len(order)),
	)
	return nil
}

// runGuarded invokes one lifecycle method and converts a panic into an
// error, so a misbehaving plugin cannot take the whole server down.
func runGuarded(name, phase string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("plugin %q panicked during %s: %v", name, phase, rec)
		}
	}()
	return fn()
}

// unmetDependency reports why the given dependency list cannot be satisfied,
// or "" when it can. Caller holds the lock.
func (r *Registry) unmetDependency(deps []string) string {
	for _, dep := range deps {
		e, ok := r.entries[dep]
		switch {
		case !ok:
			return fmt.Sprintf("dependency %q is not registered", dep)
		case e.disabled:
			return fmt.Sprintf("dependency %q is disabled", dep)
		}
	}
	return ""
}

// InitAll initializes active plugins in dependency order, wires any declared
// event subscriptions, and runs post-init config validation. An optional
// plugin that fails either step is disabled; a required one aborts startup.
func (r *Registry) InitAll(ctx context.Context, depsFn func(name string) plugin.Dependencies) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		e := r.entries[name]
		if e.disabled {
			continue
		}

		r.logger.Info("initializing plugin", zap.String("name", name))
		deps := depsFn(name)
		if err := runGuarded(name, "init", func() error { return e.plugin.Init(ctx, deps) }); err != nil {
			if e.info.Required {
				return fmt.Errorf("required plugin %q failed to initialize: %w", name, err)
			}
			r.logger.Error("optional plugin failed to initialize, disabling",
				zap.String("name", name), zap.Error(err))
			e.disabled = true
			continue
		}

		if sub, ok := e.plugin.(plugin.EventSubscriber); ok && deps.Bus != nil {
			for _, s := range sub.Subscriptions() {
				deps.Bus.Subscribe(s.Topic, s.Handler)
			}
		}

		if v, ok := e.plugin.(plugin.Validator); ok {
			if err := v.ValidateConfig(); err != nil {
				if e.info.Required {
					return fmt.Errorf("required plugin %q config validation failed: %w", name, err)
				}
				r.logger.Error("optional plugin config validation failed, disabling",
					zap.String("name", name), zap.Error(err))
				e.disabled = true
			}
		}
	}
	return nil
}

// StartAll starts initialized plugins in dependency order.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		e := r.entries[name]
		if e.disabled {
			continue
		}
		r.logger.Info("starting plugin", zap.String("name", name))
		if err := runGuarded(name, "start", func() error { return e.plugin.Start(ctx) }); err != nil {
			if e.info.Required {
				return fmt.Errorf("required plugin %q failed to start: %w", name, err)
			}
			r.logger.Error("optional plugin failed to start, disabling",
				zap.String("name", name), zap.Error(err))
			e.disabled = true
		}
	}
	return nil
}

// StopAll stops active plugins in reverse start order. Stop errors are
// logged, never propagated: shutdown keeps going.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		e := r.entries[r.order[i]]
		if e.disabled {
			continue
		}
		name := r.order[i]
		r.logger.Info("stopping plugin", zap.String("name", name))
		if err := runGuarded(name, "stop", func() error { return e.plugin.Stop(ctx) }); err != nil {
			r.logger.Error("failed to stop plugin",
				zap.String("name", name), zap.Error(err))
		}
	}
}

// Get returns an active plugin by name.
func (r *Registry) Get(name string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok || e.disabled {
		return nil, false
	}
	return e.plugin, true
}

// All returns the active plugins in dependency order.
func (r *Registry) All() []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]plugin.Plugin, 0, len(r.order))
	for _, name := range r.order {
		if e := r.entries[name]; !e.disabled {
			result = append(result, e.plugin)
		}
	}
	return result
}

// AllRoutes collects HTTP routes from active plugins implementing
// HTTPProvider, keyed by plugin name.
func (r *Registry) AllRoutes() map[string][]plugin.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string][]plugin.Route)
	for _, name := range r.order {
		e := r.entries[name]
		if e.disabled {
			continue
		}
		if hp, ok := e.plugin.(plugin.HTTPProvider); ok {
			if pr := hp.Routes(); len(pr) > 0 {
				routes[name] = pr
			}
		}
	}
	return routes
}

// Resolve implements plugin.PluginResolver.
func (r *Registry) Resolve(name string) (plugin.Plugin, bool) {
	return r.Get(name)
}

// ResolveByRole returns active plugins declaring the given role, in
// dependency order.
func (r *Registry) ResolveByRole(role string) []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []plugin.Plugin
	for _, name := range r.order {
		e := r.entries[name]
		if e.disabled {
			continue
		}
		for _, have := range e.info.Roles {
			if have == role {
				result = append(result, e.plugin)
				break
			}
		}
	}
	return result
}

// IsDisabled reports whether a plugin was taken out of service.
func (r *Registry) IsDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return ok && e.disabled
}

// checkAPIVersion gates one plugin against the server's supported range.
func checkAPIVersion(name string, apiVersion int, logger *zap.Logger) error {
	switch {
	case apiVersion < plugin.APIVersionMin:
		return fmt.Errorf(
			"plugin %q targets Plugin API v%d, but this server requires v%d or newer (current: v%d). Upgrade the plugin or use an older server",
			name, apiVersion, plugin.APIVersionMin, plugin.APIVersionCurrent,
		)
	case apiVersion > plugin.APIVersionCurrent:
		return fmt.Errorf(
			"plugin %q targets Plugin API v%d, but this server only supports up to v%d. Upgrade the server to use this plugin",
			name, apiVersion, plugin.APIVersionCurrent,
		)
	case apiVersion < plugin.APIVersionCurrent:
		logger.Warn("plugin targets an older Plugin API",
			zap.String("name", name),
			zap.Int("plugin_api", apiVersion),
			zap.Int("server_api", plugin.APIVersionCurrent),
		)
	}
	return nil
}

// sortByDependency orders active plugins so every plugin starts after its
// dependencies. Depth-first with the names visited alphabetically, which
// makes the order deterministic across runs. Caller holds the lock.
func (r *Registry) sortByDependency() ([]string, error) {
	names := make([]string, 0, len(r.entries))
	for name, e := range r.entries {
		if !e.disabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(names))
	order := make([]string, 0, len(names))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle detected involving plugin %q", name)
		}
		state[name] = visiting
		e := r.entries[name]
		for _, dep := range e.info.Dependencies {
			if de, ok := r.entries[dep]; ok && !de.disabled {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
