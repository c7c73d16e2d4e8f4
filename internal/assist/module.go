// Package assist answers natural-language questions about the monitored
// network. It aggregates a fleet snapshot, renders it into a bounded context
// block, runs any diagnostics the question asks for, and hands the result to
// the configured LLM provider.
package assist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HerbHall/netsage/internal/aggregate"
	"github.com/HerbHall/netsage/internal/contextgen"
	"github.com/HerbHall/netsage/internal/diag"
	"github.com/HerbHall/netsage/internal/settings"
	"github.com/HerbHall/netsage/pkg/models"
	"github.com/HerbHall/netsage/pkg/plugin"
	"github.com/HerbHall/netsage/pkg/roles"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.HTTPProvider    = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
)

const defaultSystemPrompt = "You are a network monitoring assistant. Answer using only the " +
	"monitoring data provided below. If the data does not cover the question, say so instead " +
	"of guessing."

// ModuleConfig holds the assist plugin configuration.
type ModuleConfig struct {
	SystemPrompt string        `mapstructure:"system_prompt"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	HistoryLimit int           `mapstructure:"history_limit"`
}

// Module implements the assist plugin.
type Module struct {
	logger  *zap.Logger
	plugins plugin.PluginResolver
	cfg     ModuleConfig

	agg    *aggregate.Aggregator
	runner contextgen.DiagRunner

	mu       sync.Mutex
	snapshot *models.MonitoringSnapshot
	taken    time.Time
}

// New creates a new assist plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "assist",
		Version:      "0.3.0",
		Description:  "Natural-language assistant over the monitored fleet",
		Dependencies: []string{"settings", "llm"},
		Required:     false,
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.plugins = deps.Plugins

	m.cfg = ModuleConfig{
		SystemPrompt: defaultSystemPrompt,
		CacheTTL:     30 * time.Second,
		HistoryLimit: 10,
	}
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal assist config: %w", err)
		}
	}

	m.agg = aggregate.New(m.logger)
	m.runner = diag.NewRunner(m.logger)
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop(_ context.Context) error { return nil }

// Subscriptions implements plugin.EventSubscriber. A settings change makes
// the cached snapshot stale immediately.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: settings.TopicChanged, Handler: func(_ context.Context, _ plugin.Event) {
			m.invalidate()
		}},
	}
}

// Routes implements plugin.HTTPProvider. Mounted under /api/v1/assist/.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/chat", Handler: m.handleChat},
		{Method: "GET", Path: "/chat/ws", Handler: m.handleChatStream},
		{Method: "GET", Path: "/snapshot", Handler: m.handleSnapshot},
	}
}

func (m *Module) invalidate() {
	m.mu.Lock()
	m.snapshot = nil
	m.mu.Unlock()
}

// settingsProvider resolves the plugin that owns the source configuration.
func (m *Module) settingsProvider() (roles.SettingsProvider, error) {
	if m.plugins == nil {
		return nil, fmt.Errorf("plugin resolver not available")
	}
	for _, p := range m.plugins.ResolveByRole(roles.RoleSettings) {
		if sp, ok := p.(roles.SettingsProvider); ok {
			return sp, nil
		}
	}
	return nil, fmt.Errorf("no settings provider registered")
}

// llmProvider resolves the active LLM provider.
func (m *Module) llmProvider() (roles.LLMProvider, error) {
	if m.plugins == nil {
		return nil, fmt.Errorf("plugin resolver not available")
	}
	for _, p := range m.plugins.ResolveByRole(roles.RoleLLM) {
		if lp, ok := p.(roles.LLMProvider); ok && lp.Provider() != nil {
			return lp, nil
		}
	}
	return nil, fmt.Errorf("no LLM provider registered")
}

// currentSnapshot returns a fleet snapshot, reusing a cached one while it is
// fresh. Every caller inside the TTL window shares the same aggregation.
func (m *Module) currentSnapshot(ctx context.Context) (*models.MonitoringSnapshot, []models.ControllerConfig, error) {
	sp, err := m.settingsProvider()
	if err != nil {
		return nil, nil, err
	}
	controllers, err := sp.Controllers(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load controllers: %w", err)
	}

	m.mu.Lock()
	if m.snapshot != nil && time.Since(m.taken) < m.cfg.CacheTTL {
		snap := m.snapshot
		m.mu.Unlock()
		return snap, controllers, nil
	}
	m.mu.Unlock()

	var cloud *models.CloudConfig
	if c, err := sp.Cloud(ctx); err != nil {
		m.logger.Warn("cloud config unavailable", zap.Error(err))
	} else if c.Enabled {
		cloud = &c
	}

	snap := m.agg.Snapshot(ctx, controllers, cloud)

	m.mu.Lock()
	m.snapshot = snap
	m.taken = time.Now()
	m.mu.Unlock()
	return snap, controllers, nil
}

// formatterFor builds a context formatter scoped to the given controllers.
func (m *Module) formatterFor(controllers []models.ControllerConfig) *contextgen.Formatter {
	var locator contextgen.ClientLocator
	if fl := newFleetLocator(controllers, m.logger); fl != nil {
		locator = fl
	}
	return contextgen.New(m.runner, locator, m.logger)
}
