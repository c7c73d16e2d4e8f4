package llm

import (
	"context"
	"fmt"

	"github.com/HerbHall/netsage/internal/llm/ollama"
	"github.com/HerbHall/netsage/internal/llm/openai"
	pkgllm "github.com/HerbHall/netsage/pkg/llm"
	"github.com/HerbHall/netsage/pkg/plugin"
	"github.com/HerbHall/netsage/pkg/roles"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ roles.LLMProvider    = (*Module)(nil)
)

// ModuleConfig holds the LLM module configuration with per-provider sub-configs.
type ModuleConfig struct {
	Provider string        `mapstructure:"provider"` // "ollama" (default) or "openai"
	Ollama   ollama.Config `mapstructure:"ollama"`
	OpenAI   openai.Config `mapstructure:"openai"`
}

// Module implements the LLM plugin, wrapping a configurable provider.
type Module struct {
	logger   *zap.Logger
	provider pkgllm.Provider
	cfg      ModuleConfig
}

// New creates a new LLM plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "llm",
		Version:     "0.2.0",
		Description: "LLM provider integration (Ollama, OpenAI)",
		Roles:       []string{roles.RoleLLM},
		Required:    false,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = ModuleConfig{
		Provider: "ollama",
		Ollama:   ollama.DefaultConfig(),
		OpenAI:   openai.DefaultConfig(),
	}

	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal llm config: %w", err)
		}
	}

	provider, err := newProvider(m.cfg, m.logger)
	if err != nil {
		return fmt.Errorf("create %s provider: %w", m.cfg.Provider, err)
	}
	m.provider = provider

	m.logger.Info("llm plugin initialized",
		zap.String("provider", m.cfg.Provider),
	)
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	hr, ok := m.provider.(pkgllm.HealthReporter)
	if !ok {
		return nil
	}

	if err := hr.Heartbeat(ctx); err != nil {
		m.logger.Warn("llm provider not reachable; features will be unavailable until it comes online",
			zap.String("provider", m.cfg.Provider),
			zap.Error(err),
		)
		return nil
	}

	models, err := hr.ListModels(ctx)
	if err != nil {
		m.logger.Warn("failed to list models",
			zap.String("provider", m.cfg.Provider),
			zap.Error(err),
		)
		return nil
	}

	m.logger.Info("llm provider connected",
		zap.String("provider", m.cfg.Provider),
		zap.Strings("models", models),
	)
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("llm plugin stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	hr, ok := m.provider.(pkgllm.HealthReporter)
	if !ok {
		return plugin.HealthStatus{Status: "healthy", Message: "no health reporter"}
	}

	if err := hr.Heartbeat(ctx); err != nil {
		return plugin.HealthStatus{
			Status:  "unhealthy",
			Message: err.Error(),
		}
	}
	return plugin.HealthStatus{Status: "healthy"}
}

// Provider implements roles.LLMProvider.
func (m *Module) Provider() pkgllm.Provider {
	return m.provider
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/config", Handler: m.handleGetConfig},
		{Method: "PUT", Path: "/config", Handler: m.handlePutConfig},
		{Method: "POST", Path: "/test", Handler: m.handleTestConnection},
	}
}

// newProvider creates a provider based on the config.
func newProvider(cfg ModuleConfig, logger *zap.Logger) (pkgllm.Provider, error) {
	switch cfg.Provider {
	case "ollama", "":
		return ollama.New(cfg.Ollama, logger)

	case "openai":
		return openai.New(cfg.OpenAI, logger)

	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
