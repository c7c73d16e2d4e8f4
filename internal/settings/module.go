// Package settings owns the monitoring source configuration: the set of
// local controllers and the optional cloud fleet API connection. Other
// plugins read it through the roles.SettingsProvider contract and react to
// the settings.changed bus topic.
package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/HerbHall/netsage/pkg/models"
	"github.com/HerbHall/netsage/pkg/plugin"
	"github.com/HerbHall/netsage/pkg/roles"
	"go.uber.org/zap"
)

// TopicChanged is published on the event bus after any mutation so that
// consumers can drop cached clients built from stale configuration.
const TopicChanged = "settings.changed"

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.HTTPProvider    = (*Module)(nil)
	_ roles.SettingsProvider = (*Module)(nil)
)

// seedConfig mirrors the optional bootstrap section of the config file.
type seedConfig struct {
	Controllers []models.ControllerConfig `mapstructure:"controllers"`
	Cloud       models.CloudConfig        `mapstructure:"cloud"`
}

// Module implements the settings plugin.
type Module struct {
	logger *zap.Logger
	repo   *repository
	bus    plugin.EventBus
}

// New creates a new settings plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "settings",
		Version:     "0.3.0",
		Description: "Monitoring source configuration (controllers, cloud fleet)",
		Roles:       []string{roles.RoleSettings},
		Required:    true,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	if deps.Store == nil {
		return fmt.Errorf("settings plugin requires a store")
	}
	if err := deps.Store.Migrate(ctx, "settings", migrations); err != nil {
		return fmt.Errorf("apply settings migrations: %w", err)
	}
	m.repo = &repository{store: deps.Store}

	if deps.Config != nil {
		if err := m.seed(ctx, deps.Config); err != nil {
			return err
		}
	}
	return nil
}

// seed imports controllers and cloud config from the config file the first
// time the server starts with an empty database. Config file edits never
// override settings changed later through the API.
func (m *Module) seed(ctx context.Context, cfg plugin.Config) error {
	existing, err := m.repo.ListControllers(ctx)
	if err != nil {
		return fmt.Errorf("check existing controllers: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	var seed seedConfig
	if err := cfg.Unmarshal(&seed); err != nil {
		return fmt.Errorf("unmarshal settings config: %w", err)
	}

	for _, c := range seed.Controllers {
		if c.ID == "" || c.BaseURL == "" {
			m.logger.Warn("skipping seed controller without id or base_url",
				zap.String("id", c.ID))
			continue
		}
		if c.Site == "" {
			c.Site = "default"
		}
		if err := m.repo.UpsertController(ctx, c); err != nil {
			return err
		}
	}
	if seed.Cloud.Enabled || seed.Cloud.APIKey != "" {
		if err := m.repo.PutCloud(ctx, seed.Cloud); err != nil {
			return err
		}
	}

	if len(seed.Controllers) > 0 {
		m.logger.Info("seeded monitoring sources from config",
			zap.Int("controllers", len(seed.Controllers)),
			zap.Bool("cloud", seed.Cloud.Enabled),
		)
	}
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop(_ context.Context) error { return nil }

// Controllers implements roles.SettingsProvider.
func (m *Module) Controllers(ctx context.Context) ([]models.ControllerConfig, error) {
	return m.repo.ListControllers(ctx)
}

// Cloud implements roles.SettingsProvider.
func (m *Module) Cloud(ctx context.Context) (models.CloudConfig, error) {
	return m.repo.GetCloud(ctx)
}

// Routes implements plugin.HTTPProvider. Mounted under /api/v1/settings/.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/controllers", Handler: m.handleListControllers},
		{Method: "POST", Path: "/controllers", Handler: m.handleCreateController},
		{Method: "GET", Path: "/controllers/{id}", Handler: m.handleGetController},
		{Method: "PUT", Path: "/controllers/{id}", Handler: m.handleUpdateController},
		{Method: "DELETE", Path: "/controllers/{id}", Handler: m.handleDeleteController},
		{Method: "GET", Path: "/cloud", Handler: m.handleGetCloud},
		{Method: "PUT", Path: "/cloud", Handler: m.handlePutCloud},
	}
}

// notifyChanged publishes a settings.changed event describing the mutation.
func (m *Module) notifyChanged(ctx context.Context, what, id string) {
	if m.bus == nil {
		return
	}
	m.bus.PublishAsync(ctx, plugin.Event{
		Topic:     TopicChanged,
		Source:    "settings",
		Timestamp: time.Now(),
		Payload: map[string]string{
			"what": what,
			"id":   id,
		},
	})
}
