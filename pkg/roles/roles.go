// Package roles defines typed contracts for plugin roles.
// Plugins that fill a role (declared via PluginInfo.Roles) should implement
// the corresponding interface so callers can use type-safe access via
// PluginResolver.ResolveByRole followed by a type assertion.
//
// This package is Apache 2.0 licensed, part of the public plugin SDK.
package roles

import (
	"context"

	"github.com/HerbHall/netsage/pkg/llm"
	"github.com/HerbHall/netsage/pkg/models"
)

// Role name constants match the strings used in PluginInfo.Roles.
const (
	RoleMonitoring   = "monitoring"
	RoleSettings     = "settings"
	RoleNotification = "notification"
	RoleLLM          = "llm"
)

// MonitoringProvider is implemented by plugins that run scheduled health
// checks against hosts and services.
type MonitoringProvider interface {
	// Status returns the latest check result for a check ID.
	Status(ctx context.Context, checkID string) (*MonitorStatus, error)
}

// SettingsProvider is implemented by plugins that own the monitoring source
// configuration. Resolve via ResolveByRole(RoleSettings) then type-assert.
type SettingsProvider interface {
	// Controllers returns all configured local controllers.
	Controllers(ctx context.Context) ([]models.ControllerConfig, error)

	// Cloud returns the cloud fleet API configuration.
	Cloud(ctx context.Context) (models.CloudConfig, error)
}

// Notifier is implemented by plugins that send notifications (webhooks,
// email, etc.).
type Notifier interface {
	// Notify sends a notification with the given payload.
	Notify(ctx context.Context, notification Notification) error
}

// LLMProvider is implemented by plugins that provide LLM capabilities.
// Resolve via PluginResolver.ResolveByRole(RoleLLM) then type-assert.
type LLMProvider interface {
	// Provider returns the underlying LLM provider interface.
	Provider() llm.Provider
}
