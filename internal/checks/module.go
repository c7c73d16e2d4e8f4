// Package checks runs scheduled health checks (ping, TCP, HTTP) against
// hosts and services, keeps a result history, and raises alerts after
// consecutive failures. Alerts go out on the event bus and, when configured,
// to an HMAC-signed webhook.
package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/HerbHall/netsage/pkg/plugin"
	"github.com/HerbHall/netsage/pkg/roles"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin            = (*Module)(nil)
	_ plugin.HTTPProvider      = (*Module)(nil)
	_ plugin.HealthChecker     = (*Module)(nil)
	_ roles.MonitoringProvider = (*Module)(nil)
)

// ModuleConfig holds the checks plugin configuration.
type ModuleConfig struct {
	Tick                time.Duration `mapstructure:"tick"`
	CheckTimeout        time.Duration `mapstructure:"check_timeout"`
	PingCount           int           `mapstructure:"ping_count"`
	ConsecutiveFailures int           `mapstructure:"consecutive_failures"`
	RetentionPeriod     time.Duration `mapstructure:"retention_period"`
	MaxWorkers          int           `mapstructure:"max_workers"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
	Webhook             WebhookConfig `mapstructure:"webhook"`
}

// DefaultConfig returns the default checks configuration.
func DefaultConfig() ModuleConfig {
	return ModuleConfig{
		Tick:                15 * time.Second,
		CheckTimeout:        5 * time.Second,
		PingCount:           3,
		ConsecutiveFailures: 3,
		RetentionPeriod:     30 * 24 * time.Hour,
		MaxWorkers:          10,
		MaintenanceInterval: time.Hour,
	}
}

// Module implements the checks plugin.
type Module struct {
	logger    *zap.Logger
	cfg       ModuleConfig
	store     *CheckStore
	checkers  map[string]Checker
	alerter   *Alerter
	scheduler *Scheduler

	cancel context.CancelFunc
}

// New creates a new checks plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "checks",
		Version:     "0.3.0",
		Description: "Scheduled health checks and alerting",
		Roles:       []string{roles.RoleMonitoring},
		Required:    false,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal checks config: %w", err)
		}
	}

	if deps.Store == nil {
		return fmt.Errorf("checks plugin requires a store")
	}
	if err := deps.Store.Migrate(ctx, "checks", migrations); err != nil {
		return fmt.Errorf("apply checks migrations: %w", err)
	}
	m.store = NewCheckStore(deps.Store.DB())

	m.checkers = map[string]Checker{
		"ping": NewPingChecker(m.cfg.CheckTimeout, m.cfg.PingCount),
		"tcp":  NewTCPChecker(m.cfg.CheckTimeout),
		"http": NewHTTPChecker(m.cfg.CheckTimeout),
	}

	var notifiers []Notifier
	if m.cfg.Webhook.URL != "" {
		notifiers = append(notifiers, NewWebhookNotifier(m.cfg.Webhook))
	}
	m.alerter = NewAlerter(m.store, deps.Bus, notifiers, m.cfg.ConsecutiveFailures, m.logger)
	m.scheduler = NewScheduler(m.store, m.execute, m.cfg.Tick, m.cfg.MaxWorkers, m.logger)

	return nil
}

func (m *Module) Start(_ context.Context) error {
	// Detached from the caller: the scheduler outlives the start call and
	// stops via Stop.
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.scheduler.Start(ctx)
	go m.maintenanceLoop(ctx)

	m.logger.Info("checks scheduler started",
		zap.Duration("tick", m.cfg.Tick),
		zap.Int("workers", m.cfg.MaxWorkers),
	)
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	if m.scheduler != nil {
		m.scheduler.Stop()
	}
	m.logger.Info("checks plugin stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if m.scheduler == nil || !m.scheduler.Running() {
		return plugin.HealthStatus{Status: "degraded", Message: "scheduler not running"}
	}
	return plugin.HealthStatus{Status: "healthy"}
}

// Status implements roles.MonitoringProvider.
func (m *Module) Status(ctx context.Context, checkID string) (*roles.MonitorStatus, error) {
	result, err := m.store.LatestResult(ctx, checkID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("no results for check %q", checkID)
	}
	return &roles.MonitorStatus{
		CheckID:   checkID,
		Healthy:   result.Success,
		Message:   result.ErrorMessage,
		CheckedAt: result.CheckedAt,
	}, nil
}

// execute runs one check and feeds the result to the alerter.
func (m *Module) execute(ctx context.Context, check Check) {
	checker, ok := m.checkers[check.CheckType]
	if !ok {
		m.logger.Warn("unknown check type",
			zap.String("check_id", check.ID),
			zap.String("check_type", check.CheckType),
		)
		return
	}

	result, err := checker.Check(ctx, check.Target)
	if err != nil {
		m.logger.Debug("check failed",
			zap.String("check_id", check.ID),
			zap.String("target", check.Target),
			zap.Error(err),
		)
	}
	result.CheckID = check.ID

	if err := m.store.InsertResult(ctx, result); err != nil {
		m.logger.Warn("failed to store check result",
			zap.String("check_id", check.ID),
			zap.Error(err),
		)
	}
	m.alerter.ProcessResult(ctx, check, result)
}

// maintenanceLoop prunes old results on the configured interval.
func (m *Module) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-m.cfg.RetentionPeriod)
			n, err := m.store.DeleteOldResults(ctx, cutoff)
			if err != nil {
				m.logger.Warn("result pruning failed", zap.Error(err))
				continue
			}
			if n > 0 {
				m.logger.Info("pruned old check results", zap.Int64("deleted", n))
			}
		}
	}
}
