package checks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HerbHall/netsage/pkg/plugin"
	"go.uber.org/zap"
)

// Event topics published by the checks plugin.
const (
	TopicAlertTriggered = "checks.alert.triggered"
	TopicAlertResolved  = "checks.alert.resolved"
)

// Notifier delivers alert notifications through a specific channel.
type Notifier interface {
	// Notify sends an alert notification. eventType is "triggered" or "resolved".
	Notify(ctx context.Context, alert *Alert, eventType string) error
	// Type returns the notifier type identifier (e.g., "webhook").
	Type() string
}

// Alerter tracks consecutive check failures and manages alert lifecycle.
type Alerter struct {
	store     *CheckStore
	bus       plugin.EventBus
	notifiers []Notifier
	threshold int
	logger    *zap.Logger

	mu       sync.Mutex
	failures map[string]int // check ID -> consecutive failure count
}

// NewAlerter creates an alerter with the given consecutive failure threshold.
func NewAlerter(store *CheckStore, bus plugin.EventBus, notifiers []Notifier, threshold int, logger *zap.Logger) *Alerter {
	if threshold < 1 {
		threshold = 1
	}
	return &Alerter{
		store:     store,
		bus:       bus,
		notifiers: notifiers,
		threshold: threshold,
		logger:    logger,
		failures:  make(map[string]int),
	}
}

// ProcessResult evaluates a check result and triggers or resolves alerts.
func (a *Alerter) ProcessResult(ctx context.Context, check Check, result *CheckResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if result.Success {
		a.handleSuccess(ctx, check)
	} else {
		a.handleFailure(ctx, check, result)
	}
}

// handleSuccess resets the failure counter and resolves any active alert.
func (a *Alerter) handleSuccess(ctx context.Context, check Check) {
	delete(a.failures, check.ID)

	alert, err := a.store.GetActiveAlert(ctx, check.ID)
	if err != nil {
		a.logger.Warn("failed to get active alert", zap.String("check_id", check.ID), zap.Error(err))
		return
	}
	if alert == nil {
		return
	}

	now := time.Now().UTC()
	if err := a.store.ResolveAlert(ctx, alert.ID, now); err != nil {
		a.logger.Warn("failed to resolve alert", zap.String("alert_id", alert.ID), zap.Error(err))
		return
	}

	alert.ResolvedAt = &now
	a.logger.Info("alert resolved",
		zap.String("alert_id", alert.ID),
		zap.String("check_id", check.ID),
	)
	a.publish(ctx, TopicAlertResolved, alert)
	a.notify(ctx, alert, "resolved")
}

// handleFailure increments the failure counter and triggers an alert once the
// threshold is reached. Failures beyond twice the threshold are critical.
func (a *Alerter) handleFailure(ctx context.Context, check Check, result *CheckResult) {
	a.failures[check.ID]++
	count := a.failures[check.ID]

	if count < a.threshold {
		return
	}

	existing, err := a.store.GetActiveAlert(ctx, check.ID)
	if err != nil {
		a.logger.Warn("failed to check existing alert", zap.String("check_id", check.ID), zap.Error(err))
		return
	}
	if existing != nil {
		return
	}

	now := time.Now().UTC()
	severity := "warning"
	if count >= a.threshold*2 {
		severity = "critical"
	}

	message := fmt.Sprintf("check %s failed %d consecutive times", check.Name, count)
	if result.ErrorMessage != "" {
		message = result.ErrorMessage
	}

	alert := &Alert{
		ID:                  fmt.Sprintf("alert-%s-%d", check.ID, now.UnixMilli()),
		CheckID:             check.ID,
		Severity:            severity,
		Message:             message,
		TriggeredAt:         now,
		ConsecutiveFailures: count,
	}
	if err := a.store.InsertAlert(ctx, alert); err != nil {
		a.logger.Warn("failed to insert alert", zap.String("check_id", check.ID), zap.Error(err))
		return
	}

	a.logger.Warn("alert triggered",
		zap.String("alert_id", alert.ID),
		zap.String("check_id", check.ID),
		zap.String("severity", severity),
		zap.Int("consecutive_failures", count),
	)
	a.publish(ctx, TopicAlertTriggered, alert)
	a.notify(ctx, alert, "triggered")
}

func (a *Alerter) publish(ctx context.Context, topic string, alert *Alert) {
	if a.bus == nil {
		return
	}
	a.bus.PublishAsync(ctx, plugin.Event{
		Topic:     topic,
		Source:    "checks",
		Timestamp: time.Now(),
		Payload:   alert,
	})
}

func (a *Alerter) notify(ctx context.Context, alert *Alert, eventType string) {
	for _, n := range a.notifiers {
		if err := n.Notify(ctx, alert, eventType); err != nil {
			a.logger.Warn("notification delivery failed",
				zap.String("notifier", n.Type()),
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}
	}
}
