package checks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/netsage/internal/event"
	"github.com/HerbHall/netsage/pkg/plugin"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, alert *Alert, eventType string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType+":"+alert.CheckID)
	return nil
}

func (n *recordingNotifier) Type() string { return "recording" }

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func failResult(checkID, msg string) *CheckResult {
	return &CheckResult{CheckID: checkID, Success: false, ErrorMessage: msg, CheckedAt: time.Now().UTC()}
}

func okResult(checkID string) *CheckResult {
	return &CheckResult{CheckID: checkID, Success: true, CheckedAt: time.Now().UTC()}
}

func TestAlerterTriggersAtThreshold(t *testing.T) {
	s := newTestStore(t)
	notifier := &recordingNotifier{}
	a := NewAlerter(s, nil, []Notifier{notifier}, 3, zap.NewNop())
	ctx := context.Background()
	check := *testCheck("c1")

	a.ProcessResult(ctx, check, failResult("c1", "timeout"))
	a.ProcessResult(ctx, check, failResult("c1", "timeout"))

	alert, err := s.GetActiveAlert(ctx, "c1")
	if err != nil {
		t.Fatalf("GetActiveAlert: %v", err)
	}
	if alert != nil {
		t.Fatalf("alert before threshold: %+v", alert)
	}

	a.ProcessResult(ctx, check, failResult("c1", "timeout"))

	alert, err = s.GetActiveAlert(ctx, "c1")
	if err != nil || alert == nil {
		t.Fatalf("GetActiveAlert after threshold = %+v, %v", alert, err)
	}
	if alert.Severity != "warning" || alert.ConsecutiveFailures != 3 {
		t.Errorf("alert = %+v", alert)
	}
	if alert.Message != "timeout" {
		t.Errorf("Message = %q, want the check error", alert.Message)
	}

	got := notifier.all()
	if len(got) != 1 || got[0] != "triggered:c1" {
		t.Errorf("notifications = %v", got)
	}
}

func TestAlerterDoesNotDuplicateActiveAlert(t *testing.T) {
	s := newTestStore(t)
	a := NewAlerter(s, nil, nil, 2, zap.NewNop())
	ctx := context.Background()
	check := *testCheck("c1")

	for i := 0; i < 5; i++ {
		a.ProcessResult(ctx, check, failResult("c1", "down"))
	}

	alerts, err := s.ListAlerts(ctx, false, 10)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Errorf("got %d alerts, want 1", len(alerts))
	}
}

func TestAlerterResolvesOnSuccess(t *testing.T) {
	s := newTestStore(t)
	bus := event.NewBus(zap.NewNop())
	resolved := make(chan plugin.Event, 1)
	bus.Subscribe(TopicAlertResolved, func(_ context.Context, e plugin.Event) {
		resolved <- e
	})

	notifier := &recordingNotifier{}
	a := NewAlerter(s, bus, []Notifier{notifier}, 2, zap.NewNop())
	ctx := context.Background()
	check := *testCheck("c1")

	a.ProcessResult(ctx, check, failResult("c1", "down"))
	a.ProcessResult(ctx, check, failResult("c1", "down"))
	a.ProcessResult(ctx, check, okResult("c1"))

	active, err := s.GetActiveAlert(ctx, "c1")
	if err != nil || active != nil {
		t.Errorf("active after recovery = %+v, %v, want nil, nil", active, err)
	}

	select {
	case e := <-resolved:
		alert, ok := e.Payload.(*Alert)
		if !ok || alert.ResolvedAt == nil {
			t.Errorf("resolved payload = %+v", e.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no resolved event published")
	}

	got := notifier.all()
	if len(got) != 2 || got[1] != "resolved:c1" {
		t.Errorf("notifications = %v", got)
	}

	// Failure counter reset: two more failures trigger a fresh alert.
	a.ProcessResult(ctx, check, failResult("c1", "down"))
	a.ProcessResult(ctx, check, failResult("c1", "down"))
	active, _ = s.GetActiveAlert(ctx, "c1")
	if active == nil {
		t.Error("no new alert after counter reset")
	}
}

func TestAlerterCriticalSeverity(t *testing.T) {
	s := newTestStore(t)
	a := NewAlerter(s, nil, nil, 2, zap.NewNop())
	ctx := context.Background()
	check := *testCheck("c1")

	// Push past twice the threshold before the first alert exists, so the
	// alert is created at critical severity.
	a.failures["c1"] = 3
	a.ProcessResult(ctx, check, failResult("c1", "down"))

	alert, err := s.GetActiveAlert(ctx, "c1")
	if err != nil || alert == nil {
		t.Fatalf("GetActiveAlert = %+v, %v", alert, err)
	}
	if alert.Severity != "critical" {
		t.Errorf("Severity = %q, want critical", alert.Severity)
	}
}

func TestAlerterSuccessWithoutAlertIsQuiet(t *testing.T) {
	s := newTestStore(t)
	notifier := &recordingNotifier{}
	a := NewAlerter(s, nil, []Notifier{notifier}, 2, zap.NewNop())

	a.ProcessResult(context.Background(), *testCheck("c1"), okResult("c1"))

	if got := notifier.all(); len(got) != 0 {
		t.Errorf("notifications = %v, want none", got)
	}
}
