package unifi

import (
	"testing"
	"time"

	"github.com/HerbHall/netsage/pkg/models"
)

func TestNormalizeTimestampMagnitude(t *testing.T) {
	// 2026-01-15T00:00:00Z in seconds and milliseconds.
	const epochSec = 1768435200

	tests := []struct {
		name string
		in   float64
	}{
		{"seconds", epochSec},
		{"milliseconds", epochSec * 1000},
	}
	want := time.Unix(epochSec, 0).UTC()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeTimestamp(tt.in); !got.Equal(want) {
				t.Errorf("normalizeTimestamp(%v) = %v, want %v", tt.in, got, want)
			}
		})
	}
}

func TestNormalizeEventsFields(t *testing.T) {
	rows := []map[string]any{
		{"key": "EVT_WU_Connected", "msg": "User connected", "hostname": "laptop", "time": float64(1768435200000)},
		{"catname": "alarm", "message": "link down"},
		{}, // nothing usable
	}

	events := normalizeEvents(rows)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Key != "EVT_WU_Connected" || events[0].Host != "laptop" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[0].Timestamp.Unix() != 1768435200 {
		t.Errorf("millisecond timestamp not normalized: %v", events[0].Timestamp)
	}
	if events[1].Key != "alarm" || events[1].Message != "link down" {
		t.Errorf("unexpected second event: %+v", events[1])
	}
}

func TestFilterConnectionEvents(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	events := []models.Event{
		{Key: "EVT_WU_Connected", Message: "recent wireless", Timestamp: now.Add(-2 * time.Minute)},
		{Key: "EVT_LU_Connected", Message: "recent wired", Timestamp: now.Add(-4 * time.Minute)},
		{Key: "EVT_WU_Connected", Message: "too old", Timestamp: now.Add(-10 * time.Minute)},
		{Key: "EVT_WU_Disconnected", Message: "wrong key", Timestamp: now.Add(-1 * time.Minute)},
		{Key: "EVT_AP_RestartedUnknown", Message: "not a connect", Timestamp: now.Add(-1 * time.Minute)},
		{Key: "EVT_WG_Connected", Message: "guest", Timestamp: now.Add(-30 * time.Second)},
	}

	got := FilterConnectionEvents(events, now, 0) // zero window -> default 5m
	if len(got) != 3 {
		t.Fatalf("got %d connection events, want 3: %+v", len(got), got)
	}
	for _, e := range got {
		if e.Message == "too old" || e.Message == "wrong key" || e.Message == "not a connect" {
			t.Errorf("event %q should have been filtered out", e.Message)
		}
	}
}

func TestFilterConnectionEventsCustomWindow(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	events := []models.Event{
		{Key: "EVT_WU_Connected", Timestamp: now.Add(-20 * time.Minute)},
	}

	if got := FilterConnectionEvents(events, now, 30*time.Minute); len(got) != 1 {
		t.Errorf("30m window should include a 20m-old event, got %d", len(got))
	}
	if got := FilterConnectionEvents(events, now, 5*time.Minute); len(got) != 0 {
		t.Errorf("5m window should exclude a 20m-old event, got %d", len(got))
	}
}
